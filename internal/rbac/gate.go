package rbac

import (
	"sort"
	"sync"
)

// Gate stores permission bindings and answers "can this actor do X".
// Binding names are matched exactly and case-sensitively; any folding of
// role or permission names is left to the Actor implementation.
type Gate struct {
	mu       sync.RWMutex
	bindings map[string]Predicate
}

// NewGate returns an empty gate. Undefined permissions are denied.
func NewGate() *Gate {
	return &Gate{bindings: make(map[string]Predicate)}
}

// Define binds predicate under name, replacing any previous binding.
func (g *Gate) Define(name string, predicate Predicate) {
	if name == "" || predicate == nil {
		return
	}
	g.mu.Lock()
	g.bindings[name] = predicate
	g.mu.Unlock()
}

// Can evaluates the binding registered under name against actor.
func (g *Gate) Can(name string, actor Actor) bool {
	if g == nil || actor == nil {
		return false
	}
	g.mu.RLock()
	predicate, ok := g.bindings[name]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	return predicate(actor)
}

// Defined reports whether a binding exists for name.
func (g *Gate) Defined(name string) bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.bindings[name]
	return ok
}

// Names lists bound permission names in ascending order.
func (g *Gate) Names() []string {
	if g == nil {
		return nil
	}
	g.mu.RLock()
	names := make([]string, 0, len(g.bindings))
	for name := range g.bindings {
		names = append(names, name)
	}
	g.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of bindings.
func (g *Gate) Len() int {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.bindings)
}
