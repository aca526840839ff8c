package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
)

func serveWithActor(t *testing.T, mw func(http.Handler) http.Handler, actor rbac.Actor) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/posts", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	if actor != nil {
		req = req.WithContext(rbac.ContextWithActor(req.Context(), actor))
	}
	res := httptest.NewRecorder()
	mw(next).ServeHTTP(res, req)
	return res, called
}

func TestRequireRolesOrSemantics(t *testing.T) {
	filter := rbac.AccessFilter{}
	mw := filter.RequireRoles("a", "b")

	res, called := serveWithActor(t, mw, fakeActor{roles: map[string]bool{"b": true}})
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, res.Code)

	res, called = serveWithActor(t, mw, fakeActor{roles: map[string]bool{"c": true}})
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, rbac.UnauthorizedMessage, strings.TrimSpace(res.Body.String()))
}

func TestRequireRolesSingleRole(t *testing.T) {
	filter := rbac.AccessFilter{}
	cases := []struct {
		name  string
		roles map[string]bool
		want  int
	}{
		{name: "holds role", roles: map[string]bool{"admin": true}, want: http.StatusOK},
		{name: "other role", roles: map[string]bool{"editor": true}, want: http.StatusForbidden},
		{name: "no roles", roles: nil, want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			single, _ := serveWithActor(t, filter.RequireRoles("admin"), fakeActor{roles: tc.roles})
			set, _ := serveWithActor(t, filter.RequireRoles("admin", "admin"), fakeActor{roles: tc.roles})
			assert.Equal(t, tc.want, single.Code)
			assert.Equal(t, single.Code, set.Code)
		})
	}
}

func TestRequireRolesWithoutActor(t *testing.T) {
	res, called := serveWithActor(t, rbac.AccessFilter{}.RequireRoles("admin"), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

// exactActor matches role names byte for byte.
type exactActor struct {
	roles []string
	seen  []string
}

func (a *exactActor) HasRoles(names ...string) bool {
	a.seen = append(a.seen, names...)
	for _, name := range names {
		for _, held := range a.roles {
			if held == name {
				return true
			}
		}
	}
	return false
}

func (a *exactActor) HasPermission(p rbac.Permission) bool { return false }

func TestRequireRolesPassesNamesUnchanged(t *testing.T) {
	cases := []struct {
		name     string
		required []string
		want     int
		seen     []string
	}{
		{name: "same case", required: []string{"Admin"}, want: http.StatusOK, seen: []string{"Admin"}},
		{name: "different case", required: []string{"admin"}, want: http.StatusForbidden, seen: []string{"admin"}},
		{name: "padded", required: []string{" Admin "}, want: http.StatusForbidden, seen: []string{" Admin "}},
		{name: "duplicates kept", required: []string{"Editor", "Editor", "Admin"}, want: http.StatusOK, seen: []string{"Editor", "Editor", "Admin"}},
		{name: "blank dropped", required: []string{"", "  ", "Admin"}, want: http.StatusOK, seen: []string{"Admin"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor := &exactActor{roles: []string{"Admin"}}
			mw := rbac.AccessFilter{}.RequireRoles(tc.required[0], tc.required[1:]...)
			res, called := serveWithActor(t, mw, actor)
			assert.Equal(t, tc.want, res.Code)
			assert.Equal(t, tc.want == http.StatusOK, called)
			assert.Equal(t, tc.seen, actor.seen)
		})
	}
}

func TestRequireRolesOnlyBlankNames(t *testing.T) {
	actor := &exactActor{roles: []string{""}}
	res, called := serveWithActor(t, rbac.AccessFilter{}.RequireRoles("", " "), actor)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Empty(t, actor.seen)
}

func TestRequireRolesUsesResolver(t *testing.T) {
	filter := rbac.AccessFilter{Resolve: func(r *http.Request) (rbac.Actor, bool) {
		return fakeActor{roles: map[string]bool{"editor": true}}, true
	}}
	res, called := serveWithActor(t, filter.RequireRoles("editor"), nil)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestRequirePermission(t *testing.T) {
	gate := rbac.NewGate()
	gate.Define("edit-post", func(a rbac.Actor) bool { return a.HasPermission(rbac.Permission{Name: "edit-post"}) })
	rec := &countingDenials{}
	filter := rbac.AccessFilter{Metrics: rec}

	res, called := serveWithActor(t, filter.RequirePermission(gate, "edit-post"), fakeActor{perms: map[string]bool{"edit-post": true}})
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, res.Code)

	res, called = serveWithActor(t, filter.RequirePermission(gate, "publish-post"), fakeActor{perms: map[string]bool{"publish-post": true}})
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, []string{"permission"}, rec.reasons)
}

type countingDenials struct {
	countingRecorder
	reasons []string
}

func (c *countingDenials) Denied(reason string) { c.reasons = append(c.reasons, reason) }
