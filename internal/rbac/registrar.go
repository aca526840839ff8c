package rbac

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Recorder receives authorization events for metrics.
type Recorder interface {
	CacheHit()
	CacheMiss()
	StorageUnavailable()
	Registered(count int)
	Denied(reason string)
}

type noopRecorder struct{}

func (noopRecorder) CacheHit()            {}
func (noopRecorder) CacheMiss()           {}
func (noopRecorder) StorageUnavailable()  {}
func (noopRecorder) Registered(count int) {}
func (noopRecorder) Denied(reason string) {}

// RegistrarConfig is the process-wide cache policy, fixed at startup.
type RegistrarConfig struct {
	CacheKey string
	CacheTTL time.Duration
}

// DefaultCacheTTL is used when RegistrarConfig.CacheTTL is not positive.
const DefaultCacheTTL = 24 * time.Hour

// RegistrarOption customises a Registrar.
type RegistrarOption func(*Registrar)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) RegistrarOption {
	return func(r *Registrar) {
		r.logger = logger
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) RegistrarOption {
	return func(r *Registrar) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// Registrar loads permissions through the cache and binds them into a Gate.
type Registrar struct {
	store   PermissionStore
	cache   PermissionCache
	gate    *Gate
	key     string
	ttl     time.Duration
	logger  *slog.Logger
	metrics Recorder
	loads   singleflight.Group
}

// NewRegistrar wires a Registrar.
func NewRegistrar(store PermissionStore, cache PermissionCache, gate *Gate, cfg RegistrarConfig, opts ...RegistrarOption) *Registrar {
	if cfg.CacheKey == "" {
		cfg.CacheKey = DefaultCacheKey
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	r := &Registrar{
		store:   store,
		cache:   cache,
		gate:    gate,
		key:     cfg.CacheKey,
		ttl:     cfg.CacheTTL,
		metrics: noopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gate returns the gate the registrar binds into.
func (r *Registrar) Gate() *Gate {
	return r.gate
}

// CacheKey returns the fixed key of the cached permission set.
func (r *Registrar) CacheKey() string {
	return r.key
}

// Register binds one predicate per loaded permission. Calling it again
// re-installs every binding; the last write per name wins. Storage
// unavailability yields no bindings rather than an error.
func (r *Registrar) Register(ctx context.Context) error {
	perms, err := r.LoadPermissions(ctx)
	if err != nil {
		return err
	}
	for _, p := range perms {
		r.gate.Define(p.Name, permissionPredicate(p))
	}
	r.metrics.Registered(r.gate.Len())
	if r.logger != nil {
		r.logger.Debug("authz permissions registered",
			slog.Int("loaded", len(perms)), slog.Int("bound", r.gate.Len()))
	}
	return nil
}

// LoadPermissions returns the cached permission set, reading through to the
// store on a miss. When the store reports ErrStorageUnavailable the result
// is empty and nothing is cached. Cache errors propagate.
func (r *Registrar) LoadPermissions(ctx context.Context) ([]Permission, error) {
	perms, hit, err := r.cache.Get(ctx, r.key)
	if err != nil {
		return nil, err
	}
	if hit {
		r.metrics.CacheHit()
		return perms, nil
	}
	r.metrics.CacheMiss()

	// The shared load outlives any single caller; each caller still stops
	// waiting when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.loads.DoChan(r.key, func() (interface{}, error) {
		fetched, err := r.store.FetchAll(loadCtx)
		if err != nil {
			return nil, err
		}
		if fetched == nil {
			fetched = []Permission{}
		}
		if err := r.cache.Set(loadCtx, r.key, fetched, r.ttl); err != nil {
			return nil, err
		}
		return fetched, nil
	})
	var res interface{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		res, err = out.Val, out.Err
	}
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			r.metrics.StorageUnavailable()
			return []Permission{}, nil
		}
		return nil, err
	}
	loaded := res.([]Permission)
	out := make([]Permission, len(loaded))
	copy(out, loaded)
	return out, nil
}

// FlushCache forgets the cached permission set. Bindings already in the
// gate are left untouched until the next Register.
func (r *Registrar) FlushCache(ctx context.Context) error {
	return r.cache.Forget(ctx, r.key)
}
