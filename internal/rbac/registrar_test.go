package rbac_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	_ "github.com/odyssey-erp/odyssey-authz/testing"
)

type fakeStore struct {
	mu    sync.Mutex
	perms []rbac.Permission
	err   error
	calls int
}

func (s *fakeStore) FetchAll(ctx context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]rbac.Permission, len(s.perms))
	copy(out, s.perms)
	return out, nil
}

func (s *fakeStore) set(perms []rbac.Permission, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms = perms
	s.err = err
}

func (s *fakeStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeActor struct {
	roles map[string]bool
	perms map[string]bool
}

func (a fakeActor) HasRoles(names ...string) bool {
	for _, name := range names {
		if a.roles[name] {
			return true
		}
	}
	return false
}

func (a fakeActor) HasPermission(p rbac.Permission) bool {
	return a.perms[p.Name]
}

type failingCache struct {
	err error
}

func (c failingCache) Get(ctx context.Context, key string) ([]rbac.Permission, bool, error) {
	return nil, false, c.err
}

func (c failingCache) Set(ctx context.Context, key string, perms []rbac.Permission, ttl time.Duration) error {
	return c.err
}

func (c failingCache) Forget(ctx context.Context, key string) error {
	return c.err
}

type registrarFixture struct {
	mr        *miniredis.Miniredis
	client    *redis.Client
	store     *fakeStore
	gate      *rbac.Gate
	registrar *rbac.Registrar
}

func newRegistrarFixture(t *testing.T, perms ...string) *registrarFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &fakeStore{}
	for i, name := range perms {
		store.perms = append(store.perms, rbac.Permission{ID: int64(i + 1), Name: name})
	}
	gate := rbac.NewGate()
	registrar := rbac.NewRegistrar(store, rbac.NewRedisCache(client), gate, rbac.RegistrarConfig{
		CacheKey: "test:authz:permissions",
		CacheTTL: time.Minute,
	})
	return &registrarFixture{mr: mr, client: client, store: store, gate: gate, registrar: registrar}
}

func TestRegisterIsIdempotent(t *testing.T) {
	f := newRegistrarFixture(t, "edit-post", "delete-post")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.registrar.Register(ctx))
	}

	assert.Equal(t, []string{"delete-post", "edit-post"}, f.gate.Names())
	assert.Equal(t, 2, f.gate.Len())
	assert.Equal(t, 1, f.store.Calls(), "later registrations should be served from cache")

	editor := fakeActor{perms: map[string]bool{"edit-post": true}}
	assert.True(t, f.gate.Can("edit-post", editor))
	assert.False(t, f.gate.Can("delete-post", editor))
}

func TestLoadPermissionsServesFromCacheWithinTTL(t *testing.T) {
	f := newRegistrarFixture(t, "edit-post")
	ctx := context.Background()

	first, err := f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)
	f.store.set([]rbac.Permission{{ID: 9, Name: "other"}}, nil)

	second, err := f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.store.Calls())
	assert.True(t, f.mr.Exists("test:authz:permissions"))
	assert.Equal(t, time.Minute, f.mr.TTL("test:authz:permissions"))
}

func TestLoadPermissionsReloadsAfterTTL(t *testing.T) {
	f := newRegistrarFixture(t, "edit-post")
	ctx := context.Background()

	_, err := f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)

	f.store.set([]rbac.Permission{{ID: 2, Name: "publish-post"}}, nil)
	f.mr.FastForward(time.Minute + time.Second)

	perms, err := f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Calls())
	require.Len(t, perms, 1)
	assert.Equal(t, "publish-post", perms[0].Name)
}

func TestLoadPermissionsStorageUnavailableIsNotCached(t *testing.T) {
	f := newRegistrarFixture(t)
	ctx := context.Background()
	f.store.set(nil, fmt.Errorf("fetch: %w", rbac.ErrStorageUnavailable))

	perms, err := f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.NotNil(t, perms)
	assert.False(t, f.mr.Exists("test:authz:permissions"))

	f.store.set([]rbac.Permission{{ID: 1, Name: "edit-post"}}, nil)
	perms, err = f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Calls())
	require.Len(t, perms, 1)
}

func TestRegisterAbsorbsStorageUnavailable(t *testing.T) {
	f := newRegistrarFixture(t)
	f.store.set(nil, rbac.ErrStorageUnavailable)

	require.NoError(t, f.registrar.Register(context.Background()))
	assert.Zero(t, f.gate.Len())
	assert.False(t, f.gate.Can("edit-post", fakeActor{perms: map[string]bool{"edit-post": true}}))
}

func TestLoadPermissionsPropagatesOtherStoreErrors(t *testing.T) {
	f := newRegistrarFixture(t)
	boom := errors.New("syntax error")
	f.store.set(nil, boom)

	_, err := f.registrar.LoadPermissions(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, f.registrar.Register(context.Background()), boom)
	assert.False(t, f.mr.Exists("test:authz:permissions"))
}

func TestLoadPermissionsPropagatesCacheErrors(t *testing.T) {
	store := &fakeStore{perms: []rbac.Permission{{ID: 1, Name: "edit-post"}}}
	cacheErr := errors.New("redis down")
	registrar := rbac.NewRegistrar(store, failingCache{err: cacheErr}, rbac.NewGate(), rbac.RegistrarConfig{})

	_, err := registrar.LoadPermissions(context.Background())
	require.ErrorIs(t, err, cacheErr)
	assert.Zero(t, store.Calls())
	require.ErrorIs(t, registrar.FlushCache(context.Background()), cacheErr)
}

func TestFlushCacheForcesReload(t *testing.T) {
	f := newRegistrarFixture(t, "edit-post")
	ctx := context.Background()

	require.NoError(t, f.registrar.Register(ctx))
	f.store.set([]rbac.Permission{{ID: 1, Name: "edit-post"}, {ID: 2, Name: "publish-post"}}, nil)

	require.NoError(t, f.registrar.FlushCache(ctx))
	assert.False(t, f.mr.Exists("test:authz:permissions"))
	assert.False(t, f.gate.Defined("publish-post"), "flush must not rebind")

	require.NoError(t, f.registrar.Register(ctx))
	assert.Equal(t, 2, f.store.Calls())
	assert.True(t, f.gate.Defined("publish-post"))
}

func TestFlushCacheOnEmptyKeyIsNoop(t *testing.T) {
	f := newRegistrarFixture(t)
	require.NoError(t, f.registrar.FlushCache(context.Background()))
	assert.Zero(t, f.store.Calls())
}

func TestEmptyPermissionSetIsCached(t *testing.T) {
	f := newRegistrarFixture(t)
	ctx := context.Background()

	perms, err := f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, perms)

	_, err = f.registrar.LoadPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Calls())
}

func TestEndToEndGateEvaluation(t *testing.T) {
	f := newRegistrarFixture(t, "edit-post", "delete-post")
	require.NoError(t, f.registrar.Register(context.Background()))

	actor := fakeActor{perms: map[string]bool{"edit-post": true, "delete-post": true, "publish-post": true}}
	assert.True(t, f.gate.Can("edit-post", actor))
	assert.True(t, f.gate.Can("delete-post", actor))
	assert.False(t, f.gate.Can("publish-post", actor))
	assert.False(t, f.gate.Can("edit-post", nil))
}

func TestConcurrentRegister(t *testing.T) {
	f := newRegistrarFixture(t, "a", "b", "c")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.registrar.Register(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, f.gate.Names())
}

type countingRecorder struct {
	mu                             sync.Mutex
	hits, misses, unavailable, reg int
	bound                          int
}

func (r *countingRecorder) CacheHit()            { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *countingRecorder) CacheMiss()           { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *countingRecorder) StorageUnavailable()  { r.mu.Lock(); r.unavailable++; r.mu.Unlock() }
func (r *countingRecorder) Registered(count int) { r.mu.Lock(); r.reg++; r.bound = count; r.mu.Unlock() }
func (r *countingRecorder) Denied(reason string) {}

func TestRegistrarRecordsMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := &fakeStore{perms: []rbac.Permission{{ID: 1, Name: "edit-post"}}}
	rec := &countingRecorder{}
	registrar := rbac.NewRegistrar(store, rbac.NewRedisCache(client), rbac.NewGate(), rbac.RegistrarConfig{}, rbac.WithRecorder(rec))

	require.NoError(t, registrar.Register(context.Background()))
	require.NoError(t, registrar.Register(context.Background()))

	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 2, rec.reg)
	assert.Equal(t, rbac.DefaultCacheKey, registrar.CacheKey())
	assert.Equal(t, rbac.DefaultCacheTTL, mr.TTL(rbac.DefaultCacheKey))
}

func TestRegistrarReportsGateBindings(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := &fakeStore{perms: []rbac.Permission{{ID: 1, Name: "edit-post"}, {ID: 2, Name: "delete-post"}}}
	gate := rbac.NewGate()
	rec := &countingRecorder{}
	registrar := rbac.NewRegistrar(store, rbac.NewRedisCache(client), gate, rbac.RegistrarConfig{}, rbac.WithRecorder(rec))
	ctx := context.Background()

	require.NoError(t, registrar.Register(ctx))
	assert.Equal(t, 2, rec.bound)

	store.set([]rbac.Permission{{ID: 1, Name: "edit-post"}}, nil)
	require.NoError(t, registrar.FlushCache(ctx))
	require.NoError(t, registrar.Register(ctx))

	assert.Equal(t, 2, gate.Len(), "removed permissions keep their binding")
	assert.Equal(t, 2, rec.bound)
}

// blockingStore holds FetchAll until release is closed, honoring ctx.
type blockingStore struct {
	started chan struct{}
	release chan struct{}
	perms   []rbac.Permission
	calls   int
	mu      sync.Mutex
}

func newBlockingStore(perms ...rbac.Permission) *blockingStore {
	return &blockingStore{started: make(chan struct{}, 1), release: make(chan struct{}), perms: perms}
}

func (s *blockingStore) FetchAll(ctx context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	select {
	case s.started <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return s.perms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *blockingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestLoadPermissionsSurvivesFirstCallerCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := newBlockingStore(rbac.Permission{ID: 1, Name: "edit-post"})
	registrar := rbac.NewRegistrar(store, rbac.NewRedisCache(client), rbac.NewGate(), rbac.RegistrarConfig{})

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := registrar.LoadPermissions(firstCtx)
		firstErr <- err
	}()
	<-store.started

	type result struct {
		perms []rbac.Permission
		err   error
	}
	second := make(chan result, 1)
	go func() {
		perms, err := registrar.LoadPermissions(context.Background())
		second <- result{perms: perms, err: err}
	}()
	// Let the second caller join the in-flight load.
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared load")
	}

	close(store.release)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, []rbac.Permission{{ID: 1, Name: "edit-post"}}, got.perms)
	case <-time.After(time.Second):
		t.Fatal("second caller never received the shared load")
	}
	assert.Equal(t, 1, store.Calls())
	assert.True(t, mr.Exists(rbac.DefaultCacheKey), "the shared load still fills the cache")
}
