package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

func TestSessionContextHelpers(t *testing.T) {
	sm, _ := newSessionManager(t)
	ctx := context.Background()

	assert.Nil(t, shared.SessionFromContext(ctx))
	assert.Equal(t, ctx, shared.ContextWithSession(ctx, nil))
	_, ok := shared.AuthenticatedSession(ctx)
	assert.False(t, ok)

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	withSession := shared.ContextWithSession(ctx, sess)
	assert.Same(t, sess, shared.SessionFromContext(withSession))
	_, ok = shared.AuthenticatedSession(withSession)
	assert.False(t, ok, "anonymous session")

	sess.SetUser("42")
	got, ok := shared.AuthenticatedSession(withSession)
	require.True(t, ok)
	assert.Same(t, sess, got)

	sess.SetUser("  ")
	_, ok = shared.AuthenticatedSession(withSession)
	assert.False(t, ok)
}
