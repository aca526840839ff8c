package shared

import (
	"context"
	"strings"
)

type contextKey int

const sessionKey contextKey = iota

// ContextWithSession returns ctx carrying sess. A nil session leaves ctx as is.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	if sess == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the request session, or nil when none was loaded.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	sess, _ := ctx.Value(sessionKey).(*Session)
	return sess
}

// AuthenticatedSession returns the request session only when it is bound to
// a user.
func AuthenticatedSession(ctx context.Context) (*Session, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil || strings.TrimSpace(sess.User()) == "" {
		return nil, false
	}
	return sess, true
}
