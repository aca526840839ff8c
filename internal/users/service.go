package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindActor(ctx context.Context, id int64) (*User, error)
}

// Service resolves request actors.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Actor loads the user bound to the session, if any.
func (s *Service) Actor(ctx context.Context, sess *shared.Session) (*User, error) {
	if sess == nil {
		return nil, shared.ErrNoSession
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return nil, shared.ErrNoSession
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, shared.ErrNoSession
	}
	return s.repo.FindActor(ctx, id)
}

// Middleware attaches the session's user to the request context as the
// rbac actor. Anonymous requests pass through without an actor.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.Actor(r.Context(), shared.SessionFromContext(r.Context()))
		switch {
		case err == nil:
			r = r.WithContext(rbac.ContextWithActor(r.Context(), user))
		case errors.Is(err, shared.ErrNoSession), errors.Is(err, shared.ErrNotFound):
		default:
			if s.logger != nil {
				s.logger.Error("resolve actor", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}
