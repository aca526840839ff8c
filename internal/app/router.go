package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/auth"
	"github.com/odyssey-erp/odyssey-authz/internal/observability"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
	"github.com/odyssey-erp/odyssey-authz/jobs"
)

// RouterParams captures dependencies for the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics

	// ActorMiddleware attaches the authenticated actor to the request context.
	ActorMiddleware func(http.Handler) http.Handler
	AccessFilter    rbac.AccessFilter
	Gate            *rbac.Gate

	AuthHandler *auth.Handler
	RBACHandler *rbac.Handler
	JobHandler  *jobs.Handler
}

// NewRouter builds the chi router with the middleware stack and every mounted module.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:          params.Logger,
		Config:          params.Config,
		SessionManager:  params.SessionManager,
		Metrics:         params.Metrics,
		ActorMiddleware: params.ActorMiddleware,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Get("/me/can/{permission}", canHandler(params.Gate))

	adminRole := "admin"
	if params.Config != nil && params.Config.AuthzAdminRole != "" {
		adminRole = params.Config.AuthzAdminRole
	}
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(params.AccessFilter.RequireRoles(adminRole))
		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(admin)
		}
		if params.JobHandler != nil {
			admin.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

type canResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// canHandler reports whether the current actor holds a registered permission.
func canHandler(gate *rbac.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "permission")
		actor, ok := rbac.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		httpx.JSON(w, http.StatusOK, canResponse{Permission: name, Allowed: gate.Can(name, actor)})
	}
}
