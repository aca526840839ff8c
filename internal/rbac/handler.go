package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
)

// AdminService is the subset of Service used by Handler.
type AdminService interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error
}

// Handler exposes permission administration endpoints.
type Handler struct {
	logger      *slog.Logger
	service     AdminService
	registrar   *Registrar
	invalidator ChangeNotifier
	validator   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service AdminService, registrar *Registrar, invalidator ChangeNotifier) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		registrar:   registrar,
		invalidator: invalidator,
		validator:   validator.New(),
	}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Route("/permissions", func(r chi.Router) {
		r.Get("/", h.listPermissions)
		r.Post("/", h.createPermission)
		r.Get("/bound", h.listBound)
		r.Post("/flush", h.flush)
		r.Delete("/{id}", h.deletePermission)
	})
}

type permissionInput struct {
	Name        string `json:"name" validate:"required,max=128,printascii"`
	Description string `json:"description" validate:"max=512"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) listBound(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if h.registrar != nil {
		names = h.registrar.Gate().Names()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": names})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var input permissionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validator.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			err = fmt.Errorf("%w: %s failed %s", httpx.ErrValidation, fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), input.Name, input.Description)
	if err != nil && perm.ID == 0 {
		h.fail(w, "create permission", err)
		return
	}
	if err != nil && h.logger != nil {
		h.logger.Warn("refresh after create permission", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid permission id", httpx.ErrValidation))
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) flush(w http.ResponseWriter, r *http.Request) {
	var err error
	switch {
	case h.invalidator != nil:
		err = h.invalidator.Invalidate(r.Context())
	case h.registrar != nil:
		err = h.registrar.FlushCache(r.Context())
	}
	if err != nil {
		h.fail(w, "flush permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		err = fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrStorageUnavailable):
		err = fmt.Errorf("%w: %v", httpx.ErrUnavailable, err)
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
	}
	httpx.RespondError(w, err)
}
