package api

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/edu-idm/pkg/role"
	"github.com/tendant/edu-idm/pkg/session"
)

// AdminRole is the role allowed to manage role permissions
const AdminRole = "admin"

type PermissionsRequest struct {
	Permissions []role.Permission `json:"permissions"`
}

type Handle struct {
	roleService *role.RoleService
	sessions    *session.Manager
}

func NewHandle(roleService *role.RoleService, sessions *session.Manager) *Handle {
	return &Handle{roleService: roleService, sessions: sessions}
}

func (h *Handle) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessions.Middleware)
	r.Use(RequireAdmin)
	r.Get("/", h.ListRoles)
	r.Get("/{name}/permissions", h.GetPermissions)
	r.Put("/{name}/permissions", h.PutPermissions)
	r.Delete("/{name}", h.DeleteRole)
	return r
}

// RequireAdmin rejects requests whose session principal lacks AdminRole
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := session.FromContext(r.Context())
		if p == nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !slices.Contains(p.Roles, AdminRole) {
			slog.Warn("Non-admin attempted role management", "user_id", p.Subject)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handle) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roleService.ListRoles(r.Context())
	if err != nil {
		slog.Error("Failed to list roles", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if roles == nil {
		roles = []role.Role{}
	}
	render.JSON(w, r, roles)
}

// GetPermissions returns the packed and unpacked permissions the permissions claim would carry
func (h *Handle) GetPermissions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	packed, err := h.roleService.PermissionsFor(r.Context(), name)
	if err != nil {
		slog.Error("Failed to resolve permissions", "role", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	perms, err := role.Unpack(packed)
	if err != nil {
		slog.Error("Stored permissions are malformed", "role", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, map[string]any{"role": name, "packed": packed, "permissions": perms})
}

func (h *Handle) PutPermissions(w http.ResponseWriter, r *http.Request) {
	var data PermissionsRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		http.Error(w, "Unable to parse request body", http.StatusBadRequest)
		return
	}
	updated, err := h.roleService.SetPermissions(r.Context(), chi.URLParam(r, "name"), data.Permissions)
	if errors.Is(err, role.ErrEmptyRoleName) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Failed to set permissions", "role", chi.URLParam(r, "name"), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	slog.Info("Role permissions updated", "role", updated.Name, "permissions", updated.Permissions)
	render.JSON(w, r, updated)
}

func (h *Handle) DeleteRole(w http.ResponseWriter, r *http.Request) {
	err := h.roleService.DeleteRole(r.Context(), chi.URLParam(r, "name"))
	if errors.Is(err, role.ErrRoleNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to delete role", "role", chi.URLParam(r, "name"), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
