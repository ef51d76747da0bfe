package registry

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/platform/httpx"
	"github.com/registria/registria/internal/shared"
)

// Handler wires HTTP endpoints for the access-control registry.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.handleListRoles)
	r.Get("/roles/{role}", h.handleGetRole)
	r.Get("/roles/{role}/members/{account}", h.handleHasRole)
	r.Post("/roles/{role}/grant", h.handleGrant)
	r.Post("/roles/{role}/revoke", h.handleRevoke)
	r.Put("/roles/{role}/admin", h.handleSetAdmin)
}

type roleView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AdminRole   string `json:"admin_role"`
	Requestable bool   `json:"requestable"`
}

type membershipForm struct {
	Account string `json:"account" validate:"required,len=42,startswith=0x"`
}

type setAdminForm struct {
	AdminRole string `json:"admin_role" validate:"required,len=66,startswith=0x"`
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, toRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) handleHasRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	account, err := identity.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed account")
		return
	}
	member, err := h.service.HasRole(r.Context(), roleID, account)
	if err != nil {
		h.logger.Error("has role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":    roleID.String(),
		"account": account.String(),
		"member":  member,
	})
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	h.handleMembershipChange(w, r, h.service.GrantRole, "granted")
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.handleMembershipChange(w, r, h.service.RevokeRole, "revoked")
}

func (h *Handler) handleMembershipChange(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, role identity.RoleID, account, caller identity.Account) error, result string) {
	roleID, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	caller, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", "X-Actor-Account header required")
		return
	}
	var form membershipForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := identity.ParseAccount(form.Account)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed account")
		return
	}
	if err := mutate(r.Context(), roleID, account, caller); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":    roleID.String(),
		"account": account.String(),
		"result":  result,
	})
}

func (h *Handler) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	caller, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", "X-Actor-Account header required")
		return
	}
	var form setAdminForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	admin, err := identity.ParseRoleID(form.AdminRole)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed admin role")
		return
	}
	if err := h.service.SetRoleAdmin(r.Context(), roleID, admin, caller); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":       roleID.String(),
		"admin_role": admin.String(),
	})
}

func (h *Handler) roleParam(w http.ResponseWriter, r *http.Request) (identity.RoleID, bool) {
	roleID, err := identity.ParseRoleID(chi.URLParam(r, "role"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed role id")
		return identity.RoleID{}, false
	}
	return roleID, true
}

func toRoleView(role Role) roleView {
	return roleView{
		ID:          role.ID.String(),
		Name:        role.Name,
		AdminRole:   role.AdminRole.String(),
		Requestable: role.Requestable,
	}
}
