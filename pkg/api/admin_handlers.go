package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pragati-platform/identity/pkg/audit"
	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/httputil"
	"github.com/pragati-platform/identity/pkg/middleware"
	"github.com/pragati-platform/identity/pkg/observability"
	"github.com/pragati-platform/identity/pkg/session"
)

// AdminStore is the account-management surface the admin endpoints
// need from the user store.
type AdminStore interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
	CreateUser(ctx context.Context, u *auth.User) error
	SetRole(ctx context.Context, id string, role auth.Role) error
	SetDisabled(ctx context.Context, id string, disabled bool) error
	SetPassword(ctx context.Context, id, passwordHash string) error
}

// AdminHandlers implements account management. The routes live under
// /api/admin with no policy rules, so default deny leaves them
// admin-only.
type AdminHandlers struct {
	store    AdminStore
	resolver *auth.Resolver
	sessions *session.Manager
	audit    audit.Logger
	logger   *observability.Logger
}

// NewAdminHandlers wires the admin endpoints.
func NewAdminHandlers(store AdminStore, resolver *auth.Resolver, sessions *session.Manager, auditLog audit.Logger, logger *observability.Logger) *AdminHandlers {
	return &AdminHandlers{
		store:    store,
		resolver: resolver,
		sessions: sessions,
		audit:    auditLog,
		logger:   logger,
	}
}

// RegisterRoutes mounts the admin routes.
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/admin/users", h.createUser).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/users/{id}", h.getUser).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/users/{id}/role", h.setRole).Methods(http.MethodPut)
	router.HandleFunc("/api/admin/users/{id}/status", h.setStatus).Methods(http.MethodPut)
	router.HandleFunc("/api/admin/users/{id}/password", h.resetPassword).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/sessions/{id}", h.revokeSession).Methods(http.MethodDelete)
}

type createUserRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CollegeID string `json:"college_id"`
	Password  string `json:"password"`
}

type createUserResponse struct {
	User userSummary `json:"user"`
	// TempPassword is returned exactly once, when no password was
	// supplied.
	TempPassword string `json:"temp_password,omitempty"`
}

// createUser handles POST /api/admin/users.
func (h *AdminHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if role.Scoped() && req.CollegeID == "" {
		httputil.WriteBadRequest(w, "college_id is required for college-scoped roles")
		return
	}

	password := req.Password
	var tempPassword string
	if password == "" {
		tempPassword, err = auth.GenerateTempPassword(12)
		if err != nil {
			h.logger.WithError(err).Error("failed to generate temp password")
			httputil.WriteInternalError(w)
			return
		}
		password = tempPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user := &auth.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         req.Name,
		Role:         role,
		CollegeID:    req.CollegeID,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		h.logger.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	h.logAdminEvent(r, audit.EventTypeUserCreate, func(e *audit.Event) {
		e.Metadata = map[string]interface{}{
			"target_user": user.ID,
			"role":        string(role),
		}
	})
	httputil.WriteCreated(w, createUserResponse{
		User: userSummary{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			Role:      string(user.Role),
			CollegeID: user.CollegeID,
		},
		TempPassword: tempPassword,
	})
}

// getUser handles GET /api/admin/users/{id}.
func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.logger.WithError(err).Error("failed to load user")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, user)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// setRole handles PUT /api/admin/users/{id}/role. The resolver cache
// entry is dropped so the demotion takes effect on the target's next
// request, not at cache expiry.
func (h *AdminHandlers) setRole(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req setRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.SetRole(r.Context(), id, role); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.resolver.Invalidate(id)

	h.logAdminEvent(r, audit.EventTypeRoleChange, func(e *audit.Event) {
		e.Metadata = map[string]interface{}{
			"target_user": id,
			"new_role":    string(role),
		}
	})
	httputil.WriteSuccess(w, map[string]string{"id": id, "role": string(role)})
}

type setStatusRequest struct {
	Disabled bool `json:"disabled"`
}

// setStatus handles PUT /api/admin/users/{id}/status.
func (h *AdminHandlers) setStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req setStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.SetDisabled(r.Context(), id, req.Disabled); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.resolver.Invalidate(id)

	eventType := audit.EventTypeUserEnable
	if req.Disabled {
		eventType = audit.EventTypeUserDisable
	}
	h.logAdminEvent(r, eventType, func(e *audit.Event) {
		e.Metadata = map[string]interface{}{"target_user": id}
	})
	httputil.WriteSuccess(w, map[string]interface{}{"id": id, "disabled": req.Disabled})
}

// resetPassword handles POST /api/admin/users/{id}/password. Generates
// a temp password; the target must change it after first login.
func (h *AdminHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tempPassword, err := auth.GenerateTempPassword(12)
	if err != nil {
		h.logger.WithError(err).Error("failed to generate temp password")
		httputil.WriteInternalError(w)
		return
	}
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash temp password")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.store.SetPassword(r.Context(), id, string(hash)); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logAdminEvent(r, audit.EventTypePasswordChange, func(e *audit.Event) {
		e.Metadata = map[string]interface{}{"target_user": id}
	})
	httputil.WriteSuccess(w, map[string]string{"id": id, "temp_password": tempPassword})
}

// revokeSession handles DELETE /api/admin/sessions/{id}.
func (h *AdminHandlers) revokeSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sessions.RevokeSession(r.Context(), id); err != nil {
		h.logger.WithError(err).Error("failed to revoke session")
		httputil.WriteInternalError(w)
		return
	}

	h.logAdminEvent(r, audit.EventTypeSessionRevoked, func(e *audit.Event) {
		e.Metadata = map[string]interface{}{"target_session": id}
	})
	httputil.WriteNoContent(w)
}

func (h *AdminHandlers) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrUserNotFound) {
		httputil.WriteNotFound(w, "user not found")
		return
	}
	h.logger.WithError(err).Error("user store write failed")
	httputil.WriteInternalError(w)
}

// logAdminEvent stamps the acting admin from the request identity.
func (h *AdminHandlers) logAdminEvent(r *http.Request, eventType audit.EventType, customize func(*audit.Event)) {
	event := audit.NewEvent(eventType, audit.EventStatusSuccess)
	event.IPAddress = r.RemoteAddr
	event.Method = r.Method
	event.Path = r.URL.Path
	if identity := middleware.Identity(r); identity != nil {
		event.UserID = identity.Subject
		event.Role = string(identity.Role)
	}
	if customize != nil {
		customize(event)
	}
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Error("failed to write audit event")
	}
}
