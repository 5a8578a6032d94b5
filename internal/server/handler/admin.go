package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zapgate/zapgate/internal/auth"
	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/provider"
	"github.com/zapgate/zapgate/internal/server/middleware"
	"github.com/zapgate/zapgate/internal/store"
)

// AdminHandler serves the operator surface: session login and tenant-scoped
// connection management.
type AdminHandler struct {
	store    *store.Store
	sessions *auth.Sessions
	resolver *auth.Resolver
	client   *provider.Client
	pool     *provider.Pool
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(st *store.Store, sessions *auth.Sessions, resolver *auth.Resolver, client *provider.Client, pool *provider.Pool) *AdminHandler {
	return &AdminHandler{store: st, sessions: sessions, resolver: resolver, client: client, pool: pool}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an operator and returns a JWT session token.
// POST /admin/v1/session
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.login")

	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrKindValidation, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, model.ErrKindValidation, "email and password are required")
		return
	}

	token, user, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, model.ErrKindAuth, "invalid email or password")
		return
	}

	writeSuccess(w, http.StatusOK, "login successful", map[string]interface{}{
		"token":      token,
		"token_type": "Bearer",
		"user":       user,
	})
}

type createConnectionRequest struct {
	Name            string `json:"name"`
	ProviderAccount string `json:"provider_account,omitempty"`
}

// CreateConnection provisions a new provider instance for the caller's
// tenant. The provider account is taken from the request when named, or
// allocated least-loaded-first from the pool.
// POST /admin/v1/connections
func (h *AdminHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.connection.create")
	principal := middleware.GetPrincipal(r.Context())

	var req createConnectionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrKindValidation, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, model.ErrKindValidation, "name is required")
		return
	}

	var acct provider.Account
	var err error
	if req.ProviderAccount != "" {
		acct, err = h.pool.Get(req.ProviderAccount)
	} else {
		acct, err = h.pool.Allocate(r.Context())
	}
	if err != nil {
		if errors.Is(err, provider.ErrPoolExhausted) {
			writeError(w, http.StatusServiceUnavailable, model.ErrKindInternal, "no provider capacity available")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, model.ErrKindValidation, "unknown provider account")
		return
	}

	rec := middleware.GetRecorder(r.Context())
	instanceID, instanceToken, err := h.client.CreateInstance(r.Context(), rec, acct, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to provision instance")
		return
	}

	conn := &model.Connection{
		TenantID:        principal.TenantID,
		Name:            req.Name,
		ProviderAccount: acct.Name,
		InstanceID:      instanceID,
		InstanceToken:   instanceToken,
		Status:          model.StatusCreating,
	}
	if err := h.store.CreateConnection(r.Context(), conn); err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to save connection")
		return
	}

	writeSuccess(w, http.StatusCreated, "connection created", conn)
}

// ListConnections returns the caller's tenant connections.
// GET /admin/v1/connections
func (h *AdminHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.connection.list")
	principal := middleware.GetPrincipal(r.Context())

	conns, err := h.store.ListConnectionsByTenant(r.Context(), principal.TenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}
	writeSuccess(w, http.StatusOK, "connections", conns)
}

// GetConnection returns one of the caller's tenant connections.
// GET /admin/v1/connections/{id}
func (h *AdminHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.connection.get")
	conn, ok := h.ownedConnection(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, "connection", conn)
}

// ConnectQR requests a pairing QR code and moves the connection into
// connecting state.
// POST /admin/v1/connections/{id}/connect
func (h *AdminHandler) ConnectQR(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.connection.connect")
	conn, ok := h.ownedConnection(w, r)
	if !ok {
		return
	}

	acct, err := h.pool.Get(conn.ProviderAccount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}

	rec := middleware.GetRecorder(r.Context())
	qr, err := h.client.ConnectQR(r.Context(), rec, acct, conn)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to request pairing code")
		return
	}
	if err := h.store.UpdateConnectionStatus(r.Context(), conn.ID, model.StatusConnecting); err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}

	writeSuccess(w, http.StatusOK, "pairing code issued", map[string]string{"qr": qr})
}

// IssueKey generates a fresh API key for a connection. The raw key appears
// in this response only; the server keeps a hash.
// POST /admin/v1/connections/{id}/key
func (h *AdminHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.connection.issue_key")
	conn, ok := h.ownedConnection(w, r)
	if !ok {
		return
	}

	raw, err := h.resolver.IssueKey(r.Context(), conn.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to issue key")
		return
	}

	writeSuccess(w, http.StatusCreated, "api key issued", map[string]string{"api_key": raw})
}

// SyncStatus polls the provider for the instance's session state and stores
// the result.
// POST /admin/v1/connections/{id}/sync
func (h *AdminHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.connection.sync")
	conn, ok := h.ownedConnection(w, r)
	if !ok {
		return
	}

	acct, err := h.pool.Get(conn.ProviderAccount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}

	rec := middleware.GetRecorder(r.Context())
	status, phone, err := h.client.InstanceStatus(r.Context(), rec, acct, conn)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to sync status")
		return
	}
	if err := h.store.SyncConnectionState(r.Context(), conn.ID, status, phone); err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}

	writeSuccess(w, http.StatusOK, "status synced", map[string]string{
		"status": status,
		"phone":  phone,
	})
}

// ListAuditLogs returns the caller's tenant audit trail, newest first.
// GET /admin/v1/audit-logs
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "admin.audit_logs.list")
	principal := middleware.GetPrincipal(r.Context())

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)

	entries, err := h.store.ListAuditLogsByTenant(r.Context(), principal.TenantID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}
	writeSuccess(w, http.StatusOK, "audit logs", entries)
}

// ownedConnection loads the connection from the URL and verifies the caller's
// tenant owns it. Foreign and missing connections both read as not found.
func (h *AdminHandler) ownedConnection(w http.ResponseWriter, r *http.Request) (*model.Connection, bool) {
	principal := middleware.GetPrincipal(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, model.ErrKindNotFound, "connection not found")
		return nil, false
	}
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, model.ErrKindNotFound, "connection not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return nil, false
	}
	if conn.TenantID != principal.TenantID {
		writeError(w, http.StatusNotFound, model.ErrKindNotFound, "connection not found")
		return nil, false
	}
	return conn, true
}
