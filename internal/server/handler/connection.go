package handler

import (
	"net/http"
	"time"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/server/middleware"
	"github.com/zapgate/zapgate/internal/store"
)

// ConnectionHandler serves connection metadata to authenticated gateway
// callers.
type ConnectionHandler struct {
	store *store.Store
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(st *store.Store) *ConnectionHandler {
	return &ConnectionHandler{store: st}
}

// connectionInfoResponse is the caller-facing view of a connection. Tenant
// and provider internals (instance ids, key material) stay out of it.
type connectionInfoResponse struct {
	ConnectionID  int64      `json:"connection_id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Phone         string     `json:"phone"`
	APIUsageCount int64      `json:"api_usage_count"`
	APIRateLimit  int        `json:"api_rate_limit"`
	APILastUsed   *time.Time `json:"api_last_used"`
}

// Info returns the calling connection's own metadata. The cached snapshot
// from authentication may lag, so the row is reloaded for fresh usage
// counters.
// GET /v1/connection/info
func (h *ConnectionHandler) Info(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "connection.info")
	conn := middleware.GetConnection(r.Context())

	fresh, err := h.store.GetConnection(r.Context(), conn.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}
	writeSuccess(w, http.StatusOK, "connection info", connectionInfoResponse{
		ConnectionID:  fresh.ID,
		Name:          fresh.Name,
		Status:        fresh.Status,
		Phone:         fresh.Phone,
		APIUsageCount: fresh.APIUsageCount,
		APIRateLimit:  fresh.APIRateLimit,
		APILastUsed:   fresh.APILastUsedAt,
	})
}
