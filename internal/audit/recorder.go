// Package audit records every inbound and outbound HTTP exchange as an
// immutable log row, correlated by a per-request trace id. Persistence is
// best-effort: a failure to log never fails the parent request.
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/store"
)

// ResponseCapture is the normalized view of a response the caller hands to
// the recorder, regardless of which HTTP client or writer produced it.
type ResponseCapture struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Identity carries the resolved request identity; any field may be nil
// before authentication completes.
type Identity struct {
	TenantID     *int64
	UserID       *int64
	ConnectionID *int64
}

// Recorder is the per-request audit logger. One Recorder serves one
// externally observable request; its trace id is lazily generated and
// stable for the recorder's lifetime, shared by the inbound entry and any
// outbound upstream entries.
type Recorder struct {
	store  *store.Store
	logger *slog.Logger

	mu      sync.Mutex
	traceID string
	started bool
	start   time.Time
}

// NewRecorder creates a Recorder persisting through st and reporting its
// own failures through logger.
func NewRecorder(st *store.Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: st, logger: logger}
}

// StartTimer marks the high-resolution start of the exchange. Calling it
// again restarts the mark.
func (r *Recorder) StartTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	r.start = time.Now()
}

// TraceID returns the recorder's correlation id, generating it on first
// use.
func (r *Recorder) TraceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.traceID == "" {
		r.traceID = uuid.Must(uuid.NewV7()).String()
	}
	return r.traceID
}

// elapsedMs returns whole milliseconds since StartTimer, or nil if the
// timer was never started.
func (r *Recorder) elapsedMs() *int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	ms := time.Since(r.start).Milliseconds()
	return &ms
}

// LogInbound records the inbound half of the exchange after the response
// has been decided. reqBody is the already-read request body.
func (r *Recorder) LogInbound(ctx context.Context, req *http.Request, reqBody []byte, resp ResponseCapture, action string, id Identity, metadata string) *model.AuditLogEntry {
	entry := &model.AuditLogEntry{
		TraceID:         r.TraceID(),
		Direction:       model.DirectionInbound,
		TenantID:        id.TenantID,
		UserID:          id.UserID,
		ConnectionID:    id.ConnectionID,
		Method:          req.Method,
		URL:             requestURL(req),
		Endpoint:        req.URL.Path,
		ClientIP:        clientIP(req),
		UserAgent:       req.UserAgent(),
		RequestHeaders:  SanitizeHeaders(req.Header),
		RequestBody:     SanitizeBody(reqBody),
		ResponseHeaders: SanitizeHeaders(resp.Headers),
		ResponseBody:    SanitizeBody(resp.Body),
		StatusCode:      resp.StatusCode,
		IsError:         resp.StatusCode >= 400,
		ResponseTimeMs:  r.elapsedMs(),
		Action:          action,
		Metadata:        metadata,
	}
	if entry.IsError {
		entry.ErrorMessage = ExtractErrorMessage(resp.Body)
	}
	r.persist(ctx, entry)
	return entry
}

// LogOutbound records one upstream call made on behalf of the request,
// sharing the inbound trace id.
func (r *Recorder) LogOutbound(ctx context.Context, method, url string, headers http.Header, body []byte, resp ResponseCapture, action string, conn *model.Connection, metadata string) *model.AuditLogEntry {
	entry := &model.AuditLogEntry{
		TraceID:         r.TraceID(),
		Direction:       model.DirectionOutbound,
		Method:          method,
		URL:             url,
		Endpoint:        url,
		RequestHeaders:  SanitizeHeaders(headers),
		RequestBody:     SanitizeBody(body),
		ResponseHeaders: SanitizeHeaders(resp.Headers),
		ResponseBody:    SanitizeBody(resp.Body),
		StatusCode:      resp.StatusCode,
		IsError:         resp.StatusCode >= 400,
		ResponseTimeMs:  r.elapsedMs(),
		Action:          action,
		Metadata:        metadata,
	}
	if conn != nil {
		entry.ConnectionID = &conn.ID
		entry.TenantID = &conn.TenantID
	}
	if entry.IsError {
		entry.ErrorMessage = ExtractErrorMessage(resp.Body)
	}
	r.persist(ctx, entry)
	return entry
}

// LogException records an exchange that failed before producing a response,
// e.g. a transport error on an upstream call.
func (r *Recorder) LogException(ctx context.Context, direction, method, url string, headers http.Header, body []byte, callErr error, action string, conn *model.Connection, metadata string) *model.AuditLogEntry {
	entry := &model.AuditLogEntry{
		TraceID:        r.TraceID(),
		Direction:      direction,
		Method:         method,
		URL:            url,
		Endpoint:       url,
		RequestHeaders: SanitizeHeaders(headers),
		RequestBody:    SanitizeBody(body),
		IsError:        true,
		ErrorMessage:   callErr.Error(),
		ResponseTimeMs: r.elapsedMs(),
		Action:         action,
		Metadata:       metadata,
	}
	if conn != nil {
		entry.ConnectionID = &conn.ID
		entry.TenantID = &conn.TenantID
	}
	r.persist(ctx, entry)
	return entry
}

// persistTimeout bounds a single audit INSERT once it is detached from the
// request context.
const persistTimeout = 5 * time.Second

// persist writes the entry, swallowing every failure. The caller's response
// is already decided independently of logging success. A client disconnect
// cancels the request context, so the write is detached from it and runs to
// completion under its own deadline.
func (r *Recorder) persist(ctx context.Context, entry *model.AuditLogEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("audit log persistence panicked", "panic", rec, "trace_id", entry.TraceID)
		}
	}()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.store.InsertAuditLog(ctx, entry); err != nil {
		r.logger.Error("audit log persistence failed",
			"error", err,
			"trace_id", entry.TraceID,
			"direction", entry.Direction,
			"endpoint", entry.Endpoint,
		)
	}
}

func requestURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + req.Host + req.URL.RequestURI()
}

func clientIP(req *http.Request) string {
	// RealIP middleware rewrites RemoteAddr from forwarding headers.
	return req.RemoteAddr
}
