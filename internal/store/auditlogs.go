package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zapgate/zapgate/internal/model"
)

// InsertAuditLog persists one audit log entry. Entries are append-only;
// there is no update path.
func (s *Store) InsertAuditLog(ctx context.Context, e *model.AuditLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO audit_logs
		(trace_id, direction, tenant_id, user_id, connection_id, method, url, endpoint,
		 client_ip, user_agent, request_headers, request_body, response_headers, response_body,
		 status_code, is_error, error_message, response_time_ms, action, metadata, created_at)
		VALUES
		(:trace_id, :direction, :tenant_id, :user_id, :connection_id, :method, :url, :endpoint,
		 :client_ip, :user_agent, :request_headers, :request_body, :response_headers, :response_body,
		 :status_code, :is_error, :error_message, :response_time_ms, :action, :metadata, :created_at)`

	id, err := s.namedInsert(ctx, q, e)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	e.ID = id
	return nil
}

// ListAuditLogsByTrace returns every entry recorded under one trace id,
// oldest first.
func (s *Store) ListAuditLogsByTrace(ctx context.Context, traceID string) ([]model.AuditLogEntry, error) {
	var entries []model.AuditLogEntry
	err := s.db.SelectContext(ctx, &entries,
		s.rebind("SELECT * FROM audit_logs WHERE trace_id = ? ORDER BY created_at, id"), traceID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs by trace: %w", err)
	}
	return entries, nil
}

// ListAuditLogsByTenant returns a page of a tenant's audit entries, newest
// first.
func (s *Store) ListAuditLogsByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]model.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []model.AuditLogEntry
	err := s.db.SelectContext(ctx, &entries,
		s.rebind("SELECT * FROM audit_logs WHERE tenant_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit logs by tenant: %w", err)
	}
	return entries, nil
}
