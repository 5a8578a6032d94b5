package middleware

import (
	"context"

	"github.com/zapgate/zapgate/internal/audit"
	"github.com/zapgate/zapgate/internal/auth"
	"github.com/zapgate/zapgate/internal/model"
)

type contextKey string

// requestInfoKey is the context key for the per-request info holder.
const requestInfoKey contextKey = "request_info"

// RequestInfo is the mutable per-request state shared between the audit
// middleware (which creates it) and the inner authentication layers (which
// fill it in). A single pointer lives in the context so identity resolved
// deep in the chain is visible to the outer audit middleware when it
// persists the log entry.
type RequestInfo struct {
	Recorder   *audit.Recorder
	Connection *model.Connection
	Principal  *auth.SessionPrincipal
	Action     string
}

// Identity assembles the audit identity from whatever has been resolved.
func (info *RequestInfo) Identity() audit.Identity {
	var id audit.Identity
	if info.Connection != nil {
		id.ConnectionID = &info.Connection.ID
		id.TenantID = &info.Connection.TenantID
	}
	if info.Principal != nil {
		id.UserID = &info.Principal.UserID
		if id.TenantID == nil {
			id.TenantID = &info.Principal.TenantID
		}
	}
	return id
}

// WithRequestInfo stores the info holder in the context.
func WithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

// GetRequestInfo returns the info holder, or nil outside the audit
// middleware.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	if info, ok := ctx.Value(requestInfoKey).(*RequestInfo); ok {
		return info
	}
	return nil
}

// GetConnection returns the authenticated connection, or nil.
func GetConnection(ctx context.Context) *model.Connection {
	if info := GetRequestInfo(ctx); info != nil {
		return info.Connection
	}
	return nil
}

// GetPrincipal returns the authenticated operator principal, or nil.
func GetPrincipal(ctx context.Context) *auth.SessionPrincipal {
	if info := GetRequestInfo(ctx); info != nil {
		return info.Principal
	}
	return nil
}

// GetRecorder returns the request's audit recorder, or nil.
func GetRecorder(ctx context.Context) *audit.Recorder {
	if info := GetRequestInfo(ctx); info != nil {
		return info.Recorder
	}
	return nil
}

// SetAction labels the request for the audit entry. Handlers call this once
// they know what the request is.
func SetAction(ctx context.Context, action string) {
	if info := GetRequestInfo(ctx); info != nil {
		info.Action = action
	}
}
