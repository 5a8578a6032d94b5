package model

import "time"

// Audit log directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// AuditLogEntry is an immutable record of one HTTP exchange. Rows sharing a
// trace id belong to one externally observable request, e.g. an inbound call
// and the upstream call it triggered. Entries are created once and never
// mutated.
type AuditLogEntry struct {
	ID              int64     `json:"id" db:"id"`
	TraceID         string    `json:"trace_id" db:"trace_id"`
	Direction       string    `json:"direction" db:"direction"`
	TenantID        *int64    `json:"tenant_id,omitempty" db:"tenant_id"`
	UserID          *int64    `json:"user_id,omitempty" db:"user_id"`
	ConnectionID    *int64    `json:"connection_id,omitempty" db:"connection_id"`
	Method          string    `json:"method" db:"method"`
	URL             string    `json:"url" db:"url"`
	Endpoint        string    `json:"endpoint" db:"endpoint"`
	ClientIP        string    `json:"client_ip" db:"client_ip"`
	UserAgent       string    `json:"user_agent" db:"user_agent"`
	RequestHeaders  string    `json:"request_headers" db:"request_headers"`
	RequestBody     string    `json:"request_body" db:"request_body"`
	ResponseHeaders string    `json:"response_headers" db:"response_headers"`
	ResponseBody    string    `json:"response_body" db:"response_body"`
	StatusCode      int       `json:"status_code" db:"status_code"`
	IsError         bool      `json:"is_error" db:"is_error"`
	ErrorMessage    string    `json:"error_message" db:"error_message"`
	ResponseTimeMs  *int64    `json:"response_time_ms,omitempty" db:"response_time_ms"`
	Action          string    `json:"action" db:"action"`
	Metadata        string    `json:"metadata" db:"metadata"` // free-form JSON
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
