package model

import "time"

// Connection statuses, driven by provider sync rather than by the gateway.
const (
	StatusCreating     = "creating"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// DefaultRateLimit is the per-connection request budget for a 60s window.
const DefaultRateLimit = 100

// Connection represents one tenant's link to the external messaging
// provider. The raw API key is never stored; only a SHA-256 hash and a short
// prefix for identification are persisted.
type Connection struct {
	ID              int64      `json:"id" db:"id"`
	TenantID        int64      `json:"tenant_id" db:"tenant_id"`
	Name            string     `json:"name" db:"name"`
	Phone           string     `json:"phone" db:"phone"`
	ProviderAccount string     `json:"provider_account" db:"provider_account"`
	InstanceID      string     `json:"instance_id" db:"instance_id"`
	InstanceToken   string     `json:"-" db:"instance_token"` // upstream secret, never expose
	Status          string     `json:"status" db:"status"`
	APIKeyHash      *string    `json:"-" db:"api_key_hash"` // SHA-256 hash, never expose
	APIKeyPrefix    string     `json:"api_key_prefix" db:"api_key_prefix"`
	APIEnabled      bool       `json:"api_enabled" db:"api_enabled"`
	APIRateLimit    int        `json:"api_rate_limit" db:"api_rate_limit"`
	APILastUsedAt   *time.Time `json:"api_last_used_at,omitempty" db:"api_last_used_at"`
	APIUsageCount   int64      `json:"api_usage_count" db:"api_usage_count"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// APIUsable reports whether the gateway may serve requests for this
// connection: key issued, API enabled, and the channel is connected.
func (c *Connection) APIUsable() bool {
	return c.APIEnabled && c.APIKeyHash != nil && c.Status == StatusConnected
}
