package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zapgate/zapgate/internal/model"
)

// CreateConnection inserts a new connection. The ID, CreatedAt, and
// UpdatedAt fields on c are populated after a successful insert.
func (s *Store) CreateConnection(ctx context.Context, c *model.Connection) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.APIRateLimit == 0 {
		c.APIRateLimit = model.DefaultRateLimit
	}
	if c.Status == "" {
		c.Status = model.StatusCreating
	}

	const q = `INSERT INTO connections
		(tenant_id, name, phone, provider_account, instance_id, instance_token, status,
		 api_key_hash, api_key_prefix, api_enabled, api_rate_limit, api_last_used_at,
		 api_usage_count, created_at, updated_at)
		VALUES
		(:tenant_id, :name, :phone, :provider_account, :instance_id, :instance_token, :status,
		 :api_key_hash, :api_key_prefix, :api_enabled, :api_rate_limit, :api_last_used_at,
		 :api_usage_count, :created_at, :updated_at)`

	id, err := s.namedInsert(ctx, q, c)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	c.ID = id
	return nil
}

// GetConnection returns a connection by ID.
func (s *Store) GetConnection(ctx context.Context, id int64) (*model.Connection, error) {
	var c model.Connection
	if err := s.db.GetContext(ctx, &c, s.rebind("SELECT * FROM connections WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &c, nil
}

// GetConnectionByKeyHash resolves an API key hash to its connection. The
// lookup filters strictly on api_enabled so disabled connections are
// indistinguishable from unknown keys.
func (s *Store) GetConnectionByKeyHash(ctx context.Context, hash string) (*model.Connection, error) {
	const q = `SELECT * FROM connections WHERE api_key_hash = ? AND api_enabled = 1`
	var c model.Connection
	if err := s.db.GetContext(ctx, &c, s.rebind(q), hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection by key hash: %w", err)
	}
	return &c, nil
}

// ListConnectionsByTenant returns all connections owned by a tenant.
func (s *Store) ListConnectionsByTenant(ctx context.Context, tenantID int64) ([]model.Connection, error) {
	var conns []model.Connection
	err := s.db.SelectContext(ctx, &conns,
		s.rebind("SELECT * FROM connections WHERE tenant_id = ? ORDER BY id"), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connections by tenant: %w", err)
	}
	return conns, nil
}

// ListConnectedByTenant returns the tenant's connections currently in
// connected status, the set a deauthorization must tear down.
func (s *Store) ListConnectedByTenant(ctx context.Context, tenantID int64) ([]model.Connection, error) {
	var conns []model.Connection
	err := s.db.SelectContext(ctx, &conns,
		s.rebind("SELECT * FROM connections WHERE tenant_id = ? AND status = 'connected' ORDER BY id"), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connected by tenant: %w", err)
	}
	return conns, nil
}

// CountConnectionsByAccount returns how many live connections each provider
// account currently carries, keyed by account name. Disconnected and errored
// instances do not count against capacity.
func (s *Store) CountConnectionsByAccount(ctx context.Context) (map[string]int, error) {
	const q = `SELECT provider_account, COUNT(*) AS n FROM connections
		WHERE status IN ('creating', 'connecting', 'connected')
		GROUP BY provider_account`

	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count connections by account: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var account string
		var n int
		if err := rows.Scan(&account, &n); err != nil {
			return nil, fmt.Errorf("scan account count: %w", err)
		}
		counts[account] = n
	}
	return counts, rows.Err()
}

// UpdateConnectionStatus sets the provider-driven status of a connection.
func (s *Store) UpdateConnectionStatus(ctx context.Context, id int64, status string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE connections SET status = ?, updated_at = ? WHERE id = ?"),
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update connection status: %w", err)
	}
	return checkAffected(result, "update connection status")
}

// SyncConnectionState records the provider-reported status and bound phone
// number after a status sync.
func (s *Store) SyncConnectionState(ctx context.Context, id int64, status, phone string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE connections SET status = ?, phone = ?, updated_at = ? WHERE id = ?"),
		status, phone, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sync connection state: %w", err)
	}
	return checkAffected(result, "sync connection state")
}

// RotateConnectionKey installs a new API key hash and prefix in a single
// UPDATE, atomically invalidating any previous key, and enables API access.
func (s *Store) RotateConnectionKey(ctx context.Context, id int64, hash, prefix string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE connections SET api_key_hash = ?, api_key_prefix = ?, api_enabled = 1, updated_at = ?
			WHERE id = ?`),
		hash, prefix, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("rotate connection key: %w", err)
	}
	return checkAffected(result, "rotate connection key")
}

// DeauthorizeConnection moves a connection into its local safety state:
// disconnected and API disabled. Applied regardless of upstream outcome.
func (s *Store) DeauthorizeConnection(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE connections SET status = ?, api_enabled = 0, updated_at = ? WHERE id = ?`),
		model.StatusDisconnected, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deauthorize connection: %w", err)
	}
	return checkAffected(result, "deauthorize connection")
}

// TouchConnectionUsage bumps the usage counter and last-used mark in one
// atomic UPDATE so concurrent trackers cannot lose increments.
func (s *Store) TouchConnectionUsage(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE connections SET api_usage_count = api_usage_count + 1, api_last_used_at = ? WHERE id = ?`),
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch connection usage: %w", err)
	}
	return checkAffected(result, "touch connection usage")
}
