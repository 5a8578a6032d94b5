package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zapgate/zapgate/internal/model"
)

// CreateTenant inserts a new tenant. The ID, CreatedAt, and UpdatedAt fields
// on t are populated after a successful insert.
func (s *Store) CreateTenant(ctx context.Context, t *model.Tenant) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	const q = `INSERT INTO tenants
		(name, is_active, billing_ref, subscription_status, trial_ends_at, created_at, updated_at)
		VALUES
		(:name, :is_active, :billing_ref, :subscription_status, :trial_ends_at, :created_at, :updated_at)`

	id, err := s.namedInsert(ctx, q, t)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	t.ID = id
	return nil
}

// GetTenant returns a tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id int64) (*model.Tenant, error) {
	var t model.Tenant
	if err := s.db.GetContext(ctx, &t, s.rebind("SELECT * FROM tenants WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// GetTenantByBillingRef returns the tenant owning the given billing-provider
// customer reference.
func (s *Store) GetTenantByBillingRef(ctx context.Context, ref string) (*model.Tenant, error) {
	var t model.Tenant
	if err := s.db.GetContext(ctx, &t, s.rebind("SELECT * FROM tenants WHERE billing_ref = ?"), ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant by billing ref: %w", err)
	}
	return &t, nil
}

// ListTenants returns all tenants.
func (s *Store) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	var tenants []model.Tenant
	if err := s.db.SelectContext(ctx, &tenants, "SELECT * FROM tenants ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// ListTenantsWithConnectedConnections returns active tenants owning at least
// one connection in connected status. This is the sweep's candidate set.
func (s *Store) ListTenantsWithConnectedConnections(ctx context.Context) ([]model.Tenant, error) {
	const q = `SELECT t.* FROM tenants t
		WHERE t.is_active = 1
		  AND EXISTS (SELECT 1 FROM connections c WHERE c.tenant_id = t.id AND c.status = 'connected')
		ORDER BY t.id`

	var tenants []model.Tenant
	if err := s.db.SelectContext(ctx, &tenants, q); err != nil {
		return nil, fmt.Errorf("list tenants with connected connections: %w", err)
	}
	return tenants, nil
}

// UpdateTenantSubscription sets the mirrored billing subscription status.
func (s *Store) UpdateTenantSubscription(ctx context.Context, id int64, status string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE tenants SET subscription_status = ?, updated_at = ? WHERE id = ?"),
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update tenant subscription: %w", err)
	}
	return checkAffected(result, "update tenant subscription")
}

// SetTenantActive flips the tenant's active flag.
func (s *Store) SetTenantActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE tenants SET is_active = ?, updated_at = ? WHERE id = ?"),
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set tenant active: %w", err)
	}
	return checkAffected(result, "set tenant active")
}

func checkAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
