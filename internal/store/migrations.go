package store

import (
	"fmt"
	"strings"
)

// dialect-specific fragments for the migration DDL.
func (s *Store) pkColumn() string {
	switch s.driver {
	case "postgres":
		return "BIGSERIAL PRIMARY KEY"
	case "mysql":
		return "BIGINT PRIMARY KEY AUTO_INCREMENT"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func (s *Store) timestampType() string {
	if s.driver == "postgres" {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

func (s *Store) migrate() error {
	pk := s.pkColumn()
	ts := s.timestampType()

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tenants (
			id %s,
			name TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			billing_ref TEXT NOT NULL DEFAULT '',
			subscription_status TEXT NOT NULL DEFAULT '',
			trial_ends_at %s,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, pk, ts, ts, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			tenant_id BIGINT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			last_login_at %s,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, pk, ts, ts, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS connections (
			id %s,
			tenant_id BIGINT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			provider_account TEXT NOT NULL DEFAULT '',
			instance_id TEXT NOT NULL DEFAULT '',
			instance_token TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'creating',
			api_key_hash TEXT UNIQUE,
			api_key_prefix TEXT NOT NULL DEFAULT '',
			api_enabled INTEGER NOT NULL DEFAULT 0,
			api_rate_limit INTEGER NOT NULL DEFAULT 100,
			api_last_used_at %s,
			api_usage_count BIGINT NOT NULL DEFAULT 0,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, pk, ts, ts, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_logs (
			id %s,
			trace_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			tenant_id BIGINT,
			user_id BIGINT,
			connection_id BIGINT,
			method TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL DEFAULT '',
			client_ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			request_headers TEXT NOT NULL DEFAULT '',
			request_body TEXT NOT NULL DEFAULT '',
			response_headers TEXT NOT NULL DEFAULT '',
			response_body TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			is_error INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			response_time_ms BIGINT,
			action TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '',
			created_at %s NOT NULL
		)`, pk, ts),

		`CREATE INDEX IF NOT EXISTS idx_connections_tenant ON connections(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_key_hash ON connections(api_key_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_trace ON audit_logs(trace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant ON audit_logs(tenant_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_billing_ref ON tenants(billing_ref)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
