package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedConnection(t *testing.T, st *store.Store, status string, enabled bool) (*model.Connection, string) {
	t.Helper()
	ctx := context.Background()

	tenant := &model.Tenant{Name: "acme", IsActive: true, SubscriptionStatus: model.SubActive}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	conn := &model.Connection{TenantID: tenant.ID, Name: "main", Status: status}
	if err := st.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("create connection: %v", err)
	}

	raw, hash, prefix, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := st.RotateConnectionKey(ctx, conn.ID, hash, prefix); err != nil {
		t.Fatalf("rotate key: %v", err)
	}
	if !enabled {
		if err := st.DeauthorizeConnection(ctx, conn.ID); err != nil {
			t.Fatalf("deauthorize: %v", err)
		}
	}
	return conn, raw
}

func TestGenerateKeyFormat(t *testing.T) {
	raw, hash, prefix, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !ValidKeyFormat(raw) {
		t.Errorf("generated key %q fails its own format check", raw)
	}
	if !strings.HasPrefix(raw, KeyPrefix) {
		t.Errorf("key missing prefix: %q", raw)
	}
	if prefix != raw[:len(KeyPrefix)+8] {
		t.Errorf("display prefix mismatch: %q", prefix)
	}
	if hash != HashKey(raw) {
		t.Error("hash does not match HashKey(raw)")
	}
}

func TestValidKeyFormat(t *testing.T) {
	raw, _, _, _ := GenerateKey()

	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"issued key", raw, true},
		{"empty", "", false},
		{"wrong prefix", "sk_" + strings.Repeat("a", 64), false},
		{"too short", KeyPrefix + "abc123", false},
		{"non-hex body", KeyPrefix + strings.Repeat("z", 64), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidKeyFormat(tc.token); got != tc.want {
				t.Errorf("ValidKeyFormat(%q) = %v, want %v", tc.token, got, tc.want)
			}
		})
	}
}

func TestResolveMatchingKey(t *testing.T) {
	st := newTestStore(t)
	conn, raw := seedConnection(t, st, model.StatusConnected, true)

	r := NewResolver(st)
	got, err := r.Resolve(context.Background(), raw)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != conn.ID {
		t.Errorf("resolved connection %d, want %d", got.ID, conn.ID)
	}

	// Second resolve is served from cache and still maps to the same row.
	got2, err := r.Resolve(context.Background(), raw)
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if got2.ID != conn.ID {
		t.Errorf("cached resolve returned connection %d, want %d", got2.ID, conn.ID)
	}
}

func TestResolveMalformedTokenSkipsCacheAndStore(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)

	_, err := r.Resolve(context.Background(), "Bearer garbage")
	if !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("expected ErrInvalidKeyFormat, got %v", err)
	}
	if r.CacheLen() != 0 {
		t.Error("malformed token must leave no cache side effect")
	}
}

func TestResolveUnknownKey(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)

	raw, _, _, _ := GenerateKey()
	_, err := r.Resolve(context.Background(), raw)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestResolveDisabledConnectionIndistinguishable(t *testing.T) {
	st := newTestStore(t)
	_, raw := seedConnection(t, st, model.StatusConnected, false)

	r := NewResolver(st)
	_, err := r.Resolve(context.Background(), raw)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("disabled key must resolve as invalid credentials, got %v", err)
	}
}

func TestDisableHonoredAfterInvalidate(t *testing.T) {
	st := newTestStore(t)
	conn, raw := seedConnection(t, st, model.StatusConnected, true)

	r := NewResolver(st)
	if _, err := r.Resolve(context.Background(), raw); err != nil {
		t.Fatalf("initial resolve: %v", err)
	}

	if err := st.DeauthorizeConnection(context.Background(), conn.ID); err != nil {
		t.Fatalf("deauthorize: %v", err)
	}

	// Without invalidation the stale cached credential may persist until
	// TTL; after explicit invalidation the disable is immediate.
	r.Invalidate(raw)
	if _, err := r.Resolve(context.Background(), raw); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after disable, got %v", err)
	}
}

func TestIssueKeyInvalidatesOldKey(t *testing.T) {
	st := newTestStore(t)
	conn, oldRaw := seedConnection(t, st, model.StatusConnected, true)

	r := NewResolver(st)
	newRaw, err := r.IssueKey(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}
	if newRaw == oldRaw {
		t.Fatal("regeneration returned the same key")
	}

	r.Invalidate(oldRaw)
	if _, err := r.Resolve(context.Background(), oldRaw); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old key must be invalid after rotation, got %v", err)
	}
	got, err := r.Resolve(context.Background(), newRaw)
	if err != nil {
		t.Fatalf("new key resolve: %v", err)
	}
	if got.ID != conn.ID {
		t.Errorf("new key resolved connection %d, want %d", got.ID, conn.ID)
	}
}

func TestSessionsLoginAndValidate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tenant := &model.Tenant{Name: "acme", IsActive: true}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &model.User{TenantID: tenant.ID, Email: "op@acme.test", PasswordHash: hash, IsActive: true}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	sessions := NewSessions(st, "test-secret", time.Minute)

	token, got, err := sessions.Login(ctx, "op@acme.test", "hunter2!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("login returned user %d, want %d", got.ID, user.ID)
	}

	principal, err := sessions.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if principal.UserID != user.ID || principal.TenantID != tenant.ID {
		t.Errorf("principal %+v does not match user", principal)
	}

	if _, _, err := sessions.Login(ctx, "op@acme.test", "wrong"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("wrong password: expected ErrBadLogin, got %v", err)
	}
	if _, err := sessions.Validate("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: expected ErrInvalidToken, got %v", err)
	}
}
