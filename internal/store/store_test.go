package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zapgate/zapgate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st *Store) (*model.Tenant, *model.Connection) {
	t.Helper()
	ctx := context.Background()
	tenant := &model.Tenant{Name: "acme", IsActive: true, SubscriptionStatus: model.SubActive, BillingRef: "cus_1"}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	conn := &model.Connection{TenantID: tenant.ID, Name: "main", Status: model.StatusConnected}
	if err := st.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("create connection: %v", err)
	}
	return tenant, conn
}

func TestMigrationsAreIdempotent(t *testing.T) {
	st := newTestStore(t)
	if err := st.migrate(); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}

func TestGetConnectionNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetConnection(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTouchConnectionUsageIsAtomic(t *testing.T) {
	st := newTestStore(t)
	_, conn := seed(t, st)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.TouchConnectionUsage(ctx, conn.ID); err != nil {
				t.Errorf("touch usage: %v", err)
			}
		}()
	}
	wg.Wait()

	fresh, err := st.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if fresh.APIUsageCount != n {
		t.Errorf("usage count = %d, want %d", fresh.APIUsageCount, n)
	}
	if fresh.APILastUsedAt == nil {
		t.Error("last used timestamp not set")
	}
}

func TestRotateConnectionKeyReplacesPreviousKey(t *testing.T) {
	st := newTestStore(t)
	_, conn := seed(t, st)
	ctx := context.Background()

	if err := st.RotateConnectionKey(ctx, conn.ID, "hash-one", "zpg_aaaa"); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if err := st.RotateConnectionKey(ctx, conn.ID, "hash-two", "zpg_bbbb"); err != nil {
		t.Fatalf("second rotate: %v", err)
	}

	if _, err := st.GetConnectionByKeyHash(ctx, "hash-one"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old hash still resolves: %v", err)
	}
	got, err := st.GetConnectionByKeyHash(ctx, "hash-two")
	if err != nil {
		t.Fatalf("new hash: %v", err)
	}
	if got.ID != conn.ID || !got.APIEnabled {
		t.Errorf("unexpected connection %+v", got)
	}
}

func TestGetConnectionByKeyHashFiltersDisabled(t *testing.T) {
	st := newTestStore(t)
	_, conn := seed(t, st)
	ctx := context.Background()

	if err := st.RotateConnectionKey(ctx, conn.ID, "hash-x", "zpg_cccc"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := st.DeauthorizeConnection(ctx, conn.ID); err != nil {
		t.Fatalf("deauthorize: %v", err)
	}
	if _, err := st.GetConnectionByKeyHash(ctx, "hash-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("disabled connection resolvable: %v", err)
	}
}

func TestListTenantsWithConnectedConnections(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	withConn, _ := seed(t, st)

	idle := &model.Tenant{Name: "idle", IsActive: true, SubscriptionStatus: model.SubActive}
	if err := st.CreateTenant(ctx, idle); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	inactive := &model.Tenant{Name: "off", IsActive: false, SubscriptionStatus: model.SubCanceled}
	if err := st.CreateTenant(ctx, inactive); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	offConn := &model.Connection{TenantID: inactive.ID, Name: "c", Status: model.StatusConnected}
	if err := st.CreateConnection(ctx, offConn); err != nil {
		t.Fatalf("create connection: %v", err)
	}

	tenants, err := st.ListTenantsWithConnectedConnections(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tenants) != 1 || tenants[0].ID != withConn.ID {
		t.Errorf("unexpected candidates %+v", tenants)
	}
}

func TestGetTenantByBillingRef(t *testing.T) {
	st := newTestStore(t)
	tenant, _ := seed(t, st)
	ctx := context.Background()

	got, err := st.GetTenantByBillingRef(ctx, "cus_1")
	if err != nil {
		t.Fatalf("get by billing ref: %v", err)
	}
	if got.ID != tenant.ID {
		t.Errorf("tenant id = %d, want %d", got.ID, tenant.ID)
	}
	if _, err := st.GetTenantByBillingRef(ctx, "cus_unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown ref err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTenantSubscription(t *testing.T) {
	st := newTestStore(t)
	tenant, _ := seed(t, st)
	ctx := context.Background()

	if err := st.UpdateTenantSubscription(ctx, tenant.ID, model.SubCanceled); err != nil {
		t.Fatalf("update subscription: %v", err)
	}
	if err := st.SetTenantActive(ctx, tenant.ID, false); err != nil {
		t.Fatalf("set inactive: %v", err)
	}

	fresh, err := st.GetTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if fresh.SubscriptionStatus != model.SubCanceled || fresh.IsActive {
		t.Errorf("tenant not updated: %+v", fresh)
	}
	if fresh.Entitled(time.Now()) {
		t.Error("canceled tenant reports entitled")
	}
}
