package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zapgate/zapgate/internal/auth"
	"github.com/zapgate/zapgate/internal/cache"
	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/ratelimit"
	"github.com/zapgate/zapgate/internal/store"
	"github.com/zapgate/zapgate/internal/usage"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedConnection(t *testing.T, st *store.Store, status string) (*model.Connection, string) {
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
	raw, hash, prefix, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := st.RotateConnectionKey(ctx, conn.ID, hash, prefix); err != nil {
		t.Fatalf("rotate key: %v", err)
	}
	got, err := st.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("reload connection: %v", err)
	}
	return got, raw
}

type countingMeter struct{ n atomic.Int64 }

func (m *countingMeter) TouchConnectionUsage(ctx context.Context, id int64) error {
	m.n.Add(1)
	return nil
}

func newGatewayChain(t *testing.T, st *store.Store, meter usage.Store) http.Handler {
	t.Helper()
	resolver := auth.NewResolver(st)
	counter := cache.NewMemoryCounter(time.Minute)
	t.Cleanup(counter.Stop)
	limiter := ratelimit.New(counter)
	tracker := usage.NewTracker(meter, testLogger, 16)
	t.Cleanup(tracker.Shutdown)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetAction(r.Context(), "message.send_text")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"success":true}`)
	})
	chain := APIKeyAuth(resolver, limiter, tracker)(inner)
	return Audit(st, testLogger, []string{"/health"})(chain)
}

func doReq(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/send-text", strings.NewReader(`{"number":"123","message":"hi"}`))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAPIKeyAuthRejections(t *testing.T) {
	st := newTestStore(t)
	_, raw := seedConnection(t, st, model.StatusConnected)

	disconnected, disconnectedKey := seedConnection(t, st, model.StatusConnected)
	if err := st.UpdateConnectionStatus(context.Background(), disconnected.ID, model.StatusDisconnected); err != nil {
		t.Fatalf("set status: %v", err)
	}

	h := newGatewayChain(t, st, &countingMeter{})

	cases := []struct {
		name       string
		token      string
		wantStatus int
		wantKind   string
	}{
		{"missing token", "", http.StatusUnauthorized, model.ErrKindAuth},
		{"bad format", "not-a-key", http.StatusUnauthorized, model.ErrKindAuth},
		{"unknown key", "zpg_" + strings.Repeat("0", 64), http.StatusUnauthorized, model.ErrKindAuth},
		{"not connected", disconnectedKey, http.StatusServiceUnavailable, model.ErrKindNotReady},
		{"accepted", raw, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doReq(h, tc.token)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if tc.wantKind != "" && !strings.Contains(rr.Body.String(), tc.wantKind) {
				t.Errorf("body %q missing error kind %q", rr.Body.String(), tc.wantKind)
			}
		})
	}
}

func TestAPIKeyAuthDisabledKeyIndistinguishable(t *testing.T) {
	st := newTestStore(t)
	conn, raw := seedConnection(t, st, model.StatusConnected)
	if err := st.DeauthorizeConnection(context.Background(), conn.ID); err != nil {
		t.Fatalf("deauthorize: %v", err)
	}

	h := newGatewayChain(t, st, &countingMeter{})
	rr := doReq(h, raw)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid or disabled token") {
		t.Errorf("disabled key response should match unknown-key response, got %q", rr.Body.String())
	}
}

func TestAPIKeyAuthRateLimit(t *testing.T) {
	st := newTestStore(t)
	_, raw := seedConnection(t, st, model.StatusConnected)

	meter := &countingMeter{}
	h := newGatewayChain(t, st, meter)

	limit := model.DefaultRateLimit
	for i := 0; i < limit; i++ {
		if rr := doReq(h, raw); rr.Code != http.StatusOK {
			t.Fatalf("request %d rejected with %d", i+1, rr.Code)
		}
	}
	rr := doReq(h, raw)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("request %d status = %d, want 429", limit+1, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), model.ErrKindRateLimit) {
		t.Errorf("body %q missing %q", rr.Body.String(), model.ErrKindRateLimit)
	}

	// Usage metering only counts accepted requests.
	deadline := time.Now().Add(2 * time.Second)
	for meter.n.Load() < int64(limit) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := meter.n.Load(); got != int64(limit) {
		t.Errorf("usage increments = %d, want %d", got, limit)
	}
}

func TestAuditMiddlewareWritesOneEntry(t *testing.T) {
	st := newTestStore(t)
	conn, raw := seedConnection(t, st, model.StatusConnected)

	h := newGatewayChain(t, st, &countingMeter{})
	rr := doReq(h, raw)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	traceID := rr.Header().Get(TraceHeader)
	if traceID == "" {
		t.Fatal("response missing trace header")
	}
	entries, err := st.ListAuditLogsByTrace(context.Background(), traceID)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Direction != model.DirectionInbound {
		t.Errorf("direction = %q, want %q", e.Direction, model.DirectionInbound)
	}
	if e.ConnectionID == nil || *e.ConnectionID != conn.ID {
		t.Errorf("connection id not recorded on audit entry")
	}
	if e.Action != "message.send_text" {
		t.Errorf("action = %q, want handler-set action", e.Action)
	}
	if e.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", e.StatusCode)
	}
}

func TestAuditMiddlewareLogsRejections(t *testing.T) {
	st := newTestStore(t)
	h := newGatewayChain(t, st, &countingMeter{})

	rr := doReq(h, "")
	traceID := rr.Header().Get(TraceHeader)
	if traceID == "" {
		t.Fatal("rejected request missing trace header")
	}
	entries, err := st.ListAuditLogsByTrace(context.Background(), traceID)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if !entries[0].IsError {
		t.Error("401 response should be flagged as error")
	}
}

func TestAuditMiddlewareExcludedPath(t *testing.T) {
	st := newTestStore(t)
	var sawRecorder bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRecorder = GetRecorder(r.Context()) != nil
		w.WriteHeader(http.StatusOK)
	})
	h := Audit(st, testLogger, []string{"/health"})(inner)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get(TraceHeader) != "" {
		t.Error("excluded path should not carry a trace header")
	}
	if sawRecorder {
		t.Error("excluded path should not get a recorder")
	}
}

func TestAuditMiddlewarePersistsOnClientDisconnect(t *testing.T) {
	st := newTestStore(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetAction(r.Context(), "message.send_text")
		w.WriteHeader(http.StatusOK)
	})
	h := Audit(st, testLogger, nil)(inner)

	// The client hangs up before the entry is written; the context is
	// already canceled when the middleware logs.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/send-text", strings.NewReader(`{"number":"123","message":"hi"}`)).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	traceID := rr.Header().Get(TraceHeader)
	if traceID == "" {
		t.Fatal("response missing trace header")
	}
	entries, err := st.ListAuditLogsByTrace(context.Background(), traceID)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("inbound audit entries = %d, want 1", len(entries))
	}
}

func TestSessionAuth(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tenant := &model.Tenant{Name: "acme", IsActive: true, SubscriptionStatus: model.SubActive}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &model.User{TenantID: tenant.ID, Email: "ops@acme.test", PasswordHash: hash, IsActive: true}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	sessions := auth.NewSessions(st, "test-secret", time.Hour)
	token, _, err := sessions.Login(ctx, "ops@acme.test", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	var principalEmail string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := GetPrincipal(r.Context()); p != nil {
			principalEmail = p.Email
		}
		w.WriteHeader(http.StatusOK)
	})
	h := Audit(st, testLogger, nil)(SessionAuth(sessions)(inner))

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/connections", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if principalEmail != "ops@acme.test" {
		t.Errorf("principal email = %q", principalEmail)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/connections", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rr.Code)
	}
}
