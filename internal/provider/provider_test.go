package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zapgate/zapgate/internal/audit"
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

func newRecorder(t *testing.T, st *store.Store) *audit.Recorder {
	t.Helper()
	return audit.NewRecorder(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendTextParsesResult(t *testing.T) {
	var gotPath, gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"key":    map[string]string{"id": "MSG123"},
			"status": "PENDING",
		})
	}))
	defer upstream.Close()

	st := newTestStore(t)
	rec := newRecorder(t, st)
	client := NewClient()
	acct := Account{Name: "primary", BaseURL: upstream.URL, AdminToken: "admin-tok"}
	conn := &model.Connection{ID: 1, TenantID: 1, InstanceID: "inst1", InstanceToken: "inst-tok"}

	result, err := client.SendText(context.Background(), rec, acct, conn, SendTextRequest{
		Number: "5511999999999", Text: "hello",
	})
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if result.MessageID != "MSG123" || result.Status != "PENDING" {
		t.Errorf("unexpected result %+v", result)
	}
	if gotPath != "/message/sendText/inst1" {
		t.Errorf("upstream path: %q", gotPath)
	}
	if gotKey != "inst-tok" {
		t.Errorf("messaging call must use the instance token, got %q", gotKey)
	}

	// The call must have produced exactly one outbound audit entry.
	rows, err := st.ListAuditLogsByTrace(context.Background(), rec.TraceID())
	if err != nil {
		t.Fatalf("list audit rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Direction != model.DirectionOutbound {
		t.Fatalf("expected 1 outbound audit row, got %d", len(rows))
	}
	if rows[0].Action != "provider.send_text" {
		t.Errorf("audit action: %q", rows[0].Action)
	}
}

func TestUpstreamErrorStatusSurfacesErrUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"instance offline"}`))
	}))
	defer upstream.Close()

	st := newTestStore(t)
	client := NewClient()
	acct := Account{Name: "primary", BaseURL: upstream.URL}
	conn := &model.Connection{ID: 2, TenantID: 1, InstanceID: "inst2", InstanceToken: "tok"}

	err := client.Disconnect(context.Background(), newRecorder(t, st), acct, conn)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestTransportFailureLogsException(t *testing.T) {
	st := newTestStore(t)
	rec := newRecorder(t, st)
	client := NewClient()
	// Unroutable address guarantees a transport error.
	acct := Account{Name: "down", BaseURL: "http://127.0.0.1:1"}
	conn := &model.Connection{ID: 3, TenantID: 1, InstanceID: "inst3", InstanceToken: "tok"}

	err := client.Disconnect(context.Background(), rec, acct, conn)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	rows, err := st.ListAuditLogsByTrace(context.Background(), rec.TraceID())
	if err != nil {
		t.Fatalf("list audit rows: %v", err)
	}
	if len(rows) != 1 || !rows[0].IsError {
		t.Fatalf("expected 1 error audit row, got %+v", rows)
	}
}

func TestInstanceStatusMapsStates(t *testing.T) {
	state := "open"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"instance": map[string]string{"state": state, "owner": "5511888887777"},
		})
	}))
	defer upstream.Close()

	st := newTestStore(t)
	client := NewClient()
	acct := Account{Name: "primary", BaseURL: upstream.URL}
	conn := &model.Connection{ID: 4, TenantID: 1, InstanceID: "inst4", InstanceToken: "tok"}

	cases := map[string]string{
		"open":       model.StatusConnected,
		"connecting": model.StatusConnecting,
		"close":      model.StatusDisconnected,
		"weird":      model.StatusError,
	}
	for upstreamState, want := range cases {
		state = upstreamState
		got, phone, err := client.InstanceStatus(context.Background(), newRecorder(t, st), acct, conn)
		if err != nil {
			t.Fatalf("state %q: %v", upstreamState, err)
		}
		if got != want {
			t.Errorf("state %q mapped to %q, want %q", upstreamState, got, want)
		}
		if phone != "5511888887777" {
			t.Errorf("phone: %q", phone)
		}
	}
}

// fixedLoads is a LoadCounter with canned counts.
type fixedLoads map[string]int

func (f fixedLoads) CountConnectionsByAccount(ctx context.Context) (map[string]int, error) {
	return f, nil
}

func TestPoolAllocatesLeastLoaded(t *testing.T) {
	pool := NewPool([]Account{
		{Name: "a", MaxConnections: 10},
		{Name: "b", MaxConnections: 10},
		{Name: "c", MaxConnections: 5},
	}, fixedLoads{"a": 9, "b": 2, "c": 4})

	acct, err := pool.Allocate(context.Background())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if acct.Name != "b" {
		t.Errorf("expected least-loaded account b, got %q", acct.Name)
	}
}

func TestPoolSkipsFullAccounts(t *testing.T) {
	pool := NewPool([]Account{
		{Name: "a", MaxConnections: 2},
		{Name: "b", MaxConnections: 2},
	}, fixedLoads{"a": 2, "b": 2})

	if _, err := pool.Allocate(context.Background()); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestPoolGetUnknownAccount(t *testing.T) {
	pool := NewPool([]Account{{Name: "a"}}, fixedLoads{})
	if _, err := pool.Get("missing"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}
