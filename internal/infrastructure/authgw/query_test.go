package authgw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage/memory"
)

func TestQuery_Encode(t *testing.T) {
	q := NewQuery().
		Eq("user_id", "u1").
		Gte("created_at", "2025-06-01").
		Lte("created_at", "2025-06-30").
		Order("created_at", true).
		Limit(20)

	want := "created_at=lte.2025-06-30&limit=20&order=created_at.desc&user_id=eq.u1"
	if got := q.Encode(); got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestQuery_LastPredicatePerColumnWins(t *testing.T) {
	q := NewQuery().Gte("created_at", "2025-06-01").Lte("created_at", "2025-06-30")
	if got := q.Encode(); got != "created_at=lte.2025-06-30" {
		t.Fatalf("Encode() = %q", got)
	}
}

type requestLog struct {
	mu   sync.Mutex
	reqs []*http.Request
}

func (l *requestLog) add(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reqs = append(l.reqs, r.Clone(context.Background()))
}

func (l *requestLog) first() *http.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reqs[0]
}

func newRowsGateway(t *testing.T, status int, body string) (*Gateway, *requestLog) {
	t.Helper()
	seen := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	g := New(Config{BaseURL: srv.URL, AnonKey: "anon-key", SessionKey: "sb-aditi-auth-token"},
		memory.NewKV(), nil, zerolog.Nop())
	return g, seen
}

func TestGateway_RowsDecodes(t *testing.T) {
	g, seen := newRowsGateway(t, http.StatusOK, `[{"id":1},{"id":2}]`)

	rows, err := g.Rows(context.Background(), "daily_updates", NewQuery().Eq("user_id", "u1"))
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	req := seen.first()
	if req.URL.Path != "/rest/v1/daily_updates" {
		t.Fatalf("path = %q", req.URL.Path)
	}
	if got := req.URL.Query().Get("user_id"); got != "eq.u1" {
		t.Fatalf("user_id filter = %q", got)
	}
	if req.Header.Get("apikey") != "anon-key" {
		t.Fatal("platform key header missing")
	}
}

func TestGateway_RowsNotAcceptable(t *testing.T) {
	g, _ := newRowsGateway(t, http.StatusNotAcceptable, "")
	if _, err := g.Rows(context.Background(), "daily_updates", NewQuery()); !errors.Is(err, domain.ErrNotAcceptable) {
		t.Fatalf("err = %v, want ErrNotAcceptable", err)
	}
}

func TestGateway_RowsUnauthorized(t *testing.T) {
	g, _ := newRowsGateway(t, http.StatusUnauthorized, "")
	if _, err := g.Rows(context.Background(), "daily_updates", NewQuery()); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}
