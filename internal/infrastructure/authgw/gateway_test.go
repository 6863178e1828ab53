package authgw

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage/memory"
)

// fakePlatform is a minimal stand-in for the hosted auth endpoints.
type fakePlatform struct {
	mu           sync.Mutex
	refreshCalls int
	logoutCalls  int
	userCalls    int

	refreshStatus int
	userBody      string
}

func (p *fakePlatform) refreshed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

func (p *fakePlatform) loggedOut() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logoutCalls
}

// signedToken builds an unverified JWT carrying only an exp claim.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	enc := func(v any) string {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal claim: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	header := enc(map[string]string{"alg": "HS256", "typ": "JWT"})
	claims := enc(map[string]int64{"exp": exp.Unix()})
	sig := base64.RawURLEncoding.EncodeToString([]byte("sig"))
	return header + "." + claims + "." + sig
}

func (p *fakePlatform) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.refreshCalls++
		status := p.refreshStatus
		p.mu.Unlock()
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", r.URL.Query().Get("grant_type"))
		}
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"access_token":  signedToken(t, time.Now().Add(time.Hour)),
			"refresh_token": "next-refresh",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u1", "email": "dev@aditi.example"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.userCalls++
		body := p.userBody
		p.mu.Unlock()
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		p.logoutCalls++
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestGateway(t *testing.T, p *fakePlatform, kv *memory.KV, cfg func(*Config)) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(p.handler(t))
	t.Cleanup(srv.Close)

	c := Config{BaseURL: srv.URL, AnonKey: "anon-key", SessionKey: "sb-aditi-auth-token"}
	if cfg != nil {
		cfg(&c)
	}
	return New(c, kv, nil, zerolog.Nop()), srv
}

func persistSession(t *testing.T, kv *memory.KV, s domain.Session) {
	t.Helper()
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	if err := kv.Set(context.Background(), "sb-aditi-auth-token", string(raw)); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestGateway_AdoptsPersistedSession(t *testing.T) {
	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{
		AccessToken:  "persisted-access",
		RefreshToken: "persisted-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	p := &fakePlatform{}
	g, _ := newTestGateway(t, p, kv, nil)

	var events []domain.AuthChangeEvent
	g.Subscribe(func(c domain.AuthChange) { events = append(events, c.Event) })

	s, err := g.Session(context.Background())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if s.AccessToken != "persisted-access" {
		t.Fatalf("adopted %q, want persisted token", s.AccessToken)
	}
	if n := p.refreshed(); n != 0 {
		t.Fatalf("refresh calls = %d, a live persisted session needs no network", n)
	}
	if len(events) != 1 || events[0] != domain.AuthSignedIn {
		t.Fatalf("events = %v, want [SIGNED_IN]", events)
	}
}

func TestGateway_RefreshesExpiredPersistedSession(t *testing.T) {
	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{
		AccessToken:  "expired-access",
		RefreshToken: "persisted-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	p := &fakePlatform{}
	g, _ := newTestGateway(t, p, kv, nil)

	s, err := g.Session(context.Background())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if n := p.refreshed(); n != 1 {
		t.Fatalf("refresh calls = %d, want 1", n)
	}
	if s.AccessToken == "expired-access" {
		t.Fatal("expired token must be replaced")
	}
	if s.ExpiresAt.IsZero() {
		t.Fatal("expiry must be read from the exp claim")
	}

	// The refreshed session is persisted back for other tabs.
	value, ok, err := kv.Get(context.Background(), "sb-aditi-auth-token")
	if err != nil || !ok {
		t.Fatalf("persisted session gone: ok=%v err=%v", ok, err)
	}
	var persisted domain.Session
	if err := json.Unmarshal([]byte(value), &persisted); err != nil {
		t.Fatalf("persisted session malformed: %v", err)
	}
	if persisted.RefreshToken != "next-refresh" {
		t.Fatalf("persisted refresh token = %q, want rotated token", persisted.RefreshToken)
	}
}

func TestGateway_NoSessionAnywhere(t *testing.T) {
	g, _ := newTestGateway(t, &fakePlatform{}, memory.NewKV(), nil)
	if _, err := g.Session(context.Background()); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestGateway_RejectedRefreshClearsPersistedSession(t *testing.T) {
	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{
		AccessToken:  "expired-access",
		RefreshToken: "revoked-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	p := &fakePlatform{refreshStatus: http.StatusUnauthorized}
	g, _ := newTestGateway(t, p, kv, nil)

	if _, err := g.Session(context.Background()); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
	if _, ok, _ := kv.Get(context.Background(), "sb-aditi-auth-token"); ok {
		t.Fatal("revoked persisted session must be cleared")
	}
}

func TestGateway_UserMapsPlatformPayload(t *testing.T) {
	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{AccessToken: "live", ExpiresAt: time.Now().Add(time.Hour)})
	p := &fakePlatform{userBody: `{
		"id": "u1",
		"email": "dev@aditi.example",
		"user_metadata": {"display_name": "Dev", "role": "manager", "team_id": "t1", "team_name": "Core"}
	}`}
	g, _ := newTestGateway(t, p, kv, nil)

	id, err := g.User(context.Background())
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if id.Email != "dev@aditi.example" || id.Role != domain.RoleManager || id.TeamName != "Core" {
		t.Fatalf("mapped identity %+v", id)
	}
}

func TestGateway_UserUnknownRoleDefaults(t *testing.T) {
	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{AccessToken: "live", ExpiresAt: time.Now().Add(time.Hour)})
	p := &fakePlatform{userBody: `{"id": "u1", "email": "dev@aditi.example", "user_metadata": {"role": "wizard"}}`}
	g, _ := newTestGateway(t, p, kv, nil)

	id, err := g.User(context.Background())
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if id.Role != domain.RoleUser {
		t.Fatalf("role = %q, unknown tags must default to user", id.Role)
	}
}

func TestGateway_UserWithoutEmailIsNoIdentity(t *testing.T) {
	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{AccessToken: "live", ExpiresAt: time.Now().Add(time.Hour)})
	p := &fakePlatform{userBody: `{"id": "u1", "user_metadata": {"role": "user"}}`}
	g, _ := newTestGateway(t, p, kv, nil)

	if _, err := g.User(context.Background()); !errors.Is(err, domain.ErrNoIdentity) {
		t.Fatalf("err = %v, want ErrNoIdentity", err)
	}
}

func TestGateway_SignOutClearsStateEvenOnSuccess(t *testing.T) {
	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{AccessToken: "live", ExpiresAt: time.Now().Add(time.Hour)})
	p := &fakePlatform{}
	g, _ := newTestGateway(t, p, kv, nil)

	if _, err := g.Session(context.Background()); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	var events []domain.AuthChangeEvent
	g.Subscribe(func(c domain.AuthChange) { events = append(events, c.Event) })

	if err := g.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if n := p.loggedOut(); n != 1 {
		t.Fatalf("logout calls = %d, want 1", n)
	}
	if _, ok, _ := kv.Get(context.Background(), "sb-aditi-auth-token"); ok {
		t.Fatal("persisted session must be cleared")
	}
	if len(events) != 1 || events[0] != domain.AuthSignedOut {
		t.Fatalf("events = %v, want [SIGNED_OUT]", events)
	}
	if _, err := g.Session(context.Background()); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("post-sign-out session err = %v, want ErrNoSession", err)
	}
}

func TestGateway_SealedPersistence(t *testing.T) {
	const hexKey = "6368616e676520746869732070617373776f726420746f206120736563726574"
	sealer, err := storage.NewSealer(hexKey)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	kv := memory.NewKV()
	persistSession(t, kv, domain.Session{
		AccessToken:  "expired-access",
		RefreshToken: "persisted-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	// Re-seed sealed: the gateway must both open and write sealed values.
	raw, _, _ := kv.Get(context.Background(), "sb-aditi-auth-token")
	sealed, err := sealer.Seal([]byte(raw))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := kv.Set(context.Background(), "sb-aditi-auth-token", sealed); err != nil {
		t.Fatalf("seed sealed: %v", err)
	}

	p := &fakePlatform{}
	srv := httptest.NewServer(p.handler(t))
	t.Cleanup(srv.Close)
	g := New(Config{BaseURL: srv.URL, AnonKey: "anon-key", SessionKey: "sb-aditi-auth-token"}, kv, sealer, zerolog.Nop())

	if _, err := g.Session(context.Background()); err != nil {
		t.Fatalf("session: %v", err)
	}

	value, ok, _ := kv.Get(context.Background(), "sb-aditi-auth-token")
	if !ok {
		t.Fatal("refreshed session must be persisted")
	}
	var plain domain.Session
	if json.Unmarshal([]byte(value), &plain) == nil {
		t.Fatal("persisted session must not be stored in the clear")
	}
	opened, err := sealer.Open(value)
	if err != nil {
		t.Fatalf("open persisted session: %v", err)
	}
	if err := json.Unmarshal(opened, &plain); err != nil || plain.RefreshToken != "next-refresh" {
		t.Fatalf("sealed session content wrong: %+v err=%v", plain, err)
	}
}
