// Package authgw adapts the hosted auth/database platform to the agent's
// ports. The platform owns session issuance, token validation, and row-level
// security; this package only asks it for sessions and forwards its answers.
package authgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage"
)

// Config captures the platform connection settings.
type Config struct {
	BaseURL string
	AnonKey string
	// SessionKey is the shared-storage key the persisted session lives under.
	SessionKey string
	// SignOutOnRetryFailure forces a sign-out when a refreshed retry still fails.
	SignOutOnRetryFailure bool
}

// Gateway implements ports.AuthGateway and ports.TokenSource over the
// platform's HTTP auth endpoints.
type Gateway struct {
	cfg        Config
	authClient *http.Client
	dataClient *http.Client
	kv         ports.KV
	sealer     *storage.Sealer
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	session *domain.Session
	subs    []func(domain.AuthChange)
}

// New builds a Gateway. sealer may be nil, in which case persisted session
// material is stored in the clear.
func New(cfg Config, kv ports.KV, sealer *storage.Sealer, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:        cfg,
		authClient: &http.Client{Timeout: 10 * time.Second},
		kv:         kv,
		sealer:     sealer,
		log:        log,
		now:        time.Now,
	}
}

// SetQueryClient routes row queries through the given client. Wired once at
// startup so queries pass through the guarded transport choke point.
func (g *Gateway) SetQueryClient(c *http.Client) {
	g.dataClient = c
}

// Session returns the live session, adopting a persisted one or refreshing
// an expired one as needed. Returns domain.ErrNoSession when none is
// recoverable.
func (g *Gateway) Session(ctx context.Context) (*domain.Session, error) {
	g.mu.Lock()
	if g.session != nil && !g.session.ExpiredAt(g.now()) {
		s := *g.session
		g.mu.Unlock()
		return &s, nil
	}
	g.mu.Unlock()

	if s := g.loadPersisted(ctx); s != nil {
		if !s.ExpiredAt(g.now()) {
			g.adopt(s, domain.AuthSignedIn)
			return s, nil
		}
		g.mu.Lock()
		if g.session == nil {
			g.session = s // keep the refresh token for the refresh below
		}
		g.mu.Unlock()
	}

	g.mu.Lock()
	hasRefresh := g.session != nil && g.session.RefreshToken != ""
	g.mu.Unlock()
	if !hasRefresh {
		return nil, domain.ErrNoSession
	}
	return g.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new session and persists it.
func (g *Gateway) Refresh(ctx context.Context) (*domain.Session, error) {
	g.mu.Lock()
	var refreshToken string
	if g.session != nil {
		refreshToken = g.session.RefreshToken
	}
	g.mu.Unlock()
	if refreshToken == "" {
		if s := g.loadPersisted(ctx); s != nil {
			refreshToken = s.RefreshToken
		}
	}
	if refreshToken == "" {
		return nil, domain.ErrNoSession
	}

	body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", g.cfg.AnonKey)

	resp, err := g.authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		g.clearLocal(ctx)
		return nil, domain.ErrNoSession
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh: unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("refresh: decode: %w", err)
	}

	session := tr.toSession(g.now())
	g.adopt(session, domain.AuthTokenRefreshed)
	g.persist(ctx, session)

	g.log.Debug().Time("expires_at", session.ExpiresAt).Msg("session refreshed")
	return session, nil
}

// User performs an authoritative identity lookup. A user object without an
// email is treated as no identity rather than guessed at.
func (g *Gateway) User(ctx context.Context) (*domain.Identity, error) {
	session, err := g.Session(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("user request: %w", err)
	}
	req.Header.Set("apikey", g.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := g.authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrNoSession
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("user lookup: unexpected status %d", resp.StatusCode)
	}

	var up userPayload
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return nil, fmt.Errorf("user lookup: decode: %w", err)
	}
	if up.Email == "" {
		return nil, domain.ErrNoIdentity
	}

	role := up.Metadata.Role
	if !domain.ValidRole(role) {
		g.log.Warn().Str("role", role).Msg("unknown role tag, defaulting to user")
		role = domain.RoleUser
	}

	return &domain.Identity{
		ID:          up.ID,
		Email:       up.Email,
		DisplayName: up.Metadata.DisplayName,
		Role:        role,
		TeamID:      up.Metadata.TeamID,
		TeamName:    up.Metadata.TeamName,
	}, nil
}

// SignOut revokes the session with the platform and always clears local
// state, even when the revocation call fails.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	session := g.session
	g.mu.Unlock()

	var netErr error
	if session != nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/auth/v1/logout", nil)
		if err == nil {
			req.Header.Set("apikey", g.cfg.AnonKey)
			req.Header.Set("Authorization", "Bearer "+session.AccessToken)
			resp, derr := g.authClient.Do(req)
			if derr != nil {
				netErr = fmt.Errorf("sign out: %w", derr)
			} else {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}

	g.clearLocal(ctx)
	g.notify(domain.AuthChange{Event: domain.AuthSignedOut})
	return netErr
}

// Subscribe registers fn for auth-state-change notifications.
func (g *Gateway) Subscribe(fn func(domain.AuthChange)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, fn)
}

// AccessToken implements ports.TokenSource from the live session.
func (g *Gateway) AccessToken(ctx context.Context) (string, error) {
	session, err := g.Session(ctx)
	if err != nil {
		return "", err
	}
	return session.AccessToken, nil
}

// SignOutOnRetryFailure reports the configured retry-failure policy.
func (g *Gateway) SignOutOnRetryFailure() bool {
	return g.cfg.SignOutOnRetryFailure
}

// ---------------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------------

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         userPayload `json:"user"`
}

type userPayload struct {
	ID       string       `json:"id"`
	Email    string       `json:"email"`
	Metadata userMetadata `json:"user_metadata"`
}

type userMetadata struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	TeamID      string `json:"team_id"`
	TeamName    string `json:"team_name"`
}

func (tr tokenResponse) toSession(now time.Time) *domain.Session {
	expiresAt, ok := tokenExpiry(tr.AccessToken)
	if !ok && tr.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return &domain.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       tr.User.ID,
		Email:        tr.User.Email,
	}
}

// tokenExpiry reads the exp claim without verifying the signature. The
// platform validates tokens; the agent only needs the expiry.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (g *Gateway) adopt(s *domain.Session, event domain.AuthChangeEvent) {
	g.mu.Lock()
	g.session = s
	g.mu.Unlock()
	g.notify(domain.AuthChange{Event: event, Session: s})
}

func (g *Gateway) notify(change domain.AuthChange) {
	g.mu.Lock()
	subs := make([]func(domain.AuthChange), len(g.subs))
	copy(subs, g.subs)
	g.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

// loadPersisted reads the persisted session from shared storage. Any
// failure is treated as absence.
func (g *Gateway) loadPersisted(ctx context.Context) *domain.Session {
	value, ok, err := g.kv.Get(ctx, g.cfg.SessionKey)
	if err != nil {
		g.log.Warn().Err(err).Msg("persisted session read failed")
		return nil
	}
	if !ok {
		return nil
	}

	raw := []byte(value)
	if g.sealer != nil {
		raw, err = g.sealer.Open(value)
		if err != nil {
			g.log.Warn().Err(err).Msg("persisted session unreadable, discarding")
			return nil
		}
	}

	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		g.log.Warn().Err(err).Msg("persisted session malformed, discarding")
		return nil
	}
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}
	return &s
}

// persist writes the session to shared storage. Failures are logged and
// swallowed; the in-memory session keeps working.
func (g *Gateway) persist(ctx context.Context, s *domain.Session) {
	raw, err := json.Marshal(s)
	if err != nil {
		g.log.Warn().Err(err).Msg("session marshal failed")
		return
	}
	value := string(raw)
	if g.sealer != nil {
		value, err = g.sealer.Seal(raw)
		if err != nil {
			g.log.Warn().Err(err).Msg("session seal failed, not persisting")
			return
		}
	}
	if err := g.kv.Set(ctx, g.cfg.SessionKey, value); err != nil {
		g.log.Warn().Err(err).Msg("session persist failed")
	}
}

func (g *Gateway) clearLocal(ctx context.Context) {
	g.mu.Lock()
	g.session = nil
	g.mu.Unlock()
	if err := g.kv.Delete(ctx, g.cfg.SessionKey); err != nil {
		g.log.Warn().Err(err).Msg("persisted session delete failed")
	}
}
