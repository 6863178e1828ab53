package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
	"github.com/aditi-updates/session-agent/internal/core/service"
)

// SessionHandler serves the agent's session snapshot and sign-out.
type SessionHandler struct {
	store      ports.TabStateStore
	guard      *service.VisibilityGuard
	identity   ports.IdentityService
	reconciler *service.Reconciler
	loading    func() bool
}

func NewSessionHandler(store ports.TabStateStore, guard *service.VisibilityGuard, identity ports.IdentityService, reconciler *service.Reconciler, loading func() bool) *SessionHandler {
	return &SessionHandler{
		store:      store,
		guard:      guard,
		identity:   identity,
		reconciler: reconciler,
		loading:    loading,
	}
}

// Snapshot handles GET /v1/session. The optional ?policy= parameter picks
// the identity lookup policy; the default tolerates a fresh cache.
func (h *SessionHandler) Snapshot(c echo.Context) error {
	policy := ports.LookupPolicy(c.QueryParam("policy"))
	switch policy {
	case "", ports.CacheFirst, ports.AuthoritativeOnly, ports.CacheIfFreshElseAuthoritative:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown policy")
	}

	resp := sessionResponse{
		Visibility: string(h.reconciler.State()),
		Guard: guardStatus{
			Suppressing: h.guard.IsSuppressingNetwork(),
			ArmedAt:     h.guard.ArmedAt(),
			WindowMs:    h.guard.Window().Milliseconds(),
		},
		Loading: h.loading(),
	}

	if state, ok := h.store.Restore(c.Request().Context()); ok {
		resp.TabState = &tabStateView{
			TabID:      state.TabID,
			LastActive: state.LastActive,
			Route:      state.Route,
			Extra:      state.Extra,
		}
	}

	id, err := h.identity.Resolve(c.Request().Context(), policy)
	switch {
	case err == nil:
		resp.Identity = &identitySummary{
			ID:          id.ID,
			Email:       id.Email,
			DisplayName: id.DisplayName,
			Role:        id.Role,
			TeamName:    id.TeamName,
			LastChecked: id.LastChecked,
		}
	case errors.Is(err, domain.ErrNoIdentity),
		errors.Is(err, domain.ErrNoSession),
		errors.Is(err, domain.ErrNetworkSuppressed):
		// Signed out or skipping network: the snapshot simply has no identity.
	default:
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// SignOut handles POST /v1/session/signout.
func (h *SessionHandler) SignOut(c echo.Context) error {
	if err := h.identity.SignOut(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
