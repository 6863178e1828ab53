package authgw

import (
	"context"
	"errors"
	"fmt"

	"github.com/aditi-updates/session-agent/internal/core/domain"
)

// WithRefreshRetry runs do once. When it fails with domain.ErrNotAcceptable
// the session is refreshed exactly once and do retried exactly once. A
// failing retry surfaces its error and, when configured, forces a sign-out.
func (g *Gateway) WithRefreshRetry(ctx context.Context, do func(ctx context.Context) error) error {
	err := do(ctx)
	if err == nil || !errors.Is(err, domain.ErrNotAcceptable) {
		return err
	}

	g.log.Info().Msg("not-acceptable response, refreshing session and retrying once")
	if _, rerr := g.Refresh(ctx); rerr != nil {
		if g.cfg.SignOutOnRetryFailure {
			_ = g.SignOut(ctx)
		}
		return fmt.Errorf("refresh after not-acceptable: %w", rerr)
	}

	if retryErr := do(ctx); retryErr != nil {
		if g.cfg.SignOutOnRetryFailure {
			g.log.Warn().Err(retryErr).Msg("retry failed after refresh, signing out")
			_ = g.SignOut(ctx)
		}
		return retryErr
	}
	return nil
}
