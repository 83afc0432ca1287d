package lockout

import (
	"context"
	"fmt"

	"github.com/halcyonsec/authcore/ledger"
)

// recentAttemptsLimit caps the attempt history returned by Metrics.
const recentAttemptsLimit = 20

// Metrics is a read-only security summary for one identity: the derived
// lockout state per attempt kind plus the most recent attempts of any kind,
// newest first.
type Metrics struct {
	Login          Status
	PasswordReset  Status
	RecentAttempts []ledger.Attempt
}

// Metrics aggregates lockout state and recent history for an identity. The
// per-kind states fail open like Check; only the history query can error.
func (e *Engine) Metrics(ctx context.Context, identity string) (Metrics, error) {
	m := Metrics{
		Login:         e.Check(ctx, identity, ledger.KindLogin),
		PasswordReset: e.Check(ctx, identity, ledger.KindPasswordReset),
	}

	qctx, cancel := e.opCtx(ctx)
	defer cancel()

	recent, err := e.store.Query(qctx, ledger.Filter{
		Email: identity,
		Limit: recentAttemptsLimit,
	})
	if err != nil {
		return m, fmt.Errorf("query recent attempts: %w", err)
	}
	m.RecentAttempts = recent
	return m, nil
}
