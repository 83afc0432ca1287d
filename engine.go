package authcore

import (
	"context"
	"log"
	"time"

	"github.com/halcyonsec/authcore/internal/alert"
	"github.com/halcyonsec/authcore/ledger"
	"github.com/halcyonsec/authcore/lockout"
	"github.com/halcyonsec/authcore/token"
)

// Engine is the authentication and session security core. It orchestrates
// login and password-reset attempts through the lockout policy engine, the
// attempt ledger, and the token lifecycle manager. Build one with Builder
// and treat it as immutable afterwards; all methods are safe for concurrent
// use.
type Engine struct {
	config   Config
	accounts AccountStore
	hasher   Hasher
	tokens   *token.Manager
	lockouts *lockout.Engine
	alerts   *alert.Dispatcher
	metrics  *Metrics
	logger   *log.Logger
	now      func() time.Time
}

// Close drains pending security alerts and releases the dispatcher. The
// injected stores are owned by the caller and are not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.alerts.Close()
}

// AlertsDropped reports how many security alerts were discarded because the
// dispatch buffer was full.
func (e *Engine) AlertsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.alerts.Dropped()
}

func (e *Engine) warnf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf("authcore: "+format, args...)
}

// attempt builds the base ledger record for the current request, pulling the
// source address and client signature out of ctx.
func (e *Engine) attempt(ctx context.Context, email string, kind ledger.Kind) ledger.Attempt {
	return ledger.Attempt{
		Email:      email,
		SourceAddr: sourceAddrFromContext(ctx),
		ClientSig:  clientSignatureFromContext(ctx),
		Kind:       kind,
		OccurredAt: e.now(),
	}
}

// record writes an attempt to the ledger. Write failures are logged, never
// propagated: a rejection must still reject and a success must still succeed
// when only audit logging degraded.
func (e *Engine) record(ctx context.Context, attempt ledger.Attempt, outcome ledger.Outcome, reason string) {
	attempt.Outcome = outcome
	if reason != "" {
		if attempt.Context == nil {
			attempt.Context = make(map[string]string, 1)
		}
		attempt.Context["reason"] = reason
	}
	if err := e.lockouts.Record(ctx, attempt); err != nil {
		e.warnf("ledger write failed for %s (%s/%s): %v", attempt.Email, attempt.Kind, outcome, err)
	}
}

// Authenticate runs one login attempt: lockout check, account lookup, status
// check, secret verification, ledger record, token issuance — in that order.
// The lockout check completes before the secret is ever hashed, and the
// success record is written before tokens are issued so a crash between the
// two leaves an audit entry rather than an unaudited session.
func (e *Engine) Authenticate(ctx context.Context, email, secret string) (*AuthResult, error) {
	if e == nil || e.accounts == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	attempt := e.attempt(ctx, email, ledger.KindLogin)

	status := e.lockouts.Check(ctx, email, ledger.KindLogin)
	if status.Locked {
		e.metricInc(MetricLoginLocked)
		e.record(ctx, attempt, ledger.OutcomeFailure, "account_locked")
		return nil, &LockoutError{Until: status.LockoutExpiresAt}
	}

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.warnf("account lookup failed for %s: %v", email, err)
		e.record(ctx, attempt, ledger.OutcomeFailure, "account_lookup_failed")
		return nil, ErrInvalidCredentials
	}
	if account == nil {
		e.metricInc(MetricLoginFailure)
		e.record(ctx, attempt, ledger.OutcomeFailure, "unknown_account")
		return nil, ErrInvalidCredentials
	}
	attempt.AccountID = account.ID

	switch account.Status {
	case AccountActive:
	case AccountSuspended:
		e.metricInc(MetricLoginFailure)
		e.record(ctx, attempt, ledger.OutcomeFailure, "account_suspended")
		return nil, ErrAccountSuspended
	default:
		e.metricInc(MetricLoginFailure)
		e.record(ctx, attempt, ledger.OutcomeFailure, "account_inactive")
		return nil, ErrAccountInactive
	}

	ok, err := e.hasher.Verify(secret, account.SecretHash)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.warnf("secret verification errored for %s: %v", email, err)
		e.record(ctx, attempt, ledger.OutcomeFailure, "secret_verify_error")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.record(ctx, attempt, ledger.OutcomeFailure, "bad_secret")
		return nil, ErrInvalidCredentials
	}

	e.record(ctx, attempt, ledger.OutcomeSuccess, "")

	pair, err := e.tokens.IssuePair(ctx, account.ID, account.Email)
	if err != nil {
		e.warnf("token issuance failed for %s: %v", email, err)
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricLoginSuccess)
	return &AuthResult{
		AccountID:        account.ID,
		Email:            account.Email,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// SecurityMetrics returns the dashboard aggregate for one identity: derived
// lockout state per attempt kind plus up to 20 recent attempts, newest
// first.
func (e *Engine) SecurityMetrics(ctx context.Context, identity string) (lockout.Metrics, error) {
	if e == nil {
		return lockout.Metrics{}, ErrEngineNotReady
	}
	metrics, err := e.lockouts.Metrics(ctx, NormalizeEmail(identity))
	if err != nil {
		e.warnf("security metrics query failed: %v", err)
		return metrics, ErrStoreUnavailable
	}
	return metrics, nil
}
