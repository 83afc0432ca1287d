package authcore

import (
	"context"

	"github.com/halcyonsec/authcore/ledger"
)

// AuthorizePasswordReset gates a password-reset request for an identity. The
// response is constant regardless of whether the identity resolves to an
// account: the only visible rejection is an active reset lockout, which is
// keyed by identity rather than account and therefore leaks nothing about
// existence. Every request is recorded in the ledger either way.
func (e *Engine) AuthorizePasswordReset(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	attempt := e.attempt(ctx, email, ledger.KindPasswordReset)

	status := e.lockouts.Check(ctx, email, ledger.KindPasswordReset)
	if status.Locked {
		e.metricInc(MetricResetLocked)
		e.record(ctx, attempt, ledger.OutcomeFailure, "account_locked")
		return &LockoutError{Until: status.LockoutExpiresAt}
	}

	// Resolve the account only to stamp its ID onto the ledger row. Lookup
	// failures and misses produce the same nil return below.
	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		e.warnf("account lookup failed for reset of %s: %v", email, err)
	}
	if account != nil {
		attempt.AccountID = account.ID
		e.record(ctx, attempt, ledger.OutcomeSuccess, "reset_authorized")
	} else {
		e.record(ctx, attempt, ledger.OutcomeFailure, "unknown_account")
	}

	e.metricInc(MetricResetAuthorized)
	return nil
}

// RecordPasswordResetFailure reports a failed reset confirmation (wrong or
// expired reset secret) so it counts toward the reset lockout window. The
// confirmation flow itself lives outside the engine; this is its write path
// into the ledger.
func (e *Engine) RecordPasswordResetFailure(ctx context.Context, email, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	attempt := e.attempt(ctx, email, ledger.KindPasswordReset)
	attempt.Outcome = ledger.OutcomeFailure
	if reason != "" {
		attempt.Context = map[string]string{"reason": reason}
	}
	if err := e.lockouts.Record(ctx, attempt); err != nil {
		e.warnf("ledger write failed for reset failure of %s: %v", email, err)
		return ErrStoreUnavailable
	}
	return nil
}

// RecordPasswordResetSuccess reports a completed password reset. Old
// failures stay in the audit trail; only the window math stops counting
// them.
func (e *Engine) RecordPasswordResetSuccess(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	attempt := e.attempt(ctx, email, ledger.KindPasswordReset)
	attempt.Outcome = ledger.OutcomeSuccess
	attempt.Context = map[string]string{"reason": "reset_completed"}
	if err := e.lockouts.Record(ctx, attempt); err != nil {
		e.warnf("ledger write failed for reset success of %s: %v", email, err)
		return ErrStoreUnavailable
	}
	return nil
}
