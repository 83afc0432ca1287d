package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/halcyonsec/authcore/token"
)

// VerifyAccess validates an access credential: signature, expiry, kind tag,
// and revocation state. An unreachable revocation store rejects the
// credential — verification fails closed.
func (e *Engine) VerifyAccess(ctx context.Context, credential string) (*token.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.VerifyAccess(ctx, credential)
	if err != nil {
		return nil, e.mapVerifyError(err)
	}
	return claims, nil
}

// VerifyRefresh validates a refresh credential like VerifyAccess and
// additionally requires it to be the currently active one for its subject.
func (e *Engine) VerifyRefresh(ctx context.Context, credential string) (*token.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.VerifyRefresh(ctx, credential)
	if err != nil {
		return nil, e.mapVerifyError(err)
	}
	return claims, nil
}

// Refresh mints a new access credential from a valid refresh credential. The
// previous access credential stays independently valid until revoked or
// expired.
func (e *Engine) Refresh(ctx context.Context, refreshCredential string) (string, time.Time, error) {
	if e == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	access, expiresAt, err := e.tokens.RefreshAccess(ctx, refreshCredential)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", time.Time{}, e.mapVerifyError(err)
	}
	e.metricInc(MetricRefreshSuccess)
	return access, expiresAt, nil
}

// Revoke writes a revocation entry for one credential, lasting exactly as
// long as the credential itself would have. Revoking an expired credential
// is a no-op and revoking twice is not an error.
func (e *Engine) Revoke(ctx context.Context, credential string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.Revoke(ctx, credential); err != nil {
		switch {
		case errors.Is(err, token.ErrMalformed):
			return ErrTokenMalformed
		case errors.Is(err, token.ErrStoreUnavailable):
			e.warnf("revocation write failed: %v", err)
			return ErrStoreUnavailable
		default:
			return err
		}
	}
	e.metricInc(MetricTokenRevoked)
	return nil
}

// RevokeAll revokes every live credential issued to the account and deletes
// its session record, forcing full re-authentication. Best-effort under
// partial store unavailability.
func (e *Engine) RevokeAll(ctx context.Context, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.RevokeAll(ctx, accountID); err != nil {
		e.warnf("revoke-all degraded for account %s: %v", accountID, err)
		return ErrStoreUnavailable
	}
	e.metricInc(MetricRevokeAll)
	return nil
}

// LiveSessionCount reports how many issued credentials are still tracked for
// the account. Never fails the caller; an unreachable store reads as 0.
func (e *Engine) LiveSessionCount(ctx context.Context, accountID string) int {
	if e == nil {
		return 0
	}
	return e.tokens.LiveSessionCount(ctx, accountID)
}

// mapVerifyError converts token package sentinels into the engine taxonomy.
// Store unavailability maps to ErrTokenRevoked: a credential whose
// revocation state cannot be checked is rejected, not trusted.
func (e *Engine) mapVerifyError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrWrongKind):
		return ErrTokenWrongKind
	case errors.Is(err, token.ErrMalformed):
		return ErrTokenMalformed
	case errors.Is(err, token.ErrNotCurrent):
		return ErrRefreshNotCurrent
	case errors.Is(err, token.ErrRevoked):
		return ErrTokenRevoked
	case errors.Is(err, token.ErrStoreUnavailable):
		e.warnf("token verification failed closed: %v", err)
		return ErrTokenRevoked
	default:
		return err
	}
}
