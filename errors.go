package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or with a missing collaborator.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials covers both an unknown identity and a wrong
	// secret. The two are deliberately merged into one externally-visible
	// kind so the error cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active. Use
	// errors.As with *LockoutError to read the expiry.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended is returned for suspended accounts.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountInactive is returned for inactive accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrTokenExpired is returned for credentials past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for revoked credentials, and for
	// credentials whose revocation state could not be checked: verification
	// fails closed.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed is returned for undecodable or tampered credentials.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenWrongKind is returned when a credential of one kind is
	// presented where another kind is required.
	ErrTokenWrongKind = errors.New("token wrong kind")
	// ErrRefreshNotCurrent is returned when a refresh credential has been
	// superseded by rotation; it signals replay.
	ErrRefreshNotCurrent = errors.New("refresh token not current")
	// ErrStoreUnavailable is returned when a backing store cannot be reached
	// and neither the fail-open nor the fail-closed mapping applies. It is
	// internal; never surface it to end users verbatim.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// LockoutError carries the lockout expiry alongside ErrAccountLocked.
// Revealing the remaining time is acceptable: the existence question is
// already hidden by the merged ErrInvalidCredentials.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *LockoutError) Unwrap() error {
	return ErrAccountLocked
}
