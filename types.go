package authcore

import (
	"context"
	"strings"
	"time"

	"github.com/halcyonsec/authcore/internal/alert"
)

// AccountStatus is the lifecycle state of an account. Only active accounts
// may complete authentication.
type AccountStatus uint8

const (
	// AccountActive may authenticate.
	AccountActive AccountStatus = iota
	// AccountInactive is rejected with ErrAccountInactive.
	AccountInactive
	// AccountSuspended is rejected with ErrAccountSuspended.
	AccountSuspended
)

// String returns the status name.
func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountInactive:
		return "inactive"
	case AccountSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Account is the minimal projection of a user record the engine needs. The
// secret hash never travels beyond the authenticator.
type Account struct {
	ID         string
	Email      string
	Status     AccountStatus
	SecretHash string
}

// AccountStore is the external user-record store, read-only from the
// engine's perspective. Both lookups return (nil, nil) when no account
// matches.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, normalizedEmail string) (*Account, error)
}

// Hasher is the external secret hashing capability. Implementations must be
// computationally expensive by design; password.NewArgon2 is the bundled
// default.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// Alert describes a suspected distributed attack, as delivered to the
// Notifier.
type Alert = alert.Alert

// Notifier receives security alerts. Fire-and-forget: delivery failures are
// logged and never reach the authentication caller.
type Notifier = alert.Notifier

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc = alert.NotifierFunc

// AuthResult is returned by a successful Authenticate call.
type AuthResult struct {
	AccountID        string
	Email            string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Every identity entering the engine passes through this, so ledger rows,
// lockout windows, and account lookups agree on the key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
