package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Kind is the discriminant carried in every credential. Verification branches
// exhaustively on it; a missing or unrecognized kind is malformed, and a
// recognized kind presented to the wrong verifier is rejected as WrongKind
// rather than coerced.
type Kind string

const (
	// KindAccess marks a short-lived credential authorizing API calls.
	KindAccess Kind = "access"
	// KindRefresh marks a long-lived credential used only to mint new access
	// credentials.
	KindRefresh Kind = "refresh"
	// KindPasswordReset marks a single-purpose password reset credential.
	KindPasswordReset Kind = "password_reset"
	// KindEmailVerification marks a single-purpose email verification
	// credential.
	KindEmailVerification Kind = "email_verification"
)

func (k Kind) valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindPasswordReset, KindEmailVerification:
		return true
	default:
		return false
	}
}

// Claims is the signed credential payload. Subject carries the account ID.
// Tokens are self-describing: expiry lives in the token itself so store TTLs
// always derive from the token, never from separately-maintained bookkeeping.
type Claims struct {
	Email string `json:"email"`
	Kind  Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// AccountID returns the subject the credential was issued to.
func (c *Claims) AccountID() string {
	return c.Subject
}
