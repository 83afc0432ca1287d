package token

import "errors"

var (
	// ErrRevoked is returned for a credential with a live revocation entry.
	ErrRevoked = errors.New("token revoked")
	// ErrExpired is returned for a credential past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned for a credential that cannot be decoded or
	// whose signature or kind tag is invalid.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongKind is returned when a valid credential of one kind is
	// presented where another kind is required.
	ErrWrongKind = errors.New("token wrong kind")
	// ErrNotCurrent is returned when a refresh credential no longer matches
	// the one recorded as active for its subject; it signals replay of a
	// rotated token.
	ErrNotCurrent = errors.New("refresh token not current")
	// ErrStoreUnavailable is returned when the session store cannot be
	// reached. Verification callers must treat it as a rejection.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
