// Package ledger provides the append-only record of authentication attempts.
//
// The ledger is the sole source of truth for lockout decisions: no separate
// failure counter is maintained, so counter/ledger divergence cannot occur.
// Records are never deleted by normal operation; only Prune removes rows, and
// only as an explicit retention sweep.
package ledger

import (
	"context"
	"time"
)

// Kind classifies what an attempt was trying to do.
type Kind string

const (
	// KindLogin marks a credential login attempt.
	KindLogin Kind = "login"
	// KindPasswordReset marks a password reset request or confirmation attempt.
	KindPasswordReset Kind = "password_reset"
)

// Outcome records whether an attempt succeeded.
type Outcome string

const (
	// OutcomeSuccess marks an attempt that completed.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure marks a rejected attempt.
	OutcomeFailure Outcome = "failure"
)

// Attempt is one authentication-related attempt. Email is stored normalized
// (lower-cased, trimmed). AccountID is empty when the identity did not resolve
// to an account. Context carries free-form attempt metadata such as the
// rejection reason.
type Attempt struct {
	ID         string
	Email      string
	AccountID  string
	SourceAddr string
	ClientSig  string
	Kind       Kind
	Outcome    Outcome
	Context    map[string]string
	OccurredAt time.Time
}

// Filter narrows a ledger query. Zero values mean "any": an empty Kind or
// Outcome matches all kinds or outcomes, a zero Since/Until leaves that end
// of the time range open, and Limit <= 0 returns every match.
type Filter struct {
	Email   string
	Kind    Kind
	Outcome Outcome
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Store is the persistent attempt store. Query returns attempts in
// reverse-chronological order. Prune deletes records older than the cutoff
// and reports how many were removed.
type Store interface {
	Insert(ctx context.Context, attempt Attempt) error
	Query(ctx context.Context, filter Filter) ([]Attempt, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
