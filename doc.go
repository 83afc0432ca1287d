// Package authcore is an authentication and session security engine: it
// authenticates users, issues and revokes paired access/refresh credentials,
// tracks live sessions per account, and defends identities against
// brute-force credential guessing with ledger-derived lockouts.
//
// The engine composes four parts. The attempt ledger (package ledger) is the
// append-only record of every authentication-related attempt and the sole
// source of truth for lockout decisions. The lockout policy engine (package
// lockout) derives lockout state from the ledger's trailing windows and
// raises alerts on distributed-attack patterns. The token lifecycle manager
// (package token) mints, verifies, refreshes, and revokes JWT credential
// pairs against a Redis session store. The root Engine orchestrates attempts
// across all three plus the caller-provided account store and secret hasher.
//
// Failure policy is asymmetric: lockout checks fail open when the ledger is
// unreachable, while credential verification fails closed when the revocation
// store is unreachable.
//
// Construct an Engine with the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithLedger(ledger.NewPostgresStore(pool)).
//		WithAccountStore(accounts).
//		WithNotifier(notifier).
//		Build()
package authcore
