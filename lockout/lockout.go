// Package lockout decides whether an identity may attempt to authenticate,
// based solely on the attempt ledger's trailing window.
//
// Lockout state is always derived, never stored: once the window past the
// most recent failure elapses, the lockout self-clears with no explicit
// unlock. If the ledger is unreachable the engine fails open and reports the
// identity as not locked; token verification elsewhere fails closed, and that
// asymmetry is deliberate (availability of login is an acceptable trade,
// identity forgery is not).
package lockout

import (
	"context"
	"time"

	"github.com/halcyonsec/authcore/internal/alert"
	"github.com/halcyonsec/authcore/ledger"
)

// Policy is the lockout rule for one attempt kind. Window is both the
// trailing interval over which failures are counted and the lockout duration
// measured from the most recent failure.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// Config holds the per-kind policies and scan parameters.
type Config struct {
	Login         Policy
	PasswordReset Policy

	// AttackWindow is the trailing interval scanned after each failed login
	// for distributed-attack patterns.
	AttackWindow time.Duration

	// QueryTimeout bounds every ledger call. 0 disables the bound.
	QueryTimeout time.Duration
}

// DefaultConfig returns the standard policy table: 5 login failures lock for
// 15 minutes, 3 password-reset failures lock for 60 minutes.
func DefaultConfig() Config {
	return Config{
		Login:         Policy{MaxAttempts: 5, Window: 15 * time.Minute},
		PasswordReset: Policy{MaxAttempts: 3, Window: 60 * time.Minute},
		AttackWindow:  30 * time.Minute,
		QueryTimeout:  3 * time.Second,
	}
}

// Status is the derived lockout state for one identity and attempt kind.
type Status struct {
	FailureCount      int
	LastFailureAt     time.Time
	Locked            bool
	LockoutExpiresAt  time.Time
	RemainingAttempts int
}

// Options carries optional engine collaborators.
type Options struct {
	Alerts *alert.Dispatcher
	Warnf  func(format string, args ...any)
	Now    func() time.Time
}

// Engine computes lockout state and records attempts.
type Engine struct {
	store  ledger.Store
	config Config
	alerts *alert.Dispatcher
	warnf  func(format string, args ...any)
	now    func() time.Time
}

// NewEngine builds a lockout engine over the given ledger store. Zero config
// fields fall back to DefaultConfig values.
func NewEngine(store ledger.Store, cfg Config, opts Options) *Engine {
	defaults := DefaultConfig()
	if cfg.Login.MaxAttempts <= 0 || cfg.Login.Window <= 0 {
		cfg.Login = defaults.Login
	}
	if cfg.PasswordReset.MaxAttempts <= 0 || cfg.PasswordReset.Window <= 0 {
		cfg.PasswordReset = defaults.PasswordReset
	}
	if cfg.AttackWindow <= 0 {
		cfg.AttackWindow = defaults.AttackWindow
	}

	e := &Engine{
		store:  store,
		config: cfg,
		alerts: opts.Alerts,
		warnf:  opts.Warnf,
		now:    opts.Now,
	}
	if e.warnf == nil {
		e.warnf = func(string, ...any) {}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) policy(kind ledger.Kind) Policy {
	if kind == ledger.KindPasswordReset {
		return e.config.PasswordReset
	}
	return e.config.Login
}

func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, e.config.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// Check derives the lockout state for an identity and attempt kind. On any
// ledger error it fails open: the identity is reported unlocked with the full
// attempt budget, and the error is only logged.
func (e *Engine) Check(ctx context.Context, identity string, kind ledger.Kind) Status {
	policy := e.policy(kind)
	open := Status{RemainingAttempts: policy.MaxAttempts}

	now := e.now()
	qctx, cancel := e.opCtx(ctx)
	defer cancel()

	failures, err := e.store.Query(qctx, ledger.Filter{
		Email:   identity,
		Kind:    kind,
		Outcome: ledger.OutcomeFailure,
		Since:   now.Add(-policy.Window),
	})
	if err != nil {
		e.warnf("lockout check for %s failed open: %v", identity, err)
		return open
	}
	if len(failures) == 0 {
		return open
	}

	last := failures[0].OccurredAt
	status := Status{
		FailureCount:      len(failures),
		LastFailureAt:     last,
		RemainingAttempts: max(0, policy.MaxAttempts-len(failures)),
	}
	if len(failures) >= policy.MaxAttempts && now.Before(last.Add(policy.Window)) {
		status.Locked = true
		status.LockoutExpiresAt = last.Add(policy.Window)
	}
	return status
}

// Record appends an attempt to the ledger. Failed login attempts additionally
// trigger the distributed-attack scan. The caller decides whether a ledger
// write failure aborts anything; Record itself never suppresses it.
func (e *Engine) Record(ctx context.Context, attempt ledger.Attempt) error {
	if attempt.OccurredAt.IsZero() {
		attempt.OccurredAt = e.now()
	}

	ictx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.store.Insert(ictx, attempt); err != nil {
		return err
	}

	if attempt.Kind == ledger.KindLogin && attempt.Outcome == ledger.OutcomeFailure {
		e.scanForAttack(ctx, attempt.Email)
	}
	return nil
}

// scanForAttack re-reads the trailing attack window after a failed login and
// raises an alert when the failure pattern spans multiple source addresses or
// exceeds the volume ceiling. One alert per qualifying attempt; dedupe is the
// notifier's problem.
func (e *Engine) scanForAttack(ctx context.Context, identity string) {
	if e.alerts == nil {
		return
	}

	now := e.now()
	qctx, cancel := e.opCtx(ctx)
	defer cancel()

	failures, err := e.store.Query(qctx, ledger.Filter{
		Email:   identity,
		Kind:    ledger.KindLogin,
		Outcome: ledger.OutcomeFailure,
		Since:   now.Add(-e.config.AttackWindow),
	})
	if err != nil {
		e.warnf("attack scan for %s skipped: %v", identity, err)
		return
	}

	addresses := make(map[string]struct{}, len(failures))
	for _, f := range failures {
		addresses[f.SourceAddr] = struct{}{}
	}

	count := len(failures)
	unique := len(addresses)
	if (unique >= 2 && count >= 3) || count >= 4 {
		e.alerts.Dispatch(ctx, alert.Alert{
			Identity:        identity,
			Reason:          alert.ReasonDistributedFailures,
			AttemptCount:    count,
			UniqueAddresses: unique,
			Window:          e.config.AttackWindow,
			ObservedAt:      now,
		})
	}
}
