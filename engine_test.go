package authcore

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/halcyonsec/authcore/ledger"
)

type engineClock struct {
	now time.Time
}

func (c *engineClock) Now() time.Time { return c.now }

func (c *engineClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeAccounts struct {
	byEmail map[string]*Account
	err     error
}

func (s *fakeAccounts) FindByID(_ context.Context, id string) (*Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, account := range s.byEmail {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, nil
}

func (s *fakeAccounts) FindByEmail(_ context.Context, email string) (*Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byEmail[email], nil
}

// fakeHasher trades argon2 cost for test speed; the real hasher has its own
// tests in the password package.
type fakeHasher struct {
	err error
}

func (h fakeHasher) Hash(plaintext string) (string, error) {
	return "h:" + plaintext, nil
}

func (h fakeHasher) Verify(plaintext, hash string) (bool, error) {
	if h.err != nil {
		return false, h.err
	}
	return hash == "h:"+plaintext, nil
}

type failingLedger struct {
	err error
}

func (s failingLedger) Insert(context.Context, ledger.Attempt) error { return s.err }

func (s failingLedger) Query(context.Context, ledger.Filter) ([]ledger.Attempt, error) {
	return nil, s.err
}

func (s failingLedger) Prune(context.Context, time.Time) (int64, error) { return 0, s.err }

type testHarness struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	store    *ledger.MemoryStore
	accounts *fakeAccounts
	clock    *engineClock
	alerts   chan Alert
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &testHarness{
		mr:       mr,
		store:    ledger.NewMemoryStore(),
		accounts: &fakeAccounts{byEmail: make(map[string]*Account)},
		clock:    &engineClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		alerts:   make(chan Alert, 16),
	}

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	h.engine, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLedger(h.store).
		WithAccountStore(h.accounts).
		WithHasher(fakeHasher{}).
		WithNotifier(NotifierFunc(func(_ context.Context, a Alert) error {
			h.alerts <- a
			return nil
		})).
		WithLogger(log.New(io.Discard, "", 0)).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(h.engine.Close)
	return h
}

func (h *testHarness) addAccount(id, email, secret string, status AccountStatus) {
	h.accounts.byEmail[email] = &Account{
		ID:         id,
		Email:      email,
		Status:     status,
		SecretHash: "h:" + secret,
	}
}

func (h *testHarness) attemptsFor(t *testing.T, email string) []ledger.Attempt {
	t.Helper()
	attempts, err := h.store.Query(context.Background(), ledger.Filter{Email: email})
	if err != nil {
		t.Fatalf("ledger query failed: %v", err)
	}
	return attempts
}

func (h *testHarness) lastReason(t *testing.T, email string) string {
	t.Helper()
	attempts := h.attemptsFor(t, email)
	if len(attempts) == 0 {
		t.Fatal("expected at least one ledger entry")
	}
	return attempts[0].Context["reason"]
}

func TestAuthenticateSuccess(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)
	ctx := WithSourceAddr(context.Background(), "198.51.100.7")

	result, err := h.engine.Authenticate(ctx, "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if result.AccountID != "u1" || result.Email != "alice@example.com" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a credential pair")
	}

	claims, err := h.engine.VerifyAccess(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.AccountID() != "u1" {
		t.Fatalf("expected subject u1, got %q", claims.AccountID())
	}

	attempts := h.attemptsFor(t, "alice@example.com")
	if len(attempts) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(attempts))
	}
	entry := attempts[0]
	if entry.Outcome != ledger.OutcomeSuccess || entry.Kind != ledger.KindLogin {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}
	if entry.AccountID != "u1" || entry.SourceAddr != "198.51.100.7" {
		t.Fatalf("expected stamped account and source, got %+v", entry)
	}

	if got := h.engine.LiveSessionCount(ctx, "u1"); got != 2 {
		t.Fatalf("expected 2 live credentials, got %d", got)
	}
}

func TestAuthenticateNormalizesIdentity(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)

	if _, err := h.engine.Authenticate(context.Background(), "  Alice@Example.COM ", "s3cret"); err != nil {
		t.Fatalf("Authenticate failed for unnormalized identity: %v", err)
	}
	if attempts := h.attemptsFor(t, "alice@example.com"); len(attempts) != 1 {
		t.Fatalf("expected the ledger entry under the normalized identity, got %d", len(attempts))
	}
}

func TestAuthenticateMergesUnknownAndWrongSecret(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)
	ctx := context.Background()

	_, unknownErr := h.engine.Authenticate(ctx, "nobody@example.com", "whatever")
	_, wrongErr := h.engine.Authenticate(ctx, "alice@example.com", "wrong")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknownErr, wrongErr)
	}
	// The externally visible error must not distinguish the two causes.
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatal("unknown-account and wrong-secret errors must be indistinguishable")
	}

	// The ledger, being internal, does distinguish them.
	if got := h.lastReason(t, "nobody@example.com"); got != "unknown_account" {
		t.Fatalf("expected reason unknown_account, got %q", got)
	}
	if got := h.lastReason(t, "alice@example.com"); got != "bad_secret" {
		t.Fatalf("expected reason bad_secret, got %q", got)
	}
}

func TestAuthenticateRejectsByAccountStatus(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u2", "bob@example.com", "s3cret", AccountSuspended)
	h.addAccount("u3", "carol@example.com", "s3cret", AccountInactive)
	ctx := context.Background()

	if _, err := h.engine.Authenticate(ctx, "bob@example.com", "s3cret"); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
	if got := h.lastReason(t, "bob@example.com"); got != "account_suspended" {
		t.Fatalf("expected reason account_suspended, got %q", got)
	}

	if _, err := h.engine.Authenticate(ctx, "carol@example.com", "s3cret"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	if got := h.lastReason(t, "carol@example.com"); got != "account_inactive" {
		t.Fatalf("expected reason account_inactive, got %q", got)
	}
}

func TestAuthenticateLockoutAndSelfClear(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := h.engine.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
		h.clock.Advance(time.Second)
	}

	// The correct secret is irrelevant while the lockout is active.
	_, err := h.engine.Authenticate(ctx, "alice@example.com", "s3cret")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	var lockErr *LockoutError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockoutError, got %T", err)
	}
	if !lockErr.Until.After(h.clock.Now()) {
		t.Fatalf("expected a future lockout expiry, got %v", lockErr.Until)
	}
	if got := h.lastReason(t, "alice@example.com"); got != "account_locked" {
		t.Fatalf("expected reason account_locked, got %q", got)
	}

	// Past the window the lockout derives away with no unlock step.
	h.clock.Advance(16 * time.Minute)
	if _, err := h.engine.Authenticate(ctx, "alice@example.com", "s3cret"); err != nil {
		t.Fatalf("expected the lockout to self-clear, got %v", err)
	}
}

func TestAuthenticateLockedAttemptsExtendTheWindow(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Authenticate(ctx, "alice@example.com", "wrong")
		h.clock.Advance(time.Second)
	}

	_, err := h.engine.Authenticate(ctx, "alice@example.com", "s3cret")
	var first *LockoutError
	if !errors.As(err, &first) {
		t.Fatalf("expected *LockoutError, got %v", err)
	}

	// Rejected-while-locked attempts are ledger failures too, so hammering a
	// locked account keeps pushing the derived expiry forward.
	h.clock.Advance(time.Minute)
	_, err = h.engine.Authenticate(ctx, "alice@example.com", "s3cret")
	var second *LockoutError
	if !errors.As(err, &second) {
		t.Fatalf("expected *LockoutError, got %v", err)
	}
	if !second.Until.After(first.Until) {
		t.Fatalf("expected the expiry to move past %v, got %v", first.Until, second.Until)
	}
}

func TestAuthenticateRecordsSuccessBeforeIssuing(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)
	ctx := context.Background()

	h.mr.Close()

	if _, err := h.engine.Authenticate(ctx, "alice@example.com", "s3cret"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	// The success entry was written even though issuance failed afterwards.
	attempts := h.attemptsFor(t, "alice@example.com")
	if len(attempts) != 1 || attempts[0].Outcome != ledger.OutcomeSuccess {
		t.Fatalf("expected a success ledger entry, got %+v", attempts)
	}
}

func TestAuthenticateFailsOpenWhenLedgerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	accounts := &fakeAccounts{byEmail: map[string]*Account{
		"alice@example.com": {ID: "u1", Email: "alice@example.com", Status: AccountActive, SecretHash: "h:s3cret"},
	}}

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLedger(failingLedger{err: errors.New("connection refused")}).
		WithAccountStore(accounts).
		WithHasher(fakeHasher{}).
		WithLogger(log.New(io.Discard, "", 0)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	// Lockout checks fail open and ledger write failures only degrade audit,
	// so authentication still completes.
	result, err := engine.Authenticate(context.Background(), "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("expected authentication to fail open, got %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected issued credentials")
	}
}

func TestAuthenticateRaisesDistributedAttackAlert(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)

	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		ctx := WithSourceAddr(context.Background(), addr)
		_, _ = h.engine.Authenticate(ctx, "alice@example.com", "wrong")
		h.clock.Advance(time.Second)
	}

	h.engine.Close()

	select {
	case a := <-h.alerts:
		if a.Identity != "alice@example.com" {
			t.Fatalf("unexpected alert identity %q", a.Identity)
		}
		if a.AttemptCount != 3 || a.UniqueAddresses != 3 {
			t.Fatalf("unexpected alert shape: %+v", a)
		}
	default:
		t.Fatal("expected a distributed-attack alert")
	}
	if h.engine.AlertsDropped() != 0 {
		t.Fatal("expected no dropped alerts")
	}
}

func TestSecurityMetrics(t *testing.T) {
	h := newTestHarness(t)
	h.addAccount("u1", "alice@example.com", "s3cret", AccountActive)
	ctx := context.Background()

	_, _ = h.engine.Authenticate(ctx, "alice@example.com", "wrong")
	h.clock.Advance(time.Second)
	_, _ = h.engine.Authenticate(ctx, "alice@example.com", "wrong")
	h.clock.Advance(time.Second)
	if err := h.engine.RecordPasswordResetFailure(ctx, "alice@example.com", "bad_reset_secret"); err != nil {
		t.Fatalf("RecordPasswordResetFailure failed: %v", err)
	}

	metrics, err := h.engine.SecurityMetrics(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("SecurityMetrics failed: %v", err)
	}
	if metrics.Login.FailureCount != 2 || metrics.Login.Locked {
		t.Fatalf("unexpected login summary: %+v", metrics.Login)
	}
	if metrics.Login.RemainingAttempts != 3 {
		t.Fatalf("expected 3 remaining login attempts, got %d", metrics.Login.RemainingAttempts)
	}
	if metrics.PasswordReset.FailureCount != 1 {
		t.Fatalf("unexpected reset summary: %+v", metrics.PasswordReset)
	}
	if len(metrics.RecentAttempts) != 3 {
		t.Fatalf("expected 3 recent attempts, got %d", len(metrics.RecentAttempts))
	}
	// Newest first.
	if metrics.RecentAttempts[0].Kind != ledger.KindPasswordReset {
		t.Fatalf("expected the reset attempt first, got %+v", metrics.RecentAttempts[0])
	}
}

func TestNilEngineIsInert(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Authenticate(ctx, "a@b.c", "s"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.AuthorizePasswordReset(ctx, "a@b.c"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.VerifyAccess(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if got := e.LiveSessionCount(ctx, "u1"); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	e.Close()
}
