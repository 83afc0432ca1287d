// Package token implements the credential lifecycle: issuing paired
// access/refresh JWTs, verifying and refreshing them against the session
// store, and revoking them individually or per account.
package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with an HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Config controls token minting and session store access.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration

	// KeyPrefix is prepended to every session store key.
	KeyPrefix string

	// StoreTimeout bounds every store call. 0 disables the bound.
	StoreTimeout time.Duration

	// Now substitutes the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Pair is one issued access/refresh credential pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager issues, verifies, refreshes, and revokes credentials, and tracks
// every live credential per account so "log out everywhere" can reach all of
// them.
type Manager struct {
	config Config
	redis  redis.UniversalClient
	now    func() time.Time
}

// NewManager validates the config and builds a manager over the given store.
func NewManager(redisClient redis.UniversalClient, cfg Config) (*Manager, error) {
	if redisClient == nil {
		return nil, errors.New("token manager requires a redis client")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg, redis: redisClient, now: cfg.Now}, nil
}

func (m *Manager) accessKey(accountID string) string {
	return m.config.KeyPrefix + "access:" + accountID
}

func (m *Manager) refreshKey(accountID string) string {
	return m.config.KeyPrefix + "refresh:" + accountID
}

func (m *Manager) revokedKey(tokenStr string) string {
	return m.config.KeyPrefix + "revoked:" + tokenStr
}

func (m *Manager) sessionsKey(accountID string) string {
	return m.config.KeyPrefix + "sessions:" + accountID
}

func (m *Manager) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.StoreTimeout > 0 {
		return context.WithTimeout(ctx, m.config.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

// IssuePair mints a fresh access/refresh pair for the subject and records
// both as the active credentials in the session record. The live-credential
// set's TTL is refreshed to the refresh credential's TTL so the set never
// outlives the longest-lived credential it indexes.
func (m *Manager) IssuePair(ctx context.Context, accountID, email string) (Pair, error) {
	access, accessExp, err := m.mint(KindAccess, accountID, email, m.config.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.mint(KindRefresh, accountID, email, m.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	_, err = m.redis.Pipelined(sctx, func(pipe redis.Pipeliner) error {
		pipe.Set(sctx, m.accessKey(accountID), access, m.config.AccessTTL)
		pipe.Set(sctx, m.refreshKey(accountID), refresh, m.config.RefreshTTL)
		pipe.SAdd(sctx, m.sessionsKey(accountID), access, refresh)
		pipe.Expire(sctx, m.sessionsKey(accountID), m.config.RefreshTTL)
		return nil
	})
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature, expiry, kind, and revocation for an access
// credential. Both the cryptographic check and the revocation check are
// mandatory; a store error fails closed with ErrStoreUnavailable.
func (m *Manager) VerifyAccess(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := m.decode(tokenStr, KindAccess)
	if err != nil {
		return nil, err
	}
	if err := m.checkRevoked(ctx, tokenStr); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh credential like VerifyAccess and
// additionally requires it to be the one currently recorded as active for
// its subject. A rotated-then-replayed refresh token fails with
// ErrNotCurrent.
func (m *Manager) VerifyRefresh(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := m.decode(tokenStr, KindRefresh)
	if err != nil {
		return nil, err
	}
	if err := m.checkRevoked(ctx, tokenStr); err != nil {
		return nil, err
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	current, err := m.redis.Get(sctx, m.refreshKey(claims.Subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotCurrent
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if current != tokenStr {
		return nil, ErrNotCurrent
	}
	return claims, nil
}

// RefreshAccess verifies the refresh credential and mints a replacement
// access credential, overwriting the session record's active access entry.
// The previous access credential is not revoked here; callers wanting
// single-active-access semantics must revoke it explicitly.
func (m *Manager) RefreshAccess(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := m.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}

	access, accessExp, err := m.mint(KindAccess, claims.Subject, claims.Email, m.config.AccessTTL)
	if err != nil {
		return "", time.Time{}, err
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	_, err = m.redis.Pipelined(sctx, func(pipe redis.Pipeliner) error {
		pipe.Set(sctx, m.accessKey(claims.Subject), access, m.config.AccessTTL)
		pipe.SAdd(sctx, m.sessionsKey(claims.Subject), access)
		return nil
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return access, accessExp, nil
}

// Revoke writes a revocation entry whose TTL equals the credential's
// remaining lifetime, so the entry self-expires exactly when the token would
// have. Only decodability is required, not signature validity: a forged but
// decodable token may be revoked harmlessly. Revoking an already-expired
// credential is a no-op, and revoking twice is not an error.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) error {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing expiry", ErrMalformed)
	}

	ttl := claims.ExpiresAt.Time.Sub(m.now())
	if ttl <= 0 {
		return nil
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	if err := m.redis.Set(sctx, m.revokedKey(tokenStr), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll revokes the active access and refresh credentials and every
// credential in the subject's live set, then deletes the session record.
// Revocation is best-effort: a partially unavailable store does not stop the
// remaining credentials from being revoked, and the first store error is
// reported after the sweep completes.
func (m *Manager) RevokeAll(ctx context.Context, accountID string) error {
	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	seen := make(map[string]struct{})
	var firstErr error

	collect := func(tokenStr string, err error) {
		if err != nil {
			if !errors.Is(err, redis.Nil) && firstErr == nil {
				firstErr = err
			}
			return
		}
		if tokenStr != "" {
			seen[tokenStr] = struct{}{}
		}
	}

	access, err := m.redis.Get(sctx, m.accessKey(accountID)).Result()
	collect(access, err)
	refresh, err := m.redis.Get(sctx, m.refreshKey(accountID)).Result()
	collect(refresh, err)

	members, err := m.redis.SMembers(sctx, m.sessionsKey(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if firstErr == nil {
			firstErr = err
		}
	}
	for _, member := range members {
		seen[member] = struct{}{}
	}

	for tokenStr := range seen {
		if err := m.Revoke(ctx, tokenStr); err != nil && !errors.Is(err, ErrMalformed) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	err = m.redis.Del(sctx,
		m.accessKey(accountID),
		m.refreshKey(accountID),
		m.sessionsKey(accountID),
	).Err()
	if err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		if errors.Is(firstErr, ErrStoreUnavailable) {
			return firstErr
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, firstErr)
	}
	return nil
}

// LiveSessionCount reports how many issued credentials are still tracked for
// the subject. It never fails the caller: an unreachable store reads as 0.
func (m *Manager) LiveSessionCount(ctx context.Context, accountID string) int {
	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	count, err := m.redis.SCard(sctx, m.sessionsKey(accountID)).Result()
	if err != nil {
		return 0
	}
	return int(count)
}

func (m *Manager) mint(kind Kind, accountID, email string, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        uuid.New().String(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(m.signingMethod(), claims)
	signKey, err := m.signKey()
	if err != nil {
		return "", time.Time{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *Manager) decode(tokenStr string, expected Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signingMethod().Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}
	if !claims.Kind.valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, claims.Kind)
	}
	if claims.Kind != expected {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, claims.Kind, expected)
	}
	return claims, nil
}

func (m *Manager) checkRevoked(ctx context.Context, tokenStr string) error {
	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	exists, err := m.redis.Exists(sctx, m.revokedKey(tokenStr)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists > 0 {
		return ErrRevoked
	}
	return nil
}

func (m *Manager) signingMethod() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
