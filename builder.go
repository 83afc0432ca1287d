package authcore

import (
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonsec/authcore/internal/alert"
	"github.com/halcyonsec/authcore/ledger"
	"github.com/halcyonsec/authcore/lockout"
	"github.com/halcyonsec/authcore/password"
	"github.com/halcyonsec/authcore/token"
)

// Builder assembles an Engine from its store handles and collaborators.
// Stores are injected explicitly by construction; the engine holds no
// process-wide singletons.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	ledger   ledger.Store
	accounts AccountStore
	hasher   Hasher
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time

	built bool
}

// New starts a builder with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the fast key-value store backing session records and
// revocation entries. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLedger sets the persistent attempt store. Required.
func (b *Builder) WithLedger(store ledger.Store) *Builder {
	b.ledger = store
	return b
}

// WithAccountStore sets the external user-record store. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithHasher sets the secret hashing capability. Defaults to the bundled
// argon2id hasher configured by Config.Password.
func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

// WithNotifier sets the security alerting hook. Optional; without it, attack
// patterns are detected but not delivered anywhere.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the engine logger. Defaults to log.Default.
func (b *Builder) WithLogger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock substitutes the engine clock, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine. A builder builds
// at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg, err := normalizeConfig(b.config)
	if err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.ledger == nil {
		return nil, errors.New("ledger store is required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store is required")
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		hasher, err = password.NewArgon2(cfg.Password)
		if err != nil {
			return nil, err
		}
	}

	warnf := func(format string, args ...any) {
		logger.Printf("authcore: "+format, args...)
	}

	tokens, err := token.NewManager(b.redis, token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: cfg.Token.SigningMethod,
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
		KeyPrefix:     cfg.Token.KeyPrefix,
		StoreTimeout:  cfg.StoreTimeout,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	alerts := alert.NewDispatcher(alert.Config{
		BufferSize: cfg.Alert.BufferSize,
		DropIfFull: cfg.Alert.DropIfFull,
	}, b.notifier, warnf)

	lockouts := lockout.NewEngine(b.ledger, cfg.Lockout, lockout.Options{
		Alerts: alerts,
		Warnf:  warnf,
		Now:    now,
	})

	metrics := &Metrics{enabled: !cfg.Metrics.Disabled}

	b.built = true
	return &Engine{
		config:   cfg,
		accounts: b.accounts,
		hasher:   hasher,
		tokens:   tokens,
		lockouts: lockouts,
		alerts:   alerts,
		metrics:  metrics,
		logger:   logger,
		now:      now,
	}, nil
}
