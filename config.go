package authcore

import (
	"errors"
	"time"

	"github.com/halcyonsec/authcore/lockout"
	"github.com/halcyonsec/authcore/password"
	"github.com/halcyonsec/authcore/token"
)

// Config assembles the engine's tunables. Zero values fall back to
// DefaultConfig during Build.
type Config struct {
	Token    TokenConfig
	Lockout  lockout.Config
	Alert    AlertConfig
	Password password.Config
	Metrics  MetricsConfig

	// StoreTimeout bounds every key-value store and ledger call made by the
	// engine's components.
	StoreTimeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls credential minting and the session key-value store.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod token.SigningMethod // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	KeyPrefix     string
}

/*
====================================
ALERT CONFIG
====================================
*/

// AlertConfig controls the security alert dispatcher.
type AlertConfig struct {
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Disabled bool
}

// DefaultConfig returns the standard configuration: 15 minute access
// credentials, 7 day refresh credentials, the default lockout policy table,
// and moderate argon2id cost.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: token.MethodHS256,
		},
		Lockout:      lockout.DefaultConfig(),
		Alert:        AlertConfig{BufferSize: 64, DropIfFull: true},
		Password:     password.DefaultConfig(),
		StoreTimeout: 3 * time.Second,
	}
}

func normalizeConfig(cfg Config) (Config, error) {
	defaults := DefaultConfig()

	if cfg.Token.AccessTTL <= 0 {
		cfg.Token.AccessTTL = defaults.Token.AccessTTL
	}
	if cfg.Token.RefreshTTL <= 0 {
		cfg.Token.RefreshTTL = defaults.Token.RefreshTTL
	}
	if cfg.Token.RefreshTTL < cfg.Token.AccessTTL {
		return cfg, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Token.SigningMethod == "" {
		cfg.Token.SigningMethod = defaults.Token.SigningMethod
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if cfg.Lockout.QueryTimeout <= 0 {
		cfg.Lockout.QueryTimeout = cfg.StoreTimeout
	}
	if cfg.Alert.BufferSize <= 0 {
		cfg.Alert = defaults.Alert
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = defaults.Password
	}

	return cfg, nil
}
