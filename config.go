package tokenguard

import (
	"errors"
	"maps"
	"time"
)

// Config is the immutable engine configuration. Start from DefaultConfig and
// override fields; Builder.Build validates it.
type Config struct {
	JWT        JWTConfig
	Refresh    RefreshConfig
	Password   PasswordConfig
	Permission PermissionConfig
	Security   SecurityConfig
	Events     EventsConfig
	Sweeper    SweeperConfig
	Metrics    MetricsConfig
}

// JWTConfig configures access token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// RefreshConfig configures refresh token issuance and rotation.
type RefreshConfig struct {
	TTL        time.Duration
	TokenBytes int
	// MaxAttempts bounds how often a refresh re-reads the token after losing
	// a compare-and-set.
	MaxAttempts int
}

// PasswordConfig holds argon2id parameters. AcceptBcrypt lets imported
// bcrypt hashes verify.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	AcceptBcrypt     bool
}

// Permission cache backends.
const (
	PermissionCacheLocal = "local"
	PermissionCacheRedis = "redis"
	PermissionCacheNone  = "none"
)

// PermissionConfig configures the permission cache.
type PermissionConfig struct {
	CacheTTL       time.Duration
	Cache          string
	LocalCacheSize int
	RedisPrefix    string
}

// SecurityConfig configures the Redis-backed throttles.
type SecurityConfig struct {
	EnableLoginThrottle     bool
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
	RedisPrefix             string
}

// EventsConfig selects synchronous or bounded asynchronous dispatch.
type EventsConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

// SweeperConfig drives the background removal of expired tokens.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "tokenguard",
		},
		Refresh: RefreshConfig{
			TTL:         7 * 24 * time.Hour,
			TokenBytes:  32,
			MaxAttempts: 3,
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
		},
		Permission: PermissionConfig{
			CacheTTL:       30 * time.Minute,
			Cache:          PermissionCacheLocal,
			LocalCacheSize: 10_000,
			RedisPrefix:    "tg:perm",
		},
		Security: SecurityConfig{
			EnableLoginThrottle:     true,
			EnableIPThrottle:        true,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
			RedisPrefix:             "tg:rl",
		},
		Events: EventsConfig{
			Async:      false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Sweeper: SweeperConfig{
			Interval:  10 * time.Minute,
			BatchSize: 500,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ThrottlesEnabled reports whether any Redis-backed throttle is on.
func (c *Config) ThrottlesEnabled() bool {
	return c.Security.EnableLoginThrottle || c.Security.EnableRefreshThrottle
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
		return errors.New("ed25519 requires PublicKey or VerifyKeys")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.TokenBytes < 16 {
		return errors.New("Refresh TokenBytes must be >= 16")
	}
	if c.Refresh.MaxAttempts < 1 || c.Refresh.MaxAttempts > 10 {
		return errors.New("Refresh MaxAttempts must be within [1, 10]")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Permission
	switch c.Permission.Cache {
	case PermissionCacheLocal, PermissionCacheRedis, PermissionCacheNone:
	default:
		return errors.New("Permission Cache must be 'local', 'redis' or 'none'")
	}
	if c.Permission.CacheTTL <= 0 {
		return errors.New("Permission CacheTTL must be > 0")
	}
	if c.Permission.Cache == PermissionCacheLocal && c.Permission.LocalCacheSize <= 0 {
		return errors.New("Permission LocalCacheSize must be > 0")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0")
		}
	}

	// Events
	if c.Events.Async && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Async is true")
	}

	// Sweeper
	if c.Sweeper.Interval < 0 {
		return errors.New("Sweeper Interval must be >= 0")
	}
	if c.Sweeper.BatchSize <= 0 {
		return errors.New("Sweeper BatchSize must be > 0")
	}

	return nil
}

func (c JWTConfig) verifyKeys() map[string][]byte {
	if len(c.VerifyKeys) == 0 {
		return nil
	}
	return maps.Clone(c.VerifyKeys)
}
