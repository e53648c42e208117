package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/tokenguard"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the server binary.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Logging    LoggingConfig    `yaml:"logging"`
	JWT        JWTConfig        `yaml:"jwt"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Permission PermissionConfig `yaml:"permission"`
	Security   SecurityConfig   `yaml:"security"`
	Events     EventsConfig     `yaml:"events"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Audit      AuditConfig      `yaml:"audit"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
}

// HTTPConfig contains listener and router settings.
type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	// RoleAdminPermission, when set, is required on PUT /users/{id}/roles.
	RoleAdminPermission string `yaml:"role_admin_permission"`
}

// DatabaseConfig contains Postgres settings. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectDelay    time.Duration `yaml:"connect_delay"`
	ApplySchema     bool          `yaml:"apply_schema"`
}

// RedisConfig contains Redis connection settings. An empty Addr disables
// every Redis-backed component.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// TokenStore keeps refresh tokens in Redis instead of Postgres.
	TokenStore bool `yaml:"token_store"`
}

// KafkaConfig configures cross-node permission invalidation.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// LoggingConfig contains slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// JWTConfig holds access token settings. Key material is expected from
// TOKENGUARD_JWT_SECRET or TOKENGUARD_JWT_ED25519_SEED.
type JWTConfig struct {
	SigningMethod string        `yaml:"signing_method"`
	Secret        string        `yaml:"secret"`
	Ed25519Seed   string        `yaml:"ed25519_seed"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	Leeway        time.Duration `yaml:"leeway"`
}

type RefreshConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type PermissionConfig struct {
	Cache          string        `yaml:"cache"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	LocalCacheSize int           `yaml:"local_cache_size"`
}

type SecurityConfig struct {
	EnableLoginThrottle     bool          `yaml:"enable_login_throttle"`
	EnableIPThrottle        bool          `yaml:"enable_ip_throttle"`
	EnableRefreshThrottle   bool          `yaml:"enable_refresh_throttle"`
	MaxLoginAttempts        int           `yaml:"max_login_attempts"`
	LoginCooldownDuration   time.Duration `yaml:"login_cooldown"`
	MaxRefreshAttempts      int           `yaml:"max_refresh_attempts"`
	RefreshCooldownDuration time.Duration `yaml:"refresh_cooldown"`
}

type EventsConfig struct {
	Async      bool `yaml:"async"`
	BufferSize int  `yaml:"buffer_size"`
}

type SweeperConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Latency   bool   `yaml:"latency"`
	OTel      bool   `yaml:"otel"`
	Namespace string `yaml:"namespace"`
}

// AuditConfig enables the JSON-lines security audit trail. Output is
// "stdout", "stderr" or a file path opened for append.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Output     string `yaml:"output"`
	BufferSize int    `yaml:"buffer_size"`
	DropIfFull bool   `yaml:"drop_if_full"`
}

// BootstrapConfig seeds roles and an initial administrator at startup.
// Existing rows are left in place; roles are overwritten.
type BootstrapConfig struct {
	Roles         []BootstrapRole `yaml:"roles"`
	AdminEmail    string          `yaml:"admin_email"`
	AdminPassword string          `yaml:"admin_password"`
	AdminRoleIDs  []int64         `yaml:"admin_role_ids"`
}

type BootstrapRole struct {
	ID          int64    `yaml:"id"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// Load reads path, applies .env and environment overrides and validates the
// result. An empty path starts from defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads file into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(file)
}

func defaultConfig() *Config {
	engine := tokenguard.DefaultConfig()
	return &Config{
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			ConnectAttempts: 10,
			ConnectDelay:    2 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:   "tokenguard.permissions",
			GroupID: "tokenguard",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		JWT: JWTConfig{
			SigningMethod: engine.JWT.SigningMethod,
			Issuer:        engine.JWT.Issuer,
			AccessTTL:     engine.JWT.AccessTTL,
		},
		Refresh: RefreshConfig{
			TTL:         engine.Refresh.TTL,
			MaxAttempts: engine.Refresh.MaxAttempts,
		},
		Permission: PermissionConfig{
			Cache:          engine.Permission.Cache,
			CacheTTL:       engine.Permission.CacheTTL,
			LocalCacheSize: engine.Permission.LocalCacheSize,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:     engine.Security.EnableLoginThrottle,
			EnableIPThrottle:        engine.Security.EnableIPThrottle,
			EnableRefreshThrottle:   engine.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        engine.Security.MaxLoginAttempts,
			LoginCooldownDuration:   engine.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      engine.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: engine.Security.RefreshCooldownDuration,
		},
		Events: EventsConfig{
			BufferSize: engine.Events.BufferSize,
		},
		Sweeper: SweeperConfig{
			Interval:  engine.Sweeper.Interval,
			BatchSize: engine.Sweeper.BatchSize,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tokenguard",
		},
		Audit: AuditConfig{
			Output:     "stdout",
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOKENGUARD_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}
	if v := os.Getenv("TOKENGUARD_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TOKENGUARD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TOKENGUARD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TOKENGUARD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("TOKENGUARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TOKENGUARD_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("TOKENGUARD_JWT_ED25519_SEED"); v != "" {
		cfg.JWT.Ed25519Seed = v
	}
	if v := os.Getenv("TOKENGUARD_BOOTSTRAP_ADMIN_EMAIL"); v != "" {
		cfg.Bootstrap.AdminEmail = v
	}
	if v := os.Getenv("TOKENGUARD_BOOTSTRAP_ADMIN_PASSWORD"); v != "" {
		cfg.Bootstrap.AdminPassword = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks settings that belong to the server itself. Engine settings
// are validated again by the engine builder.
func (c *Config) Validate() error {
	var errs []string

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "http.port must be between 1 and 65535")
	}

	const minSecretLength = 32
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256":
		if len(c.JWT.Secret) < minSecretLength {
			errs = append(errs, "jwt.secret must be at least 32 characters (set TOKENGUARD_JWT_SECRET)")
		}
	case "ed25519":
		if c.JWT.Ed25519Seed == "" {
			errs = append(errs, "jwt.ed25519_seed is required (set TOKENGUARD_JWT_ED25519_SEED)")
		}
	default:
		errs = append(errs, "jwt.signing_method must be ed25519 or hs256")
	}

	if c.Redis.Addr == "" {
		if c.Security.EnableLoginThrottle || c.Security.EnableRefreshThrottle {
			errs = append(errs, "security throttles require redis.addr")
		}
		if c.Permission.Cache == tokenguard.PermissionCacheRedis {
			errs = append(errs, "permission.cache redis requires redis.addr")
		}
		if c.Redis.TokenStore {
			errs = append(errs, "redis.token_store requires redis.addr")
		}
	}

	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, "bootstrap.admin_email and bootstrap.admin_password must be set together")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, "kafka requires brokers and topic when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// EngineConfig maps the server configuration onto the engine configuration.
func (c *Config) EngineConfig() (tokenguard.Config, error) {
	out := tokenguard.DefaultConfig()

	out.JWT.SigningMethod = strings.ToLower(c.JWT.SigningMethod)
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.Leeway = c.JWT.Leeway
	switch out.JWT.SigningMethod {
	case "hs256":
		out.JWT.PrivateKey = []byte(c.JWT.Secret)
	case "ed25519":
		seed, err := base64.StdEncoding.DecodeString(c.JWT.Ed25519Seed)
		if err != nil {
			return tokenguard.Config{}, fmt.Errorf("decoding jwt.ed25519_seed: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return tokenguard.Config{}, fmt.Errorf("jwt.ed25519_seed must decode to %d bytes", ed25519.SeedSize)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		out.JWT.PrivateKey = priv
		out.JWT.PublicKey = priv.Public().(ed25519.PublicKey)
	}

	out.Refresh.TTL = c.Refresh.TTL
	out.Refresh.MaxAttempts = c.Refresh.MaxAttempts

	out.Permission.Cache = c.Permission.Cache
	out.Permission.CacheTTL = c.Permission.CacheTTL
	out.Permission.LocalCacheSize = c.Permission.LocalCacheSize

	out.Security.EnableLoginThrottle = c.Security.EnableLoginThrottle
	out.Security.EnableIPThrottle = c.Security.EnableIPThrottle
	out.Security.EnableRefreshThrottle = c.Security.EnableRefreshThrottle
	out.Security.MaxLoginAttempts = c.Security.MaxLoginAttempts
	out.Security.LoginCooldownDuration = c.Security.LoginCooldownDuration
	out.Security.MaxRefreshAttempts = c.Security.MaxRefreshAttempts
	out.Security.RefreshCooldownDuration = c.Security.RefreshCooldownDuration

	out.Events.Async = c.Events.Async
	out.Events.BufferSize = c.Events.BufferSize

	out.Sweeper.Interval = c.Sweeper.Interval
	out.Sweeper.BatchSize = c.Sweeper.BatchSize

	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Latency

	if err := out.Validate(); err != nil {
		return tokenguard.Config{}, err
	}
	return out, nil
}
