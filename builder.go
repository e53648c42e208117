package tokenguard

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/internal/rate"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/permission"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Builder instances are configured during
// initialization and used for exactly one Build call.
type Builder struct {
	config Config
	clock  Clock
	logger *slog.Logger
	redis  redis.UniversalClient

	tokens    token.Repository
	users     user.Repository
	roles     user.RoleRepository
	uow       UnitOfWork
	permCache permission.Cache
	hasher    password.Hasher

	handlers []subscription

	built bool
}

type subscription struct {
	name    string
	handler events.Handler
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithRedis supplies the client used by the throttles and, when configured,
// the permission cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithTokenRepository(r token.Repository) *Builder {
	b.tokens = r
	return b
}

func (b *Builder) WithUserRepository(r user.Repository) *Builder {
	b.users = r
	return b
}

func (b *Builder) WithRoleRepository(r user.RoleRepository) *Builder {
	b.roles = r
	return b
}

// WithUnitOfWork sets the transaction runner. Without one, each repository
// call is its own atomic unit.
func (b *Builder) WithUnitOfWork(u UnitOfWork) *Builder {
	b.uow = u
	return b
}

// WithPermissionCache overrides the cache selected by Config.Permission.Cache.
func (b *Builder) WithPermissionCache(c permission.Cache) *Builder {
	b.permCache = c
	return b
}

func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithEventHandler subscribes h to events named name. Handlers run after the
// producing transaction commits. An empty name subscribes to every event.
func (b *Builder) WithEventHandler(name string, h events.Handler) *Builder {
	if h != nil {
		b.handlers = append(b.handlers, subscription{name: name, handler: h})
	}
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.tokens == nil {
		return nil, errors.New("token repository required")
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if b.roles == nil {
		return nil, errors.New("role repository required")
	}
	if b.redis == nil && cfg.ThrottlesEnabled() {
		return nil, errors.New("Security throttles require redis client")
	}
	if b.redis == nil && b.permCache == nil && cfg.Permission.Cache == PermissionCacheRedis {
		return nil, errors.New("redis permission cache requires redis client")
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	uow := b.uow
	if uow == nil {
		uow = directUnitOfWork{}
	}

	engine := &Engine{
		config:  cfg,
		clock:   clock,
		logger:  logger,
		tokens:  b.tokens,
		users:   b.users,
		roles:   b.roles,
		uow:     uow,
		metrics: NewMetrics(cfg.Metrics),
		bus: events.NewBus(events.Config{
			Async:      cfg.Events.Async,
			BufferSize: cfg.Events.BufferSize,
			DropIfFull: cfg.Events.DropIfFull,
		}, logger),
		generator: token.NewGenerator(cfg.Refresh.TokenBytes),
	}

	// -------- PASSWORD --------
	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.Config{
			Memory:           cfg.Password.Memory,
			Time:             cfg.Password.Time,
			Parallelism:      cfg.Password.Parallelism,
			SaltLength:       cfg.Password.SaltLength,
			KeyLength:        cfg.Password.KeyLength,
			MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Password.AcceptBcrypt {
			legacy, err := password.NewBcrypt(0)
			if err != nil {
				return nil, err
			}
			hasher = password.NewChain(argon, legacy)
		} else {
			hasher = password.NewChain(argon)
		}
	}
	engine.hasher = hasher

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.verifyKeys(),
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- PERMISSIONS --------
	cache := b.permCache
	if cache == nil {
		switch cfg.Permission.Cache {
		case PermissionCacheLocal:
			cache = permission.NewLocalCache(cfg.Permission.LocalCacheSize, cfg.Permission.CacheTTL)
		case PermissionCacheRedis:
			cache = permission.NewRedisCache(b.redis, cfg.Permission.RedisPrefix)
		}
	}
	perms, err := permission.New(b.roles, cache, cfg.Permission.CacheTTL,
		permission.WithLogger(logger),
		permission.WithHooks(permission.Hooks{
			Hit:              func() { engine.metricInc(MetricPermissionCacheHit) },
			Miss:             func() { engine.metricInc(MetricPermissionCacheMiss) },
			InvalidateFailed: func() { engine.metricInc(MetricPermissionInvalidateFailed) },
		}),
	)
	if err != nil {
		return nil, err
	}
	engine.permissions = perms

	// -------- RATE LIMITS --------
	var loginLimiter flows.LoginRateLimiter
	var refreshLimiter flows.RefreshRateLimiter
	if b.redis != nil && cfg.ThrottlesEnabled() {
		limiter := rate.New(b.redis, rate.Config{
			Prefix:                  cfg.Security.RedisPrefix,
			EnableLoginThrottle:     cfg.Security.EnableLoginThrottle,
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
		loginLimiter = limiter
		refreshLimiter = limiter
	}

	// -------- FLOWS --------
	engine.flows = flows.Deps{
		Login: flows.LoginDeps{
			Now:         clock.Now,
			TTL:         cfg.Refresh.TTL,
			ClientIP:    ClientIPFromContext,
			Users:       b.users,
			Tokens:      b.tokens,
			Tx:          uow,
			Verify:      hasher.Verify,
			DummyVerify: engine.dummyVerify,
			Generate:    engine.generator.Generate,
			IssueAccess: jm.CreateAccess,
			RateLimiter: loginLimiter,
			Warn:        logger.Warn,
		},
		Refresh: flows.RefreshDeps{
			Now:         clock.Now,
			TTL:         cfg.Refresh.TTL,
			MaxAttempts: cfg.Refresh.MaxAttempts,
			ClientIP:    ClientIPFromContext,
			Tokens:      b.tokens,
			Tx:          uow,
			Generate:    engine.generator.Generate,
			IssueAccess: jm.CreateAccess,
			RateLimiter: refreshLimiter,
			Logger:      logger,
		},
		Roles: flows.RolesDeps{
			Now:   clock.Now,
			Users: b.users,
			Roles: b.roles,
			Tx:    uow,
		},
		Logout: flows.LogoutDeps{
			Now:    clock.Now,
			Tokens: b.tokens,
			Tx:     uow,
		},
	}

	// -------- EVENT HANDLERS --------
	engine.registerBuiltinHandlers()
	for _, s := range b.handlers {
		if s.name == "" {
			engine.bus.SubscribeAll(s.handler)
			continue
		}
		engine.bus.Subscribe(s.name, s.handler)
	}

	b.built = true

	return engine, nil
}
