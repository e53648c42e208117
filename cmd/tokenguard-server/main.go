// Command tokenguard-server serves the tokenguard engine over HTTP.
//
// Storage is selected from configuration: Postgres when database.url is set,
// in-memory otherwise. Redis backs throttling, the shared permission cache
// and optionally the refresh token store. Kafka fans permission
// invalidations out to the other nodes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/fanout"
	"github.com/MrEthical07/tokenguard/httpapi"
	"github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/config"
	"github.com/MrEthical07/tokenguard/internal/logging"
	"github.com/MrEthical07/tokenguard/internal/sweeper"
	otelexport "github.com/MrEthical07/tokenguard/metrics/export/otel"
	promexport "github.com/MrEthical07/tokenguard/metrics/export/prometheus"
	"github.com/MrEthical07/tokenguard/store/memory"
	"github.com/MrEthical07/tokenguard/store/postgres"
	"github.com/MrEthical07/tokenguard/store/redisstore"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("TOKENGUARD_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type stores struct {
	tokens token.Repository
	users  user.Repository
	roles  user.RoleRepository
	seeder seeder
	uow    tokenguard.UnitOfWork
}

func run(ctx context.Context, configPath string) error {
	log := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "version", version)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("building engine config: %w", err)
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	st, closeStores, err := openStores(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer closeStores()

	if err := seed(ctx, st.seeder, cfg.Bootstrap, engineCfg.Password, log); err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	origin := nodeID()
	b := tokenguard.New().
		WithConfig(engineCfg).
		WithLogger(log).
		WithTokenRepository(st.tokens).
		WithUserRepository(st.users).
		WithRoleRepository(st.roles)
	if st.uow != nil {
		b.WithUnitOfWork(st.uow)
	}
	if rdb != nil {
		b.WithRedis(rdb)
	}

	var publisher *fanout.Publisher
	if cfg.Kafka.Enabled {
		publisher = fanout.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, origin, log)
		defer publisher.Close()
		b.WithEventHandler(user.EventRolesChanged, publisher)
	}

	if cfg.Audit.Enabled {
		out, closeOut, err := openAuditOutput(cfg.Audit.Output)
		if err != nil {
			return fmt.Errorf("opening audit output: %w", err)
		}
		defer closeOut()
		dispatcher := audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, audit.NewJSONWriterSink(out))
		defer func() {
			dispatcher.Close()
			if n := dispatcher.Dropped(); n > 0 {
				log.Warn("audit records dropped", "count", n)
			}
		}()
		b.WithEventHandler("", dispatcher)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	if cfg.Metrics.OTel {
		// Readers are attached by the deployment's OpenTelemetry setup.
		provider := sdkmetric.NewMeterProvider()
		defer func() { _ = provider.Shutdown(context.Background()) }()
		exporter, err := otelexport.NewOTelExporter(provider.Meter(cfg.Metrics.Namespace), engine)
		if err != nil {
			return fmt.Errorf("registering otel instruments: %w", err)
		}
		defer exporter.Close()
	}

	opts := httpapi.Options{
		AllowedOrigins:      cfg.HTTP.AllowedOrigins,
		RoleAdminPermission: cfg.HTTP.RoleAdminPermission,
		Logger:              log,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.NewPrometheusExporter(engine).Handler()
	}
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      httpapi.NewRouter(engine, opts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sweeper.New(engine, engineCfg.Sweeper.Interval, log).Run(gctx)
	})
	if cfg.Kafka.Enabled {
		consumer := fanout.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, origin, engine, log)
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(gctx)
		})
		log.Info("permission fanout enabled", "topic", cfg.Kafka.Topic, "origin", origin)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient, log *slog.Logger) (stores, func(), error) {
	var (
		st      stores
		closeFn = func() {}
	)

	if cfg.Database.URL == "" {
		users := memory.NewUserStore()
		st = stores{tokens: memory.NewTokenStore(time.Now), users: users, roles: users, seeder: users}
		log.Warn("database.url not set, using in-memory stores")
	} else {
		pool, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns,
			cfg.Database.ConnectAttempts, cfg.Database.ConnectDelay, log)
		if err != nil {
			return stores{}, nil, fmt.Errorf("connecting to database: %w", err)
		}
		closeFn = closePool(pool, log)
		if cfg.Database.ApplySchema {
			if err := postgres.Migrate(ctx, pool); err != nil {
				closeFn()
				return stores{}, nil, fmt.Errorf("applying schema: %w", err)
			}
			log.Info("database schema applied")
		}
		tx := postgres.NewTxManager(pool)
		users := postgres.NewUserStore(tx)
		st = stores{tokens: postgres.NewTokenStore(tx, time.Now), users: users, roles: users, seeder: users, uow: tx}
	}

	if cfg.Redis.TokenStore {
		st.tokens = redisstore.NewTokenStore(rdb, redisstore.DefaultPrefix, time.Now)
		log.Info("refresh tokens stored in redis")
	}
	return st, closeFn, nil
}

func closePool(pool *pgxpool.Pool, log *slog.Logger) func() {
	return func() {
		log.Info("closing database")
		pool.Close()
	}
}

func openAuditOutput(output string) (io.Writer, func(), error) {
	switch output {
	case "", "stdout":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}
