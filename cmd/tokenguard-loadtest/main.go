// Command tokenguard-loadtest measures access validation and refresh
// rotation throughput against the Redis token store, then checks that a
// storm of concurrent presentations of one token rotates it exactly once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/store/memory"
	"github.com/MrEthical07/tokenguard/store/redisstore"
	"github.com/MrEthical07/tokenguard/user"
)

const loadtestPassword = "loadtest-password-1"

type chainState struct {
	device  string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		chains      = flag.Int("chains", 2000, "number of refresh token chains to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate + refresh)")
		storm       = flag.Int("storm", 64, "concurrent presentations of one token in the storm phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tg:lt", "token key prefix")
	)
	flag.Parse()

	if *chains <= 0 || *concurrency <= 0 || *ops <= 0 || *storm <= 0 {
		fmt.Fprintln(os.Stderr, "chains, concurrency, ops and storm must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]chainState, *chains)
	fmt.Printf("seeding %d chains...\n", *chains)
	startSeed := time.Now()
	for i := range states {
		device := fmt.Sprintf("device-%d", i)
		pair, err := engine.Login(ctx, tokenguard.LoginRequest{
			Email:    "loadtest@example.com",
			Password: loadtestPassword,
			DeviceID: device,
		}).Unwrap()
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = chainState{device: device, access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	winners, reused := runStorm(ctx, engine, &states[0], *storm)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	fmt.Printf("storm: presentations=%d rotations=%d reuse_refusals=%d\n", *storm, winners, reused)
	if winners != 1 {
		fmt.Fprintln(os.Stderr, "storm rotated the token more than once")
		os.Exit(1)
	}
}

func newEngine(client redis.UniversalClient, prefix string) (*tokenguard.Engine, error) {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadtestPassword)
	if err != nil {
		return nil, err
	}

	users := memory.NewUserStore()
	users.AddRole(user.Role{ID: 1, Name: "Member", Permissions: []string{"todo.read"}})
	if err := users.AddUser(&user.User{
		ID:           "u-loadtest",
		Email:        user.MustEmail("loadtest@example.com"),
		PasswordHash: hash,
		Roles:        []user.RoleID{1},
	}); err != nil {
		return nil, err
	}

	cfg := tokenguard.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("loadtest-signing-key-0123456789ab")
	cfg.Security.EnableLoginThrottle = false
	cfg.Security.EnableRefreshThrottle = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	return tokenguard.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithRedis(client).
		WithHasher(hasher).
		WithTokenRepository(redisstore.NewTokenStore(client, prefix, time.Now)).
		WithUserRepository(users).
		WithRoleRepository(users).
		Build()
}

func runValidatePhase(ctx context.Context, engine *tokenguard.Engine, states []chainState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		access := st.access
		st.mu.Unlock()
		_, err := engine.ValidateAccess(ctx, access)
		return err
	})
}

func runRefreshPhase(ctx context.Context, engine *tokenguard.Engine, states []chainState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := engine.Refresh(ctx, tokenguard.RefreshRequest{
			RefreshToken: st.refresh,
			DeviceID:     st.device,
		}).Unwrap()
		if err != nil {
			return err
		}
		st.access, st.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runStorm presents one refresh token from n goroutines at once.
func runStorm(ctx context.Context, engine *tokenguard.Engine, st *chainState, n int) (winners, reused int64) {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := engine.Refresh(ctx, tokenguard.RefreshRequest{
				RefreshToken: st.refresh,
				DeviceID:     st.device,
			}).Err()
			switch {
			case err == nil:
				atomic.AddInt64(&winners, 1)
			case errors.Is(err, tokenguard.ErrRefreshTokenReused):
				atomic.AddInt64(&reused, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return winners, reused
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
