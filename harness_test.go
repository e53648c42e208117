package tokenguard

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/store/memory"
	"github.com/MrEthical07/tokenguard/user"
)

const (
	alicePassword = "correct-password-123"
	roleMember    = user.RoleID(1)
	roleAdmin     = user.RoleID(2)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventLog struct {
	mu  sync.Mutex
	evs []events.Event
}

func (l *eventLog) Handle(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	l.evs = append(l.evs, ev)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) named(name string) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, ev := range l.evs {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	l.evs = nil
	l.mu.Unlock()
}

type harness struct {
	engine *Engine
	tokens *memory.TokenStore
	users  *memory.UserStore
	clock  *testClock
	events *eventLog
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.JWT.Audience = "tokenguard-test"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnableLoginThrottle = false
	cfg.Security.EnableRefreshThrottle = false
	cfg.Metrics.Enabled = true
	return cfg
}

func testPasswordHash(t *testing.T, cfg Config, pw string) string {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}
	out, err := h.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return out
}

func newHarness(t *testing.T, mutate ...func(*Config, *Builder)) *harness {
	t.Helper()

	cfg := testConfig()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens := memory.NewTokenStore(clock.Now)
	users := memory.NewUserStore()
	users.AddRole(user.Role{ID: roleMember, Name: "Member", Permissions: []string{"todo.read", "todo.write"}})
	users.AddRole(user.Role{ID: roleAdmin, Name: "Administrator", Permissions: []string{"todo.read", "users.manage"}})

	hash := testPasswordHash(t, cfg, alicePassword)
	if err := users.AddUser(&user.User{
		ID:           "u-alice",
		Email:        user.MustEmail("alice@example.com"),
		PasswordHash: hash,
		Roles:        []user.RoleID{roleMember},
	}); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	deleted := &user.User{
		ID:           "u-bob",
		Email:        user.MustEmail("bob@example.com"),
		PasswordHash: hash,
	}
	deleted.SoftDelete(clock.Now())
	if err := users.AddUser(deleted); err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	log := &eventLog{}
	b := New().
		WithClock(clock).
		WithTokenRepository(tokens).
		WithUserRepository(users).
		WithRoleRepository(users).
		WithEventHandler("", log)
	for _, m := range mutate {
		m(&cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{engine: engine, tokens: tokens, users: users, clock: clock, events: log}
}

func (h *harness) login(t *testing.T, deviceID string) TokenPair {
	t.Helper()
	pair, err := h.engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: alicePassword,
		DeviceID: deviceID,
	}).Unwrap()
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return pair
}

func (h *harness) activeCount(t *testing.T, userID string) int {
	t.Helper()
	active, err := h.tokens.GetActiveByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	return len(active)
}
