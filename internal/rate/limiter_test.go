package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	l, mr := newTestLimiter(t, Config{
		EnableLoginThrottle:   true,
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("attempt %d: unexpected throttle: %v", i, err)
		}
		_ = l.IncrementLogin(ctx, "a@example.com", "")
	}
	if err := l.CheckLogin(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "b@example.com", ""); err != nil {
		t.Fatalf("other identifier throttled: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestResetLoginClearsIdentifierCounter(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableLoginThrottle:   true,
		EnableIPThrottle:      true,
		MaxLoginAttempts:      5,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()
	_ = l.IncrementLogin(ctx, "a@example.com", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "a@example.com", "10.0.0.1")

	n, err := l.GetLoginAttempts(ctx, "a@example.com")
	if err != nil || n != 2 {
		t.Fatalf("attempts = %d, %v", n, err)
	}
	if err := l.ResetLogin(ctx, "a@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, _ = l.GetLoginAttempts(ctx, "a@example.com")
	if n != 0 {
		t.Fatalf("attempts after reset = %d", n)
	}
}

func TestIPThrottleSharedAcrossIdentifiers(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableLoginThrottle:   true,
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()
	_ = l.IncrementLogin(ctx, "a@example.com", "10.0.0.9")
	_ = l.IncrementLogin(ctx, "b@example.com", "10.0.0.9")

	if err := l.CheckLogin(ctx, "c@example.com", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
}

func TestRefreshBudgetPerDevice(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      2,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.CheckRefresh(ctx, "dev-1", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := l.CheckRefresh(ctx, "dev-1", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckRefresh(ctx, "dev-2", "10.0.0.1"); err != nil {
		t.Fatalf("other device throttled: %v", err)
	}
	if err := l.CheckRefresh(ctx, "dev-1", "10.0.0.2"); err != nil {
		t.Fatalf("same device from another address throttled: %v", err)
	}
}

func TestDisabledThrottlesAreNoops(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := l.CheckRefresh(ctx, "d", ""); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if err := l.IncrementLogin(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
}

func TestRedisDownIsWrapped(t *testing.T) {
	l, mr := newTestLimiter(t, Config{EnableRefreshThrottle: true, MaxRefreshAttempts: 1, RefreshCooldownDuration: time.Second})
	mr.Close()
	err := l.CheckRefresh(context.Background(), "d", "")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
