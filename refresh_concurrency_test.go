package tokenguard

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "dev-1")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			results <- h.engine.Refresh(context.Background(), RefreshRequest{
				RefreshToken: pair.RefreshToken,
				DeviceID:     "dev-1",
			}).Err()
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	reuse := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrRefreshTokenReused) {
			reuse++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if reuse != n-1 {
		t.Fatalf("expected %d reuse failures, got %d", n-1, reuse)
	}
	if active := h.activeCount(t, "u-alice"); active != 0 {
		t.Fatalf("reuse cascade should leave no active tokens, got %d", active)
	}
}
