package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wsquare5/notion-dashboard/internal/model"
)

// fakeClock drives the governor's window logic without real sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGovernor(budget int64, window time.Duration, clock *fakeClock) *Governor {
	g := New(Config{Name: "test", WeightPerWindow: budget, Window: window, MaxConcurrent: 50}, nil)
	g.now = clock.now
	g.sleep = func(_ context.Context, d time.Duration) error {
		clock.advance(d)
		return nil
	}
	return g
}

func TestAcquireStaysWithinBudget(t *testing.T) {
	clock := newFakeClock()
	g := newTestGovernor(100, time.Minute, clock)

	type windowKey int64
	perWindow := map[windowKey]int64{}
	start := clock.now()

	// 1000 dispatches of cost 1 must never exceed 100 weight per window.
	for i := 0; i < 1000; i++ {
		release, err := g.Acquire(context.Background(), 1)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		key := windowKey(clock.now().Sub(start) / time.Minute)
		perWindow[key]++
		release()
	}

	for w, used := range perWindow {
		if used > 100 {
			t.Errorf("window %d consumed %d weight, budget is 100", w, used)
		}
	}
	if len(perWindow) < 10 {
		t.Errorf("expected at least 10 windows for 1000 calls, got %d", len(perWindow))
	}
}

func TestAcquireBlocksUntilWindowReset(t *testing.T) {
	clock := newFakeClock()
	g := newTestGovernor(10, time.Minute, clock)

	release, err := g.Acquire(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	release()
	before := clock.now()

	release, err = g.Acquire(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	release()

	if clock.now().Sub(before) < time.Minute {
		t.Errorf("expected a full window wait, clock only advanced %s", clock.now().Sub(before))
	}
	if g.Used() != 5 {
		t.Errorf("used = %d after reset, want 5", g.Used())
	}
}

func TestLockoutFailsFast(t *testing.T) {
	clock := newFakeClock()
	g := newTestGovernor(100, time.Minute, clock)

	until := clock.now().Add(2 * time.Hour)
	g.ReportLockout(until)

	_, err := g.Acquire(context.Background(), 1)
	var le *model.LockoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected LockoutError, got %v", err)
	}
	if !le.Until.Equal(until) {
		t.Errorf("lockout until = %s, want %s", le.Until, until)
	}

	// After the ban elapses, calls flow again.
	clock.advance(3 * time.Hour)
	release, err := g.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire after ban elapsed: %v", err)
	}
	release()
}

func TestLockoutDuringBudgetWaitFailsFast(t *testing.T) {
	clock := newFakeClock()
	g := newTestGovernor(10, time.Minute, clock)

	release, err := g.Acquire(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	release()

	// The ban lands while the next caller sleeps for window headroom.
	until := clock.now().Add(2 * time.Hour)
	g.sleep = func(_ context.Context, d time.Duration) error {
		g.ReportLockout(until)
		clock.advance(d)
		return nil
	}

	_, err = g.Acquire(context.Background(), 5)
	var le *model.LockoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected LockoutError after ban during wait, got %v", err)
	}
	if !le.Until.Equal(until) {
		t.Errorf("lockout until = %s, want %s", le.Until, until)
	}
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	clock := newFakeClock()
	g := newTestGovernor(1, time.Minute, clock)
	g.sleep = func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}

	release, err := g.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Acquire(ctx, 1); err == nil {
		t.Error("expected error from cancelled context")
	}
}
