// Package governor paces outgoing calls against an external API's request
// weight budget. The policy is deliberately conservative: a fixed minimum
// delay between dispatches plus a hard concurrency cap, because overshooting
// the Binance budget triggers a multi-hour IP ban rather than a polite 429.
package governor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// Config describes one API's budget.
type Config struct {
	// Name labels the API in logs and metrics ("binance", "notion").
	Name string
	// WeightPerWindow is the total weight budget per Window.
	WeightPerWindow int64
	// Window is the budget reset interval, one minute for Binance.
	Window time.Duration
	// MinInterval is the static pacing delay between dispatched requests.
	MinInterval time.Duration
	// MaxConcurrent caps in-flight requests regardless of budget headroom.
	MaxConcurrent int
}

// Governor tracks a consumable weight budget over fixed windows. It is the
// single synchronization point shared by all fetch workers; one instance per
// external API, constructed and passed in, never package state.
type Governor struct {
	cfg     Config
	limiter *rate.Limiter
	slots   chan struct{}
	log     *logger.Log

	mu          sync.Mutex
	windowStart time.Time
	used        int64
	bannedUntil time.Time

	// replaced in tests to drive the window logic with a fake clock
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a governor from cfg, applying safe defaults for zero fields.
func New(cfg Config, log *logger.Log) *Governor {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.WeightPerWindow <= 0 {
		cfg.WeightPerWindow = 1200
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 20
	}

	var limiter *rate.Limiter
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	return &Governor{
		cfg:     cfg,
		limiter: limiter,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks until cost can be spent without exceeding the window budget
// and a concurrency slot is free. The returned release function must be
// called when the request completes. A standing lockout fails fast with a
// LockoutError so callers can abort the run instead of queueing behind a ban.
func (g *Governor) Acquire(ctx context.Context, cost int64) (release func(), err error) {
	if until, locked := g.LockedOut(); locked {
		return nil, &model.LockoutError{Until: until}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if err := g.spend(ctx, cost); err != nil {
		return nil, err
	}

	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-g.slots })
	}, nil
}

// spend waits until the current window has cost headroom, rolling the window
// forward when it has elapsed.
func (g *Governor) spend(ctx context.Context, cost int64) error {
	for {
		g.mu.Lock()
		now := g.now()
		if g.windowStart.IsZero() || now.Sub(g.windowStart) >= g.cfg.Window {
			g.windowStart = now
			g.used = 0
		}
		if g.used+cost <= g.cfg.WeightPerWindow {
			g.used += cost
			g.mu.Unlock()
			return nil
		}
		wait := g.cfg.Window - now.Sub(g.windowStart)
		g.mu.Unlock()

		if g.log != nil {
			g.log.WithComponent("governor").WithFields(logger.Fields{
				"api":  g.cfg.Name,
				"wait": wait.String(),
				"cost": cost,
			}).Debug("weight budget exhausted, waiting for window reset")
		}
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
		// A ban reported while we slept must not leak one more request.
		if until, locked := g.LockedOut(); locked {
			return &model.LockoutError{Until: until}
		}
	}
}

// ReportLockout halts all future acquisitions until the given time. Called
// by the fetch layer when the API answers with an explicit ban.
func (g *Governor) ReportLockout(until time.Time) {
	g.mu.Lock()
	if until.After(g.bannedUntil) {
		g.bannedUntil = until
	}
	g.mu.Unlock()

	if g.log != nil {
		g.log.WithComponent("governor").WithFields(logger.Fields{
			"api":   g.cfg.Name,
			"until": until.Format(time.RFC3339),
		}).Error("api lockout reported, halting all calls")
		g.log.LogMetric("governor", "ip_ban", int64(1), "counter", logger.Fields{"api": g.cfg.Name})
	}
}

// LockedOut reports whether a ban is still in force.
func (g *Governor) LockedOut() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bannedUntil.IsZero() || !g.now().Before(g.bannedUntil) {
		return time.Time{}, false
	}
	return g.bannedUntil, true
}

// Used returns the weight spent in the current window, for metrics.
func (g *Governor) Used() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// SetBudget replaces the window budget, used when the exchange's advertised
// REQUEST_WEIGHT limit is auto-detected at startup.
func (g *Governor) SetBudget(weight int64) {
	if weight <= 0 {
		return
	}
	g.mu.Lock()
	g.cfg.WeightPerWindow = weight
	g.mu.Unlock()
}
