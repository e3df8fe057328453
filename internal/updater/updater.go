package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Wsquare5/notion-dashboard/internal/binance"
	"github.com/Wsquare5/notion-dashboard/internal/diff"
	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/internal/notion"
	"github.com/Wsquare5/notion-dashboard/internal/resolver"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// Fetcher produces a market snapshot for one symbol.
type Fetcher interface {
	Fetch(ctx context.Context, req binance.FetchRequest) (*model.MarketSnapshot, error)
}

// IdentityResolver answers supply and naming lookups.
type IdentityResolver interface {
	Resolve(ctx context.Context, symbol string) (*model.IdentityRecord, error)
}

// Store is the remote dashboard database.
type Store interface {
	LoadIndex(ctx context.Context) (map[string]model.RemoteRecord, error)
	UpdatePage(ctx context.Context, pageID string, props notion.PropertyMap) error
	CreatePage(ctx context.Context, props notion.PropertyMap) (string, error)
}

// Options tune one run. Zero values fall back to the defaults the pipeline
// was sized for.
type Options struct {
	Workers     int
	RetryRounds int
	RetryPause  time.Duration
	Blacklist   map[string]bool
}

// Orchestrator drives one sync pass: bulk index load, parallel fetch, and
// serialized writes, followed by bounded retry rounds over the symbols that
// failed transiently.
type Orchestrator struct {
	fetcher  Fetcher
	resolver IdentityResolver
	store    Store
	engine   *diff.Engine
	opts     Options
	log      *logger.Entry

	sleep func(ctx context.Context, d time.Duration) error
}

func New(fetcher Fetcher, res IdentityResolver, store Store, engine *diff.Engine, opts Options, log *logger.Log) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 20
	}
	if opts.RetryRounds <= 0 {
		opts.RetryRounds = 5
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = 2 * time.Second
	}
	return &Orchestrator{
		fetcher:  fetcher,
		resolver: res,
		store:    store,
		engine:   engine,
		opts:     opts,
		log:      log.WithComponent("updater"),
		sleep:    sleepCtx,
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

// Run executes one pass at the given tier over the symbol universe. The
// returned result is valid even when the run aborts; it then reflects the
// progress made before the abort.
func (o *Orchestrator) Run(ctx context.Context, tier model.UpdateTier, symbols []binance.SymbolInfo) (*model.RunResult, error) {
	res := &model.RunResult{
		RunID:     uuid.NewString(),
		Tier:      tier,
		StartedAt: time.Now(),
	}

	o.log.WithFields(logger.Fields{
		"run_id":  res.RunID,
		"tier":    tier.String(),
		"symbols": len(symbols),
		"workers": o.opts.Workers,
	}).Info("run starting")

	index, err := o.store.LoadIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("index load failed: %w", err)
	}

	pending := make([]binance.SymbolInfo, 0, len(symbols))
	for _, s := range symbols {
		if o.opts.Blacklist[s.Base] {
			res.Skipped++
			continue
		}
		pending = append(pending, s)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &runState{result: res, index: index, cancel: cancel}

	retry := o.pass(runCtx, st, tier, pending, o.opts.Workers)
	for round := 1; round <= o.opts.RetryRounds && len(retry) > 0 && !st.isAborted(); round++ {
		if err := o.sleep(runCtx, o.opts.RetryPause); err != nil {
			break
		}
		workers := o.opts.Workers / 4
		if workers < 5 {
			workers = 5
		}
		o.log.WithFields(logger.Fields{
			"run_id":  res.RunID,
			"round":   round,
			"symbols": len(retry),
			"workers": workers,
		}).Info("retry round starting")
		retry = o.pass(runCtx, st, tier, retry, workers)
	}

	res.Duration = time.Since(res.StartedAt)
	o.report(res)
	return res, nil
}

// runState is the mutable state shared by all workers of a run.
type runState struct {
	mu     sync.Mutex
	result *model.RunResult
	index  map[string]model.RemoteRecord
	cancel context.CancelFunc
}

func (s *runState) prior(base string) *model.RemoteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.index[base]; ok {
		c := rec
		return &c
	}
	return nil
}

func (s *runState) recordCreated(base, pageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[base] = model.RemoteRecord{Symbol: base, PageID: pageID}
	s.result.Created++
	s.result.ClearFailure(base)
}

func (s *runState) recordUpdated(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Success++
	s.result.ClearFailure(base)
}

func (s *runState) recordFailure(base, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.RecordFailure(base, reason)
}

func (s *runState) abort(reason string) {
	s.mu.Lock()
	if !s.result.Aborted {
		s.result.Aborted = true
		s.result.AbortReason = reason
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *runState) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Aborted
}

// pass runs one fetch-and-write sweep over the given symbols and returns
// the subset that failed with retryable errors.
func (o *Orchestrator) pass(ctx context.Context, st *runState, tier model.UpdateTier, symbols []binance.SymbolInfo, workers int) []binance.SymbolInfo {
	if workers > len(symbols) {
		workers = len(symbols)
	}
	if workers == 0 {
		return nil
	}

	jobs := make(chan binance.SymbolInfo)
	var retryMu sync.Mutex
	var retry []binance.SymbolInfo

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for info := range jobs {
				if ctx.Err() != nil {
					continue
				}
				err := o.processSymbol(ctx, st, tier, info)
				if err == nil {
					continue
				}

				switch {
				case model.IsLockout(err):
					st.recordFailure(info.Base, err.Error())
					st.abort(err.Error())
				case errors.Is(err, context.Canceled):
					// Run is shutting down; leave the symbol untouched.
				case model.IsRetryable(err):
					st.recordFailure(info.Base, err.Error())
					retryMu.Lock()
					retry = append(retry, info)
					retryMu.Unlock()
				default:
					st.recordFailure(info.Base, err.Error())
				}
			}
		}()
	}

	for _, info := range symbols {
		if ctx.Err() != nil {
			break
		}
		jobs <- info
	}
	close(jobs)
	wg.Wait()

	return retry
}

func (o *Orchestrator) processSymbol(ctx context.Context, st *runState, tier model.UpdateTier, info binance.SymbolInfo) error {
	prior := st.prior(info.Base)
	eff := o.engine.EffectiveTier(tier, prior)

	snap, err := o.fetcher.Fetch(ctx, binance.FetchRequest{
		Symbol:        info.Base,
		HasSpot:       info.HasSpot,
		IncludeStatic: eff.Includes(model.TierStatic),
	})
	if err != nil {
		return err
	}

	var identity *model.IdentityRecord
	if eff.Includes(model.TierFull) {
		rec, rerr := o.resolver.Resolve(ctx, info.Base)
		switch {
		case rerr == nil:
			identity = rec
		case errors.Is(rerr, resolver.ErrNotFound):
			o.log.WithFields(logger.Fields{"symbol": info.Base}).Debug("no identity provider knows symbol")
		default:
			o.log.WithFields(logger.Fields{"symbol": info.Base}).WithError(rerr).Warn("identity resolution failed, keeping prior supplies")
		}
	}

	payload := o.engine.Build(diff.BuildInput{
		Tier:       eff,
		Snapshot:   snap,
		Identity:   identity,
		Prior:      prior,
		Categories: info.Categories,
	})
	props := diff.Encode(payload)

	if prior == nil {
		props[notion.PropSymbol] = notion.Title(info.Base)
		pageID, err := o.store.CreatePage(ctx, props)
		if err != nil {
			return err
		}
		st.recordCreated(info.Base, pageID)
		return nil
	}

	if err := o.store.UpdatePage(ctx, prior.PageID, props); err != nil {
		return err
	}
	st.recordUpdated(info.Base)
	return nil
}

func (o *Orchestrator) report(res *model.RunResult) {
	fields := logger.Fields{
		"run_id":   res.RunID,
		"tier":     res.Tier.String(),
		"duration": res.Duration.String(),
		"updated":  res.Success,
		"created":  res.Created,
		"skipped":  res.Skipped,
		"failed":   len(res.Errors),
	}
	if res.Aborted {
		fields["abort_reason"] = res.AbortReason
		o.log.WithFields(fields).Error("run aborted")
	} else if len(res.Errors) > 0 {
		o.log.WithFields(fields).Warn("run finished with errors")
	} else {
		o.log.WithFields(fields).Info("run finished")
	}

	o.log.LogMetric("updater", "symbols_updated", res.Success, "counter", logger.Fields{"tier": res.Tier.String()})
	o.log.LogMetric("updater", "symbols_created", res.Created, "counter", logger.Fields{"tier": res.Tier.String()})
	o.log.LogMetric("updater", "symbols_failed", len(res.Errors), "counter", logger.Fields{"tier": res.Tier.String()})

	for _, f := range res.Errors {
		o.log.WithFields(logger.Fields{"symbol": f.Symbol, "reason": f.Reason}).Warn("symbol failed after all retries")
	}
}
