package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Wsquare5/notion-dashboard/internal/binance"
	"github.com/Wsquare5/notion-dashboard/internal/diff"
	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/internal/notion"
	"github.com/Wsquare5/notion-dashboard/internal/resolver"
	"github.com/Wsquare5/notion-dashboard/logger"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	// failUntil makes a symbol fail with a retryable error until the nth
	// attempt.
	failUntil map[string]int
	lockout   map[string]bool
	permanent map[string]bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, req binance.FetchRequest) (*model.MarketSnapshot, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[req.Symbol]++
	n := f.calls[req.Symbol]
	f.mu.Unlock()

	if f.lockout[req.Symbol] {
		return nil, &model.FetchError{
			Symbol: req.Symbol, Kind: model.ErrKindLockout,
			Err: &model.LockoutError{Until: time.Now().Add(time.Hour)},
		}
	}
	if f.permanent[req.Symbol] {
		return nil, &model.FetchError{
			Symbol: req.Symbol, Kind: model.ErrKindNotFound,
			Err: fmt.Errorf("invalid symbol"),
		}
	}
	if until, ok := f.failUntil[req.Symbol]; ok && n < until {
		return nil, &model.FetchError{
			Symbol: req.Symbol, Kind: model.ErrKindNetwork,
			Err: fmt.Errorf("connection reset"),
		}
	}
	return &model.MarketSnapshot{
		Symbol:          req.Symbol,
		Perp:            &model.PerpTicker{Price: 10, Change24h: 1, Volume24h: 100},
		HasFunding:      true,
		HasOpenInterest: true,
		OpenInterestUSD: 50,
		FetchedAt:       time.Now(),
	}, nil
}

type fakeResolver struct{}

func (r *fakeResolver) Resolve(ctx context.Context, symbol string) (*model.IdentityRecord, error) {
	return nil, resolver.ErrNotFound
}

type fakeStore struct {
	mu      sync.Mutex
	index   map[string]model.RemoteRecord
	updates map[string]int
	creates []string
	writes  []notion.PropertyMap
	// onCreate lets tests mirror created pages back into the index the way
	// the real database would.
	onCreate func(pageID string)
}

func (s *fakeStore) LoadIndex(ctx context.Context) (map[string]model.RemoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.RemoteRecord, len(s.index))
	for k, v := range s.index {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) UpdatePage(ctx context.Context, pageID string, props notion.PropertyMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = map[string]int{}
	}
	s.updates[pageID]++
	s.writes = append(s.writes, props)
	return nil
}

func (s *fakeStore) CreatePage(ctx context.Context, props notion.PropertyMap) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("created-%d", len(s.creates))
	s.creates = append(s.creates, id)
	if s.onCreate != nil {
		s.onCreate(id)
	}
	return id, nil
}

func infos(bases ...string) []binance.SymbolInfo {
	out := make([]binance.SymbolInfo, 0, len(bases))
	for _, b := range bases {
		out = append(out, binance.SymbolInfo{Base: b, PerpPair: b + "USDT"})
	}
	return out
}

func newTestOrchestrator(f *fakeFetcher, s *fakeStore, opts Options) *Orchestrator {
	log := logger.GetLogger()
	o := New(f, &fakeResolver{}, s, diff.NewEngine(log), opts, log)
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return o
}

func TestRunUpdatesExistingAndCreatesNew(t *testing.T) {
	store := &fakeStore{index: map[string]model.RemoteRecord{
		"BTC": {Symbol: "BTC", PageID: "p-btc"},
	}}
	o := newTestOrchestrator(&fakeFetcher{}, store, Options{Workers: 4})

	res, err := o.Run(context.Background(), model.TierRealtime, infos("BTC", "NEW"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Success != 1 || res.Created != 1 {
		t.Errorf("success=%d created=%d, want 1 and 1", res.Success, res.Created)
	}
	if store.updates["p-btc"] != 1 {
		t.Errorf("btc updates = %d, want 1", store.updates["p-btc"])
	}
	if len(store.creates) != 1 {
		t.Errorf("creates = %v, want one", store.creates)
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v, want none", res.Errors)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	fetcher := &fakeFetcher{failUntil: map[string]int{"ETH": 3}}
	store := &fakeStore{index: map[string]model.RemoteRecord{
		"ETH": {Symbol: "ETH", PageID: "p-eth"},
	}}
	o := newTestOrchestrator(fetcher, store, Options{Workers: 2, RetryRounds: 5})

	res, err := o.Run(context.Background(), model.TierRealtime, infos("ETH"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fetcher.calls["ETH"] != 3 {
		t.Errorf("fetch attempts = %d, want 3", fetcher.calls["ETH"])
	}
	if res.Success != 1 {
		t.Errorf("success = %d, want 1", res.Success)
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v, want cleared after retry success", res.Errors)
	}
	if store.updates["p-eth"] != 1 {
		t.Errorf("updates = %d, want exactly 1 (no duplicate writes)", store.updates["p-eth"])
	}
}

func TestRunBoundsRetryRounds(t *testing.T) {
	fetcher := &fakeFetcher{failUntil: map[string]int{"ETH": 100}}
	o := newTestOrchestrator(fetcher, &fakeStore{index: map[string]model.RemoteRecord{
		"ETH": {Symbol: "ETH", PageID: "p-eth"},
	}}, Options{Workers: 2, RetryRounds: 5})

	res, err := o.Run(context.Background(), model.TierRealtime, infos("ETH"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// initial pass plus five retry rounds
	if fetcher.calls["ETH"] != 6 {
		t.Errorf("fetch attempts = %d, want 6", fetcher.calls["ETH"])
	}
	if len(res.Errors) != 1 || res.Errors[0].Symbol != "ETH" {
		t.Errorf("errors = %v, want one for ETH", res.Errors)
	}
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	fetcher := &fakeFetcher{permanent: map[string]bool{"GONE": true}}
	o := newTestOrchestrator(fetcher, &fakeStore{}, Options{Workers: 2, RetryRounds: 5})

	res, err := o.Run(context.Background(), model.TierRealtime, infos("GONE"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fetcher.calls["GONE"] != 1 {
		t.Errorf("fetch attempts = %d, want 1", fetcher.calls["GONE"])
	}
	if len(res.Errors) != 1 {
		t.Errorf("errors = %v, want one", res.Errors)
	}
}

func TestRunAbortsOnLockout(t *testing.T) {
	fetcher := &fakeFetcher{lockout: map[string]bool{"BTC": true}}
	o := newTestOrchestrator(fetcher, &fakeStore{index: map[string]model.RemoteRecord{
		"BTC": {Symbol: "BTC", PageID: "p-btc"},
	}}, Options{Workers: 1, RetryRounds: 5})

	res, err := o.Run(context.Background(), model.TierRealtime, infos("BTC"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Aborted {
		t.Fatal("run not aborted on lockout")
	}
	if fetcher.calls["BTC"] != 1 {
		t.Errorf("fetch attempts = %d, want 1 (no retry through a ban)", fetcher.calls["BTC"])
	}
}

func TestRunSkipsBlacklistedSymbols(t *testing.T) {
	fetcher := &fakeFetcher{}
	o := newTestOrchestrator(fetcher, &fakeStore{}, Options{
		Workers:   2,
		Blacklist: map[string]bool{"SCAM": true},
	})

	res, err := o.Run(context.Background(), model.TierRealtime, infos("SCAM", "NEW"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
	if fetcher.calls["SCAM"] != 0 {
		t.Error("blacklisted symbol was fetched")
	}
}

func TestRunRetryCreateDoesNotDuplicatePage(t *testing.T) {
	// Fetch succeeds but the symbol is new; after creation the index must
	// treat it as existing so later passes update instead of re-creating.
	store := &fakeStore{index: map[string]model.RemoteRecord{}}
	store.onCreate = func(pageID string) {
		store.index["NEW"] = model.RemoteRecord{Symbol: "NEW", PageID: pageID}
	}
	o := newTestOrchestrator(&fakeFetcher{}, store, Options{Workers: 1})

	res, err := o.Run(context.Background(), model.TierRealtime, infos("NEW"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Created != 1 || len(store.creates) != 1 {
		t.Errorf("created=%d pages=%v, want exactly one", res.Created, store.creates)
	}

	// A second run against the same orchestrator state must update.
	res2, err := o.Run(context.Background(), model.TierRealtime, infos("NEW"))
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if res2.Success != 1 || res2.Created != 0 {
		t.Errorf("second run success=%d created=%d, want 1 and 0", res2.Success, res2.Created)
	}
	if len(store.creates) != 1 {
		t.Errorf("pages created across runs = %d, want 1", len(store.creates))
	}
}

func TestRunFullTierIsIdempotent(t *testing.T) {
	circ := 1.9e7
	total := 2.1e7
	store := &fakeStore{index: map[string]model.RemoteRecord{
		"BTC": {
			Symbol: "BTC", PageID: "p-btc", Name: "Bitcoin",
			CirculatingSupply: &circ, TotalSupply: &total,
		},
	}}
	o := newTestOrchestrator(&fakeFetcher{}, store, Options{Workers: 1})

	// Two back-to-back full runs against unchanged external data must
	// write identical values, the timestamp aside.
	for i := 0; i < 2; i++ {
		res, err := o.Run(context.Background(), model.TierFull, infos("BTC"))
		if err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
		if res.Success != 1 {
			t.Fatalf("run %d success = %d, want 1", i+1, res.Success)
		}
	}

	if len(store.writes) != 2 {
		t.Fatalf("writes captured = %d, want 2", len(store.writes))
	}
	first := withoutTimestamp(store.writes[0])
	second := withoutTimestamp(store.writes[1])
	if !reflect.DeepEqual(first, second) {
		t.Errorf("consecutive full runs wrote different values:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func withoutTimestamp(props notion.PropertyMap) notion.PropertyMap {
	out := notion.PropertyMap{}
	for k, v := range props {
		if k == notion.PropLastUpdated {
			continue
		}
		out[k] = v
	}
	return out
}

func TestLoadBlacklistForms(t *testing.T) {
	dir := t.TempDir()

	jsonFile := filepath.Join(dir, "bl.json")
	os.WriteFile(jsonFile, []byte(`["scam", "RUG"]`), 0644)
	bl, err := LoadBlacklist(jsonFile)
	if err != nil {
		t.Fatalf("LoadBlacklist json failed: %v", err)
	}
	if !bl["SCAM"] || !bl["RUG"] {
		t.Errorf("json blacklist = %v", bl)
	}

	wrappedFile := filepath.Join(dir, "bl_wrapped.json")
	os.WriteFile(wrappedFile, []byte(`{"blacklist": ["scam", "RUG"]}`), 0644)
	bl, err = LoadBlacklist(wrappedFile)
	if err != nil {
		t.Fatalf("LoadBlacklist wrapped failed: %v", err)
	}
	if !bl["SCAM"] || !bl["RUG"] {
		t.Errorf("wrapped blacklist = %v", bl)
	}

	textFile := filepath.Join(dir, "bl.txt")
	os.WriteFile(textFile, []byte("# excluded\nSCAM\n\nrug\n"), 0644)
	bl, err = LoadBlacklist(textFile)
	if err != nil {
		t.Fatalf("LoadBlacklist text failed: %v", err)
	}
	if !bl["SCAM"] || !bl["RUG"] || len(bl) != 2 {
		t.Errorf("text blacklist = %v", bl)
	}

	bl, err = LoadBlacklist(filepath.Join(dir, "missing.txt"))
	if err != nil || len(bl) != 0 {
		t.Errorf("missing file: bl=%v err=%v, want empty", bl, err)
	}
}
