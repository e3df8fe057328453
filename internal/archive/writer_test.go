package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "github.com/Wsquare5/notion-dashboard/config"
	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/logger"
)

func TestFlushWritesLocalParquet(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(context.Background(), appconfig.ArchiveConfig{Dir: dir}, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	w.Record(&model.MarketSnapshot{
		Symbol:    "BTC",
		Perp:      &model.PerpTicker{Price: 65000, Volume24h: 1e9},
		MarkPrice: 65010,
		FetchedAt: time.Now(),
	})
	w.Record(&model.MarketSnapshot{
		Symbol:    "ETH",
		Spot:      &model.SpotTicker{Price: 3200, Volume24h: 5e8},
		FetchedAt: time.Now(),
	})

	if err := w.Flush(context.Background(), "run-1"); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*", "run-1.parquet"))
	if len(matches) != 1 {
		t.Fatalf("archive files = %v, want one", matches)
	}
	info, err := os.Stat(matches[0])
	if err != nil || info.Size() == 0 {
		t.Errorf("archive file empty or missing: %v", err)
	}
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(context.Background(), appconfig.ArchiveConfig{Dir: dir}, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Flush(context.Background(), "run-2"); err != nil {
		t.Errorf("Flush of empty buffer failed: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*", "*.parquet"))
	if len(matches) != 0 {
		t.Errorf("files written for empty run: %v", matches)
	}
}
