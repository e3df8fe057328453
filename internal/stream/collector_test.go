package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Wsquare5/notion-dashboard/logger"
)

func TestIngestMiniTickerArray(t *testing.T) {
	c := NewCollector("", time.Minute, logger.GetLogger())
	fixed := time.Unix(1700000000, 0)
	c.now = func() time.Time { return fixed }

	c.ingest([]byte(`[
		{"e":"24hrMiniTicker","s":"BTCUSDT","c":"65000","o":"63000","q":"1200000000"},
		{"e":"24hrMiniTicker","s":"ETHUSDT","c":"3200","o":"3200","q":"900000000"}
	]`))

	price, change, volume, ok := c.Ticker("BTCUSDT")
	if !ok {
		t.Fatal("BTCUSDT not cached")
	}
	if price != 65000 || volume != 1200000000 {
		t.Errorf("price=%v volume=%v", price, volume)
	}
	wantChange := (65000.0 - 63000.0) / 63000.0 * 100
	if change != wantChange {
		t.Errorf("change = %v, want %v", change, wantChange)
	}

	if _, _, _, ok := c.Ticker("SOLUSDT"); ok {
		t.Error("unknown pair reported as cached")
	}
}

func TestTickerExpiresAfterMaxAge(t *testing.T) {
	c := NewCollector("", 30*time.Second, logger.GetLogger())
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	c.ingest([]byte(`[{"e":"24hrMiniTicker","s":"BTCUSDT","c":"65000","o":"63000","q":"1"}]`))

	now = now.Add(29 * time.Second)
	if _, _, _, ok := c.Ticker("BTCUSDT"); !ok {
		t.Error("fresh point reported stale")
	}

	now = now.Add(2 * time.Second)
	if _, _, _, ok := c.Ticker("BTCUSDT"); ok {
		t.Error("stale point still served")
	}
}

func TestIngestSkipsMalformedEntries(t *testing.T) {
	c := NewCollector("", time.Minute, logger.GetLogger())
	c.ingest([]byte(`[{"e":"24hrMiniTicker","s":"BTCUSDT","c":"not-a-number","o":"1","q":"1"}]`))
	if _, _, _, ok := c.Ticker("BTCUSDT"); ok {
		t.Error("malformed price cached")
	}
	c.ingest([]byte(`{invalid json`))
}

func TestCollectorReadsFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"e":"24hrMiniTicker","s":"BTCUSDT","c":"65000","o":"63000","q":"5"}]`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	c := NewCollector(url, time.Minute, logger.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if price, _, _, ok := c.Ticker("BTCUSDT"); ok {
			if price != 65000 {
				t.Errorf("price = %v, want 65000", price)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("ticker never arrived from stream")
}
