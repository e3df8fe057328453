package stream

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Wsquare5/notion-dashboard/logger"
)

// miniTickerEvent is one entry of the !miniTicker@arr stream. Prices come
// string encoded like the REST API.
type miniTickerEvent struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	ClosePrice  string `json:"c"`
	OpenPrice   string `json:"o"`
	QuoteVolume string `json:"q"`
}

type tickerPoint struct {
	price       float64
	changePct   float64
	quoteVolume float64
	at          time.Time
}

// Collector keeps the latest ticker per pair from the futures miniTicker
// stream. When a point is fresh enough the REST ticker call can be skipped,
// which is worth 40 weight per symbol at realtime tier.
type Collector struct {
	url    string
	maxAge time.Duration
	log    *logger.Entry

	mu     sync.RWMutex
	points map[string]tickerPoint

	now func() time.Time
}

func NewCollector(url string, maxAge time.Duration, log *logger.Log) *Collector {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &Collector{
		url:    url,
		maxAge: maxAge,
		log:    log.WithComponent("stream"),
		points: make(map[string]tickerPoint),
		now:    time.Now,
	}
}

// Start runs the read loop until ctx is cancelled, reconnecting with
// backoff on any failure.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		backoff := time.Second
		for ctx.Err() == nil {
			if err := c.readLoop(ctx); err != nil && ctx.Err() == nil {
				c.log.WithError(err).Warn("ticker stream disconnected, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (c *Collector) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.WithFields(logger.Fields{"url": c.url}).Info("ticker stream connected")

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(3 * time.Minute))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.ingest(data)
	}
}

func (c *Collector) ingest(data []byte) {
	var events []miniTickerEvent
	if err := json.Unmarshal(data, &events); err != nil {
		// Single-event frames arrive outside the @arr stream.
		var one miniTickerEvent
		if err := json.Unmarshal(data, &one); err != nil {
			c.log.WithError(err).Debug("unparseable stream frame")
			return
		}
		events = []miniTickerEvent{one}
	}

	now := c.now()
	c.mu.Lock()
	for _, ev := range events {
		if ev.Symbol == "" {
			continue
		}
		last, err := strconv.ParseFloat(ev.ClosePrice, 64)
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(ev.OpenPrice, 64)
		volume, _ := strconv.ParseFloat(ev.QuoteVolume, 64)

		p := tickerPoint{price: last, quoteVolume: volume, at: now}
		if open > 0 {
			p.changePct = (last - open) / open * 100
		}
		c.points[ev.Symbol] = p
	}
	c.mu.Unlock()
}

// Ticker returns the latest price, 24h change percent and quote volume for
// a pair, or ok=false when nothing fresh enough is known.
func (c *Collector) Ticker(pair string) (price, changePct, quoteVolume float64, ok bool) {
	c.mu.RLock()
	p, found := c.points[pair]
	c.mu.RUnlock()

	if !found || c.now().Sub(p.at) > c.maxAge {
		return 0, 0, 0, false
	}
	return p.price, p.changePct, p.quoteVolume, true
}
