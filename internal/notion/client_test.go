package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Wsquare5/notion-dashboard/config"
	"github.com/Wsquare5/notion-dashboard/logger"
)

func newTestNotionClient(serverURL string) *Client {
	c := NewClient(config.NotionConfig{
		APIKey:      "secret",
		DatabaseID:  "db1",
		BaseURL:     serverURL,
		Version:     "2022-06-28",
		Timeout:     5 * time.Second,
		PageRetries: 3,
	}, logger.GetLogger())
	c.sleep = func(time.Duration) {}
	return c
}

func pageJSON(id, symbol string, spotPrice float64) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"last_edited_time": "2026-08-30T12:00:00.000Z",
		"properties": map[string]interface{}{
			"Symbol": map[string]interface{}{
				"type":  "title",
				"title": []map[string]interface{}{{"plain_text": symbol}},
			},
			"Spot Price": map[string]interface{}{
				"type":   "number",
				"number": spotPrice,
			},
			"Data Status": map[string]interface{}{
				"type":   "select",
				"select": map[string]interface{}{"name": "complete"},
			},
		},
	}
}

func TestQueryAllPaginates(t *testing.T) {
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/db1/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Notion-Version"); got != "2022-06-28" {
			t.Errorf("version header = %q", got)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		cursor, _ := body["start_cursor"].(string)
		cursors = append(cursors, cursor)

		switch cursor {
		case "":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"results":     []interface{}{pageJSON("p1", "BTC", 65000)},
				"has_more":    true,
				"next_cursor": "c2",
			})
		case "c2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"results":  []interface{}{pageJSON("p2", "ETH", 3200)},
				"has_more": false,
			})
		}
	}))
	defer server.Close()

	pages, err := newTestNotionClient(server.URL).QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	if len(cursors) != 2 || cursors[1] != "c2" {
		t.Errorf("cursors = %v", cursors)
	}
}

func TestQueryAllRetriesFailedPage(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results":  []interface{}{pageJSON("p1", "BTC", 65000)},
			"has_more": false,
		})
	}))
	defer server.Close()

	pages, err := newTestNotionClient(server.URL).QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(pages) != 1 {
		t.Errorf("pages = %d, want 1", len(pages))
	}
}

func TestUpdatePageSendsPartialProperties(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/pages/p1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, "{}")
	}))
	defer server.Close()

	props := PropertyMap{
		PropPerpPrice: Number(65000),
		PropFunding:   Number(0.0001),
	}
	if err := newTestNotionClient(server.URL).UpdatePage(context.Background(), "p1", props); err != nil {
		t.Fatalf("UpdatePage failed: %v", err)
	}

	sent, ok := captured["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("no properties in body: %v", captured)
	}
	if len(sent) != 2 {
		t.Errorf("properties sent = %d, want 2 (partial update)", len(sent))
	}
	if _, present := sent[PropSpotPrice]; present {
		t.Error("untouched property included in patch")
	}
}

func TestCreatePageReturnsID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		parent, _ := body["parent"].(map[string]interface{})
		if parent["database_id"] != "db1" {
			t.Errorf("parent = %v", parent)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "new-page"})
	}))
	defer server.Close()

	id, err := newTestNotionClient(server.URL).CreatePage(context.Background(), PropertyMap{
		PropSymbol: Title("BTC"),
	})
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}
	if id != "new-page" {
		t.Errorf("id = %q, want new-page", id)
	}
}

func TestWriteDoesNotRetryValidationErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": 400, "code": "validation_error", "message": "bad property",
		})
	}))
	defer server.Close()

	err := newTestNotionClient(server.URL).UpdatePage(context.Background(), "p1", PropertyMap{})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (validation errors are permanent)", attempts)
	}
}

func TestLoadIndexKeysBySymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		empty := pageJSON("p3", "", 0)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results":  []interface{}{pageJSON("p1", "BTC", 65000), pageJSON("p2", "ETH", 3200), empty},
			"has_more": false,
		})
	}))
	defer server.Close()

	index, err := newTestNotionClient(server.URL).LoadIndex(context.Background())
	if err != nil {
		t.Fatalf("LoadIndex failed: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("index size = %d, want 2 (empty title dropped)", len(index))
	}
	btc := index["BTC"]
	if btc.PageID != "p1" {
		t.Errorf("btc page id = %q, want p1", btc.PageID)
	}
	if btc.SpotPrice == nil || *btc.SpotPrice != 65000 {
		t.Errorf("btc spot price = %v, want 65000", btc.SpotPrice)
	}
	if btc.Status != "complete" {
		t.Errorf("btc status = %q, want complete", btc.Status)
	}
}
