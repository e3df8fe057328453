package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Wsquare5/notion-dashboard/config"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// Client wraps the Notion REST API. Writes are serialized through a mutex;
// the API rejects concurrent mutations of the same database with conflict
// errors, and the write path is not the bottleneck anyway.
type Client struct {
	baseURL    string
	apiKey     string
	version    string
	databaseID string
	retries    int
	interval   time.Duration
	http       *http.Client
	log        *logger.Entry

	writeMu   sync.Mutex
	lastWrite time.Time
	sleep     func(time.Duration)
}

func NewClient(cfg config.NotionConfig, log *logger.Log) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		version:    cfg.Version,
		databaseID: cfg.DatabaseID,
		retries:    cfg.PageRetries,
		interval:   cfg.WriteInterval,
		http:       &http.Client{Timeout: cfg.Timeout},
		log:        log.WithComponent("notion"),
		sleep:      time.Sleep,
	}
}

// Page is one row of the database as returned by the query endpoint.
type Page struct {
	ID             string                      `json:"id"`
	LastEditedTime time.Time                   `json:"last_edited_time"`
	Properties     map[string]propertyEnvelope `json:"properties"`
}

type queryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type apiErrorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueryAll walks the database page by page and returns every row. Each
// request retries independently, so a transient failure deep into a large
// database does not restart the walk.
func (c *Client) QueryAll(ctx context.Context) ([]Page, error) {
	var all []Page
	var cursor *string

	for {
		body := map[string]interface{}{"page_size": 100}
		if cursor != nil {
			body["start_cursor"] = *cursor
		}

		var resp queryResponse
		err := c.withRetry(ctx, func() error {
			return c.do(ctx, http.MethodPost, fmt.Sprintf("/databases/%s/query", c.databaseID), body, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("database query failed after %d pages: %w", len(all)/100, err)
		}

		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = resp.NextCursor
	}

	c.log.WithFields(logger.Fields{"pages": len(all)}).Info("database query complete")
	return all, nil
}

// UpdatePage patches the given properties on an existing page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, props PropertyMap) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.paceWrite()

	body := map[string]interface{}{"properties": props}
	return c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, nil)
	})
}

// CreatePage inserts a new row and returns its page id.
func (c *Client) CreatePage(ctx context.Context, props PropertyMap) (string, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.paceWrite()

	body := map[string]interface{}{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": props,
	}
	var created struct {
		ID string `json:"id"`
	}
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/pages", body, &created)
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) paceWrite() {
	if c.interval <= 0 {
		return
	}
	if wait := c.interval - time.Since(c.lastWrite); wait > 0 {
		c.sleep(wait)
	}
	c.lastWrite = time.Now()
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		c.log.WithFields(logger.Fields{"attempt": attempt + 1}).WithError(err).Warn("notion request failed, retrying")
	}
	return err
}

type requestError struct {
	status int
	code   string
	msg    string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("notion http %d (%s): %s", e.status, e.code, e.msg)
}

func isTransient(err error) bool {
	if re, ok := err.(*requestError); ok {
		return re.status == http.StatusTooManyRequests ||
			re.status == http.StatusConflict ||
			re.status >= 500
	}
	// Network level failures are worth a retry.
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorBody
		_ = json.Unmarshal(data, &apiErr)
		return &requestError{status: resp.StatusCode, code: apiErr.Code, msg: apiErr.Message}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("notion decode: %w", err)
		}
	}
	return nil
}
