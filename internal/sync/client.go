package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/just-nadir/justpos-sync/internal/config"
)

// Client talks to the cloud sync API on behalf of one store.
type Client struct {
	baseURL string
	storeID string
	token   string
	http    *http.Client
}

func NewClient(cfg config.StoreConfig) *Client {
	return &Client{
		baseURL: cfg.APIURL,
		storeID: cfg.ID,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Push submits a batch of changes. Any non-success response means the
// batch was not applied and must be retried unchanged.
func (c *Client) Push(ctx context.Context, changes []Change) error {
	body, err := json.Marshal(PushRequest{StoreID: c.storeID, Changes: changes})
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/sync/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	var pushResp PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return fmt.Errorf("push response status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !pushResp.Success {
		return fmt.Errorf("push rejected (status %d): %s", resp.StatusCode, pushResp.Error)
	}
	return nil
}

// Pull requests every change past since for this store.
func (c *Client) Pull(ctx context.Context, since int64) (*PullResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/sync/pull", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("last_pulled_at", strconv.FormatInt(since, 10))
	q.Set("store_id", c.storeID)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	var pullResp PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&pullResp); err != nil {
		return nil, fmt.Errorf("pull response status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !pullResp.Success {
		return nil, fmt.Errorf("pull rejected (status %d): %s", resp.StatusCode, pullResp.Error)
	}
	return &pullResp, nil
}
