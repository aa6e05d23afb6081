// Package controlplane fetches shard metadata from the ingestion cluster's
// control plane and keeps the local shard table in sync with it.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
)

// ShardLister lists the shards of one (index, source) pair.
type ShardLister interface {
	ListShards(ctx context.Context, indexID, sourceID string) ([]shard.Shard, error)
}

// Config holds control-plane connection settings.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client is an HTTP client for the control plane's shard-metadata API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a control-plane client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type shardDoc struct {
	ShardID  int64  `json:"shard_id"`
	LeaderID string `json:"leader_id"`
	State    string `json:"state"`
	IndexUID string `json:"index_uid"`
}

type listShardsResponse struct {
	Shards []shardDoc `json:"shards"`
}

// ListShards fetches the current shard set for the pair. Errors carry a retry
// classification: connectivity and server-side failures are transient, a
// rejected request is permanent.
func (c *Client) ListShards(ctx context.Context, indexID, sourceID string) ([]shard.Shard, error) {
	url := fmt.Sprintf("%s/api/v1/indexes/%s/sources/%s/shards", c.baseURL, indexID, sourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("list shards: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		herr := fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Transient(herr)
		}
		return nil, retry.Permanent(herr)
	}

	var listResp listShardsResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, retry.Transient(fmt.Errorf("parse response: %w", err))
	}

	shards := make([]shard.Shard, 0, len(listResp.Shards))
	for _, doc := range listResp.Shards {
		state, err := shard.ParseState(doc.State)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("shard %d: %w", doc.ShardID, err))
		}
		shards = append(shards, shard.Shard{
			ShardID:  doc.ShardID,
			LeaderID: doc.LeaderID,
			State:    state,
			IndexUID: doc.IndexUID,
		})
	}
	return shards, nil
}

// Close cleans up resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
