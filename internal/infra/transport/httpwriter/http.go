// Package httpwriter persists record batches to shard leaders over JSON/HTTP.
package httpwriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvanle/relay/internal/core/domain"
	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
	"github.com/dvanle/relay/internal/infra/transport"
)

// Config holds the writer's endpoint map and timeouts.
type Config struct {
	// Endpoints maps shard leader IDs to base URLs.
	Endpoints map[string]string
	Timeout   time.Duration
}

// Writer implements transport.Writer over HTTP.
type Writer struct {
	endpoints  map[string]string
	httpClient *http.Client
}

// New creates an HTTP writer.
func New(cfg Config) *Writer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Writer{
		endpoints: cfg.Endpoints,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type persistRequest struct {
	Records []persistRecord `json:"records"`
}

type persistRecord struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// WriteRecords POSTs the batch to the shard leader's persist endpoint.
// Network failures, 429 and 5xx responses come back transient; any other
// non-2xx response is permanent.
func (w *Writer) WriteRecords(ctx context.Context, s shard.Shard, records []*domain.Record) error {
	endpoint, ok := w.endpoints[s.LeaderID]
	if !ok {
		return retry.Permanent(fmt.Errorf("%w: %s", transport.ErrUnknownLeader, s.LeaderID))
	}

	body := persistRequest{Records: make([]persistRecord, len(records))}
	for i, r := range records {
		body.Records[i] = persistRecord{ID: r.ID.String(), Payload: r.Payload}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/api/v1/shards/%s/%d/records", endpoint, s.IndexUID, s.ShardID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		// Connection resets, timeouts and DNS hiccups are all worth retrying.
		return retry.Transient(fmt.Errorf("persist call: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	werr := fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.Transient(werr)
	}
	return retry.Permanent(werr)
}

// Close cleans up resources.
func (w *Writer) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}
