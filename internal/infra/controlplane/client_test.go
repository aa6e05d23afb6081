package controlplane

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
)

func TestListShards(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"shards":[
			{"shard_id":1,"leader_id":"node-1","state":"open","index_uid":"logs:0"},
			{"shard_id":2,"leader_id":"node-2","state":"closed","index_uid":"logs:0"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	defer c.Close()

	shards, err := c.ListShards(context.Background(), "logs", "kafka")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/api/v1/indexes/logs/sources/kafka/shards" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if len(shards) != 2 {
		t.Fatalf("expected 2 shards, got %d", len(shards))
	}
	if shards[0].ShardID != 1 || shards[0].State != shard.StateOpen || shards[0].LeaderID != "node-1" {
		t.Errorf("unexpected first shard: %+v", shards[0])
	}
	if shards[1].State != shard.StateClosed {
		t.Errorf("expected second shard closed, got %v", shards[1].State)
	}
}

func TestListShardsErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c := NewClient(Config{URL: srv.URL})
		_, err := c.ListShards(context.Background(), "logs", "kafka")
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
		} else if retry.IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, retry.IsRetryable(err), tt.retryable)
		}

		c.Close()
		srv.Close()
	}
}

func TestListShardsRejectsUnknownState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"shards":[{"shard_id":1,"leader_id":"node-1","state":"draining","index_uid":"logs:0"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	defer c.Close()

	_, err := c.ListShards(context.Background(), "logs", "kafka")
	if err == nil {
		t.Fatal("expected error for unknown shard state")
	}
	if retry.IsRetryable(err) {
		t.Error("unknown state should be permanent")
	}
}
