// Package grpcwriter persists record batches to shard leaders over gRPC.
//
// The writer manages one ClientConn per leader but does not own the wire
// schema: callers supply a PersistFunc built on their generated client, and
// the writer handles connection lifecycle and error classification.
package grpcwriter

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/dvanle/relay/internal/core/domain"
	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
	"github.com/dvanle/relay/internal/infra/transport"
)

// PersistFunc performs the actual persist RPC using a generated client.
type PersistFunc func(ctx context.Context, conn *grpc.ClientConn, s shard.Shard, records []*domain.Record) error

// Config holds the writer's endpoint map and dial settings.
type Config struct {
	// Endpoints maps shard leader IDs to gRPC endpoints.
	Endpoints   map[string]string
	DialTimeout time.Duration
}

// Writer implements transport.Writer over gRPC.
type Writer struct {
	endpoints   map[string]string
	dialTimeout time.Duration
	persist     PersistFunc

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// New creates a gRPC writer.
func New(cfg Config, persist PersistFunc) *Writer {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Writer{
		endpoints:   cfg.Endpoints,
		dialTimeout: timeout,
		persist:     persist,
		conns:       make(map[string]*grpc.ClientConn),
	}
}

// WriteRecords invokes the persist RPC on the shard leader's connection and
// classifies the resulting status code.
func (w *Writer) WriteRecords(ctx context.Context, s shard.Shard, records []*domain.Record) error {
	conn, err := w.conn(ctx, s.LeaderID)
	if err != nil {
		return err
	}
	return ClassifyRPCError(w.persist(ctx, conn, s, records))
}

// conn returns the cached connection for the leader, dialing on first use.
func (w *Writer) conn(ctx context.Context, leaderID string) (*grpc.ClientConn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if conn, ok := w.conns[leaderID]; ok {
		return conn, nil
	}

	endpoint, ok := w.endpoints[leaderID]
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", transport.ErrUnknownLeader, leaderID))
	}

	// Parse endpoint to determine if TLS is needed
	target := endpoint
	var opts []grpc.DialOption
	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	dialCtx, cancel := context.WithTimeout(ctx, w.dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...)
	if err != nil {
		// Dial failures are connectivity problems, worth retrying.
		return nil, retry.Transient(fmt.Errorf("dial grpc endpoint %s: %w", target, err))
	}

	w.conns[leaderID] = conn
	return conn, nil
}

// Close closes all leader connections.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for leaderID, conn := range w.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.conns, leaderID)
	}
	return firstErr
}

// ClassifyRPCError converts a gRPC error into a transient or permanent retry
// classification. Codes that signal load or connectivity problems are
// transient; everything else will fail again unchanged.
func ClassifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Unknown:
		return retry.Transient(err)
	default:
		return retry.Permanent(err)
	}
}
