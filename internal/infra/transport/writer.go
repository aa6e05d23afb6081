// Package transport defines how record batches reach shard leaders. Writers
// return errors already classified as transient or permanent so the caller's
// retry executor can act on them directly.
package transport

import (
	"context"
	"errors"

	"github.com/dvanle/relay/internal/core/domain"
	"github.com/dvanle/relay/internal/ingest/shard"
)

// ErrUnknownLeader is returned when a shard's leader ID has no configured
// endpoint. Retrying cannot fix a missing mapping, so writers surface it as
// permanent.
var ErrUnknownLeader = errors.New("unknown shard leader")

// Writer persists a batch of records on a specific shard.
type Writer interface {
	// WriteRecords writes records to the shard's leader. Records in one call
	// share the shard and keep their order.
	WriteRecords(ctx context.Context, s shard.Shard, records []*domain.Record) error

	// Close releases transport resources.
	Close() error
}
