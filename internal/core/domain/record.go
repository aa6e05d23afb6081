// Package domain holds the core types shared across the relay.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus tracks a record's progress through the outbox.
type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusPublishing RecordStatus = "publishing"
	StatusPublished  RecordStatus = "published"
	StatusFailed     RecordStatus = "failed"
)

// Record is one outbox row waiting to be published into the ingestion
// cluster. IndexID and SourceID select the shard set it is routed through.
type Record struct {
	ID        uuid.UUID    `db:"id"         json:"id"`
	IndexID   string       `db:"index_id"   json:"index_id"`
	SourceID  string       `db:"source_id"  json:"source_id"`
	Payload   []byte       `db:"payload"    json:"payload"`
	Status    RecordStatus `db:"status"     json:"status"`
	Attempts  int          `db:"attempts"   json:"attempts"`
	LastError string       `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// NewRecord creates a pending record for the given route.
func NewRecord(indexID, sourceID string, payload []byte) *Record {
	return &Record{
		ID:        uuid.New(),
		IndexID:   indexID,
		SourceID:  sourceID,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// DeadRecord is a record parked in the dead-letter queue after a permanent
// failure or retry exhaustion.
type DeadRecord struct {
	Record   *Record   `json:"record"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
