package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dvanle/relay/internal/core/domain"
)

// OutboxRepo implements storage.OutboxRepository on PostgreSQL.
type OutboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepo(db *DB) *OutboxRepo {
	return &OutboxRepo{db: db.DB}
}

func (r *OutboxRepo) Add(ctx context.Context, record *domain.Record) error {
	query := `
		INSERT INTO outbox_records (id, index_id, source_id, payload, status, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.IndexID, record.SourceID, record.Payload,
		record.Status, record.Attempts, record.LastError, record.CreatedAt,
	)
	return err
}

// ClaimBatch claims the oldest pending records of a route in one statement.
// SKIP LOCKED lets concurrent pumps claim disjoint batches.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, indexID, sourceID string, limit int) ([]*domain.Record, error) {
	query := `
		UPDATE outbox_records
		SET status = 'publishing', attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_records
			WHERE index_id = $1 AND source_id = $2 AND status = 'pending'
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, index_id, source_id, payload, status, attempts, last_error, created_at
	`
	rows, err := r.db.QueryxContext(ctx, query, indexID, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE outbox_records SET status = 'published', updated_at = NOW() WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE outbox_records SET status = 'failed', last_error = ?, updated_at = NOW() WHERE id IN (?)`,
		reason, ids)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

// Requeue moves failed and stuck publishing records of a route back to
// pending so the pump picks them up again.
func (r *OutboxRepo) Requeue(ctx context.Context, indexID, sourceID string) (int64, error) {
	return r.requeue(ctx, indexID, sourceID, []string{"failed", "publishing"})
}

// RequeueStuck resets only records a previous run claimed but never settled.
// Failed records stay failed; they were parked in the dead-letter queue and
// come back only through an explicit Requeue.
func (r *OutboxRepo) RequeueStuck(ctx context.Context, indexID, sourceID string) (int64, error) {
	return r.requeue(ctx, indexID, sourceID, []string{"publishing"})
}

func (r *OutboxRepo) requeue(ctx context.Context, indexID, sourceID string, statuses []string) (int64, error) {
	query, args, err := sqlx.In(
		`UPDATE outbox_records SET status = 'pending', updated_at = NOW()
		 WHERE index_id = ? AND source_id = ? AND status IN (?)`,
		indexID, sourceID, statuses)
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepo) CountPending(ctx context.Context, indexID, sourceID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM outbox_records WHERE index_id = $1 AND source_id = $2 AND status = 'pending'`
	if err := r.db.GetContext(ctx, &count, query, indexID, sourceID); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}
