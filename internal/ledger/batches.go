package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spritebatch/internal/batch"
	"spritebatch/internal/services"
)

// RecordBatch stores the terminal result of one batch and bumps its attempt
// count. Skipped batches were never dispatched, so their attempts stay put.
func (s *Store) RecordBatch(ctx context.Context, runID string, result batch.Result) error {
	var kind, message string
	if result.Err != nil {
		kind = services.Classify(result.Err)
		message = result.Err.Error()
	}
	attemptDelta := 1
	if result.Status == batch.StatusSkipped {
		attemptDelta = 0
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE batches SET status = ?, detected = ?, dir = ?, error_kind = ?, error_message = ?,
            attempts = attempts + ?, updated_at = ?
         WHERE run_id = ? AND batch_index = ?`,
		string(result.Status), boolToInt(result.Detected), nullableString(result.Dir),
		nullableString(kind), nullableString(message), attemptDelta, formatTime(time.Now()),
		runID, result.Index,
	)
	if err != nil {
		return fmt.Errorf("record batch %d: %w", result.Index, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record batch %d: %w: %s", result.Index, ErrNotFound, runID)
	}
	return nil
}

// Batches returns every batch of a run in index order with its image list.
func (s *Store) Batches(ctx context.Context, runID string) ([]BatchRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_index, status, image_count, detected, dir, error_kind, error_message, attempts, updated_at
         FROM batches WHERE run_id = ? ORDER BY batch_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	var records []BatchRecord
	for rows.Next() {
		var (
			rec        BatchRecord
			status     string
			detected   int
			dir        sql.NullString
			kind       sql.NullString
			message    sql.NullString
			updatedRaw sql.NullString
		)
		if err := rows.Scan(&rec.Index, &status, &rec.ImageCount, &detected, &dir, &kind, &message, &rec.Attempts, &updatedRaw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		rec.RunID = runID
		rec.Status = batch.Status(status)
		rec.Detected = detected != 0
		rec.Dir = dir.String
		rec.ErrorKind = kind.String
		rec.ErrorMessage = message.String
		rec.UpdatedAt = parseTime(updatedRaw)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	rows.Close()

	images, err := s.images(ctx, runID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Images = images[records[i].Index]
	}
	return records, nil
}

// RetryableBatches returns the failed, skipped, and still-pending batches of a
// run with their original indices and image lists.
func (s *Store) RetryableBatches(ctx context.Context, runID string) ([]batch.Batch, error) {
	records, err := s.Batches(ctx, runID)
	if err != nil {
		return nil, err
	}
	var out []batch.Batch
	for _, rec := range records {
		if rec.Status.Retryable() || rec.Status == StatusPending {
			out = append(out, rec.Batch())
		}
	}
	return out, nil
}

func (s *Store) images(ctx context.Context, runID string) (map[int][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_index, path FROM batch_images WHERE run_id = ? ORDER BY batch_index, position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query batch images: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]string)
	for rows.Next() {
		var (
			index int
			path  string
		)
		if err := rows.Scan(&index, &path); err != nil {
			return nil, fmt.Errorf("scan batch image: %w", err)
		}
		out[index] = append(out[index], path)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
