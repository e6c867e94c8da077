package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"spritebatch/internal/batch"
)

const runColumns = "id, root_dir, output_dir, endpoint, batch_size, workers, status, total_images, total_batches, archive_path, published_url, error_message, attempts, started_at, finished_at"

// CreateRun records a new run together with its planned batches, all pending.
func (s *Store) CreateRun(ctx context.Context, run Run, planned []batch.Batch) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("create run: empty id")
	}
	status := run.Status
	if status == "" {
		status = RunRunning
	}
	started := formatTime(run.StartedAt)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (
                id, root_dir, output_dir, endpoint, batch_size, workers, status,
                total_images, total_batches, attempts, started_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			run.ID, run.RootDir, run.OutputDir, run.Endpoint, run.BatchSize, max(run.Workers, 1), string(status),
			run.TotalImages, len(planned), started,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, b := range planned {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO batches (run_id, batch_index, status, image_count, updated_at) VALUES (?, ?, ?, ?, ?)`,
				run.ID, b.Index, string(StatusPending), len(b.Images), started,
			); err != nil {
				return fmt.Errorf("insert batch %d: %w", b.Index, err)
			}
			for pos, path := range b.Images {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO batch_images (run_id, batch_index, position, path) VALUES (?, ?, ?, ?)`,
					run.ID, b.Index, pos, path,
				); err != nil {
					return fmt.Errorf("insert image for batch %d: %w", b.Index, err)
				}
			}
		}
		return nil
	})
}

// GetRun fetches a run by full id or unique id prefix.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\\' ORDER BY id LIMIT 2",
		id, escapeLike(id)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FinishRun records the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, finish Finish) error {
	var message string
	if finish.Err != nil {
		message = finish.Err.Error()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, archive_path = ?, published_url = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		string(finish.Status), nullableString(finish.ArchivePath), nullableString(finish.PublishedURL),
		nullableString(message), formatTime(finish.FinishedAt), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRow(res, id)
}

// BeginRetry marks a finished run as running again and bumps its attempt count.
func (s *Store) BeginRetry(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, attempts = attempts + 1, error_message = NULL, finished_at = NULL WHERE id = ?`,
		string(RunRunning), id,
	)
	if err != nil {
		return fmt.Errorf("begin retry: %w", err)
	}
	return requireRow(res, id)
}

// Prune deletes runs started before cutoff along with their batches.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		status       string
		archivePath  sql.NullString
		publishedURL sql.NullString
		errorMessage sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.RootDir,
		&run.OutputDir,
		&run.Endpoint,
		&run.BatchSize,
		&run.Workers,
		&status,
		&run.TotalImages,
		&run.TotalBatches,
		&archivePath,
		&publishedURL,
		&errorMessage,
		&run.Attempts,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.ArchivePath = archivePath.String
	run.PublishedURL = publishedURL.String
	run.ErrorMessage = errorMessage.String
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	return &run, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
