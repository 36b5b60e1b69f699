package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roofmanager/fieldsync/internal/domain"
)

// SyncRunStore is the append-only history of sync attempts.
type SyncRunStore struct {
	db *sql.DB
}

func NewSyncRunStore(db *sql.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

func (s *SyncRunStore) Create(ctx context.Context, run *domain.SyncRun) error {
	var finished *string
	if run.FinishedAt != nil {
		f := formatTime(*run.FinishedAt)
		finished = &f
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, started_at, finished_at, jobs_fetched, pushed, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), finished, run.JobsFetched, run.Pushed, run.Failed, run.Error)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}

	return nil
}

// List returns up to limit runs, newest first.
func (s *SyncRunStore) List(ctx context.Context, limit int) ([]*domain.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, jobs_fetched, pushed, failed, error FROM sync_runs
		ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var runs []*domain.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

// Latest returns the most recent run, or nil if nothing has been recorded.
func (s *SyncRunStore) Latest(ctx context.Context) (*domain.SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, jobs_fetched, pushed, failed, error FROM sync_runs
		ORDER BY started_at DESC LIMIT 1
	`)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row rowScanner) (*domain.SyncRun, error) {
	run := &domain.SyncRun{}
	var started string
	var finished sql.NullString
	err := row.Scan(&run.ID, &started, &finished, &run.JobsFetched, &run.Pushed, &run.Failed, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return run, nil
}

// Timestamps are stored as fixed-width UTC RFC 3339 so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
