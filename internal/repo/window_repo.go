package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Formata/internal/domain"
)

// WindowRepo — репозиторий для работы с окнами отправки.
type WindowRepo struct {
	pool *pgxpool.Pool
}

// NewWindowRepo создаёт WindowRepo.
func NewWindowRepo(pool *pgxpool.Pool) *WindowRepo {
	return &WindowRepo{pool: pool}
}

// Create создаёт новое окно отправки.
func (r *WindowRepo) Create(ctx context.Context, window *domain.SubmissionWindow) error {
	query := `
		INSERT INTO submission_windows (id, profile_id, platform, name, cron_expr,
		                                interval_sec, timezone, batch_size, enabled,
		                                next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		window.ID,
		window.ProfileID,
		nullString(window.Platform),
		nullString(window.Name),
		nullString(window.CronExpr),
		nullInt(window.IntervalSec),
		window.Timezone,
		nullInt(window.BatchSize),
		window.Enabled,
		window.NextDueAt,
		window.CreatedAt,
		window.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission window: %w", err)
	}
	return nil
}

// GetByID возвращает окно по ID.
func (r *WindowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SubmissionWindow, error) {
	query := `
		SELECT id, profile_id, platform, name, cron_expr, interval_sec, timezone,
		       batch_size, enabled, next_due_at, last_run_at, created_at, updated_at
		FROM submission_windows
		WHERE id = $1
	`
	return scanWindow(r.pool.QueryRow(ctx, query, id))
}

// List возвращает список окон с фильтрацией.
func (r *WindowRepo) List(ctx context.Context, filter WindowFilter) ([]domain.SubmissionWindow, error) {
	query := `
		SELECT id, profile_id, platform, name, cron_expr, interval_sec, timezone,
		       batch_size, enabled, next_due_at, last_run_at, created_at, updated_at
		FROM submission_windows
		WHERE ($1::uuid IS NULL OR profile_id = $1)
		  AND ($2::boolean IS NULL OR enabled = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.ProfileID),
		filter.Enabled,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list submission windows: %w", err)
	}
	defer rows.Close()

	var windows []domain.SubmissionWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, *w)
	}
	return windows, rows.Err()
}

// ListDue возвращает окна, которые пора открыть.
func (r *WindowRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SubmissionWindow, error) {
	query := `
		SELECT id, profile_id, platform, name, cron_expr, interval_sec, timezone,
		       batch_size, enabled, next_due_at, last_run_at, created_at, updated_at
		FROM submission_windows
		WHERE enabled = true
		  AND next_due_at IS NOT NULL
		  AND next_due_at <= $1
		ORDER BY next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due submission windows: %w", err)
	}
	defer rows.Close()

	var windows []domain.SubmissionWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, *w)
	}
	return windows, rows.Err()
}

// Update обновляет окно.
func (r *WindowRepo) Update(ctx context.Context, window *domain.SubmissionWindow) error {
	query := `
		UPDATE submission_windows
		SET platform = $2, name = $3, cron_expr = $4, interval_sec = $5,
		    timezone = $6, batch_size = $7, enabled = $8, next_due_at = $9,
		    last_run_at = $10, updated_at = $11
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		window.ID,
		nullString(window.Platform),
		nullString(window.Name),
		nullString(window.CronExpr),
		nullInt(window.IntervalSec),
		window.Timezone,
		nullInt(window.BatchSize),
		window.Enabled,
		window.NextDueAt,
		window.LastRunAt,
		window.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update submission window: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет окно.
func (r *WindowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM submission_windows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission window: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает/выключает окно.
func (r *WindowRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE submission_windows SET enabled = $2, updated_at = NOW() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// WindowFilter — параметры фильтрации окон.
type WindowFilter struct {
	ProfileID *uuid.UUID
	Enabled   *bool
	Limit     int
	Offset    int
}

func scanWindow(row pgx.Row) (*domain.SubmissionWindow, error) {
	var w domain.SubmissionWindow
	var platform, name, cronExpr *string
	var intervalSec, batchSize *int

	err := row.Scan(
		&w.ID,
		&w.ProfileID,
		&platform,
		&name,
		&cronExpr,
		&intervalSec,
		&w.Timezone,
		&batchSize,
		&w.Enabled,
		&w.NextDueAt,
		&w.LastRunAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission window: %w", err)
	}

	if platform != nil {
		w.Platform = *platform
	}
	if name != nil {
		w.Name = *name
	}
	if cronExpr != nil {
		w.CronExpr = *cronExpr
	}
	if intervalSec != nil {
		w.IntervalSec = *intervalSec
	}
	if batchSize != nil {
		w.BatchSize = *batchSize
	}

	return &w, nil
}
