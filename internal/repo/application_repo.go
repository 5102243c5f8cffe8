package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Formata/internal/domain"
)

// ApplicationRepo — репозиторий для работы с applications.
//
// History, ErrorLog, Config и Options хранятся как jsonb: audit trail
// читается целиком и никогда не обновляется частями.
type ApplicationRepo struct {
	pool *pgxpool.Pool
}

// NewApplicationRepo создаёт ApplicationRepo.
func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

const applicationColumns = `
	id, platform, job_ref, profile_id, state, step_index,
	history, error_log, outcome, config, options, deferred,
	started_at, finished_at, created_at
`

// Create создаёт новый application.
func (r *ApplicationRepo) Create(ctx context.Context, app *domain.Application) error {
	historyJSON, errLogJSON, configJSON, optionsJSON, err := marshalApplicationJSON(app)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (id, platform, job_ref, profile_id, state, step_index,
		                          history, error_log, outcome, config, options, deferred,
		                          started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		app.ID,
		app.Platform,
		app.JobRef,
		app.ProfileID,
		app.State,
		app.StepIndex,
		historyJSON,
		errLogJSON,
		nullString(app.Outcome),
		configJSON,
		optionsJSON,
		app.Deferred,
		app.StartedAt,
		app.FinishedAt,
		app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// GetByID возвращает application по ID.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	return scanApplication(r.pool.QueryRow(ctx, query, id))
}

// Update сохраняет текущее состояние application.
func (r *ApplicationRepo) Update(ctx context.Context, app *domain.Application) error {
	historyJSON, errLogJSON, _, _, err := marshalApplicationJSON(app)
	if err != nil {
		return err
	}

	query := `
		UPDATE applications
		SET state = $2, step_index = $3, history = $4, error_log = $5,
		    outcome = $6, deferred = $7, started_at = $8, finished_at = $9
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		app.ID,
		app.State,
		app.StepIndex,
		historyJSON,
		errLogJSON,
		nullString(app.Outcome),
		app.Deferred,
		app.StartedAt,
		app.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCancelled переводит ещё не начатую заявку в CANCELLED.
//
// Update гоняется с runner'ом, который мог уже подхватить заявку, поэтому
// условие по state атомарно: перевод удаётся только из INITIALIZED.
func (r *ApplicationRepo) MarkCancelled(ctx context.Context, id uuid.UUID, outcome string) error {
	query := `
		UPDATE applications
		SET state = $2, outcome = $3, finished_at = NOW()
		WHERE id = $1 AND state = $4
	`
	result, err := r.pool.Exec(ctx, query,
		id,
		domain.StateCancelled,
		outcome,
		domain.StateInitialized,
	)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// List возвращает список applications с фильтрацией.
func (r *ApplicationRepo) List(ctx context.Context, filter ApplicationFilter) ([]domain.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE ($1::uuid IS NULL OR profile_id = $1)
		  AND ($2::text IS NULL OR platform = $2)
		  AND ($3::text IS NULL OR state = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.ProfileID),
		nullString(filter.Platform),
		nullString(string(filter.State)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	return collectApplications(rows)
}

// ListDeferred возвращает отложенные заявки профиля, ожидающие окна отправки.
// platform пустая — все платформы профиля.
func (r *ApplicationRepo) ListDeferred(ctx context.Context, profileID uuid.UUID, platform string, limit int) ([]domain.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE profile_id = $1
		  AND deferred = true
		  AND state = $2
		  AND ($3::text IS NULL OR platform = $3)
		ORDER BY created_at ASC
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query,
		profileID,
		domain.StateInitialized,
		nullString(platform),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deferred applications: %w", err)
	}
	defer rows.Close()

	return collectApplications(rows)
}

// ClearDeferred снимает флаг отложенности при диспатче заявки в очередь.
func (r *ApplicationRepo) ClearDeferred(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE applications SET deferred = false WHERE id = $1 AND deferred = true
	`, id)
	if err != nil {
		return fmt.Errorf("clear deferred: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// --- Helpers ---

// ApplicationFilter — параметры фильтрации applications.
type ApplicationFilter struct {
	ProfileID *uuid.UUID
	Platform  string
	State     domain.ApplicationState
	Limit     int
	Offset    int
}

func marshalApplicationJSON(app *domain.Application) (history, errLog, config, options []byte, err error) {
	if history, err = json.Marshal(app.History); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal history: %w", err)
	}
	if errLog, err = json.Marshal(app.ErrorLog); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal error log: %w", err)
	}
	if config, err = json.Marshal(app.Config); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal config: %w", err)
	}
	if options, err = json.Marshal(app.Options); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal options: %w", err)
	}
	return history, errLog, config, options, nil
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var app domain.Application
	var historyJSON, errLogJSON, configJSON, optionsJSON []byte
	var outcome *string

	err := row.Scan(
		&app.ID,
		&app.Platform,
		&app.JobRef,
		&app.ProfileID,
		&app.State,
		&app.StepIndex,
		&historyJSON,
		&errLogJSON,
		&outcome,
		&configJSON,
		&optionsJSON,
		&app.Deferred,
		&app.StartedAt,
		&app.FinishedAt,
		&app.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan application: %w", err)
	}

	if err := unmarshalApplicationJSON(&app, historyJSON, errLogJSON, configJSON, optionsJSON); err != nil {
		return nil, err
	}
	if outcome != nil {
		app.Outcome = *outcome
	}

	return &app, nil
}

func collectApplications(rows pgx.Rows) ([]domain.Application, error) {
	var apps []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func unmarshalApplicationJSON(app *domain.Application, historyJSON, errLogJSON, configJSON, optionsJSON []byte) error {
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &app.History); err != nil {
			return fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if errLogJSON != nil {
		if err := json.Unmarshal(errLogJSON, &app.ErrorLog); err != nil {
			return fmt.Errorf("unmarshal error log: %w", err)
		}
	}
	if configJSON != nil {
		if err := json.Unmarshal(configJSON, &app.Config); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if optionsJSON != nil {
		if err := json.Unmarshal(optionsJSON, &app.Options); err != nil {
			return fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// nullInt возвращает nil для нулевого int.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
