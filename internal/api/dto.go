package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/progress"
)

// Application DTOs

// CreateApplicationRequest — запрос на создание заявки.
type CreateApplicationRequest struct {
	Platform  string              `json:"platform"`
	JobRef    string              `json:"job_ref"`
	ProfileID uuid.UUID           `json:"profile_id"`
	Config    domain.TargetConfig `json:"config"`
	Options   domain.Options      `json:"options,omitempty"`
	Deferred  bool                `json:"deferred,omitempty"`
}

// ApplicationResponse — ответ с заявкой.
type ApplicationResponse struct {
	ID         uuid.UUID           `json:"id"`
	Platform   string              `json:"platform"`
	JobRef     string              `json:"job_ref"`
	ProfileID  uuid.UUID           `json:"profile_id"`
	State      string              `json:"state"`
	StepIndex  int                 `json:"step_index"`
	History    []domain.Transition `json:"history,omitempty"`
	ErrorLog   []domain.ErrorEntry `json:"error_log,omitempty"`
	Outcome    string              `json:"outcome,omitempty"`
	Deferred   bool                `json:"deferred"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// ApplicationFromDomain конвертирует domain.Application в ApplicationResponse.
func ApplicationFromDomain(a *domain.Application) ApplicationResponse {
	if a == nil {
		return ApplicationResponse{}
	}
	return ApplicationResponse{
		ID:         a.ID,
		Platform:   a.Platform,
		JobRef:     a.JobRef,
		ProfileID:  a.ProfileID,
		State:      string(a.State),
		StepIndex:  a.StepIndex,
		History:    a.History,
		ErrorLog:   a.ErrorLog,
		Outcome:    a.Outcome,
		Deferred:   a.Deferred,
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
		CreatedAt:  a.CreatedAt,
	}
}

// ProgressResponse — ответ с прогрессом заявки.
type ProgressResponse struct {
	ApplicationID uuid.UUID         `json:"application_id"`
	State         string            `json:"state"`
	Progress      progress.Snapshot `json:"progress"`
}

// SubmissionWindow DTOs

// CreateWindowRequest — запрос на создание окна отправки.
type CreateWindowRequest struct {
	ProfileID   uuid.UUID `json:"profile_id"`
	Platform    string    `json:"platform,omitempty"`
	Name        string    `json:"name,omitempty"`
	CronExpr    string    `json:"cron_expr,omitempty"`
	IntervalSec int       `json:"interval_sec,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	BatchSize   int       `json:"batch_size,omitempty"`
	Enabled     bool      `json:"enabled"`
}

// UpdateWindowRequest — запрос на обновление окна отправки.
type UpdateWindowRequest struct {
	Name        *string `json:"name,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
	BatchSize   *int    `json:"batch_size,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// WindowResponse — ответ с окном отправки.
type WindowResponse struct {
	ID          uuid.UUID  `json:"id"`
	ProfileID   uuid.UUID  `json:"profile_id"`
	Platform    string     `json:"platform,omitempty"`
	Name        string     `json:"name,omitempty"`
	CronExpr    string     `json:"cron_expr,omitempty"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	Timezone    string     `json:"timezone"`
	BatchSize   int        `json:"batch_size,omitempty"`
	Enabled     bool       `json:"enabled"`
	NextDueAt   *time.Time `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// WindowFromDomain конвертирует domain.SubmissionWindow в WindowResponse.
func WindowFromDomain(w *domain.SubmissionWindow) WindowResponse {
	if w == nil {
		return WindowResponse{}
	}
	return WindowResponse{
		ID:          w.ID,
		ProfileID:   w.ProfileID,
		Platform:    w.Platform,
		Name:        w.Name,
		CronExpr:    w.CronExpr,
		IntervalSec: w.IntervalSec,
		Timezone:    w.Timezone,
		BatchSize:   w.BatchSize,
		Enabled:     w.Enabled,
		NextDueAt:   w.NextDueAt,
		LastRunAt:   w.LastRunAt,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// Target DTOs

// TargetResetResponse — подтверждение сброса состояния цели.
type TargetResetResponse struct {
	Platform string `json:"platform"`
	Reset    bool   `json:"reset"`
}
