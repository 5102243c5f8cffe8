package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/repo"
	"github.com/shaiso/Formata/internal/scheduler"
)

// ListWindows возвращает список окон отправки с фильтрацией.
// GET /api/v1/submission-windows?profile_id=...&enabled=...&limit=...&offset=...
func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	filter := repo.WindowFilter{}

	// Парсим query параметры
	if profileIDStr := r.URL.Query().Get("profile_id"); profileIDStr != "" {
		profileID, err := uuid.Parse(profileIDStr)
		if err != nil {
			BadRequest(w, "invalid profile_id")
			return
		}
		filter.ProfileID = &profileID
	}

	if enabledStr := r.URL.Query().Get("enabled"); enabledStr != "" {
		enabled := enabledStr == "true"
		filter.Enabled = &enabled
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = int(mustParseInt(limitStr, 50))
	} else {
		filter.Limit = 50
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = int(mustParseInt(offsetStr, 0))
	}

	windows, err := h.windowRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WindowResponse, len(windows))
	for i := range windows {
		result[i] = WindowFromDomain(&windows[i])
	}

	List(w, result, len(result))
}

// CreateWindow создаёт новое окно отправки.
// POST /api/v1/submission-windows
func (h *Handler) CreateWindow(w http.ResponseWriter, r *http.Request) {
	var req CreateWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Валидация
	if req.ProfileID == uuid.Nil {
		BadRequest(w, "profile_id is required")
		return
	}

	if req.CronExpr == "" && req.IntervalSec <= 0 {
		BadRequest(w, "either cron_expr or interval_sec is required")
		return
	}

	if req.CronExpr != "" {
		if err := scheduler.ValidateCronExpr(req.CronExpr); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	window := &domain.SubmissionWindow{
		ID:          uuid.New(),
		ProfileID:   req.ProfileID,
		Platform:    req.Platform,
		Name:        req.Name,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    timezone,
		BatchSize:   req.BatchSize,
		Enabled:     req.Enabled,
	}

	nextDue, err := scheduler.CalculateInitialNextDue(window)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	window.NextDueAt = &nextDue

	if err := h.windowRepo.Create(r.Context(), window); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, WindowFromDomain(window))
}

// GetWindow возвращает окно отправки по ID.
// GET /api/v1/submission-windows/{id}
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid window id")
		return
	}

	window, err := h.windowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "window not found") {
		return
	}

	Success(w, WindowFromDomain(window))
}

// UpdateWindow обновляет окно отправки.
// PUT /api/v1/submission-windows/{id}
func (h *Handler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid window id")
		return
	}

	var req UpdateWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	window, err := h.windowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "window not found") {
		return
	}

	rescheduled := false
	if req.Name != nil {
		window.Name = *req.Name
	}
	if req.CronExpr != nil {
		if *req.CronExpr != "" {
			if err := scheduler.ValidateCronExpr(*req.CronExpr); err != nil {
				BadRequest(w, err.Error())
				return
			}
		}
		window.CronExpr = *req.CronExpr
		rescheduled = true
	}
	if req.IntervalSec != nil {
		window.IntervalSec = *req.IntervalSec
		rescheduled = true
	}
	if req.Timezone != nil {
		window.Timezone = *req.Timezone
		rescheduled = true
	}
	if req.BatchSize != nil {
		window.BatchSize = *req.BatchSize
	}

	// Смена расписания пересчитывает время следующего открытия
	if rescheduled {
		nextDue, err := scheduler.CalculateInitialNextDue(window)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		window.NextDueAt = &nextDue
	}

	if err := h.windowRepo.Update(r.Context(), window); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, WindowFromDomain(window))
}

// DeleteWindow удаляет окно отправки.
// DELETE /api/v1/submission-windows/{id}
func (h *Handler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid window id")
		return
	}

	if err := h.windowRepo.Delete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "window not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// SetWindowEnabled включает или выключает окно отправки.
// PUT /api/v1/submission-windows/{id}/enabled
func (h *Handler) SetWindowEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid window id")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.windowRepo.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		if HandleRepoError(w, h.logger, err, "window not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	// Возвращаем обновлённое окно
	window, err := h.windowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "window not found") {
		return
	}

	Success(w, WindowFromDomain(window))
}
