package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/progress"
	"github.com/shaiso/Formata/internal/repo"
)

// ListApplications возвращает список заявок с фильтрацией.
// GET /api/v1/applications?profile_id=...&platform=...&state=...&limit=...&offset=...
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	filter := repo.ApplicationFilter{}

	// Парсим query параметры
	if profileIDStr := r.URL.Query().Get("profile_id"); profileIDStr != "" {
		profileID, err := uuid.Parse(profileIDStr)
		if err != nil {
			BadRequest(w, "invalid profile_id")
			return
		}
		filter.ProfileID = &profileID
	}

	filter.Platform = r.URL.Query().Get("platform")

	if state := r.URL.Query().Get("state"); state != "" {
		filter.State = domain.ApplicationState(state)
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = int(mustParseInt(limitStr, 50))
	} else {
		filter.Limit = 50
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = int(mustParseInt(offsetStr, 0))
	}

	apps, err := h.appRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ApplicationResponse, len(apps))
	for i := range apps {
		result[i] = ApplicationFromDomain(&apps[i])
	}

	List(w, result, len(result))
}

// CreateApplication создаёт новую заявку.
// POST /api/v1/applications
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req CreateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Валидация
	if req.Platform == "" {
		BadRequest(w, "platform is required")
		return
	}
	if req.JobRef == "" {
		BadRequest(w, "job_ref is required")
		return
	}
	if req.ProfileID == uuid.Nil {
		BadRequest(w, "profile_id is required")
		return
	}

	if req.Config.Platform == "" {
		req.Config.Platform = req.Platform
	}

	app := &domain.Application{
		ID:        uuid.New(),
		Platform:  req.Platform,
		JobRef:    req.JobRef,
		ProfileID: req.ProfileID,
		State:     domain.StateInitialized,
		Config:    req.Config,
		Options:   req.Options.WithDefaults(),
		Deferred:  req.Deferred,
	}

	if err := h.appRepo.Create(r.Context(), app); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// Отложенные заявки ждут своего окна отправки: их диспатчит scheduler.
	if !app.Deferred && h.publisher != nil {
		if err := h.publisher.PublishApplicationPending(r.Context(), app.ID); err != nil {
			h.logger.Warn("failed to publish application.pending", "application_id", app.ID, "error", err)
		}
	}

	Created(w, ApplicationFromDomain(app))
}

// GetApplication возвращает заявку по ID.
// GET /api/v1/applications/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid application id")
		return
	}

	app, err := h.appRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "application not found") {
		return
	}

	Success(w, ApplicationFromDomain(app))
}

// CancelApplication запрашивает отмену заявки.
// POST /api/v1/applications/{id}/cancel
//
// Отмена асинхронная: запрос рассылается broadcast'ом всем runner'ам,
// и тот, кто держит машину в памяти, останавливает её на ближайшей
// безопасной границе. Ещё не подхваченные заявки отменяются в БД сразу.
func (h *Handler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid application id")
		return
	}

	app, err := h.appRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "application not found") {
		return
	}

	if app.IsFinished() {
		InvalidState(w, "application is already finished")
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishApplicationCancel(r.Context(), app.ID); err != nil {
			InternalError(w, h.logger, err)
			return
		}
	}

	Accepted(w, ApplicationFromDomain(app))
}

// GetApplicationProgress возвращает прогресс заявки.
// GET /api/v1/applications/{id}/progress
//
// Снимок восстанавливается из персистентной истории переходов,
// поэтому работает из любого процесса, а не только из runner'а,
// выполняющего заявку.
func (h *Handler) GetApplicationProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid application id")
		return
	}

	app, err := h.appRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "application not found") {
		return
	}

	snapshot := progress.FromHistory(app.History, app.StepIndex, len(app.Config.Steps))

	Success(w, ProgressResponse{
		ApplicationID: app.ID,
		State:         string(app.State),
		Progress:      snapshot,
	})
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	if n, err := json.Number(s).Int64(); err == nil {
		return n
	}
	return defaultVal
}
