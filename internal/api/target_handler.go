package api

import (
	"net/http"
)

// ResetTarget сбрасывает адаптивное состояние целевой платформы.
// POST /api/v1/targets/{platform}/reset
//
// Сброс рассылается broadcast'ом: каждый runner возвращает limiter
// и breaker платформы к базовым настройкам. Применяется оператором
// после ручного разбора инцидента с целью.
func (h *Handler) ResetTarget(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	if platform == "" {
		BadRequest(w, "platform is required")
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishTargetReset(r.Context(), platform); err != nil {
			InternalError(w, h.logger, err)
			return
		}
	}

	Accepted(w, TargetResetResponse{Platform: platform, Reset: true})
}
