package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Applications
	mux.Handle("GET /api/v1/applications", chain(http.HandlerFunc(h.ListApplications)))
	mux.Handle("POST /api/v1/applications", chain(http.HandlerFunc(h.CreateApplication)))
	mux.Handle("GET /api/v1/applications/{id}", chain(http.HandlerFunc(h.GetApplication)))
	mux.Handle("POST /api/v1/applications/{id}/cancel", chain(http.HandlerFunc(h.CancelApplication)))
	mux.Handle("GET /api/v1/applications/{id}/progress", chain(http.HandlerFunc(h.GetApplicationProgress)))

	// Submission windows
	mux.Handle("GET /api/v1/submission-windows", chain(http.HandlerFunc(h.ListWindows)))
	mux.Handle("POST /api/v1/submission-windows", chain(http.HandlerFunc(h.CreateWindow)))
	mux.Handle("GET /api/v1/submission-windows/{id}", chain(http.HandlerFunc(h.GetWindow)))
	mux.Handle("PUT /api/v1/submission-windows/{id}", chain(http.HandlerFunc(h.UpdateWindow)))
	mux.Handle("DELETE /api/v1/submission-windows/{id}", chain(http.HandlerFunc(h.DeleteWindow)))
	mux.Handle("PUT /api/v1/submission-windows/{id}/enabled", chain(http.HandlerFunc(h.SetWindowEnabled)))

	// Targets
	mux.Handle("POST /api/v1/targets/{platform}/reset", chain(http.HandlerFunc(h.ResetTarget)))
}
