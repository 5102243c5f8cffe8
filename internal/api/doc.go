// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go             — Handler с DI (репозитории, publisher, logger)
//   - routes.go              — регистрация маршрутов
//   - middleware.go          — middleware (logging, recovery)
//   - response.go            — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                 — Data Transfer Objects (request/response)
//   - application_handler.go — обработчики для /applications
//   - window_handler.go      — обработчики для /submission-windows
//   - target_handler.go      — обработчики для /targets
//
// API предоставляет REST endpoints для управления заявками, окнами
// отправки и состоянием целевых платформ.
package api
