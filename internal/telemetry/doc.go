// Package telemetry — структурированное логирование и метрики.
//
// Логирование: log/slog, формат и уровень задаются переменными
// окружения LOG_FORMAT и LOG_LEVEL.
//
// Метрики: Prometheus-счётчики жизненного цикла заявок и здоровья целей;
// каждый демон отдаёт их через promhttp на METRICS_ADDR.
package telemetry
