// Package runner выполняет applications.
//
// Runner — компонент системы, который:
//   - Получает заявки из очереди RabbitMQ (event-driven)
//   - Периодически проверяет необработанные заявки в БД (polling fallback)
//   - Ведёт каждую заявку через state machine до терминального состояния
//   - Держит affinity: одну цель активно ведёт один runner-слот
//   - Слушает broadcast-команды (отмена заявки, сброс здоровья цели)
//   - Публикует событие завершения в applications.completed
//
// Runner'ы масштабируются горизонтально: очередь applications.pending
// общая, control-команды приходят каждому через fanout.
//
// Структура:
//   - runner.go   — жизненный цикл, consumer'ы, polling
//   - handlers.go — обработка заявок и control-команд
//   - bridge.go   — HTTP executor, ходящий в browser-agent sidecar
package runner
