// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - application.pending   — заявка ожидает выполнения
//   - application.completed — заявка достигла терминального состояния
//   - application.cancel    — запрос отмены заявки (broadcast)
//   - target.reset          — операторский сброс здоровья цели (broadcast)
//
// Exchanges:
//   - formata.applications — события заявок (direct)
//   - formata.control      — управляющие команды (fanout: слышат все runner'ы)
//   - formata.dlq          — dead letter queue
package mq
