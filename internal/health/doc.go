// Package health отслеживает состояние целевых платформ.
//
// Для каждой цели (platform) лениво создаётся пара:
//   - Circuit Breaker — тумблер по порогу последовательных ошибок
//   - Rate Limiter — скользящее окно с адаптивным лимитом
//
// Порядок допуска фиксированный: сначала breaker, потом limiter —
// заведомо нездоровая цель не расходует бюджет запросов.
//
// Registry — единственное состояние, разделяемое между задачами,
// бьющими в одну цель. Передаётся в state machine явно (никаких
// глобальных переменных); мутация каждой записи сериализована.
package health
