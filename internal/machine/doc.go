// Package machine — state machine, ведущая application до терминального
// результата.
//
// Machine отвечает за:
//   - Переходы по закрытой таблице состояний (все прочие рёбра нелегальны)
//   - Допуск каждого исходящего действия через breaker и rate limiter
//   - Вызов внешнего Action Executor'а и реакцию на его сигналы
//   - Retry упавших шагов через ERROR_RECOVERY с backoff'ом
//   - Ожидание подтверждения отправки с таймаутом
//   - Отмену в любой точке приостановки
//
// Machine решает «когда», «как часто» и «сколько раз» — само действие
// (заполнить поле, кликнуть, прочитать значение) выполняет внешний
// executor; что именно вводить в поле, решает caller через маппинги.
package machine
