// Package progress — pull-based снимок прогресса application.
//
// Никаких push-уведомлений и listener'ов: Tracker наблюдает переходы
// state machine, а Snapshot пересчитывается по требованию и безопасен
// для опроса из любой горутины. Для завершённых заявок снимок
// восстанавливается из сохранённой истории переходов (FromHistory).
package progress
