package runner

import "errors"

// Ошибки runner'а.
var (
	// ErrApplicationNotFound — заявка не найдена в БД.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrApplicationNotPending — заявка не в состоянии INITIALIZED.
	ErrApplicationNotPending = errors.New("application is not pending")

	// ErrApplicationDeferred — заявка отложена и ждёт окна отправки.
	ErrApplicationDeferred = errors.New("application is deferred")

	// ErrBridgeRequest — запрос к browser-agent завершился ошибкой.
	ErrBridgeRequest = errors.New("bridge request failed")
)
