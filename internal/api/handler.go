package api

import (
	"log/slog"

	"github.com/shaiso/Formata/internal/mq"
	"github.com/shaiso/Formata/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	appRepo    *repo.ApplicationRepo
	windowRepo *repo.WindowRepo
	publisher  *mq.Publisher
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	AppRepo    *repo.ApplicationRepo
	WindowRepo *repo.WindowRepo
	Publisher  *mq.Publisher
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		appRepo:    cfg.AppRepo,
		windowRepo: cfg.WindowRepo,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
	}
}
