// Formata Runner — выполняет заявки.
//
// Runner:
//   - Получает заявки из RabbitMQ (с polling fallback)
//   - Прогоняет каждую через state machine до терминального состояния
//   - Держит per-target rate limiter и circuit breaker
//   - Транслирует действия шагов в браузерный bridge по HTTP
//
// Runners масштабируются горизонтально: affinity slot на цель
// удерживает только одну живую сессию на платформу внутри процесса.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/health"
	"github.com/shaiso/Formata/internal/mq"
	"github.com/shaiso/Formata/internal/repo"
	"github.com/shaiso/Formata/internal/runner"
	"github.com/shaiso/Formata/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting formata-runner")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	appRepo := repo.NewApplicationRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err = mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Метрики и реестр здоровья целей
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	registry := health.NewRegistry(domain.Options{}.WithDefaults(), metrics)

	// Executor: мост к браузерному автоматизатору
	bridge := runner.NewBridgeExecutor(runner.BridgeURL(), nil)

	// Создаём runner
	r := runner.New(runner.Config{
		AppRepo:   appRepo,
		Publisher: publisher,
		Conn:      mqConn,
		Registry:  registry,
		Executors: bridge,
		Logger:    logger,
		Metrics:   metrics,
	})

	// Запускаем runner
	if err := r.Start(ctx); err != nil {
		logger.Error("failed to start runner", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("RUNNER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем runner
	r.Stop()
	logger.Info("formata-runner stopped")
}
