package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Formata/internal/mq"
	"github.com/shaiso/Formata/internal/repo"
	"github.com/shaiso/Formata/internal/scheduler"
	"github.com/shaiso/Formata/internal/telemetry"
)

const schedLockKey int64 = 727272

func main() {
	logger := telemetry.SetupLogger()

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		log.Fatalf("[scheduler] db connect: %v", err)
	}
	defer pool.Close()
	log.Printf("[scheduler] db connected")

	// Создаём репозитории
	windowRepo := repo.NewWindowRepo(pool)
	appRepo := repo.NewApplicationRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		log.Printf("[scheduler] RabbitMQ not available, runners will rely on polling: %v", err)
	} else {
		defer mqConn.Close()
		log.Printf("[scheduler] RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			log.Printf("[scheduler] topology setup: %v", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	sched := scheduler.New(scheduler.Config{
		WindowRepo: windowRepo,
		AppRepo:    appRepo,
		Publisher:  publisher,
		Logger:     logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// scheduler loop
	go func() {
		tk := time.NewTicker(1 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				var ok bool
				if !hasLock {
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						log.Printf("[scheduler] lock err: %v", err)
						continue
					}
					hasLock = ok
				}

				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				// лидер выполняет логику тика
				if err := sched.Tick(ctx); err != nil {
					log.Printf("[scheduler] tick err: %v", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// serve
	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}
	log.Printf("[scheduler] listening on %s", port)
	if err := http.ListenAndServe(port, mux); err != nil {
		log.Printf("[scheduler] http error: %v", err)
		cancel()
	}
}
