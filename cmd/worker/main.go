package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"user_directory/internal/cache"
	"user_directory/internal/config"
	"user_directory/internal/db"
	"user_directory/internal/observability"
	"user_directory/internal/queue"
	"user_directory/internal/user"
	"user_directory/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	log := observability.SetupLogger(cfg.AppName+"-worker", cfg.LogLevel, cfg.IsProduction())

	if cfg.RabbitMQ.URL == "" {
		log.Fatal("RABBITMQ_URL is required for the worker")
	}

	database, err := db.Init(&cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.WithError(err).Error("Failed to close database connection")
		}
	}()

	rdb := cache.Connect(&cfg.Redis)
	if rdb == nil {
		log.Warn("No Redis client, events will be consumed without cache warming")
	} else {
		defer rdb.Close()
	}

	conn, err := queue.SetupRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Error("Failed to close RabbitMQ connection")
		}
	}()

	consumerChannel, err := queue.CreateChannel(conn)
	if err != nil {
		log.WithError(err).Fatal("Failed to create RabbitMQ channel")
	}
	if _, err := queue.DeclareQueue(consumerChannel, queue.EventsQueue); err != nil {
		log.WithError(err).Fatal("Failed to declare RabbitMQ queue")
	}
	if err := consumerChannel.Close(); err != nil {
		log.WithError(err).Fatal("Failed to close RabbitMQ channel")
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	log.Info("Metrics initialized")

	metricsServer := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Infof("Worker metrics server started on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start metrics server")
		}
	}()

	// The worker never publishes, so the service gets the no-op publisher.
	userService := user.NewUserService(
		user.NewUserRepository(),
		database,
		cache.NewUsersCache(rdb, cfg.Redis.TTL),
		queue.NoopPublisher{},
		metrics,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 1; i <= cfg.Worker.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker.StartWorker(ctx, conn, userService, metrics, id)
		}(i)
	}

	<-ctx.Done()
	log.Info("Shutting down workers...")
	wg.Wait()
	_ = metricsServer.Close()
}
