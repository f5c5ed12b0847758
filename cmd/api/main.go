package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"user_directory/internal/cache"
	"user_directory/internal/config"
	"user_directory/internal/db"
	"user_directory/internal/handler"
	"user_directory/internal/observability"
	"user_directory/internal/queue"
	"user_directory/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()
	log := observability.SetupLogger(cfg.AppName, cfg.LogLevel, cfg.IsProduction())
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
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

	if err := db.EnsureSchema(database); err != nil {
		log.WithError(err).Fatal("Failed to prepare database schema")
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	log.Info("Metrics initialized")

	rdb := cache.Connect(&cfg.Redis)
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Error("Failed to close redis connection")
			}
		}()
	}

	var publisher queue.EventPublisher = queue.NoopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		conn, err := queue.SetupRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to RabbitMQ")
		}
		defer func() {
			if err := conn.Close(); err != nil {
				log.WithError(err).Error("Failed to close RabbitMQ connection")
			}
		}()

		ch, err := queue.CreateChannel(conn)
		if err != nil {
			log.WithError(err).Fatal("Failed to create RabbitMQ channel")
		}
		if _, err := queue.DeclareQueue(ch, queue.EventsQueue); err != nil {
			log.WithError(err).Fatal("Failed to declare RabbitMQ queue")
		}
		_ = ch.Close()

		publisher = queue.NewRabbitPublisher(conn, metrics)
	} else {
		log.Info("RABBITMQ_URL not set, directory events disabled")
	}

	userService := user.NewUserService(
		user.NewUserRepository(),
		database,
		cache.NewUsersCache(rdb, cfg.Redis.TTL),
		publisher,
		metrics,
	)

	r := handler.SetupHandler(database, userService, metrics, prometheus.DefaultGatherer)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on :%s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
}
