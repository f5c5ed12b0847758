package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"
	"user_directory/internal/middleware"
	"user_directory/internal/observability"
	"user_directory/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SetupHandler builds the router: ambient middleware, health and metrics
// endpoints, then the directory routes.
func SetupHandler(db Pinger, userService user.UserServiceInterface, metrics *observability.Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()

	// Subscription targets are URLs; %2F must survive routing as part of one segment.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.PrometheusMiddleware(metrics))

	r.GET("/healthz", healthHandler(db))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	userController := user.NewUserController(userService)
	userController.SetupRoutes(r)

	return r
}

func healthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logrus.WithError(err).Warn("Health check failed, database unreachable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

var _ Pinger = (*sql.DB)(nil)
