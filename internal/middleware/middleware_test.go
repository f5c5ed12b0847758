package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"user_directory/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(middlewares ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middlewares...)

	router.GET("/get-users", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{})
	})
	router.POST("/:subject/update-cards", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/fail", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	return router
}

func TestCORSMiddleware_SimpleRequest(t *testing.T) {
	router := setupTestRouter(CORSMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/get-users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_EchoesOrigin(t *testing.T) {
	router := setupTestRouter(CORSMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/get-users", nil)
	req.Header.Set("Origin", "https://cards.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://cards.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	router := setupTestRouter(CORSMiddleware())

	req := httptest.NewRequest(http.MethodOptions, "/get-users", nil)
	req.Header.Set("Origin", "https://cards.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestPrometheusMiddleware_RecordsRoutePattern(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := setupTestRouter(PrometheusMiddleware(metrics))

	for _, name := range []string{"alice", "bob"} {
		req := httptest.NewRequest(http.MethodPost, "/"+name+"/update-cards", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 2.0, testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/:subject/update-cards", "200"),
	))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"),
	))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPRequestsInFlight))
}

func TestLoggerMiddleware_Levels(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	router := setupTestRouter(LoggerMiddleware())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/get-users", nil))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, 200, hook.LastEntry().Data["status"])

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/fail", nil))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "/fail", hook.LastEntry().Data["path"])
}
