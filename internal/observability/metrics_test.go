package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.UsersRegisteredTotal.Inc()
	first.SubscriptionsTotal.WithLabelValues("updated").Inc()
	first.SubscriptionsTotal.WithLabelValues("updated").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(first.UsersRegisteredTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(first.SubscriptionsTotal.WithLabelValues("updated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.UsersRegisteredTotal))
}

func TestNewMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CardsRotatedTotal.WithLabelValues("empty").Inc()

	count, err := testutil.GatherAndCount(reg, "directory_cards_rotated_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSetupLogger(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	entry := SetupLogger("user-directory", "debug", false)
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.Equal(t, "user-directory", entry.Data["app"])

	SetupLogger("user-directory", "loud", true)
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
