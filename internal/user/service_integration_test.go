//go:build integration

package user

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"user_directory/internal/db"
	"user_directory/internal/observability"
	"user_directory/internal/queue"
	"user_directory/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type recordingPublisher struct {
	events []queue.DirectoryEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event queue.DirectoryEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []queue.EventType {
	out := make([]queue.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	db        *sql.DB
	repo      UserRepositoryInterface
	service   *UserService
	publisher *recordingPublisher
	metrics   *observability.Metrics
}

// setupTestEnv starts a PostgreSQL container, applies the schema and wires a
// service without cache.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("directory_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{
			"test":      "user-directory",
			"test-name": t.Name(),
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	database, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.EnsureSchema(database))

	publisher := &recordingPublisher{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	repo := NewUserRepository()

	return &testEnv{
		db:        database,
		repo:      repo,
		service:   NewUserService(repo, database, nil, publisher, metrics),
		publisher: publisher,
		metrics:   metrics,
	}
}

func (env *testEnv) mustCreate(t *testing.T, username, url string) int {
	t.Helper()
	id, err := env.service.CreateUser(context.Background(), username, url)
	require.NoError(t, err)
	return id
}

func (env *testEnv) mustGet(t *testing.T, username string) *User {
	t.Helper()
	u, err := env.repo.GetByUsername(context.Background(), env.db, username)
	require.NoError(t, err)
	return u
}

func (env *testEnv) count(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	return n
}

func TestIntegration_Directory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := setupTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	t.Run("register and duplicate username", func(t *testing.T) {
		id := env.mustCreate(t, "dave", "url-d")
		assert.Positive(t, id)

		_, err := env.service.CreateUser(ctx, "dave", "url-other")
		assert.ErrorIs(t, err, ErrUserExists)

		u := env.mustGet(t, "dave")
		assert.Equal(t, id, u.ID)
		assert.Equal(t, "url-d", u.URL)
		assert.Equal(t, Cards{}, u.Cards)
		assert.Equal(t, 0, u.Unfilled)
	})

	t.Run("duplicate url surfaces as persistence error", func(t *testing.T) {
		before := env.count(t)

		_, err := env.service.CreateUser(ctx, "erin", "url-d")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUserExists)
		assert.Equal(t, before, env.count(t))
	})

	t.Run("insert racing a registration of the same username", func(t *testing.T) {
		before := env.count(t)

		err := utils.WithTransaction(ctx, env.db, func(tx *sql.Tx) error {
			_, err := env.repo.Create(ctx, tx, &User{Username: "dave", URL: "url-dave-2"})
			return err
		})
		assert.ErrorIs(t, err, ErrUserExists)

		err = utils.WithTransaction(ctx, env.db, func(tx *sql.Tx) error {
			_, err := env.repo.Create(ctx, tx, &User{Username: "frank", URL: "url-d"})
			return err
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUserExists)

		assert.Equal(t, before, env.count(t))
	})

	t.Run("setup for missing user changes nothing", func(t *testing.T) {
		before, err := env.service.ListUsers(ctx)
		require.NoError(t, err)

		require.NoError(t, env.service.SetupUser(ctx, "nobody"))

		after, err := env.service.ListUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CardsInitializedTotal.WithLabelValues("no_user")))
	})

	t.Run("rotate missing user", func(t *testing.T) {
		_, err := env.service.RotateCards(ctx, "nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("rotate empty queue is a no-op", func(t *testing.T) {
		cards, err := env.service.RotateCards(ctx, "dave")
		require.NoError(t, err)
		assert.Empty(t, cards)
		assert.Equal(t, Cards{}, env.mustGet(t, "dave").Cards)
	})

	t.Run("subscription with unknown party", func(t *testing.T) {
		err := env.service.RecordSubscription(ctx, "dave", "url-missing")
		assert.ErrorIs(t, err, ErrUserNotFound)

		err = env.service.RecordSubscription(ctx, "ghost", "url-d")
		assert.ErrorIs(t, err, ErrUserNotFound)

		assert.Equal(t, 0, env.mustGet(t, "dave").Unfilled)
		assert.Equal(t, Cards{}, env.mustGet(t, "dave").Cards)
	})
}

func TestIntegration_AliceBobScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := setupTestEnv(t)
	ctx := context.Background()

	env.mustCreate(t, "alice", "url-a")
	env.mustCreate(t, "bob", "url-b")

	require.NoError(t, env.service.SetupUser(ctx, "alice"))
	assert.Equal(t, Cards{"url-b"}, env.mustGet(t, "alice").Cards)

	require.NoError(t, env.service.RecordSubscription(ctx, "alice", "url-b"))

	alice := env.mustGet(t, "alice")
	bob := env.mustGet(t, "bob")
	assert.Equal(t, 1, alice.Unfilled)
	assert.Equal(t, 0, bob.Unfilled, "unfilled is floored at zero")
	assert.Equal(t, Cards{"url-a"}, bob.Cards)
	assert.Equal(t, Cards{"url-b"}, alice.Cards, "subscriber's own queue is untouched")

	cards, err := env.service.RotateCards(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, Cards{"url-a"}, cards)
	assert.Equal(t, Cards{"url-a"}, env.mustGet(t, "bob").Cards)

	assert.Equal(t, []queue.EventType{
		queue.UserRegistered,
		queue.UserRegistered,
		queue.CardsInitialized,
		queue.SubscriptionRecorded,
		queue.CardsRotated,
	}, env.publisher.types())
}

func TestIntegration_SubscriptionFanout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := setupTestEnv(t)
	ctx := context.Background()

	env.mustCreate(t, "a", "url-a")
	env.mustCreate(t, "b", "url-b")
	env.mustCreate(t, "c", "url-c")

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, env.service.SetupUser(ctx, name))
	}
	assert.Equal(t, Cards{"url-b", "url-c"}, env.mustGet(t, "a").Cards)

	// b subscribes to c twice: c's counter must not go negative, b gains two slots.
	require.NoError(t, env.service.RecordSubscription(ctx, "b", "url-c"))
	require.NoError(t, env.service.RecordSubscription(ctx, "b", "url-c"))

	assert.Equal(t, 2, env.mustGet(t, "b").Unfilled)
	assert.Equal(t, 0, env.mustGet(t, "c").Unfilled)

	assert.Equal(t, Cards{"url-b", "url-b", "url-b", "url-c"}, env.mustGet(t, "a").Cards)
	assert.Equal(t, Cards{"url-b", "url-b", "url-a", "url-b"}, env.mustGet(t, "c").Cards)
	assert.Equal(t, Cards{"url-a", "url-c"}, env.mustGet(t, "b").Cards)

	// c subscribes to b: b drops back by one.
	require.NoError(t, env.service.RecordSubscription(ctx, "c", "url-b"))
	assert.Equal(t, 1, env.mustGet(t, "b").Unfilled)
	assert.Equal(t, 1, env.mustGet(t, "c").Unfilled)

	// Rotating a's queue len times restores it.
	original := env.mustGet(t, "a").Cards
	for i := 0; i < len(original); i++ {
		_, err := env.service.RotateCards(ctx, "a")
		require.NoError(t, err)
	}
	assert.Equal(t, original, env.mustGet(t, "a").Cards)

	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.SubscriptionsTotal.WithLabelValues("updated")))
}

func TestIntegration_ListUsersOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := setupTestEnv(t)
	ctx := context.Background()

	users, err := env.service.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)

	env.mustCreate(t, "zed", "url-z")
	env.mustCreate(t, "amy", "url-y")

	users, err = env.service.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "zed", users[0].Username)
	assert.Equal(t, "amy", users[1].Username)
	assert.Less(t, users[0].ID, users[1].ID)
}
