package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
	"user_directory/internal/cache"
	"user_directory/internal/observability"
	"user_directory/internal/queue"
	"user_directory/internal/utils"

	"github.com/sirupsen/logrus"
)

const sideEffectTimeout = 2 * time.Second

type UserServiceInterface interface {
	SetupUser(ctx context.Context, username string) error
	CreateUser(ctx context.Context, username, url string) (int, error)
	ListUsers(ctx context.Context) ([]*User, error)
	RecordSubscription(ctx context.Context, subscriber, targetURL string) error
	RotateCards(ctx context.Context, username string) (Cards, error)
}

type UserService struct {
	repo      UserRepositoryInterface
	db        *sql.DB
	cache     *cache.UsersCache
	publisher queue.EventPublisher
	metrics   *observability.Metrics
}

// NewUserService wires the service. cache may be nil and publisher may be
// queue.NoopPublisher{} when those backends are not configured.
func NewUserService(
	repo UserRepositoryInterface,
	db *sql.DB,
	usersCache *cache.UsersCache,
	publisher queue.EventPublisher,
	metrics *observability.Metrics,
) *UserService {
	if publisher == nil {
		publisher = queue.NoopPublisher{}
	}
	return &UserService{
		repo:      repo,
		db:        db,
		cache:     usersCache,
		publisher: publisher,
		metrics:   metrics,
	}
}

// SetupUser fills the queue of username with the url of every other user.
// An unknown username is not an error and changes nothing.
func (s *UserService) SetupUser(ctx context.Context, username string) error {
	var updated int64
	if err := utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		n, err := s.repo.AssignOtherURLs(ctx, tx, username)
		updated = n
		return err
	}); err != nil {
		return err
	}

	if updated == 0 {
		logrus.WithField("username", username).Info("Setup skipped, user does not exist")
		s.metrics.CardsInitializedTotal.WithLabelValues("no_user").Inc()
		return nil
	}

	s.metrics.CardsInitializedTotal.WithLabelValues("initialized").Inc()
	s.afterWrite(ctx, queue.NewEvent(queue.CardsInitialized, username))
	return nil
}

// CreateUser registers username with url and an empty queue. It returns
// ErrUserExists when the username is taken. A taken url is only caught by
// the database constraint and comes back as a plain error.
func (s *UserService) CreateUser(ctx context.Context, username, url string) (int, error) {
	if existing, err := s.repo.GetByUsername(ctx, s.db, username); err == nil && existing != nil {
		return 0, ErrUserExists
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return 0, err
	}

	user := &User{
		Username: username,
		URL:      url,
		Cards:    Cards{},
	}

	var id int
	if err := utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		newID, err := s.repo.Create(ctx, tx, user)
		if err != nil {
			return err
		}
		id = newID
		return nil
	}); err != nil {
		return 0, err
	}

	s.metrics.UsersRegisteredTotal.Inc()

	event := queue.NewEvent(queue.UserRegistered, username)
	event.URL = url
	s.afterWrite(ctx, event)

	return id, nil
}

// ListUsers returns every user, from the cache when possible.
func (s *UserService) ListUsers(ctx context.Context) ([]*User, error) {
	cachedData, err := s.cache.Get(ctx, cache.AllUsersKey)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read user list from cache")
	}
	if cachedData != nil {
		var users []*User
		if json.Unmarshal(cachedData, &users) == nil {
			s.metrics.CacheHitsTotal.WithLabelValues("users").Inc()
			logrus.Debug("cache hit for user list")
			return users, nil
		}
	}
	s.metrics.CacheMissesTotal.WithLabelValues("users").Inc()

	gen, genErr := s.cache.Generation(ctx, cache.AllUsersKey)
	if genErr != nil {
		logrus.WithError(genErr).Warn("Failed to read user list cache generation")
	}

	users, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	if genErr == nil && s.cache.Enabled() {
		if err := s.storeUsers(ctx, users, gen); err != nil {
			logrus.WithError(err).Warn("Failed to set cache for user list")
		}
	}

	return users, nil
}

// WarmUsersCache reloads the cached user list from the database. It is a
// no-op when the cache is disabled.
func (s *UserService) WarmUsersCache(ctx context.Context) error {
	if !s.cache.Enabled() {
		return nil
	}

	gen, err := s.cache.Generation(ctx, cache.AllUsersKey)
	if err != nil {
		return err
	}
	users, err := s.repo.List(ctx, s.db)
	if err != nil {
		return err
	}
	return s.storeUsers(ctx, users, gen)
}

// storeUsers caches a listing read at generation gen. A write committed
// since then leaves the cache empty.
func (s *UserService) storeUsers(ctx context.Context, users []*User, gen int64) error {
	stored, err := s.cache.SetIfGeneration(ctx, cache.AllUsersKey, users, gen)
	if err != nil {
		return err
	}
	if !stored {
		logrus.Debug("user list changed during load, not caching")
	}
	return nil
}

// RecordSubscription applies "subscriber subscribed to the owner of
// targetURL": the subscriber gains an unfilled slot, the target loses one
// (never below zero) and every other queue gets the subscriber's url at its
// head. Either lookup missing yields ErrUserNotFound and no change.
func (s *UserService) RecordSubscription(ctx context.Context, subscriber, targetURL string) error {
	var subscriberURL string
	var fanout int64

	err := utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		from, err := s.repo.GetByUsername(ctx, tx, subscriber)
		if err != nil {
			return err
		}
		to, err := s.repo.GetByURL(ctx, tx, targetURL)
		if err != nil {
			return err
		}

		if err := s.repo.IncrementUnfilled(ctx, tx, from.ID); err != nil {
			return err
		}
		if err := s.repo.DecrementUnfilled(ctx, tx, to.ID); err != nil {
			return err
		}

		fanout, err = s.repo.PrependCard(ctx, tx, from.URL)
		if err != nil {
			return err
		}
		subscriberURL = from.URL
		return nil
	})
	if errors.Is(err, ErrUserNotFound) {
		logrus.WithFields(logrus.Fields{
			"subscriber": subscriber,
			"target_url": targetURL,
		}).Info("Subscription ignored, user not found")
		s.metrics.SubscriptionsTotal.WithLabelValues("not_found").Inc()
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	s.metrics.SubscriptionsTotal.WithLabelValues("updated").Inc()
	s.metrics.SubscriptionFanoutSize.Observe(float64(fanout))
	logrus.WithFields(logrus.Fields{
		"subscriber": subscriber,
		"target_url": targetURL,
		"fanout":     fanout,
	}).Info("Subscription recorded")

	event := queue.NewEvent(queue.SubscriptionRecorded, subscriber)
	event.URL = subscriberURL
	event.TargetURL = targetURL
	s.afterWrite(ctx, event)
	return nil
}

// RotateCards moves the head of the user's queue to its tail and returns
// the new queue. An empty queue is left as is.
func (s *UserService) RotateCards(ctx context.Context, username string) (Cards, error) {
	var rotated Cards

	err := utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		u, err := s.repo.GetByUsernameForUpdate(ctx, tx, username)
		if err != nil {
			return err
		}
		if len(u.Cards) == 0 {
			rotated = Cards{}
			return nil
		}

		rotated = u.Cards.Rotate()
		return s.repo.UpdateCards(ctx, tx, u.ID, rotated)
	})
	if errors.Is(err, ErrUserNotFound) {
		s.metrics.CardsRotatedTotal.WithLabelValues("not_found").Inc()
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(rotated) == 0 {
		logrus.WithField("username", username).Info("Rotation skipped, card queue is empty")
		s.metrics.CardsRotatedTotal.WithLabelValues("empty").Inc()
		return rotated, nil
	}

	s.metrics.CardsRotatedTotal.WithLabelValues("rotated").Inc()
	s.afterWrite(ctx, queue.NewEvent(queue.CardsRotated, username))
	return rotated, nil
}

// afterWrite runs the best-effort side effects of a committed write: drop
// the cached listing and announce the event.
func (s *UserService) afterWrite(ctx context.Context, event queue.DirectoryEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.cache.Invalidate(ctx, cache.AllUsersKey); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate user list cache")
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithField("event_type", event.Type).Warn("Failed to publish directory event")
	}
}
