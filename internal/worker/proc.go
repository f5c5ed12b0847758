package worker

import (
	"context"
	"fmt"
	"time"
	"user_directory/internal/queue"

	"github.com/sirupsen/logrus"
)

const warmTimeout = 5 * time.Second

// CacheWarmer reloads the cached user listing.
type CacheWarmer interface {
	WarmUsersCache(ctx context.Context) error
}

// handleEvent logs the event and refreshes the listing cache so the next
// GET /get-users after a write is served warm.
func handleEvent(warmer CacheWarmer, event queue.DirectoryEvent, workerID int) error {
	entry := logrus.WithFields(logrus.Fields{
		"worker":     workerID,
		"event_type": event.Type,
		"username":   event.Username,
	})

	switch event.Type {
	case queue.UserRegistered:
		entry.WithField("url", event.URL).Info("User registered")
	case queue.CardsInitialized:
		entry.Info("Card queue initialized")
	case queue.SubscriptionRecorded:
		entry.WithFields(logrus.Fields{
			"url":        event.URL,
			"target_url": event.TargetURL,
		}).Info("Subscription broadcast to card queues")
	case queue.CardsRotated:
		entry.Info("Card queue rotated")
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	if err := warmer.WarmUsersCache(ctx); err != nil {
		return fmt.Errorf("warm users cache: %w", err)
	}
	return nil
}
