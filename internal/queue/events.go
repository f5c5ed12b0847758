package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	UserRegistered       EventType = "user.registered"
	CardsInitialized     EventType = "cards.initialized"
	SubscriptionRecorded EventType = "subscription.recorded"
	CardsRotated         EventType = "cards.rotated"
)

// DirectoryEvent announces a committed write to the users table.
type DirectoryEvent struct {
	Type       EventType `json:"type"`
	Username   string    `json:"username"`
	URL        string    `json:"url,omitempty"`
	TargetURL  string    `json:"target_url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, username string) DirectoryEvent {
	return DirectoryEvent{
		Type:       eventType,
		Username:   username,
		OccurredAt: time.Now().UTC(),
	}
}

func (e DirectoryEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a message body and rejects events without a known type.
func DecodeEvent(body []byte) (DirectoryEvent, error) {
	var e DirectoryEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return DirectoryEvent{}, fmt.Errorf("decode event: %w", err)
	}
	switch e.Type {
	case UserRegistered, CardsInitialized, SubscriptionRecorded, CardsRotated:
		return e, nil
	default:
		return DirectoryEvent{}, fmt.Errorf("unknown event type: %q", e.Type)
	}
}
