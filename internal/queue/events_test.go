package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	occurred := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := DirectoryEvent{
		Type:       SubscriptionRecorded,
		Username:   "alice",
		URL:        "url-a",
		TargetURL:  "url-b",
		OccurredAt: occurred,
	}

	body, err := event.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
}

func TestDecodeEvent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"type": }`},
		{name: "unknown type", body: `{"type":"user.deleted","username":"alice"}`},
		{name: "missing type", body: `{"username":"alice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()
	e := NewEvent(CardsRotated, "bob")

	assert.Equal(t, CardsRotated, e.Type)
	assert.Equal(t, "bob", e.Username)
	assert.False(t, e.OccurredAt.Before(before.Add(-time.Second)))
	assert.Equal(t, time.UTC, e.OccurredAt.Location())
}

func TestNoopPublisher(t *testing.T) {
	var p EventPublisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), NewEvent(UserRegistered, "alice")))
}
