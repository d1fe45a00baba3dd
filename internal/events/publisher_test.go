package events

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionEvent(t *testing.T) {
	event := NewSessionEvent(EventAttemptStarted, 7, AttemptStartedEvent{AttemptID: 7, UserID: "u-1"})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventAttemptStarted, event.Type)
	assert.Equal(t, uint(7), event.AttemptID)
	assert.Equal(t, "assessment-session-service", event.Source)
	assert.Equal(t, "1.0", event.Version)
	assert.False(t, event.Timestamp.IsZero())

	other := NewSessionEvent(EventAttemptStarted, 7, nil)
	assert.NotEqual(t, event.ID, other.ID)
}

func TestSessionEvent_WithMetadata(t *testing.T) {
	event := NewSessionEvent(EventQuestionExpired, 1, nil).WithMetadata("index", 3)
	require.NotNil(t, event.Metadata)
	assert.Equal(t, 3, event.Metadata["index"])
}

func TestMockEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := NewMockEventPublisher(logger)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eventType := EventAttemptStarted
			if i%2 == 0 {
				eventType = EventQuestionExpired
			}
			_ = pub.PublishSessionEvent(ctx, NewSessionEvent(eventType, uint(i), nil))
		}(i)
	}
	wg.Wait()

	assert.Len(t, pub.GetPublishedEvents(), 10)
	assert.Len(t, pub.EventsOfType(EventQuestionExpired), 5)

	pub.ClearEvents()
	assert.Empty(t, pub.GetPublishedEvents())
	assert.NoError(t, pub.Close())
}
