package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPayloadShape(t *testing.T) {
	// index 0은 첫 slot이므로 직렬화에서 빠지면 안 됨
	event := NewEvent(TypeVisualProcessing, "gen-1", "user-1")
	event.VisualType = "duo"
	event.VisualIndex = Int(0)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"visualIndex":0`)
	assert.NotContains(t, string(data), "completedCount")

	done := NewEvent(TypeGenerationCompleted, "gen-1", "user-1")
	done.CompletedCount = Int(0)
	done.TotalCount = Int(6)

	data, err = json.Marshal(done)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"completedCount":0`)
	assert.Contains(t, string(data), `"totalCount":6`)
	assert.False(t, strings.Contains(string(data), "visualIndex"))
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()

	sub1 := hub.Subscribe("gen-1", "user-1")
	sub2 := hub.Subscribe("gen-1", "user-1")
	other := hub.Subscribe("gen-2", "user-1")

	event := NewEvent(TypeVisualCompleted, "gen-1", "user-1")
	event.VisualType = "solo"
	hub.Publish(event)

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case got := <-sub.Channel:
			assert.Equal(t, TypeVisualCompleted, got.Type)
			assert.Equal(t, "solo", got.VisualType)
			assert.NotEmpty(t, got.Timestamp)
		case <-time.After(time.Second):
			t.Fatal("expected event not received")
		}
	}

	select {
	case <-other.Channel:
		t.Fatal("subscriber of another generation received event")
	default:
	}
}

func TestHubPublishToNoSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		hub.Publish(NewEvent(TypeVisualProcessing, "gen-1", "user-1"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("gen-1", "user-1")

	// 버퍼를 넘겨 채움
	for i := 0; i < 300; i++ {
		hub.Publish(NewEvent(TypeVisualProcessing, "gen-1", "user-1"))
	}

	// 드롭되었을 뿐 블록되지 않음
	assert.Equal(t, 256, len(sub.Channel))
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("gen-1", "user-1")
	require.Equal(t, 1, hub.SubscriberCount("gen-1", "user-1"))

	hub.Unsubscribe("gen-1", "user-1", sub)
	assert.Equal(t, 0, hub.SubscriberCount("gen-1", "user-1"))

	// 채널이 닫혔는지
	_, open := <-sub.Channel
	assert.False(t, open)

	// 이중 해제는 no-op
	hub.Unsubscribe("gen-1", "user-1", sub)
}
