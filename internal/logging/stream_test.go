package logging

import (
	"context"
	"testing"

	"cardgen-go/internal/events"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestStreamFetchSinceCursor(t *testing.T) {
	s := NewStream()
	for i := 0; i < 5; i++ {
		s.Publish(Message{Kind: "log", Message: "line"})
	}

	msgs, cursor, more := s.FetchSince(0, 2)
	require.Len(t, msgs, 2)
	require.Equal(t, uint64(5), cursor)
	require.False(t, more)

	msgs, cursor, more = s.FetchSince(1, 2)
	require.Len(t, msgs, 2)
	require.Equal(t, uint64(2), msgs[0].ID)
	require.Equal(t, uint64(3), cursor)
	require.True(t, more)

	msgs, _, _ = s.FetchSince(5, 10)
	require.Empty(t, msgs)
}

func TestStreamForwardsHubEvents(t *testing.T) {
	s := NewStream()
	hub := events.NewHub()
	unsubscribe := s.ForwardEvents(hub)
	defer unsubscribe()

	hub.Publish(context.Background(), events.TopicBatchProgress, map[string]int{"done": 3}, nil)

	msgs, _, _ := s.FetchSince(0, 10)
	require.Len(t, msgs, 1)
	require.Equal(t, "event", msgs[0].Kind)
	require.Equal(t, events.TopicBatchProgress, msgs[0].Topic)
}

func TestForwardEventsFiltersByPattern(t *testing.T) {
	s := NewStream()
	hub := events.NewHub()
	unsubscribe := s.ForwardEvents(hub, events.Family("credentials"), events.TopicConfigUpdated)

	hub.Publish(context.Background(), events.TopicBatchProgress, nil, nil)
	hub.Publish(context.Background(), events.TopicCredentialRotated, nil, nil)
	hub.Publish(context.Background(), events.TopicConfigUpdated, nil, nil)

	msgs, _, _ := s.FetchSince(0, 10)
	require.Len(t, msgs, 2)
	require.Equal(t, events.TopicCredentialRotated, msgs[0].Topic)
	require.Equal(t, events.TopicConfigUpdated, msgs[1].Topic)

	unsubscribe()
	hub.Publish(context.Background(), events.TopicCredentialRotated, nil, nil)
	msgs, _, _ = s.FetchSince(0, 10)
	require.Len(t, msgs, 2)
}

func TestLogrusHookLevels(t *testing.T) {
	s := NewStream()
	hook := NewLogrusHook(s, log.WarnLevel)
	require.Contains(t, hook.Levels(), log.ErrorLevel)
	require.NotContains(t, hook.Levels(), log.InfoLevel)

	logger := log.New()
	logger.AddHook(hook)
	logger.SetOutput(discard{})
	logger.WithField("key_id", "AIza...abcd").Warn("rotated")
	logger.Info("ignored")

	msgs, _, _ := s.FetchSince(0, 10)
	require.Len(t, msgs, 1)
	require.Equal(t, "warning", msgs[0].Level)
	require.Equal(t, "AIza...abcd", msgs[0].Fields["key_id"])
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
