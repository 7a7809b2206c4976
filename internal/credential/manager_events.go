package credential

import (
	"time"

	"cardgen-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// CredentialEvent describes a change to the pool. Only masked ids leave the manager.
type CredentialEvent struct {
	Action    string    `json:"action"`
	KeyID     string    `json:"key_id,omitempty"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// RotationEvent is published on events.TopicCredentialRotated.
type RotationEvent struct {
	From           string    `json:"from"`
	To             string    `json:"to"`
	Reason         string    `json:"reason"`
	TotalRotations int64     `json:"total_rotations"`
	Timestamp      time.Time `json:"timestamp"`
}

// FailureEvent is published on events.TopicCredentialFailure.
type FailureEvent struct {
	KeyID               string    `json:"key_id"`
	Reason              string    `json:"reason"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Quota               bool      `json:"quota"`
	Timestamp           time.Time `json:"timestamp"`
}

type pendingEvent struct {
	topic   string
	payload any
}

// emit queues an event; it is delivered by unlockAndPublish.
func (m *Manager) emit(topic string, payload any) {
	m.pending = append(m.pending, pendingEvent{topic: topic, payload: payload})
}

func (m *Manager) emitChange(action string, index int, keyID string) {
	m.emit(events.TopicCredentialChanged, CredentialEvent{
		Action:    action,
		KeyID:     keyID,
		Index:     index,
		Total:     len(m.state.Keys),
		Timestamp: m.now().UTC(),
	})
}

func logger() *log.Entry {
	return log.WithField("component", "credential")
}
