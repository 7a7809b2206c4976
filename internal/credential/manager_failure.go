package credential

import (
	"strings"

	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/events"
	"cardgen-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

var quotaMarkers = []string{
	"429",
	"quota",
	"rate",
	"resource_exhausted",
	"resource exhausted",
	"limit",
	"exhausted",
}

// IsQuotaReason reports whether a failure message signals quota or rate
// exhaustion, which puts the credential into cooldown.
func IsQuotaReason(reason string) bool {
	lower := strings.ToLower(reason)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RecordSuccess credits the current credential with a successful request
// that produced count items of kind.
func (m *Manager) RecordSuccess(kind Kind, count int) {
	m.mu.Lock()
	defer m.unlockAndPublish()

	secret, ok := m.currentLocked()
	if !ok {
		return
	}
	now := m.now()
	st := m.state.ensureStats(secret)
	st.TotalRequests++
	st.SuccessfulRequests++
	st.ConsecutiveFailures = 0
	st.LastUsed = &now

	switch kind {
	case KindTranslation:
		st.TotalWordsProcessed += int64(count)
	case KindImage:
		st.TotalImagesGenerated += int64(count)
	case KindSentence:
		st.TotalSentencesGenerated += int64(count)
	}
	m.dirty = true
}

// RecordFailure charges the current credential with a failed request. Quota
// failures start a cooldown and rotate immediately; other failures rotate
// once the failure streak reaches the threshold. It reports whether a
// rotation happened and the masked id of the new current credential.
func (m *Manager) RecordFailure(reason string) (rotated bool, newID string) {
	m.mu.Lock()
	defer m.unlockAndPublish()

	secret, ok := m.currentLocked()
	if !ok {
		return false, ""
	}
	now := m.now()
	id := Mask(secret)
	sanitized := SanitizeReason(reason)
	quota := IsQuotaReason(reason)

	st := m.state.ensureStats(secret)
	st.TotalRequests++
	st.FailedRequests++
	st.ConsecutiveFailures++
	st.LastFailure = &now
	st.LastFailureReason = sanitized
	if quota {
		until := now.Add(m.cooldown)
		st.ExhaustedUntil = &until
	}
	m.dirty = true

	monitoring.CredentialFailuresTotal.WithLabelValues(string(apperrors.Classify(reason))).Inc()
	entry := logger().WithFields(log.Fields{
		"key_id":      id,
		"consecutive": st.ConsecutiveFailures,
		"quota":       quota,
	})
	entry.WithField("reason", sanitized).Warn("API request failed")
	m.emit(events.TopicCredentialFailure, FailureEvent{
		KeyID:               id,
		Reason:              sanitized,
		ConsecutiveFailures: st.ConsecutiveFailures,
		Quota:               quota,
		Timestamp:           now.UTC(),
	})

	if !m.rotate || len(m.state.Keys) < 2 {
		return false, ""
	}
	rotationReason := ""
	switch {
	case quota:
		rotationReason = "quota_exhausted"
	case st.ConsecutiveFailures >= m.failureThreshold:
		rotationReason = "consecutive_failures"
	default:
		return false, ""
	}

	next, err := m.advanceLocked(rotationReason)
	if err != nil {
		entry.WithError(err).Warn("rotation not possible")
		return false, ""
	}
	return true, next
}
