package credential

import (
	"cardgen-go/internal/events"
	"cardgen-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

// Current returns the credential requests should use. When the current entry
// is unusable the pool is scanned forward (wrapping once) and the first usable
// entry becomes current. When nothing is usable the first entry is returned
// anyway so callers always have something to try. ok is false only for an
// empty pool.
func (m *Manager) Current() (secret string, ok bool) {
	m.mu.Lock()
	defer m.unlockAndPublish()
	return m.currentLocked()
}

// CurrentID returns the masked id of Current, or "" for an empty pool.
func (m *Manager) CurrentID() string {
	secret, ok := m.Current()
	if !ok {
		return ""
	}
	return Mask(secret)
}

func (m *Manager) currentLocked() (string, bool) {
	n := len(m.state.Keys)
	if n == 0 {
		return "", false
	}
	m.state.clampIndex()
	start := m.state.CurrentKeyIndex
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if m.usableLocked(Mask(m.state.Keys[idx])) {
			if idx != start {
				m.state.CurrentKeyIndex = idx
				m.dirty = true
			}
			return m.state.Keys[idx], true
		}
	}
	return m.state.Keys[0], true
}

// Usable reports whether the credential with the given masked id may be used.
// An expired cooldown is cleared here, together with the failure streak.
func (m *Manager) Usable(keyID string) bool {
	m.mu.Lock()
	defer m.unlockAndPublish()
	return m.usableLocked(keyID)
}

func (m *Manager) usableLocked(keyID string) bool {
	st := m.state.Stats[keyID]
	if st == nil {
		return true
	}
	if !st.IsActive {
		return false
	}
	if st.ExhaustedUntil != nil {
		if m.now().Before(*st.ExhaustedUntil) {
			return false
		}
		st.ExhaustedUntil = nil
		st.ConsecutiveFailures = 0
		m.dirty = true
		logger().WithField("key_id", keyID).Info("credential cooldown expired")
	}
	return true
}

// Advance rotates to the next usable credential and returns its masked id.
func (m *Manager) Advance(reason string) (string, error) {
	m.mu.Lock()
	defer m.unlockAndPublish()
	return m.advanceLocked(reason)
}

func (m *Manager) advanceLocked(reason string) (string, error) {
	n := len(m.state.Keys)
	if n < 2 {
		return "", ErrSingleCredential
	}
	m.state.clampIndex()
	start := m.state.CurrentKeyIndex
	from := Mask(m.state.Keys[start])

	for step := 1; step < n; step++ {
		idx := (start + step) % n
		id := Mask(m.state.Keys[idx])
		if !m.usableLocked(id) {
			continue
		}

		now := m.now()
		m.state.CurrentKeyIndex = idx
		m.state.TotalRotations++
		m.state.LastRotation = &now
		m.dirty = true

		monitoring.CredentialRotationsTotal.WithLabelValues(reason).Inc()
		logger().WithFields(log.Fields{
			"from":   from,
			"to":     id,
			"reason": reason,
		}).Info("rotated API key")
		m.emit(events.TopicCredentialRotated, RotationEvent{
			From:           from,
			To:             id,
			Reason:         reason,
			TotalRotations: m.state.TotalRotations,
			Timestamp:      now.UTC(),
		})
		return id, nil
	}
	return "", ErrAllExhausted
}

// ForceSetCurrent makes the credential at index current.
func (m *Manager) ForceSetCurrent(index int) error {
	m.mu.Lock()
	defer m.unlockAndPublish()
	if index < 0 || index >= len(m.state.Keys) {
		return invalid("invalid index %d", index)
	}
	m.state.CurrentKeyIndex = index
	m.dirty = true
	m.emitChange("selected", index, Mask(m.state.Keys[index]))
	return nil
}
