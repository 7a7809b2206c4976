package credential

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Add validates secret and appends it to the pool.
func (m *Manager) Add(secret string) error {
	secret = strings.TrimSpace(secret)

	m.mu.Lock()
	defer m.unlockAndPublish()

	if secret == "" {
		return invalid("API key is empty")
	}
	if len(m.state.Keys) >= m.maxKeys {
		return invalid("maximum of %d API keys can be registered", m.maxKeys)
	}
	for _, k := range m.state.Keys {
		if k == secret {
			return invalid("this API key is already registered")
		}
	}
	if err := ValidateFormat(secret); err != nil {
		return err
	}

	m.state.Keys = append(m.state.Keys, secret)
	m.state.ensureStats(secret)
	m.dirty = true

	id := Mask(secret)
	logger().WithFields(log.Fields{"key_id": id, "total": len(m.state.Keys)}).Info("API key added")
	m.emitChange("added", len(m.state.Keys)-1, id)
	return nil
}

// Remove deletes the credential at index together with its statistics. The
// current index keeps pointing at the same credential when possible.
func (m *Manager) Remove(index int) error {
	m.mu.Lock()
	defer m.unlockAndPublish()

	if index < 0 || index >= len(m.state.Keys) {
		return invalid("invalid index %d", index)
	}
	secret := m.state.Keys[index]
	id := Mask(secret)

	m.state.Keys = append(m.state.Keys[:index:index], m.state.Keys[index+1:]...)
	if index < m.state.CurrentKeyIndex {
		m.state.CurrentKeyIndex--
	}
	m.state.clampIndex()
	if !m.maskInUseLocked(id) {
		delete(m.state.Stats, id)
	}
	m.dirty = true

	logger().WithFields(log.Fields{"key_id": id, "total": len(m.state.Keys)}).Info("API key removed")
	m.emitChange("removed", index, id)
	return nil
}

// maskInUseLocked reports whether another pool entry shares the masked id.
func (m *Manager) maskInUseLocked(id string) bool {
	for _, k := range m.state.Keys {
		if Mask(k) == id {
			return true
		}
	}
	return false
}

// ListMasked returns the display form of every credential, in pool order.
func (m *Manager) ListMasked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.state.Keys))
	for i, k := range m.state.Keys {
		out[i] = Mask(k)
	}
	return out
}

// Keys describes every credential without revealing it.
func (m *Manager) Keys() []MaskedKey {
	m.mu.Lock()
	defer m.unlockAndPublish()

	out := make([]MaskedKey, len(m.state.Keys))
	for i, k := range m.state.Keys {
		id := Mask(k)
		entry := MaskedKey{
			Index:   i,
			ID:      id,
			Current: i == m.state.CurrentKeyIndex,
			Usable:  m.usableLocked(id),
			Active:  true,
		}
		if st := m.state.Stats[id]; st != nil {
			entry.Active = st.IsActive
			entry.ExhaustedUntil = cloneTime(st.ExhaustedUntil)
		}
		out[i] = entry
	}
	return out
}

// Count returns the pool size.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.Keys)
}

// Clear removes every credential and its statistics.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.unlockAndPublish()
	m.state.Keys = nil
	m.state.CurrentKeyIndex = 0
	m.state.Stats = make(map[string]*Stats)
	m.dirty = true
	logger().Info("all API keys cleared")
	m.emitChange("cleared", 0, "")
}

// SetActive enables or disables the credential at index. Disabled credentials
// are skipped by selection until re-enabled.
func (m *Manager) SetActive(index int, active bool) error {
	m.mu.Lock()
	defer m.unlockAndPublish()

	if index < 0 || index >= len(m.state.Keys) {
		return invalid("invalid index %d", index)
	}
	st := m.state.ensureStats(m.state.Keys[index])
	st.IsActive = active
	m.dirty = true

	action := "deactivated"
	if active {
		action = "activated"
	}
	m.emitChange(action, index, st.KeyID)
	return nil
}

// ResetCooldown clears the cooldown and failure streak of the credential at index.
func (m *Manager) ResetCooldown(index int) error {
	m.mu.Lock()
	defer m.unlockAndPublish()

	if index < 0 || index >= len(m.state.Keys) {
		return invalid("invalid index %d", index)
	}
	st := m.state.ensureStats(m.state.Keys[index])
	st.ExhaustedUntil = nil
	st.ConsecutiveFailures = 0
	m.dirty = true
	m.emitChange("cooldown_reset", index, st.KeyID)
	return nil
}

// MigrateLegacy imports keys from older configuration layouts: a single key
// and a plain list. Keys already present or failing validation are skipped.
// It returns how many keys were added.
func (m *Manager) MigrateLegacy(single string, list []string) int {
	candidates := make([]string, 0, len(list)+1)
	if strings.TrimSpace(single) != "" {
		candidates = append(candidates, single)
	}
	candidates = append(candidates, list...)

	added := 0
	for _, k := range candidates {
		k = strings.TrimSpace(k)
		if k == "" || m.contains(k) {
			continue
		}
		if err := m.Add(k); err != nil {
			logger().WithField("key_id", Mask(k)).WithError(err).Warn("skipping legacy API key")
			continue
		}
		added++
	}
	return added
}

func (m *Manager) contains(secret string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.state.Keys {
		if k == secret {
			return true
		}
	}
	return false
}
