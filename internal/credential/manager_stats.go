package credential

// Stats returns a copy of the statistics for a masked id.
func (m *Manager) Stats(keyID string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state.Stats[keyID]
	if st == nil {
		return Stats{}, false
	}
	return st.clone(), true
}

// AllStats returns a copy of every statistics entry keyed by masked id.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.state.Stats))
	for id, st := range m.state.Stats {
		out[id] = st.clone()
	}
	return out
}

// Summary aggregates statistics across the pool.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.unlockAndPublish()

	sum := Summary{
		TotalKeys:       len(m.state.Keys),
		TotalRotations:  m.state.TotalRotations,
		CurrentKeyIndex: m.state.CurrentKeyIndex,
	}
	for _, k := range m.state.Keys {
		id := Mask(k)
		if m.usableLocked(id) {
			sum.ActiveKeys++
		} else {
			sum.ExhaustedKeys++
		}
		st := m.state.Stats[id]
		if st == nil {
			continue
		}
		sum.TotalRequests += st.TotalRequests
		sum.SuccessfulRequests += st.SuccessfulRequests
		sum.FailedRequests += st.FailedRequests
		sum.TotalWordsProcessed += st.TotalWordsProcessed
		sum.TotalImagesGenerated += st.TotalImagesGenerated
		sum.TotalSentencesGenerated += st.TotalSentencesGenerated
	}
	if sum.TotalRequests > 0 {
		sum.SuccessRate = float64(sum.SuccessfulRequests) / float64(sum.TotalRequests) * 100
	}
	if secret, ok := m.currentLocked(); ok {
		sum.CurrentKeyIndex = m.state.CurrentKeyIndex
		sum.CurrentKeyID = Mask(secret)
	}
	return sum
}

// ResetStats zeroes every counter and the rotation history. Active flags are
// reset too; cooldowns are cleared.
func (m *Manager) ResetStats() {
	m.mu.Lock()
	defer m.unlockAndPublish()

	m.state.Stats = make(map[string]*Stats, len(m.state.Keys))
	m.state.TotalRotations = 0
	m.state.LastRotation = nil
	for _, k := range m.state.Keys {
		m.state.ensureStats(k)
	}
	m.dirty = true
	logger().Info("credential statistics reset")
	m.emitChange("stats_reset", m.state.CurrentKeyIndex, "")
}
