package credential

import "cardgen-go/internal/monitoring"

// updateGaugesLocked publishes pool gauges without touching cooldown state.
func (m *Manager) updateGaugesLocked() {
	now := m.now()
	usable := 0
	for _, k := range m.state.Keys {
		st := m.state.Stats[Mask(k)]
		if st == nil {
			usable++
			continue
		}
		if !st.IsActive {
			continue
		}
		if st.ExhaustedUntil != nil && now.Before(*st.ExhaustedUntil) {
			continue
		}
		usable++
	}
	monitoring.CredentialsTotal.Set(float64(len(m.state.Keys)))
	monitoring.CredentialsUsable.Set(float64(usable))
}
