package credential

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxCredentials caps the size of the pool.
	DefaultMaxCredentials = 15
	// DefaultCooldown is how long a quota-exhausted credential is skipped.
	DefaultCooldown = 24 * time.Hour
	// DefaultFailureThreshold is the consecutive-failure count that triggers rotation.
	DefaultFailureThreshold = 5

	keyPrefix    = "AIza"
	minKeyLength = 35
	maxKeyLength = 50

	invalidMask = "invalid"
)

// Kind identifies what a successful request produced.
type Kind string

const (
	KindTranslation Kind = "translation"
	KindSentence    Kind = "sentence"
	KindImage       Kind = "image"
)

// ValidationError explains why a credential was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Mask returns the display form of secret: first 4 + "..." + last 4.
// It doubles as the key for per-credential statistics.
func Mask(secret string) string {
	if len(secret) < 10 {
		return invalidMask
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// ValidateFormat checks prefix, length and charset of an API key.
func ValidateFormat(secret string) error {
	if !strings.HasPrefix(secret, keyPrefix) {
		return invalid("invalid API key format (must start with %q)", keyPrefix)
	}
	if len(secret) < minKeyLength || len(secret) > maxKeyLength {
		return invalid("invalid API key length, expected %d-%d characters", minKeyLength, maxKeyLength)
	}
	for _, r := range secret {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return invalid("API key contains invalid characters")
		}
	}
	return nil
}

// Stats are the per-credential counters persisted alongside the pool.
type Stats struct {
	KeyID                   string     `json:"key_id"`
	TotalRequests           int64      `json:"total_requests"`
	SuccessfulRequests      int64      `json:"successful_requests"`
	FailedRequests          int64      `json:"failed_requests"`
	ConsecutiveFailures     int        `json:"consecutive_failures"`
	TotalWordsProcessed     int64      `json:"total_words_processed"`
	TotalImagesGenerated    int64      `json:"total_images_generated"`
	TotalSentencesGenerated int64      `json:"total_sentences_generated"`
	LastUsed                *time.Time `json:"last_used,omitempty"`
	LastFailure             *time.Time `json:"last_failure,omitempty"`
	LastFailureReason       string     `json:"last_failure_reason,omitempty"`
	ExhaustedUntil          *time.Time `json:"exhausted_until,omitempty"`
	IsActive                bool       `json:"is_active"`
}

func newStats(id string) *Stats {
	return &Stats{KeyID: id, IsActive: true}
}

// statsJSON mirrors Stats on the wire and also accepts the legacy field names.
type statsJSON struct {
	KeyID                   string    `json:"key_id"`
	TotalRequests           int64     `json:"total_requests"`
	SuccessfulRequests      int64     `json:"successful_requests"`
	FailedRequests          int64     `json:"failed_requests"`
	ConsecutiveFailures     int       `json:"consecutive_failures"`
	TotalWordsProcessed     *int64    `json:"total_words_processed,omitempty"`
	TotalWordsTranslated    int64     `json:"total_words_translated,omitempty"`
	TotalImagesGenerated    int64     `json:"total_images_generated"`
	TotalSentencesGenerated int64     `json:"total_sentences_generated"`
	LastUsed                looseTime `json:"last_used"`
	LastFailure             looseTime `json:"last_failure"`
	LastFailureReason       string    `json:"last_failure_reason,omitempty"`
	ExhaustedUntil          looseTime `json:"exhausted_until"`
	ExhaustedAt             looseTime `json:"exhausted_at"`
	IsActive                *bool     `json:"is_active,omitempty"`
}

// UnmarshalJSON decodes Stats, defaulting missing fields. Documents written
// before exhausted_until existed carry exhausted_at, converted with DefaultCooldown.
func (s *Stats) UnmarshalJSON(data []byte) error {
	var raw statsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Stats{
		KeyID:                   raw.KeyID,
		TotalRequests:           raw.TotalRequests,
		SuccessfulRequests:      raw.SuccessfulRequests,
		FailedRequests:          raw.FailedRequests,
		ConsecutiveFailures:     raw.ConsecutiveFailures,
		TotalWordsProcessed:     raw.TotalWordsTranslated,
		TotalImagesGenerated:    raw.TotalImagesGenerated,
		TotalSentencesGenerated: raw.TotalSentencesGenerated,
		LastUsed:                raw.LastUsed.t,
		LastFailure:             raw.LastFailure.t,
		LastFailureReason:       raw.LastFailureReason,
		ExhaustedUntil:          raw.ExhaustedUntil.t,
		IsActive:                true,
	}
	if raw.TotalWordsProcessed != nil {
		s.TotalWordsProcessed = *raw.TotalWordsProcessed
	}
	if raw.IsActive != nil {
		s.IsActive = *raw.IsActive
	}
	if s.ExhaustedUntil == nil && raw.ExhaustedAt.t != nil {
		until := raw.ExhaustedAt.t.Add(DefaultCooldown)
		s.ExhaustedUntil = &until
	}
	return nil
}

// looseTime accepts RFC 3339 as well as the zone-less ISO timestamps found in
// older documents (interpreted as local time). Unparseable values decode to nil.
type looseTime struct {
	t *time.Time
}

var looseLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (l *looseTime) UnmarshalJSON(data []byte) error {
	l.t = nil
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		l.t = &t
		return nil
	}
	for _, layout := range looseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			l.t = &t
			return nil
		}
	}
	return nil
}

func (s *Stats) clone() Stats {
	out := *s
	out.LastUsed = cloneTime(s.LastUsed)
	out.LastFailure = cloneTime(s.LastFailure)
	out.ExhaustedUntil = cloneTime(s.ExhaustedUntil)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// State is the persisted credential pool.
type State struct {
	Keys            []string          `json:"keys"`
	CurrentKeyIndex int               `json:"current_key_index"`
	TotalRotations  int64             `json:"total_rotations"`
	LastRotation    *time.Time        `json:"last_rotation,omitempty"`
	Stats           map[string]*Stats `json:"stats"`
	Encrypted       bool              `json:"encrypted"`
}

type stateJSON struct {
	Keys            []string          `json:"keys"`
	CurrentKeyIndex int               `json:"current_key_index"`
	TotalRotations  int64             `json:"total_rotations"`
	LastRotation    looseTime         `json:"last_rotation"`
	Stats           map[string]*Stats `json:"stats"`
	Encrypted       bool              `json:"encrypted"`
}

// UnmarshalJSON decodes State with the same timestamp leniency as Stats.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = State{
		Keys:            raw.Keys,
		CurrentKeyIndex: raw.CurrentKeyIndex,
		TotalRotations:  raw.TotalRotations,
		LastRotation:    raw.LastRotation.t,
		Stats:           raw.Stats,
		Encrypted:       raw.Encrypted,
	}
	if s.Stats == nil {
		s.Stats = make(map[string]*Stats)
	}
	return nil
}

func newState() *State {
	return &State{Stats: make(map[string]*Stats)}
}

// clampIndex keeps CurrentKeyIndex inside Keys.
func (s *State) clampIndex() {
	switch {
	case len(s.Keys) == 0:
		s.CurrentKeyIndex = 0
	case s.CurrentKeyIndex < 0:
		s.CurrentKeyIndex = 0
	case s.CurrentKeyIndex >= len(s.Keys):
		s.CurrentKeyIndex = len(s.Keys) - 1
	}
}

func (s *State) ensureStats(secret string) *Stats {
	id := Mask(secret)
	st, ok := s.Stats[id]
	if !ok || st == nil {
		st = newStats(id)
		s.Stats[id] = st
	}
	return st
}

// Summary aggregates statistics across the pool.
type Summary struct {
	TotalKeys               int     `json:"total_keys"`
	ActiveKeys              int     `json:"active_keys"`
	ExhaustedKeys           int     `json:"exhausted_keys"`
	TotalRequests           int64   `json:"total_requests"`
	SuccessfulRequests      int64   `json:"successful_requests"`
	FailedRequests          int64   `json:"failed_requests"`
	SuccessRate             float64 `json:"success_rate"`
	TotalWordsProcessed     int64   `json:"total_words_processed"`
	TotalImagesGenerated    int64   `json:"total_images_generated"`
	TotalSentencesGenerated int64   `json:"total_sentences_generated"`
	TotalRotations          int64   `json:"total_rotations"`
	CurrentKeyIndex         int     `json:"current_key_index"`
	CurrentKeyID            string  `json:"current_key_id,omitempty"`
}

// MaskedKey is the display form of one pool entry.
type MaskedKey struct {
	Index          int        `json:"index"`
	ID             string     `json:"id"`
	Current        bool       `json:"current"`
	Usable         bool       `json:"usable"`
	Active         bool       `json:"active"`
	ExhaustedUntil *time.Time `json:"exhausted_until,omitempty"`
}
