package errors

import "strings"

// Classify maps error text onto a Kind by case-insensitive substring match.
// Rules are checked in order and the first match wins.
func Classify(text string) Kind {
	s := strings.ToLower(text)

	switch {
	case containsAny(s, "quota", "resource exhausted", "resource_exhausted"):
		return KindQuotaExceeded
	case containsAny(s, "429", "rate limit", "ratelimit", "too many requests"):
		return KindRateLimit
	case containsAny(s, "api key not valid", "invalid api key", "api_key_invalid", "401", "unauthenticated", "unauthorized"),
		strings.Contains(s, "invalid") && strings.Contains(s, "key"):
		return KindInvalidCredential
	case containsAny(s, "403", "permission denied", "permission_denied", "forbidden"):
		return KindPermissionDenied
	case strings.Contains(s, "model") && containsAny(s, "404", "not found", "not_found"):
		return KindModelNotFound
	case containsAny(s, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(s, "connection", "network", "refused", "unreachable", "no such host", "eof"):
		return KindNetwork
	case containsAny(s, "safety", "blocked", "content filter", "harm"):
		return KindContentFiltered
	case containsAny(s, "json", "parse", "decode", "empty response", "malformed"):
		return KindMalformedResponse
	default:
		return KindUnknown
	}
}

// ShouldRotate reports whether a failure of kind k is tied to the credential
// and warrants switching to another one.
func ShouldRotate(k Kind) bool {
	switch k {
	case KindRateLimit, KindQuotaExceeded, KindInvalidCredential:
		return true
	default:
		return false
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
