package credential

import "regexp"

const maxReasonLength = 200

var (
	apiKeyPattern   = regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`)
	bearerPattern   = regexp.MustCompile(`Bearer\s+[A-Za-z0-9_.-]+`)
	keyParamPattern = regexp.MustCompile(`([?&]key=)[^&\s"']+`)
)

// SanitizeReason strips anything resembling a secret from a failure message
// and truncates it. Every reason that is logged or persisted goes through here.
func SanitizeReason(reason string) string {
	if reason == "" {
		return "unknown"
	}
	out := apiKeyPattern.ReplaceAllString(reason, "[REDACTED_KEY]")
	out = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	out = keyParamPattern.ReplaceAllString(out, "${1}[REDACTED]")
	if len(out) > maxReasonLength {
		out = truncateUTF8(out, maxReasonLength)
	}
	return out
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
