package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Kind
	}{
		{"429 Resource has been exhausted (e.g. check quota).", KindQuotaExceeded},
		{"RESOURCE_EXHAUSTED", KindQuotaExceeded},
		{"429 Too Many Requests", KindRateLimit},
		{"rate limit hit", KindRateLimit},
		{"400 API key not valid. Please pass a valid API key.", KindInvalidCredential},
		{"status 401", KindInvalidCredential},
		{"invalid key supplied", KindInvalidCredential},
		{"403 permission denied on resource", KindPermissionDenied},
		{"404 models/gemini-9 is not found", KindModelNotFound},
		{"dial tcp: i/o timeout", KindTimeout},
		{"context deadline exceeded", KindTimeout},
		{"dial tcp 1.2.3.4:443: connect: connection refused", KindNetwork},
		{"lookup example.com: no such host", KindNetwork},
		{"response blocked due to SAFETY", KindContentFiltered},
		{"failed to decode json body", KindMalformedResponse},
		{"empty response from model", KindMalformedResponse},
		{"something odd", KindUnknown},
		{"", KindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.text), tc.text)
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	require.Equal(t, Classify("quota exceeded"), Classify("QUOTA EXCEEDED"))
}

func TestShouldRotate(t *testing.T) {
	rotating := map[Kind]bool{
		KindRateLimit:         true,
		KindQuotaExceeded:     true,
		KindInvalidCredential: true,
	}
	all := []Kind{
		KindRateLimit, KindQuotaExceeded, KindInvalidCredential, KindPermissionDenied,
		KindModelNotFound, KindNetwork, KindTimeout, KindContentFiltered,
		KindMalformedResponse, KindUnknown,
	}
	for _, k := range all {
		assert.Equal(t, rotating[k], ShouldRotate(k), string(k))
	}
}

func TestWrapAndKindOf(t *testing.T) {
	base := fmt.Errorf("upstream: %w", stderrors.New("429 quota exceeded"))
	ce := Wrap(base, 3)
	require.Equal(t, KindQuotaExceeded, ce.Kind)
	require.Equal(t, 3, ce.Attempts)
	require.ErrorIs(t, ce, base)
	require.Contains(t, ce.Error(), "after 3 attempt(s)")

	wrapped := fmt.Errorf("item 7: %w", ce)
	require.Equal(t, KindQuotaExceeded, KindOf(wrapped))
	require.Same(t, ce, Wrap(wrapped, 9))
	require.Nil(t, Wrap(nil, 1))
	require.Equal(t, KindNetwork, KindOf(stderrors.New("network unreachable")))
}

func TestUserMessage(t *testing.T) {
	require.Contains(t, UserMessage(KindInvalidCredential), "Invalid API key")
	require.Equal(t, "Unexpected error.", UserMessage(KindUnknown))
}
