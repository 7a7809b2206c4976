package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cardgen-go/internal/credential"
	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(c byte) string { return "AIza" + strings.Repeat(string(c), 35) }

type call struct {
	key    string
	prompt string
	cfg    upstream.GenerationConfig
}

// scripted answers each call with the next reply; the last reply repeats.
type scripted struct {
	mu      sync.Mutex
	replies []func(apiKey string) (string, error)
	calls   []call
}

func (s *scripted) Generate(_ context.Context, apiKey, prompt string, cfg upstream.GenerationConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{key: apiKey, prompt: prompt, cfg: cfg})
	i := len(s.calls) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i](apiKey)
}

func ok(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

func fail(msg string) func(string) (string, error) {
	return func(string) (string, error) { return "", errors.New(msg) }
}

type harness struct {
	gw     *Gateway
	gen    *scripted
	creds  *credential.Manager
	sleeps []time.Duration
}

func newHarness(t *testing.T, replies []func(string) (string, error), keys ...string) *harness {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &harness{
		gen:   &scripted{replies: replies},
		creds: credential.NewMemoryManager(credential.Options{Now: func() time.Time { return now }}, keys...),
	}
	h.gw = New(h.gen, h.creds, Options{Model: "gemini-test", CreativeModel: "gemini-creative", Backoff: time.Second})
	h.gw.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) stats(t *testing.T, secret string) credential.Stats {
	t.Helper()
	st, found := h.creds.Stats(credential.Mask(secret))
	require.True(t, found)
	return st
}

func TestGenerateTextSuccessCreditsKind(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){ok("  hola \n")}, key('a'))

	out, err := h.gw.GenerateText(context.Background(), "hi", upstream.GenerationConfig{}, RetryOptions{Kind: credential.KindTranslation, Count: 4})
	require.NoError(t, err)
	require.Equal(t, "hola", out)
	require.Len(t, h.gen.calls, 1)
	require.Equal(t, "gemini-test", h.gen.calls[0].cfg.Model)
	require.Empty(t, h.sleeps)

	st := h.stats(t, key('a'))
	assert.EqualValues(t, 1, st.SuccessfulRequests)
	assert.EqualValues(t, 4, st.TotalWordsProcessed)
}

func TestGenerateTextRotatesOnQuotaWithoutBackoff(t *testing.T) {
	replies := []func(string) (string, error){
		fail("HTTP 429 Too Many Requests: Resource has been exhausted (e.g. check quota)."),
		ok("done"),
	}
	h := newHarness(t, replies, key('a'), key('b'))

	out, err := h.gw.GenerateText(context.Background(), "p", upstream.GenerationConfig{}, RetryOptions{Kind: credential.KindSentence, Count: 1})
	require.NoError(t, err)
	require.Equal(t, "done", out)
	require.Empty(t, h.sleeps)
	require.Len(t, h.gen.calls, 2)
	assert.Equal(t, key('a'), h.gen.calls[0].key)
	assert.Equal(t, key('b'), h.gen.calls[1].key)

	a := h.stats(t, key('a'))
	assert.EqualValues(t, 1, a.FailedRequests)
	assert.NotNil(t, a.ExhaustedUntil)
	b := h.stats(t, key('b'))
	assert.EqualValues(t, 1, b.TotalSentencesGenerated)
}

func TestGenerateTextBacksOffOnTransientFailure(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){fail("network error: connection refused")}, key('a'), key('b'))

	_, err := h.gw.GenerateText(context.Background(), "p", upstream.GenerationConfig{}, RetryOptions{})
	var ce *apperrors.ClassifiedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, apperrors.KindNetwork, ce.Kind)
	require.Equal(t, 3, ce.Attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps)

	// Three failures stay below the rotation threshold.
	require.Equal(t, key('a'), h.gen.calls[2].key)
	assert.EqualValues(t, 3, h.stats(t, key('a')).FailedRequests)
}

func TestGenerateTextSingleKeyQuotaCountsOnce(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){fail("429 quota exceeded")}, key('a'))

	_, err := h.gw.GenerateText(context.Background(), "p", upstream.GenerationConfig{}, RetryOptions{MaxRetries: 2})
	require.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))
	require.Len(t, h.gen.calls, 2)
	require.Len(t, h.sleeps, 1)
	assert.EqualValues(t, 2, h.stats(t, key('a')).FailedRequests)
}

func TestGenerateTextStopsWhenWholePoolIsCooling(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){fail("RESOURCE_EXHAUSTED")}, key('a'), key('b'))

	_, err := h.gw.GenerateText(context.Background(), "p", upstream.GenerationConfig{}, RetryOptions{})
	require.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))
	// one rotated retry, then three counted attempts
	require.Len(t, h.gen.calls, 4)
	require.Len(t, h.sleeps, 2)
}

func TestGenerateTextEmptyAnswerIsMalformed(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){ok("   ")}, key('a'))

	_, err := h.gw.GenerateText(context.Background(), "p", upstream.GenerationConfig{}, RetryOptions{MaxRetries: 1})
	require.Equal(t, apperrors.KindMalformedResponse, apperrors.KindOf(err))
}

func TestGenerateTextWithoutCredentials(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){ok("x")})

	_, err := h.gw.GenerateText(context.Background(), "p", upstream.GenerationConfig{}, RetryOptions{})
	require.ErrorIs(t, err, apperrors.ErrExhausted)
	require.Empty(t, h.gen.calls)
}

func TestGenerateTextHonoursCancellation(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){fail("timeout")}, key('a'))
	ctx, cancel := context.WithCancel(context.Background())
	h.gw.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := h.gw.GenerateText(ctx, "p", upstream.GenerationConfig{}, RetryOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, h.gen.calls, 1)
}

func TestGenerateTextDoesNotLeakSecretInError(t *testing.T) {
	secret := key('a')
	h := newHarness(t, []func(string) (string, error){fail("HTTP 400: bad request for key=" + secret)}, secret)

	_, err := h.gw.GenerateText(context.Background(), "p", upstream.GenerationConfig{}, RetryOptions{MaxRetries: 1})
	require.Error(t, err)
	require.NotContains(t, err.Error(), secret)
	require.NotContains(t, h.stats(t, secret).LastFailureReason, secret)
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"```json\n{\"a\":2}\n```", `{"a":2}`, true},
		{"Sure! Here you go: {\"a\":{\"b\":3}} hope it helps", `{"a":{"b":3}}`, true},
		{"first {\"a\":4} then {broken", `{"a":4}`, true},
		{"no json here", "", false},
		{"{not: json}", "", false},
	}
	for _, tc := range cases {
		got, ok := extractJSON(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestGenerateJSONAppendsInstruction(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){ok("```json\n{\"x\": \"y\"}\n```")}, key('a'))

	doc, err := h.gw.GenerateJSON(context.Background(), "give", `{"x": "string"}`, JSONConfig(), RetryOptions{})
	require.NoError(t, err)
	require.Equal(t, "y", doc.Get("x").String())

	prompt := h.gen.calls[0].prompt
	require.True(t, strings.HasPrefix(prompt, "give"))
	require.Contains(t, prompt, `{"x": "string"}`)
	require.True(t, strings.HasSuffix(prompt, "Respond with valid JSON only. No markdown formatting."))
	require.InDelta(t, 0.3, h.gen.calls[0].cfg.Temperature, 1e-9)
	require.Equal(t, 512, h.gen.calls[0].cfg.MaxOutputTokens)
	require.Equal(t, "application/json", h.gen.calls[0].cfg.ResponseMIMEType)

	// callers passing their own sampling profile still get a JSON response type
	h.gen.replies = append(h.gen.replies, ok(`{"x": "z"}`))
	_, err = h.gw.GenerateJSON(context.Background(), "give", "", upstream.GenerationConfig{Temperature: 0.9}, RetryOptions{})
	require.NoError(t, err)
	require.Equal(t, "application/json", h.gen.calls[1].cfg.ResponseMIMEType)
	require.InDelta(t, 0.9, h.gen.calls[1].cfg.Temperature, 1e-9)
}

func TestGenerateJSONUnparseable(t *testing.T) {
	h := newHarness(t, []func(string) (string, error){ok("I cannot do that")}, key('a'))

	_, err := h.gw.GenerateJSON(context.Background(), "give", "", JSONConfig(), RetryOptions{})
	require.Equal(t, apperrors.KindMalformedResponse, apperrors.KindOf(err))
}
