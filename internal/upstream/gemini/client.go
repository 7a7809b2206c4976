package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cardgen-go/internal/monitoring"
	"cardgen-go/internal/monitoring/tracing"
	"cardgen-go/internal/upstream"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"

	apiKeyHeader    = "x-goog-api-key"
	maxErrorBody    = 64 << 10
	maxResponseBody = 8 << 20
)

// Options configure the REST client.
type Options struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	ProxyURL string
}

// Client calls the generateContent REST method. It implements upstream.Generator.
type Client struct {
	endpoint string
	model    string
	timeout  time.Duration
	cli      *http.Client
}

var _ upstream.Generator = (*Client)(nil)

// New builds a client with its own transport.
func New(opts Options) *Client {
	tr := &http.Transport{
		Proxy: proxyFunc(opts.ProxyURL),
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	return NewWithHTTPClient(opts, &http.Client{Transport: tr})
}

// NewWithHTTPClient builds a client around an existing *http.Client.
func NewWithHTTPClient(opts Options, cli *http.Client) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Client{endpoint: endpoint, model: model, timeout: opts.Timeout, cli: cli}
}

// proxyFunc returns the configured proxy, falling back to the environment.
func proxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsed)
		}
	}
	return http.ProxyFromEnvironment
}

// Generate sends prompt as a single user turn and returns the concatenated
// text parts of the first candidate.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string, cfg upstream.GenerationConfig) (string, error) {
	model := cfg.Model
	if model == "" {
		model = c.model
	}
	body, err := buildPayload(prompt, cfg)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "upstream/gemini", "Gemini.GenerateContent",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", http.MethodPost),
			attribute.String("upstream.model", model),
		))

	start := time.Now()
	text, status, err := c.do(ctx, c.endpoint+"/models/"+url.PathEscape(model)+":generateContent", apiKey, body)
	monitoring.GenerationDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", status))
	tracing.EndSpan(span, err)

	if err != nil {
		log.WithFields(log.Fields{
			"model":  model,
			"status": status,
		}).Debug("generateContent failed")
	}
	return text, err
}

func (c *Client) do(ctx context.Context, endpoint, apiKey string, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	resp, err := c.cli.Do(req)
	if err != nil {
		return "", 0, describeTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", resp.StatusCode, statusError(resp, raw)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("network error reading response: %w", err)
	}
	text, err := extractText(raw)
	return text, resp.StatusCode, err
}

func buildPayload(prompt string, cfg upstream.GenerationConfig) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	set("contents.0.role", "user")
	set("contents.0.parts.0.text", prompt)
	set("generationConfig.temperature", cfg.Temperature)
	if cfg.MaxOutputTokens > 0 {
		set("generationConfig.maxOutputTokens", cfg.MaxOutputTokens)
	}
	if cfg.TopP > 0 {
		set("generationConfig.topP", cfg.TopP)
	}
	if cfg.TopK > 0 {
		set("generationConfig.topK", cfg.TopK)
	}
	if cfg.ResponseMIMEType != "" {
		set("generationConfig.responseMimeType", cfg.ResponseMIMEType)
	}
	return body, err
}

// extractText joins the text parts of the first candidate. A prompt or
// candidate stopped for safety reasons is reported as *upstream.BlockedError.
func extractText(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("malformed response: invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if reason := doc.Get("promptFeedback.blockReason").String(); reason != "" {
		return "", &upstream.BlockedError{Reason: reason}
	}

	candidate := doc.Get("candidates.0")
	var sb strings.Builder
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if part.Get("thought").Bool() {
			return true
		}
		sb.WriteString(part.Get("text").String())
		return true
	})

	if sb.Len() == 0 {
		switch finish := candidate.Get("finishReason").String(); finish {
		case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
			return "", &upstream.BlockedError{Reason: finish}
		}
	}
	return sb.String(), nil
}

func statusError(resp *http.Response, raw []byte) error {
	se := &upstream.StatusError{StatusCode: resp.StatusCode}
	if gjson.ValidBytes(raw) {
		se.Status = gjson.GetBytes(raw, "error.status").String()
		se.Message = gjson.GetBytes(raw, "error.message").String()
	}
	if se.Message == "" {
		se.Message = strings.TrimSpace(string(raw))
	}
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	if d, ok := upstream.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
		se.RetryAfter = d
	}
	return se
}
