package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"cardgen-go/internal/credential"
	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/monitoring"
	"cardgen-go/internal/monitoring/tracing"
	"cardgen-go/internal/upstream"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 2 * time.Second
	maxBackoff        = time.Minute
)

var errEmptyResponse = errors.New("API returned empty response")

// Credentials is the part of the credential pool the gateway needs.
type Credentials interface {
	Current() (string, bool)
	Count() int
	RecordSuccess(kind credential.Kind, count int)
	RecordFailure(reason string) (rotated bool, newID string)
}

// Options configure a Gateway.
type Options struct {
	// Model is used for translation and sentences; CreativeModel for image prompts.
	Model         string
	CreativeModel string
	MaxRetries    int
	Backoff       time.Duration
	// RequestsPerMinute caps upstream calls across the process; zero disables it.
	RequestsPerMinute int
}

// RetryOptions tune one GenerateText call. Kind and Count are credited to
// the credential that produced the successful answer.
type RetryOptions struct {
	MaxRetries int
	Backoff    time.Duration
	Kind       credential.Kind
	Count      int
}

// Gateway turns the opaque Generator into a resilient call: it picks the
// current credential, rotates on credential-bound failures, and backs off
// exponentially on everything else.
type Gateway struct {
	gen     upstream.Generator
	creds   Credentials
	opts    Options
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
}

// New builds a gateway over gen and creds.
func New(gen upstream.Generator, creds Credentials, opts Options) *Gateway {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.CreativeModel == "" {
		opts.CreativeModel = opts.Model
	}
	g := &Gateway{gen: gen, creds: creds, opts: opts, sleep: upstream.Sleep}
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return g
}

// GenerateText issues prompt until it succeeds or the retry budget is spent.
// A failure that rotated the pool to a fresh credential is retried at once
// without using up an attempt; at most one such retry per pool member is
// allowed per call. Other failures wait Backoff·2^n before the next attempt.
func (g *Gateway) GenerateText(ctx context.Context, prompt string, cfg upstream.GenerationConfig, ro RetryOptions) (string, error) {
	maxRetries := ro.MaxRetries
	if maxRetries <= 0 {
		maxRetries = g.opts.MaxRetries
	}
	backoff := ro.Backoff
	if backoff <= 0 {
		backoff = g.opts.Backoff
	}
	if cfg.Model == "" {
		cfg.Model = g.opts.Model
	}

	ctx, span := tracing.StartSpan(ctx, "gateway", "Gateway.GenerateText")
	span.SetAttributes(attribute.String("gateway.kind", string(ro.Kind)), attribute.String("upstream.model", cfg.Model))

	text, attempts, err := g.generate(ctx, prompt, cfg, ro, maxRetries, backoff)
	span.SetAttributes(attribute.Int("gateway.attempts", attempts))
	tracing.EndSpan(span, err)
	return text, err
}

func (g *Gateway) generate(ctx context.Context, prompt string, cfg upstream.GenerationConfig, ro RetryOptions, maxRetries int, backoff time.Duration) (string, int, error) {
	var (
		attempts  int
		rotations int
		lastErr   error
		lastKind  = apperrors.KindUnknown
	)

	for attempts < maxRetries {
		if err := ctx.Err(); err != nil {
			return "", attempts, err
		}
		key, ok := g.creds.Current()
		if !ok {
			return "", attempts, &apperrors.ClassifiedError{
				Kind:    apperrors.KindInvalidCredential,
				Message: "no API key configured",
				Err:     apperrors.ErrExhausted,
			}
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", attempts, err
			}
		}

		text, err := g.gen.Generate(ctx, key, prompt, cfg)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyResponse
		}
		if err == nil {
			monitoring.GenerationRequestsTotal.WithLabelValues("success").Inc()
			g.creds.RecordSuccess(ro.Kind, ro.Count)
			return strings.TrimSpace(text), attempts + 1, nil
		}
		if ctx.Err() != nil {
			return "", attempts, ctx.Err()
		}

		lastErr = err
		lastKind = apperrors.Classify(err.Error())
		monitoring.GenerationRequestsTotal.WithLabelValues(string(lastKind)).Inc()

		rotated, newID := g.creds.RecordFailure(err.Error())
		entry := log.WithFields(log.Fields{
			"kind":    lastKind,
			"attempt": attempts + 1,
			"of":      maxRetries,
			"reason":  credential.SanitizeReason(err.Error()),
		})

		if apperrors.ShouldRotate(lastKind) && rotated && rotations < g.creds.Count() {
			rotations++
			monitoring.GenerationRetriesTotal.WithLabelValues("rotate").Inc()
			entry.WithField("key_id", newID).Info("retrying with rotated API key")
			continue
		}

		attempts++
		if attempts >= maxRetries {
			entry.Warn("generation failed, retries exhausted")
			break
		}
		wait := upstream.Backoff(backoff, attempts-1, maxBackoff)
		if ra := upstream.RetryAfterOf(err); ra > wait && ra <= maxBackoff {
			wait = ra
		}
		monitoring.GenerationRetriesTotal.WithLabelValues("backoff").Inc()
		entry.WithField("wait", wait.String()).Warn("generation failed, backing off")
		if err := g.sleep(ctx, wait); err != nil {
			return "", attempts, err
		}
	}

	return "", attempts, &apperrors.ClassifiedError{
		Kind:     lastKind,
		Message:  credential.SanitizeReason(lastErr.Error()),
		Attempts: attempts,
		Err:      lastErr,
	}
}
