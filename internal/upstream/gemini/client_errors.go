package gemini

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// transportError hides addresses and URLs from the message so the text-based
// failure classifier is not misled by port numbers; the cause stays reachable
// through Unwrap.
type transportError struct {
	msg string
	err error
}

func (e *transportError) Error() string { return e.msg }
func (e *transportError) Unwrap() error { return e.err }

func describeTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &transportError{msg: "request timeout", err: ctxErr}
		}
		return ctxErr
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &transportError{msg: "request timeout", err: err}
	}
	return &transportError{msg: "network error: " + transportErrorLabel(err), err: err}
}

func transportErrorLabel(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "no such host"):
		return "no such host"
	case strings.Contains(s, "connection refused"):
		return "connection refused"
	case strings.Contains(s, "connection reset"):
		return "connection reset"
	case strings.Contains(s, "broken pipe"):
		return "broken pipe"
	case strings.Contains(s, "EOF"):
		return "unexpected EOF"
	case strings.Contains(s, "tls"), strings.Contains(s, "x509"):
		return "tls handshake failed"
	default:
		return "connection failed"
	}
}
