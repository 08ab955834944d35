package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// RetryPolicy retries transient failures with exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Retryable decides whether an error is worth another attempt.
	// IsTransient is used when nil.
	Retryable func(error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, MaxBackoff: 5 * time.Second}
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts or
// ctx is done.
func (r RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	retryable := r.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	delay := r.Backoff
	var err error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == r.MaxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if r.MaxBackoff > 0 && delay > r.MaxBackoff {
			delay = r.MaxBackoff
		}
	}
	return err
}

// HTTPStatusError is implemented by errors that carry the status of a failed
// HTTP call.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// statusCodePattern matches the status langchaingo puts in its API errors.
var statusCodePattern = regexp.MustCompile(`status code: (\d{3})\b`)

// IsTransient reports whether err is a network failure or an overloaded
// upstream (429 or 5xx) rather than a caller mistake.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) {
		return transientStatus(statusErr.HTTPStatus())
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.StatusCode)
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return transientStatus(code)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}
