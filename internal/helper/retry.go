package helper

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 8 * time.Second
)

// transientStatus matches an HTTP 429 or 5xx as providers phrase it, e.g.
// "status code: 503" or "status 502".
var transientStatus = regexp.MustCompile(`status(?: code)?:? *(?:429|5\d\d)\b`)

// transientMarkers are provider error phrases worth retrying.
var transientMarkers = []string{
	"too many requests", "rate limit", "service unavailable", "bad gateway", "gateway timeout",
	"i/o timeout", "connection reset", "connection refused",
}

// IsTransient reports whether err looks like a temporary network or provider failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if transientStatus.MatchString(msg) {
		return true
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Retry calls fn once plus at most maxRetries more times while it fails with a
// transient error, doubling the wait from DefaultInitialBackoff.
func Retry(ctx context.Context, maxRetries int, fn func() error) error {
	return RetryWithBackoff(ctx, maxRetries, DefaultInitialBackoff, fn)
}

func RetryWithBackoff(ctx context.Context, maxRetries int, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= maxRetries || !IsTransient(err) {
			return err
		}

		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("Transient failure, retrying")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, DefaultMaxBackoff)
	}
}
