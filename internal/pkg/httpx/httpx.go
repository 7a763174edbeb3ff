package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retryable reports whether a transport-level error is worth another
// attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// RetryableStatus reports whether an HTTP status indicates a transient
// failure.
func RetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// RetryAfter returns the server-advised backoff from the Retry-After
// header, clamped to max, or fallback when absent.
func RetryAfter(resp *http.Response, fallback, max time.Duration) time.Duration {
	wait := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}

// Jitter spreads the backoff +/-20% so retries from concurrent callers
// do not align.
func Jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*(2*delta)
	return time.Duration(v * float64(time.Second))
}
