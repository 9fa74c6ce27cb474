// Package resilience keeps calls to the Overpass API well behaved: retries
// with backoff for transient failures, Retry-After hints, and a breaker that
// stops hammering an endpoint that keeps failing.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TransientError marks a failure that may succeed when retried. RetryAfter,
// when set, is the server's requested wait.
type TransientError struct {
	Err        error
	Status     int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient (HTTP %d): %v", e.Status, e.Err)
	}
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error, status int, retryAfter time.Duration) *TransientError {
	return &TransientError{Err: err, Status: status, RetryAfter: retryAfter}
}

// TransientStatus reports whether an HTTP status is worth retrying. Overpass
// answers 429 when a client exceeds its slot quota and 504 when the server is
// overloaded.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
	"temporary failure in name resolution",
	"server closed idle connection",
	"unexpected eof",
	"runtime error: query timed out",
	"runtime error: query run out of memory",
	"too many requests",
}

// IsTransient reports whether err (or anything it wraps) is a TransientError,
// a network timeout, a refused or reset connection, or carries one of the
// known transient messages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RetryAfterHint returns the wait requested by a TransientError in err's
// chain, or zero.
func RetryAfterHint(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// ParseRetryAfter decodes a Retry-After header given either as seconds or
// as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
