// Package resilience defines the error taxonomy for collaborator calls and
// a retry executor with exponential backoff. Collaborators wrap failures in
// a kinded Error; stage loops branch on the kind instead of suppressing
// generic exceptions.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a collaborator failure.
type Kind int

const (
	// KindTransient covers timeouts, 5xx and connection resets. Retried
	// with backoff; surfaces only once retries exhaust.
	KindTransient Kind = iota
	// KindRateLimited covers 429 and quota signals. Waited out and retried;
	// never a terminal error on its own.
	KindRateLimited
	// KindClassification covers malformed records and unexpected shapes.
	// The offending record is dropped, never retried.
	KindClassification
	// KindCacheIO covers snapshot read/write failures. Logged; the cache
	// continues in memory for the rest of the run.
	KindCacheIO
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindClassification:
		return "classification"
	case KindCacheIO:
		return "cache_io"
	default:
		return "unknown"
	}
}

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and optional HTTP status.
func NewError(kind Kind, statusCode int, err error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, falling back to
// network heuristics for unwrapped transport errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	if isNetworkTransient(err) {
		return KindTransient, true
	}
	return 0, false
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindTransient || kind == KindRateLimited)
}

// IsRateLimited reports whether err is a quota/429 signal.
func IsRateLimited(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindRateLimited
}

// TransientStatus reports whether an HTTP status indicates a retriable
// server-side problem.
func TransientStatus(statusCode int) bool {
	switch statusCode {
	case 408, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isNetworkTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped transport errors from net/http lose their type; match the
	// usual suspects by message.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
