package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

var (
	// ErrBackendUnavailable means the serving process could not be reached.
	ErrBackendUnavailable = errors.New("inference backend unavailable")

	// ErrTimeout means the bounded wait for a response was exceeded.
	ErrTimeout = errors.New("inference request timed out")
)

// BackendError is a non-success response from the serving process.
type BackendError struct {
	Op         string
	Model      string
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s %s: backend returned %d: %s", e.Op, e.Model, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// classify maps a transport error onto the package taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%s: %w: %v", op, ErrBackendUnavailable, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
