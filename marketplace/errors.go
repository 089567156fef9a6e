package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTooLarge is returned when a downloaded body exceeds the configured cap.
var ErrTooLarge = errors.New("response body exceeds size limit")

// StatusError is a non-2xx response from the marketplace or an image host.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// IsRateLimited reports a 429 or 503 response.
func IsRateLimited(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// IsTransient reports errors worth retrying after a wait: rate limits,
// temporary unavailability and timeouts. Everything else is permanent for the
// item at hand. Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusBadGateway || se.StatusCode == http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
