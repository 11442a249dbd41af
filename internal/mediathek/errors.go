package mediathek

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("search service circuit is open")

// ConnectionError reports a transport failure that survived all retries,
// or a call rejected by the open circuit.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("search service unreachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// APIStatusError reports a non-2xx response.
type APIStatusError struct {
	StatusCode int
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("search service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Transient reports whether the status is worth retrying.
func (e *APIStatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout
}

// ParsingError reports a malformed, empty or absent response payload.
type ParsingError struct {
	Msg string
	Err error
}

func (e *ParsingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ParsingError) Unwrap() error { return e.Err }

// isTransient reports whether err should be retried and counted by the breaker.
func isTransient(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return !errors.Is(err, ErrCircuitOpen)
	}
	var statusErr *APIStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return false
}
