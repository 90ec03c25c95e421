package llm

import (
	"fmt"
	"unicode/utf8"
)

// MaxErrorBody caps the response body kept on an HTTPError.
const MaxErrorBody = 512

// TransportError means no HTTP status was obtained: network failure, DNS,
// per-attempt timeout or cancellation.
type TransportError struct {
	Message  string
	Attempts int
	Cause    error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport error after %d attempt(s): %s: %v", e.Attempts, e.Message, e.Cause)
	}
	return fmt.Sprintf("transport error after %d attempt(s): %s", e.Attempts, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// HTTPError is a non-2xx answer: either non-retryable, or retryable with the
// attempt budget exhausted.
type HTTPError struct {
	Status   int
	Body     string
	Attempts int
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("service returned status %d after %d attempt(s)", e.Status, e.Attempts)
	}
	return fmt.Sprintf("service returned status %d after %d attempt(s): %s", e.Status, e.Attempts, e.Body)
}

// EmptyResponseError is a 2xx answer without candidate text.
type EmptyResponseError struct {
	Status int
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("service returned status %d without candidate text", e.Status)
}

func newHTTPError(status int, body []byte, attempts int) *HTTPError {
	return &HTTPError{Status: status, Body: truncateBody(body), Attempts: attempts}
}

// truncateBody keeps at most MaxErrorBody bytes without splitting a rune.
func truncateBody(body []byte) string {
	if len(body) <= MaxErrorBody {
		return string(body)
	}
	cut := MaxErrorBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}
