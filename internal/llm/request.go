package llm

import (
	"time"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// MIMETypeJSON asks the service for a JSON-only response body.
const MIMETypeJSON = "application/json"

// Params are the generation parameters sent with a request.
type Params struct {
	MaxOutputTokens  int
	Temperature      float32
	ResponseMIMEType string
}

// Tools lists the server-side tools a request enables.
type Tools struct {
	GoogleSearch bool
}

// GenerationRequest is one logical call to the service.
type GenerationRequest struct {
	Stage  types.Stage
	Tier   ModelTier
	Prompt string
	Params Params
	Tools  Tools

	// Hook, when set, is called after every attempt of this request.
	Hook AttemptHook
}

// GenerationResponse is what a transport observed for one attempt. Text is nil
// when the service answered without candidate text or with empty text.
type GenerationResponse struct {
	Status   int
	Text     *string
	Body     []byte
	IssuedAt time.Time
	Attempts int
}

// HasText reports whether the response carries non-empty candidate text.
func (r *GenerationResponse) HasText() bool {
	return r != nil && r.Text != nil && *r.Text != ""
}

// TextOrEmpty returns the candidate text or "".
func (r *GenerationResponse) TextOrEmpty() string {
	if !r.HasText() {
		return ""
	}
	return *r.Text
}

// AttemptEvent describes one finished attempt.
type AttemptEvent struct {
	Stage    types.Stage
	Attempt  int
	Status   int
	Outcome  string
	Duration time.Duration
	Time     time.Time
	Err      error
	// Delay is the backoff scheduled before the next attempt, zero when none.
	Delay time.Duration
}

// AttemptHook observes attempts as they finish.
type AttemptHook func(AttemptEvent)
