package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/gtm-copilot/internal/extract"
	"github.com/jonathan/gtm-copilot/internal/llm"
	"github.com/jonathan/gtm-copilot/internal/pipeline"
	"github.com/jonathan/gtm-copilot/internal/schemas"
	"github.com/jonathan/gtm-copilot/internal/types"
)

// ErrRunNotFound indicates the run is neither in memory nor in the store
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound   *ErrRunNotFound
		validation *ErrValidation
		missing    *types.MissingFieldsError
		httpErr    *llm.HTTPError
		transport  *llm.TransportError
		empty      *llm.EmptyResponseError
		extraction *extract.ExtractionError
		schema     *schemas.SchemaError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr), errors.As(err, &transport), errors.As(err, &empty),
		errors.As(err, &extraction), errors.As(err, &schema):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RunHTTPStatus maps a finished run to a response status. Blocked runs are a
// normal outcome and answer 200.
func RunHTTPStatus(run *pipeline.Run) int {
	if run.Status != pipeline.StatusFailed {
		return http.StatusOK
	}
	if run.Err == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatus(run.Err)
}
