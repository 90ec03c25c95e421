package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SDKTransport implements Transport on top of the generative-ai-go SDK. SDK
// errors are mapped back to HTTP statuses so the same retry policy applies.
//
// The SDK version in use has no built-in search tool, so Tools.GoogleSearch is
// ignored and the prompt alone carries the research instruction.
type SDKTransport struct {
	client *genai.Client
	config *Config
}

// NewSDKTransport creates a new SDK-backed transport
func NewSDKTransport(ctx context.Context, config *Config, apiKey string) (*SDKTransport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if config.BaseURL != "" && config.BaseURL != DefaultBaseURL {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &SDKTransport{client: client, config: config}, nil
}

// Do sends one GenerateContent call.
func (t *SDKTransport) Do(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	modelName := t.config.GetModel(req.Tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	model := t.client.GenerativeModel(modelName)
	model.SetTemperature(req.Params.Temperature)
	if req.Params.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.Params.MaxOutputTokens))
	}
	if req.Params.ResponseMIMEType != "" {
		model.ResponseMIMEType = req.Params.ResponseMIMEType
	}

	issued := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return &GenerationResponse{Status: http.StatusOK, Body: []byte(blocked.Error()), IssuedAt: issued}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if code, ok := statusFromError(err); ok {
			return &GenerationResponse{Status: code, Body: []byte(err.Error()), IssuedAt: issued}, nil
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return &GenerationResponse{Status: http.StatusOK, Text: textFromResponse(resp), IssuedAt: issued}, nil
}

// Close releases resources held by the SDK client
func (t *SDKTransport) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

// textFromResponse joins the text parts of the first candidate. Empty text
// yields nil.
func textFromResponse(resp *genai.GenerateContentResponse) *string {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	text := strings.Join(parts, "")
	if text == "" {
		return nil
	}
	return &text
}

// statusFromError recovers an HTTP status from an SDK error. It returns false
// when the error carries none.
func statusFromError(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code > 0 {
		return gerr.Code, true
	}
	if ae, ok := apierror.FromError(err); ok {
		if code := ae.HTTPCode(); code > 0 {
			return code, true
		}
		if st := ae.GRPCStatus(); st != nil {
			return httpStatusForCode(st.Code())
		}
	}
	if st, ok := status.FromError(err); ok {
		return httpStatusForCode(st.Code())
	}
	return 0, false
}

func httpStatusForCode(code codes.Code) (int, bool) {
	switch code {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests, true
	case codes.Unavailable:
		return http.StatusServiceUnavailable, true
	case codes.Internal, codes.Unknown:
		return http.StatusInternalServerError, true
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, true
	case codes.Unauthenticated:
		return http.StatusUnauthorized, true
	case codes.PermissionDenied:
		return http.StatusForbidden, true
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest, true
	case codes.NotFound:
		return http.StatusNotFound, true
	}
	return 0, false
}
