package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport performs a single attempt. It returns an error only when no HTTP
// status was obtained; non-2xx statuses come back on the response.
type Transport interface {
	Do(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	Tools            []geminiTool           `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float32 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// RESTTransport posts to {BaseURL}/models/{model}:generateContent.
type RESTTransport struct {
	apiKey      string
	baseURL     string
	keyInHeader bool
	config      *Config
	httpClient  *http.Client
}

// NewRESTTransport creates a REST transport. A nil httpClient uses one with the
// configured timeout.
func NewRESTTransport(config *Config, apiKey string, httpClient *http.Client) (*RESTTransport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &RESTTransport{
		apiKey:      apiKey,
		baseURL:     baseURL,
		keyInHeader: config.KeyInHeader,
		config:      config,
		httpClient:  httpClient,
	}, nil
}

// Do sends one generateContent request.
func (t *RESTTransport) Do(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	modelName := t.config.GetModel(req.Tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens:  req.Params.MaxOutputTokens,
			Temperature:      req.Params.Temperature,
			ResponseMimeType: req.Params.ResponseMIMEType,
		},
	}
	if req.Tools.GoogleSearch {
		body.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", t.baseURL, url.PathEscape(modelName))
	if !t.keyInHeader {
		endpoint += "?key=" + url.QueryEscape(t.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.keyInHeader {
		httpReq.Header.Set("x-goog-api-key", t.apiKey)
	}

	issued := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &GenerationResponse{Status: resp.StatusCode, Body: respBody, IssuedAt: issued}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, nil
	}
	out.Text = candidateText(respBody)
	return out, nil
}

// candidateText joins the text parts of the first candidate. It returns nil when
// the body is not a generateContent response or the joined text is empty.
func candidateText(body []byte) *string {
	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}
	if len(parsed.Candidates) == 0 {
		return nil
	}
	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Text != nil {
			sb.WriteString(*part.Text)
		}
	}
	if sb.Len() == 0 {
		return nil
	}
	text := sb.String()
	return &text
}
