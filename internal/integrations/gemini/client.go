package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Generation failure kinds surfaced as typed outcomes. The orchestrator
// switches on these instead of inspecting raw backend errors.
const (
	KindBlocked = "blocked"
	KindStopped = "stopped"
	KindEmpty   = "empty"
)

// generateRequest is the minimal request shape for the generateContent
// endpoint.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse is the minimal response shape returned by the
// generateContent endpoint.
type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
}

type candidate struct {
	Content      *content `json:"content"`
	FinishReason string   `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// GenerationError reports a structurally complete backend response that still
// carries no usable reply: prompt blocked by safety policy, generation stopped
// before a normal finish, or an empty candidate set.
type GenerationError struct {
	Kind   string
	Detail string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("gemini: generation %s: %s", e.Kind, e.Detail)
}

// GenerationKind implements the fault interface the orchestrator switches on.
func (e *GenerationError) GenerationKind() string {
	return e.Kind
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused Generative Language API client for single-prompt text
// generation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	model      string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the given API key and model identifier.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		apiKey:     apiKey,
		model:      model,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		return nil, errors.New("gemini: base URL must not be empty")
	}
	if c.httpClient == nil {
		return nil, errors.New("gemini: http client must not be nil")
	}
	return c, nil
}

// Generate submits a fully assembled prompt and returns the generated text.
// Blocked, stopped and empty outcomes are returned as *GenerationError.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.model), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPStatusError{
			StatusCode: resp.StatusCode,
			URL:        resp.Request.URL.Path,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	return extractText(out)
}

// extractText pulls the reply text from a decoded response, mapping safety
// blocks and abnormal finishes to typed generation errors.
func extractText(out generateResponse) (string, error) {
	if fb := out.PromptFeedback; fb != nil && blocked(fb.BlockReason) {
		return "", &GenerationError{Kind: KindBlocked, Detail: "prompt blocked: " + fb.BlockReason}
	}
	if len(out.Candidates) == 0 {
		return "", &GenerationError{Kind: KindEmpty, Detail: "no candidates returned"}
	}

	cand := out.Candidates[0]
	switch cand.FinishReason {
	case "", "STOP":
		// Normal finish.
	case "SAFETY":
		return "", &GenerationError{Kind: KindBlocked, Detail: "candidate blocked by safety policy"}
	default:
		return "", &GenerationError{Kind: KindStopped, Detail: "generation finished with " + cand.FinishReason}
	}

	if cand.Content == nil {
		return "", &GenerationError{Kind: KindEmpty, Detail: "candidate has no content"}
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &GenerationError{Kind: KindEmpty, Detail: "candidate text is empty"}
	}
	return text, nil
}

func blocked(reason string) bool {
	return reason != "" && reason != "BLOCK_REASON_UNSPECIFIED"
}
