package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// Request shaping
const (
	DefaultPromptChars = 1000
	ollamaNumCtx       = 1024
	ollamaNumThread    = 4
	lmstudioMaxTokens  = 500
	lmstudioTemp       = 0.1

	// maxResponseBytes bounds how much of a response body is read
	maxResponseBytes = 1 << 20
)

// jsonObject matches the outermost braces of the first JSON object in model output
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// RemoteConfig configures a Remote classifier
type RemoteConfig struct {
	Provider          string // ProviderOllama or ProviderLMStudio
	BaseURL           string
	Model             string
	Timeout           time.Duration // Per request; zero means no client-side limit
	RequestsPerSecond float64       // Zero disables rate limiting
	PromptChars       int

	// HTTPClient overrides the default client; mainly for tests
	HTTPClient *http.Client
}

// Remote classifies files by prompting a locally reachable LLM service.
// One Classify call is exactly one HTTP request.
type Remote struct {
	provider    string
	endpoint    string
	model       string
	promptChars int
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewRemote creates a remote classifier
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	var path string
	switch cfg.Provider {
	case ProviderOllama:
		path = "/api/generate"
	case ProviderLMStudio:
		path = "/v1/completions"
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("classifier base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("classifier model is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	promptChars := cfg.PromptChars
	if promptChars <= 0 {
		promptChars = DefaultPromptChars
	}

	r := &Remote{
		provider:    cfg.Provider,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + path,
		model:       cfg.Model,
		promptChars: promptChars,
		httpClient:  client,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return r, nil
}

// Name returns the provider name
func (r *Remote) Name() string {
	return r.provider
}

// Classify sends one request to the service
func (r *Remote) Classify(ctx context.Context, req Request) (*Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, classifyTransportError(err)
		}
	}

	prompt := buildPrompt(req, r.promptChars)

	var body map[string]interface{}
	if r.provider == ProviderOllama {
		body = map[string]interface{}{
			"model":  r.model,
			"prompt": prompt,
			"stream": false,
			"options": map[string]interface{}{
				"num_ctx":    ollamaNumCtx,
				"num_thread": ollamaNumThread,
			},
		}
	} else {
		body = map[string]interface{}{
			"model":       r.model,
			"prompt":      prompt,
			"max_tokens":  lmstudioMaxTokens,
			"temperature": lmstudioTemp,
		}
	}

	text, err := r.post(ctx, body)
	if err != nil {
		return nil, err
	}
	return parseResponseText(text)
}

// post sends body and returns the generated text
func (r *Remote) post(ctx context.Context, body map[string]interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classifyTransportError(err)
	}

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return "", newError(ReasonUnreachable, nil, "status %d: %s", resp.StatusCode, truncate(string(data), 200))
	case resp.StatusCode != http.StatusOK:
		return "", newError(ReasonMalformed, nil, "status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	if r.provider == ProviderOllama {
		var apiResp struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal(data, &apiResp); err != nil {
			return "", newError(ReasonMalformed, err, "decode response")
		}
		return apiResp.Response, nil
	}

	var apiResp struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return "", newError(ReasonMalformed, err, "decode response")
	}
	if len(apiResp.Choices) == 0 {
		return "", newError(ReasonMalformed, nil, "no choices in response")
	}
	return apiResp.Choices[0].Text, nil
}

// classifyTransportError maps a client-side failure to a ClassificationError
func classifyTransportError(err error) *ClassificationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ReasonTimeout, err, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(ReasonTimeout, err, "request timed out")
	}
	return newError(ReasonUnreachable, err, "request failed")
}

// buildPrompt renders the classification prompt with a preview of the content
func buildPrompt(req Request, previewChars int) string {
	preview := previewText(req.Content, previewChars)

	var sb strings.Builder
	sb.WriteString("Please analyze this file content preview and provide:\n")
	sb.WriteString("1. Classification (document type, programming language, etc.)\n")
	sb.WriteString("2. Brief summary (1-2 sentences)\n")
	sb.WriteString("3. Keywords (comma-separated)\n\n")
	fmt.Fprintf(&sb, "File path: %s\n", req.Path)
	sb.WriteString("Content preview:\n```\n")
	sb.WriteString(preview)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Respond in JSON format:\n")
	sb.WriteString("{\n")
	sb.WriteString("    \"classification\": \"your classification\",\n")
	sb.WriteString("    \"summary\": \"your summary\",\n")
	sb.WriteString("    \"keywords\": [\"keyword1\", \"keyword2\", \"...\"]\n")
	sb.WriteString("}")
	return sb.String()
}

// previewText returns the first n characters of content, dropping invalid UTF-8
func previewText(content []byte, n int) string {
	s := strings.ToValidUTF8(string(content), "")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// modelAnswer is the JSON object the prompt asks for
type modelAnswer struct {
	Classification string          `json:"classification"`
	Category       string          `json:"category"`
	Summary        string          `json:"summary"`
	Keywords       json.RawMessage `json:"keywords"`
}

// parseResponseText extracts the first JSON object from model output
func parseResponseText(text string) (*Result, error) {
	match := jsonObject.FindString(text)
	if match == "" {
		return nil, newError(ReasonMalformed, nil, "no JSON object in response")
	}

	var ans modelAnswer
	if err := json.Unmarshal([]byte(match), &ans); err != nil {
		return nil, newError(ReasonMalformed, err, "invalid JSON in response")
	}

	category := strings.TrimSpace(ans.Classification)
	if category == "" {
		category = strings.TrimSpace(ans.Category)
	}
	if category == "" {
		return nil, newError(ReasonMalformed, nil, "response has no classification")
	}

	keywords, err := parseKeywords(ans.Keywords)
	if err != nil {
		return nil, newError(ReasonMalformed, err, "invalid keywords")
	}

	return &Result{
		Category: category,
		Summary:  strings.TrimSpace(ans.Summary),
		Keywords: keywords,
	}, nil
}

// parseKeywords accepts either a JSON array of strings or a comma-separated string
func parseKeywords(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err2 := json.Unmarshal(raw, &joined); err2 != nil {
			return nil, err
		}
		list = strings.Split(joined, ",")
	}

	out := make([]string, 0, len(list))
	for _, k := range list {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
