// Package openrouter is a client for OpenRouter's OpenAI-compatible chat
// completions API, specialised for code explanation.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/provider"
)

const (
	// DefaultBaseURL is the public OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "google/gemini-2.5-flash-lite"

	appTitle       = "CodeDuck AI Code Analyzer"
	temperature    = 0.3
	maxTokens      = 1000
	maxSuggestions = 3
)

const systemPrompt = `You are an expert code analyst and software engineer. Your task is to analyze code and provide clear, helpful explanations.

When analyzing code, please:
1. Explain what the code does in plain English
2. Identify the main purpose and functionality
3. Point out any notable patterns, algorithms, or design choices
4. Assess the complexity level (low/medium/high)
5. Provide 2-3 practical suggestions for improvement if applicable

Format your response as JSON with this structure:
{
  "explanation": "Clear explanation of what the code does",
  "suggestions": ["suggestion 1", "suggestion 2", "suggestion 3"],
  "complexity": "low|medium|high"
}

Keep explanations concise but informative. Focus on helping developers understand and improve the code.`

// Client calls the chat completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = strings.TrimRight(u, "/") }
}

// WithModel overrides the model name.
func WithModel(m string) Option {
	return func(cl *Client) {
		if m != "" {
			cl.model = m
		}
	}
}

// New creates a client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: provider.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	TopP             float64       `json:"top_p"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// analysis is the JSON object the system prompt asks the model to produce.
type analysis struct {
	Explanation string          `json:"explanation"`
	Suggestions json.RawMessage `json:"suggestions"`
	Complexity  string          `json:"complexity"`
}

// Explain asks the model to analyse a snippet.
//
// Errors wrap provider.ErrRateLimited, provider.ErrAuthFailed,
// provider.ErrUnavailable or provider.ErrMalformedResponse. Context
// cancellation is returned as is.
func (c *Client) Explain(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
	body, err := json.Marshal(c.buildRequest(in))
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", appTitle)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.TransportError(err)
	}
	if err := provider.CheckResponse(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", provider.ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%w: no content in response", provider.ErrMalformedResponse)
	}

	return &model.ExplainResult{
		Explanation: parseAnswer(out.Choices[0].Message.Content, in.Code),
		TokensUsed:  out.Usage.TotalTokens,
	}, nil
}

func (c *Client) buildRequest(in model.ExplainInput) chatRequest {
	return chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(in)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TopP:        1,
	}
}

func userPrompt(in model.ExplainInput) string {
	language := in.Language
	if language == "" {
		language = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Please analyze this %s code", language)
	if in.Context != "" {
		fmt.Fprintf(&b, " (%s)", in.Context)
	}
	fmt.Fprintf(&b, ":\n\n```%s\n%s\n```\n\n", language, in.Code)
	b.WriteString("Provide a clear explanation, assess complexity, and suggest improvements if applicable.")
	return b.String()
}

// parseAnswer turns the model's reply into an Explanation. Replies that are
// not the requested JSON object are returned verbatim as the explanation.
func parseAnswer(content, code string) model.Explanation {
	var a analysis
	if err := json.Unmarshal([]byte(stripFence(content)), &a); err != nil {
		return model.Explanation{
			Explanation: content,
			Complexity:  EstimateComplexity(code),
		}
	}

	result := model.Explanation{
		Explanation: a.Explanation,
		Suggestions: parseSuggestions(a.Suggestions),
	}
	if strings.TrimSpace(result.Explanation) == "" {
		result.Explanation = content
	}

	complexity, ok := model.ParseComplexity(strings.ToLower(strings.TrimSpace(a.Complexity)))
	if !ok {
		complexity = EstimateComplexity(code)
	}
	result.Complexity = complexity

	return result
}

// parseSuggestions keeps at most three non-empty strings. Anything other
// than a JSON array of strings yields no suggestions.
func parseSuggestions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var all []string
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil
	}

	out := make([]string, 0, maxSuggestions)
	for _, s := range all {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")

// stripFence removes a surrounding markdown code fence, which models often
// wrap JSON answers in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

var (
	loopRe        = regexp.MustCompile(`for|while|forEach`)
	functionRe    = regexp.MustCompile(`function|def|=>|class`)
	conditionalRe = regexp.MustCompile(`if|switch|case`)
)

// EstimateComplexity grades a snippet from its size and the constructs it uses.
// It is used when the model does not return a usable grade.
func EstimateComplexity(code string) model.Complexity {
	lines := strings.Count(code, "\n") + 1
	hasLoops := loopRe.MatchString(code)
	hasFunctions := functionRe.MatchString(code)
	hasConditionals := conditionalRe.MatchString(code)
	nested := strings.Count(code, "{") >= 3

	switch {
	case lines > 50 || (hasLoops && hasFunctions && hasConditionals && nested):
		return model.ComplexityHigh
	case lines > 20 || (hasLoops && hasFunctions):
		return model.ComplexityMedium
	default:
		return model.ComplexityLow
	}
}
