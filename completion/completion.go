// Package completion talks to the hosted language model: chat completions
// through langchaingo and reference-file uploads to the vendor file store.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zarkopopovski/persona-chat/models"
)

// Turn is one entry of the ordered message list sent to the model.
type Turn struct {
	Role    models.Role
	Content string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Reply struct {
	Content string
	Usage   *Usage
}

type Backend interface {
	Complete(ctx context.Context, turns []Turn) (*Reply, error)
}

// UpstreamError reports a failed call to the vendor. Status is the HTTP
// status returned by the vendor, or zero when no response was received.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion backend error: status %d", e.Status)
	}
	return "completion backend error: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Config struct {
	Token       string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

// OpenAIBackend calls an OpenAI-compatible chat completion endpoint.
type OpenAIBackend struct {
	options     []openai.Option
	httpClient  *http.Client
	maxTokens   int
	temperature float64
}

func NewOpenAIBackend(cfg Config) *OpenAIBackend {
	options := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		options = append(options, openai.WithBaseURL(cfg.BaseURL))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OpenAIBackend{
		options:     options,
		httpClient:  httpClient,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (b *OpenAIBackend) Complete(ctx context.Context, turns []Turn) (*Reply, error) {
	// A client per call lets the recorder observe this call's status only.
	recorder := &statusRecorder{client: b.httpClient}

	options := make([]openai.Option, 0, len(b.options)+1)
	options = append(options, b.options...)
	options = append(options, openai.WithHTTPClient(recorder))

	llm, err := openai.New(options...)
	if err != nil {
		return nil, fmt.Errorf("create completion client: %w", err)
	}

	content := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		content = append(content, llms.TextParts(messageType(turn.Role), turn.Content))
	}

	output, err := llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(b.maxTokens),
		llms.WithTemperature(b.temperature),
	)
	if err != nil {
		return nil, &UpstreamError{Status: recorder.failedStatus(), Err: err}
	}
	if len(output.Choices) == 0 {
		return nil, &UpstreamError{Err: errors.New("empty response")}
	}

	choice := output.Choices[0]

	return &Reply{
		Content: choice.Content,
		Usage:   usageFrom(choice.GenerationInfo),
	}, nil
}

func messageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func usageFrom(info map[string]any) *Usage {
	if info == nil {
		return nil
	}

	usage := &Usage{
		PromptTokens:     intValue(info["PromptTokens"]),
		CompletionTokens: intValue(info["CompletionTokens"]),
		TotalTokens:      intValue(info["TotalTokens"]),
	}
	if *usage == (Usage{}) {
		return nil
	}
	return usage
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

type statusRecorder struct {
	client *http.Client

	mu     sync.Mutex
	status int
}

func (r *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.client.Do(req)
	if resp != nil {
		r.mu.Lock()
		r.status = resp.StatusCode
		r.mu.Unlock()
	}
	return resp, err
}

func (r *statusRecorder) failedStatus() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status >= http.StatusMultipleChoices {
		return r.status
	}
	return 0
}
