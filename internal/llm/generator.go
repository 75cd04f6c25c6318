// Package llm wraps the language model used to produce replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aris/internal/metrics"
	"aris/internal/model"

	"github.com/sashabaranov/go-openai"
)

// Generator produces a reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// Params tune a single generation call.
type Params struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	System      string
	History     []model.HistoryMessage
}

// DefaultParams mirrors the sampling settings the bot has always used.
func DefaultParams() Params {
	return Params{MaxTokens: 128, Temperature: 1.2, TopP: 0.9}
}

// Config holds the model endpoint configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Generate returns the first choice of a chat completion. Every failure,
// including the timeout, is a *model.GenerationError.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.complete(ctx, prompt, params)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		err = &model.GenerationError{Err: err}
	}
	metrics.ObserveGeneration(outcome, time.Since(start).Seconds())
	return text, err
}

func (g *OpenAIGenerator) complete(ctx context.Context, prompt string, params Params) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    buildMessages(prompt, params),
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("chat completion: %w", ctxErr)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

func buildMessages(prompt string, params Params) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(params.History)+2)
	if params.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: params.System})
	}
	for _, h := range params.History {
		role := openai.ChatMessageRoleUser
		if h.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}
