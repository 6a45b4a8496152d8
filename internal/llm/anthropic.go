package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/pkg/circuitbreaker"
	"github.com/pulseboard/backend/pkg/logger"
)

type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	logger.Info("LLM client initialized",
		zap.String("provider", "anthropic"),
		zap.String("model", cfg.Model),
	)

	return &AnthropicClient{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		cb:          newBreaker("llm-anthropic"),
	}
}

func (c *AnthropicClient) Model() string {
	return c.model
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	temperature, maxTokens := settings(req, c.temperature, c.maxTokens)
	prompt := req.UserPrompt

	var result *CompletionResponse

	err := guard(ctx, c.cb, c.timeout, "anthropic messages", func(ctx context.Context) error {
		resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:       anthropic.Model(c.model),
			MaxTokens:   maxTokens,
			System:      req.SystemPrompt,
			Temperature: &temperature,
			Messages: []anthropic.Message{
				{
					Role: anthropic.RoleUser,
					Content: []anthropic.MessageContent{
						{Type: "text", Text: &prompt},
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		text := firstText(resp)
		if text == "" {
			return ErrEmptyResponse
		}

		result = &CompletionResponse{
			Content: text,
			Usage: Usage{
				PromptTokens:     resp.Usage.InputTokens,
				CompletionTokens: resp.Usage.OutputTokens,
				TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordUsage("anthropic", c.model, result.Usage)
	return result, nil
}

func firstText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return strings.TrimSpace(*block.Text)
		}
	}
	return ""
}
