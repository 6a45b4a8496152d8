package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/circuitbreaker"
	"github.com/pulseboard/backend/pkg/logger"
)

var ErrEmptyResponse = errors.New("provider returned no content")

// Completer produces one assistant reply for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func NewCompleter(cfg Config) (Completer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newBreaker(name string) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Logger:           logger.GetLogger(),
	})
}

// guard runs one provider call inside the breaker and the request timeout.
// There is no retry: a failed chat is repeated by the user, not by us.
func guard(ctx context.Context, cb *circuitbreaker.CircuitBreaker, timeout time.Duration, op string, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cb.Execute(ctx, func() error { return call(ctx) }); err != nil {
		return apperrors.External(op, err)
	}
	return nil
}

func settings(req CompletionRequest, temperature float32, maxTokens int) (float32, int) {
	if req.Temperature != 0 {
		temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		maxTokens = req.MaxTokens
	}
	return temperature, maxTokens
}

func recordUsage(provider, model string, usage Usage) {
	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))

	logger.Debug("LLM completion generated",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
	)
}
