// Package assistant answers analytics questions in two modes: a local canned
// responder and an LLM engine grounded on the user's own stored data.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/evaluation"
	"github.com/pulseboard/backend/internal/llm"
	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

const (
	// FallbackMessage accompanies every failed chat response.
	FallbackMessage = "I'm having trouble processing your request right now. Please try again later."

	// RefusalMessage replaces replies that quote figures the user has no data for.
	RefusalMessage = "I don't have that data yet. Connect a data source such as Stripe, Shopify or Google Analytics on the Data Sources page and I can answer from your real numbers."

	noSourcesText  = "No data sources connected yet."
	noSamplesText  = "No analytics data available."
	noInsightsText = "No insights generated yet."

	recentSampleLimit  = 20
	recentInsightLimit = 10
)

type Store interface {
	ListDataSources(ctx context.Context, userID string, status models.SourceStatus) ([]models.DataSource, error)
	RecentMetricSamples(ctx context.Context, userID string, limit int) ([]models.MetricSample, error)
	ListInsights(ctx context.Context, userID string, limit int) ([]models.Insight, error)
	UpsertConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, userID string) (*models.Conversation, error)
}

type Config struct {
	Temperature      float32
	MaxTokens        int
	MaxMessageLength int
	StrictGrounding  bool
	Now              func() time.Time
}

type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type ChatResponse struct {
	Message   string                     `json:"message"`
	Grounding evaluation.GroundingReport `json:"-"`
	Refused   bool                       `json:"-"`
}

// DataContext is the user's data as handed to the model.
type DataContext struct {
	Sources  []models.DataSource
	Samples  []models.MetricSample
	Insights []models.Insight
}

func (d DataContext) Empty() bool {
	return len(d.Sources) == 0 && len(d.Samples) == 0 && len(d.Insights) == 0
}

type Engine struct {
	store     Store
	completer llm.Completer
	cfg       Config
}

func NewEngine(store Store, completer llm.Completer, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{store: store, completer: completer, cfg: cfg}
}

func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	startTime := time.Now()

	resp, err := e.chat(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ChatTotal.WithLabelValues("grounded", status).Inc()
	metrics.ChatDuration.WithLabelValues("grounded").Observe(time.Since(startTime).Seconds())

	return resp, err
}

func (e *Engine) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" || strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.Validation("message and userId are required")
	}
	if e.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(message) > e.cfg.MaxMessageLength {
		return nil, apperrors.Validationf("message exceeds %d characters", e.cfg.MaxMessageLength)
	}

	logger.Info("Processing chat",
		zap.String("user_id", req.UserID),
		zap.Int("message_length", len(message)),
	)

	data, err := e.loadContext(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	dataContext := BuildContext(data)

	completion, err := e.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt(dataContext),
		UserPrompt:   message,
		Temperature:  e.cfg.Temperature,
		MaxTokens:    e.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	resp := &ChatResponse{Message: completion.Content}
	resp.Grounding = evaluation.CheckGrounding(completion.Content, dataContext, message)

	if !resp.Grounding.Grounded() {
		action := "logged"
		if e.cfg.StrictGrounding && data.Empty() {
			action = "replaced"
			resp.Message = RefusalMessage
			resp.Refused = true
		}
		metrics.UngroundedReplies.WithLabelValues(action).Inc()
		logger.Warn("Reply quotes figures absent from the data context",
			zap.String("user_id", req.UserID),
			zap.Strings("ungrounded", resp.Grounding.Ungrounded),
			zap.String("action", action),
		)
	}

	e.storeExchange(ctx, req.UserID, message, resp.Message)

	logger.Info("Chat processed successfully",
		zap.String("user_id", req.UserID),
		zap.String("model", e.completer.Model()),
		zap.Int("figures", len(resp.Grounding.Figures)),
	)
	return resp, nil
}

func (e *Engine) loadContext(ctx context.Context, userID string) (DataContext, error) {
	var data DataContext
	var err error

	data.Sources, err = e.store.ListDataSources(ctx, userID, models.SourceConnected)
	if err != nil {
		return data, apperrors.Storage("list connected sources", err)
	}
	data.Samples, err = e.store.RecentMetricSamples(ctx, userID, recentSampleLimit)
	if err != nil {
		return data, apperrors.Storage("list recent samples", err)
	}
	data.Insights, err = e.store.ListInsights(ctx, userID, recentInsightLimit)
	if err != nil {
		return data, apperrors.Storage("list recent insights", err)
	}
	return data, nil
}

// storeExchange replaces the user's conversation with the latest two turns.
// The reply is already produced, so a write failure is logged and not returned.
func (e *Engine) storeExchange(ctx context.Context, userID, message, reply string) {
	now := e.cfg.Now().UTC()
	conv := &models.Conversation{
		ID:     uuid.New().String(),
		UserID: userID,
		Messages: []models.ChatTurn{
			{Role: models.RoleUser, Content: message, Timestamp: now},
			{Role: models.RoleAssistant, Content: reply, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.store.UpsertConversation(ctx, conv); err != nil {
		logger.Error("Failed to store conversation",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// History returns the stored turns, or none when the user has not chatted yet.
func (e *Engine) History(ctx context.Context, userID string) ([]models.ChatTurn, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("userId is required")
	}

	conv, err := e.store.GetConversation(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []models.ChatTurn{}, nil
		}
		return nil, apperrors.Storage("get conversation", err)
	}
	return conv.Messages, nil
}

// BuildContext renders the data block quoted in the system prompt.
func BuildContext(data DataContext) string {
	var builder strings.Builder

	builder.WriteString("Connected Data Sources:\n")
	if len(data.Sources) == 0 {
		builder.WriteString(noSourcesText)
	}
	for i, ds := range data.Sources {
		if i > 0 {
			builder.WriteString("\n")
		}
		lastSync := "Never"
		if ds.LastSync != nil {
			lastSync = ds.LastSync.UTC().Format(time.RFC3339)
		}
		builder.WriteString(fmt.Sprintf("- %s (%s): Last synced %s", ds.Name, ds.Type, lastSync))
	}

	builder.WriteString("\n\nRecent Analytics Data:\n")
	if len(data.Samples) == 0 {
		builder.WriteString(noSamplesText)
	}
	for i, s := range data.Samples {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("- %s: %s (%s)",
			s.MetricName,
			strconv.FormatFloat(s.MetricValue, 'f', -1, 64),
			s.DateRecorded.Format(models.DateLayout),
		))
	}

	builder.WriteString("\n\nRecent Insights:\n")
	if len(data.Insights) == 0 {
		builder.WriteString(noInsightsText)
	}
	for i, in := range data.Insights {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("- %s: %s", in.Title, in.Description))
	}

	return builder.String()
}

func SystemPrompt(dataContext string) string {
	return fmt.Sprintf(`You are an AI Data Analyst for a business analytics platform. You help users understand their business data and provide actionable insights.

IMPORTANT INSTRUCTIONS:
- Only use real data that is provided in the context below
- If no relevant data is available, clearly state "I don't have that data yet" and suggest connecting relevant data sources
- Never make up or hallucinate data, metrics, or insights
- Be helpful in explaining what data would be needed to answer questions
- Suggest specific data sources that could be connected to get the information they're asking for

Current User Data Context:
%s

Be concise, helpful, and data-driven in your responses. If the user asks about specific metrics that aren't in the available data, tell them exactly what data source would need to be connected to get that information.`, dataContext)
}

// ExportTranscript renders turns as a plain-text transcript.
func ExportTranscript(turns []models.ChatTurn) string {
	blocks := make([]string, 0, len(turns))
	for _, turn := range turns {
		speaker := "AI"
		if turn.Role == models.RoleUser {
			speaker = "User"
		}
		blocks = append(blocks, fmt.Sprintf("%s: %s (%s)",
			speaker,
			turn.Content,
			turn.Timestamp.UTC().Format(time.DateTime),
		))
	}
	return strings.Join(blocks, "\n\n")
}
