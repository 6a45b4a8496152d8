package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/backend/internal/llm"
	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
)

type fakeStore struct {
	sources  []models.DataSource
	samples  []models.MetricSample
	insights []models.Insight
	conv     *models.Conversation
	upserts  int
	listErr  error
}

func (f *fakeStore) ListDataSources(_ context.Context, _ string, _ models.SourceStatus) ([]models.DataSource, error) {
	return f.sources, f.listErr
}

func (f *fakeStore) RecentMetricSamples(_ context.Context, _ string, _ int) ([]models.MetricSample, error) {
	return f.samples, nil
}

func (f *fakeStore) ListInsights(_ context.Context, _ string, _ int) ([]models.Insight, error) {
	return f.insights, nil
}

func (f *fakeStore) UpsertConversation(_ context.Context, conv *models.Conversation) error {
	f.upserts++
	f.conv = conv
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, _ string) (*models.Conversation, error) {
	if f.conv == nil {
		return nil, apperrors.ErrNotFound
	}
	return f.conv, nil
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
	last  llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply}, nil
}

func (f *fakeCompleter) Model() string { return "fake" }

var fixedNow = time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)

func newEngine(store *fakeStore, completer *fakeCompleter) *Engine {
	return NewEngine(store, completer, Config{
		Temperature:      0.7,
		MaxTokens:        1000,
		MaxMessageLength: 100,
		StrictGrounding:  true,
		Now:              func() time.Time { return fixedNow },
	})
}

func TestBuildContext_Empty(t *testing.T) {
	want := "Connected Data Sources:\nNo data sources connected yet.\n\n" +
		"Recent Analytics Data:\nNo analytics data available.\n\n" +
		"Recent Insights:\nNo insights generated yet."
	assert.Equal(t, want, BuildContext(DataContext{}))
}

func TestBuildContext_WithData(t *testing.T) {
	synced := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got := BuildContext(DataContext{
		Sources: []models.DataSource{
			{Name: "Stripe", Type: "stripe", LastSync: &synced},
			{Name: "Shopify", Type: "shopify"},
		},
		Samples: []models.MetricSample{
			{MetricName: "total_revenue", MetricValue: 1234.5, DateRecorded: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
		Insights: []models.Insight{
			{Title: "Revenue spike", Description: "Revenue grew on Tuesday"},
		},
	})

	want := "Connected Data Sources:\n" +
		"- Stripe (stripe): Last synced 2024-06-01T12:00:00Z\n" +
		"- Shopify (shopify): Last synced Never\n\n" +
		"Recent Analytics Data:\n" +
		"- total_revenue: 1234.5 (2024-06-01)\n\n" +
		"Recent Insights:\n" +
		"- Revenue spike: Revenue grew on Tuesday"
	assert.Equal(t, want, got)
}

func TestChat_ValidationBeforeAnyCall(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{reply: "hi"}
	e := newEngine(store, completer)

	for _, req := range []ChatRequest{
		{Message: "", UserID: "u1"},
		{Message: "   ", UserID: "u1"},
		{Message: "hello", UserID: ""},
		{Message: string(make([]byte, 101)), UserID: "u1"},
	} {
		_, err := e.Chat(context.Background(), req)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}
	assert.Zero(t, completer.calls)
	assert.Zero(t, store.upserts)
}

func TestChat_PassesContextAndStoresExchange(t *testing.T) {
	store := &fakeStore{
		samples: []models.MetricSample{
			{MetricName: "total_revenue", MetricValue: 1234, DateRecorded: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	completer := &fakeCompleter{reply: "Your total revenue was $1,234 on June 1."}
	e := newEngine(store, completer)

	resp, err := e.Chat(context.Background(), ChatRequest{Message: "What is my revenue?", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Your total revenue was $1,234 on June 1.", resp.Message)
	assert.True(t, resp.Grounding.Grounded())
	assert.False(t, resp.Refused)

	assert.Contains(t, completer.last.SystemPrompt, "- total_revenue: 1234 (2024-06-01)")
	assert.Contains(t, completer.last.SystemPrompt, "I don't have that data yet")
	assert.Equal(t, "What is my revenue?", completer.last.UserPrompt)
	assert.InDelta(t, 0.7, completer.last.Temperature, 0.001)
	assert.Equal(t, 1000, completer.last.MaxTokens)

	require.NotNil(t, store.conv)
	require.Len(t, store.conv.Messages, 2)
	assert.Equal(t, models.RoleUser, store.conv.Messages[0].Role)
	assert.Equal(t, "What is my revenue?", store.conv.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, store.conv.Messages[1].Role)
	assert.Equal(t, resp.Message, store.conv.Messages[1].Content)
	assert.Equal(t, fixedNow, store.conv.Messages[1].Timestamp)
}

func TestChat_StrictGroundingReplacesFabricatedFigures(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{reply: "Your monthly recurring revenue increased by 15% to $48,000."}
	e := newEngine(store, completer)

	resp, err := e.Chat(context.Background(), ChatRequest{Message: "How is my revenue doing?", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, resp.Refused)
	assert.Equal(t, RefusalMessage, resp.Message)
	assert.ElementsMatch(t, []string{"15", "48000"}, resp.Grounding.Ungrounded)

	require.NotNil(t, store.conv)
	assert.Equal(t, RefusalMessage, store.conv.Messages[1].Content)
}

func TestChat_FiguresFromMessageAreNotFabricated(t *testing.T) {
	completer := &fakeCompleter{reply: "A 20% lift on 500 orders adds orders. Connect Shopify to check."}
	e := newEngine(&fakeStore{}, completer)

	resp, err := e.Chat(context.Background(), ChatRequest{Message: "What would a 20% lift on 500 orders do?", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, resp.Refused)
	assert.Equal(t, completer.reply, resp.Message)
}

func TestChat_UngroundedWithDataIsOnlyLogged(t *testing.T) {
	store := &fakeStore{sources: []models.DataSource{{Name: "Stripe", Type: "stripe"}}}
	completer := &fakeCompleter{reply: "Revenue is about $48,000."}
	e := newEngine(store, completer)

	resp, err := e.Chat(context.Background(), ChatRequest{Message: "revenue?", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, resp.Refused)
	assert.Equal(t, "Revenue is about $48,000.", resp.Message)
	assert.Equal(t, []string{"48000"}, resp.Grounding.Ungrounded)
}

func TestChat_ProviderFailure(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{err: apperrors.External("openai chat completion", errors.New("401"))}
	e := newEngine(store, completer)

	_, err := e.Chat(context.Background(), ChatRequest{Message: "hello", UserID: "u1"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Zero(t, store.upserts)
}

func TestChat_StorageFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("disk I/O error")}
	completer := &fakeCompleter{reply: "hi"}
	e := newEngine(store, completer)

	_, err := e.Chat(context.Background(), ChatRequest{Message: "hello", UserID: "u1"})
	assert.ErrorIs(t, err, apperrors.ErrStorage)
	assert.Zero(t, completer.calls)
}

func TestHistory(t *testing.T) {
	store := &fakeStore{}
	e := newEngine(store, &fakeCompleter{reply: "Connect a data source first."})

	turns, err := e.History(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	_, err = e.Chat(context.Background(), ChatRequest{Message: "hello", UserID: "u1"})
	require.NoError(t, err)
	_, err = e.Chat(context.Background(), ChatRequest{Message: "and again", UserID: "u1"})
	require.NoError(t, err)

	turns, err = e.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "and again", turns[0].Content)
}

func TestExportTranscript(t *testing.T) {
	ts := time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)
	got := ExportTranscript([]models.ChatTurn{
		{Role: models.RoleUser, Content: "hello", Timestamp: ts},
		{Role: models.RoleAssistant, Content: "hi there", Timestamp: ts},
	})
	assert.Equal(t, "User: hello (2024-06-02 09:30:00)\n\nAI: hi there (2024-06-02 09:30:00)", got)
	assert.Equal(t, "", ExportTranscript(nil))
}
