// Package ingestion accepts insights and metric samples produced by the
// external analysis process and writes them for a user.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

const MaxBatchSize = 500

var whitespace = regexp.MustCompile(`\s+`)

type InsightInput struct {
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	Category    string     `json:"category"`
	Impact      string     `json:"impact"`
	Confidence  int        `json:"confidence"`
	DataSource  string     `json:"data_source"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type MetricInput struct {
	MetricName   string          `json:"metric_name"`
	MetricValue  float64         `json:"metric_value"`
	MetricData   json.RawMessage `json:"metric_data,omitempty"`
	DateRecorded string          `json:"date_recorded"`
	SourceID     string          `json:"source_id,omitempty"`
}

type InsightStore interface {
	InsertInsights(ctx context.Context, insights []models.Insight) error
}

type SourceLookup interface {
	GetDataSource(ctx context.Context, userID, id string) (*models.DataSource, error)
}

type MetricRecorder interface {
	RecordSamples(ctx context.Context, userID string, samples []models.MetricSample) error
}

type Processor struct {
	insights InsightStore
	sources  SourceLookup
	recorder MetricRecorder
	now      func() time.Time
}

func NewProcessor(insights InsightStore, sources SourceLookup, recorder MetricRecorder) *Processor {
	return &Processor{
		insights: insights,
		sources:  sources,
		recorder: recorder,
		now:      time.Now,
	}
}

// IngestInsights validates the whole batch, then writes it. Nothing is written
// when any item is invalid.
func (p *Processor) IngestInsights(ctx context.Context, userID string, inputs []InsightInput) ([]models.Insight, error) {
	if err := checkBatch(len(inputs)); err != nil {
		return nil, err
	}

	now := p.now()
	out := make([]models.Insight, 0, len(inputs))
	for i, in := range inputs {
		insight, err := p.toInsight(userID, in, now)
		if err != nil {
			return nil, apperrors.Validationf("insight %d: %v", i, err)
		}
		out = append(out, insight)
	}

	if err := p.insights.InsertInsights(ctx, out); err != nil {
		return nil, apperrors.Storage("insert insights", err)
	}

	for _, in := range out {
		metrics.InsightsIngested.WithLabelValues(string(in.Severity)).Inc()
	}
	logger.Info("Insights ingested", zap.String("user_id", userID), zap.Int("count", len(out)))

	return out, nil
}

func (p *Processor) toInsight(userID string, in InsightInput, now time.Time) (models.Insight, error) {
	kind := models.InsightKind(in.Type)
	severity := models.Severity(in.Severity)
	category := models.Category(in.Category)
	impact := models.Impact(in.Impact)

	switch {
	case !kind.Valid():
		return models.Insight{}, errors.New("unknown type " + quote(in.Type))
	case !severity.Valid():
		return models.Insight{}, errors.New("unknown severity " + quote(in.Severity))
	case !category.Valid():
		return models.Insight{}, errors.New("unknown category " + quote(in.Category))
	case !impact.Valid():
		return models.Insight{}, errors.New("unknown impact " + quote(in.Impact))
	case in.Confidence < 0 || in.Confidence > 100:
		return models.Insight{}, errors.New("confidence must be between 0 and 100")
	}

	title := cleanHTML(in.Title)
	if title == "" {
		return models.Insight{}, errors.New("title is required")
	}

	createdAt := now
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		createdAt = *in.CreatedAt
	}

	return models.Insight{
		ID:          uuid.New().String(),
		UserID:      userID,
		Kind:        kind,
		Title:       title,
		Description: cleanHTML(in.Description),
		Severity:    severity,
		Category:    category,
		Impact:      impact,
		Confidence:  in.Confidence,
		DataSource:  strings.TrimSpace(in.DataSource),
		CreatedAt:   createdAt,
	}, nil
}

// IngestMetrics validates the batch and hands it to the recorder.
func (p *Processor) IngestMetrics(ctx context.Context, userID string, inputs []MetricInput) (int, error) {
	if err := checkBatch(len(inputs)); err != nil {
		return 0, err
	}

	known := make(map[string]bool)
	samples := make([]models.MetricSample, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.MetricName)
		if name == "" {
			return 0, apperrors.Validationf("metric %d: metric_name is required", i)
		}

		date, err := time.Parse(models.DateLayout, in.DateRecorded)
		if err != nil {
			return 0, apperrors.Validationf("metric %d: date_recorded must be YYYY-MM-DD", i)
		}

		if len(in.MetricData) > 0 && !json.Valid(in.MetricData) {
			return 0, apperrors.Validationf("metric %d: metric_data is not valid JSON", i)
		}

		if in.SourceID != "" && !known[in.SourceID] {
			_, err := p.sources.GetDataSource(ctx, userID, in.SourceID)
			if errors.Is(err, apperrors.ErrNotFound) {
				return 0, apperrors.Validationf("metric %d: unknown source_id %q", i, in.SourceID)
			}
			if err != nil {
				return 0, apperrors.Storage("get data source", err)
			}
			known[in.SourceID] = true
		}

		samples = append(samples, models.MetricSample{
			MetricName:   name,
			MetricValue:  in.MetricValue,
			MetricData:   in.MetricData,
			DateRecorded: date,
			SourceID:     in.SourceID,
		})
	}

	if err := p.recorder.RecordSamples(ctx, userID, samples); err != nil {
		return 0, err
	}

	logger.Info("Metric samples ingested", zap.String("user_id", userID), zap.Int("count", len(samples)))
	return len(samples), nil
}

func checkBatch(n int) error {
	if n == 0 {
		return apperrors.Validation("batch is empty")
	}
	if n > MaxBatchSize {
		return apperrors.Validationf("batch of %d exceeds limit of %d", n, MaxBatchSize)
	}
	return nil
}

// cleanHTML reduces generated markup to plain text with collapsed whitespace.
func cleanHTML(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(whitespace.ReplaceAllString(html, " "))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(whitespace.ReplaceAllString(html, " "))
	}

	doc.Find("script, style").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func quote(s string) string {
	return `"` + s + `"`
}
