package analytics

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
	"github.com/pulseboard/backend/pkg/utils"
)

const (
	summarySampleLimit = 100
	seedDays           = 30
	cacheType          = "analytics_summary"
)

// CardMetrics are the headline metrics shown as cards, in display order.
var CardMetrics = []string{"total_revenue", "user_count", "conversion_rate", "page_views"}

var seedMetrics = []string{
	"total_revenue", "monthly_revenue", "user_count", "conversion_rate",
	"page_views", "session_duration", "bounce_rate", "new_users",
	"returning_users", "cart_abandonment", "avg_order_value",
}

type Store interface {
	ListMetricSamples(ctx context.Context, userID string, limit int) ([]models.MetricSample, error)
	CountMetricSamples(ctx context.Context, userID string) (int, error)
	InsertMetricSamples(ctx context.Context, samples []models.MetricSample) error
	ListDataSources(ctx context.Context, userID string, status models.SourceStatus) ([]models.DataSource, error)
}

type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type MetricCard struct {
	Metric  string  `json:"metric"`
	Average float64 `json:"average"`
	Trend   *Trend  `json:"trend"`
}

type Summary struct {
	Window  string                `json:"range"`
	Sources []models.DataSource   `json:"sources"`
	Cards   []MetricCard          `json:"cards"`
	Samples []models.MetricSample `json:"samples"`
}

type Config struct {
	Cache    Cache
	CacheTTL time.Duration
	Rand     *rand.Rand
	Now      func() time.Time
}

type Service struct {
	store Store
	cache Cache
	ttl   time.Duration
	now   func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewService(store Store, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		store: store,
		cache: cfg.Cache,
		ttl:   cfg.CacheTTL,
		now:   cfg.Now,
		rand:  cfg.Rand,
	}
}

// Summary loads the user's most recent samples, computes the metric cards
// over them and returns the samples matching filter for charting.
func (s *Service) Summary(ctx context.Context, userID string, filter Filter) (*Summary, error) {
	if filter.Window == "" {
		filter.Window = DefaultWindow
	}
	if _, err := ParseWindow(filter.Window); err != nil {
		return nil, err
	}

	now := s.now()
	key := s.summaryKey(userID, filter, now)

	if s.cache != nil {
		var cached Summary
		found, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Warn("Summary cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		if found {
			metrics.CacheHits.WithLabelValues(cacheType).Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
	}

	sources, err := s.store.ListDataSources(ctx, userID, models.SourceConnected)
	if err != nil {
		return nil, apperrors.Storage("list connected sources", err)
	}

	samples, err := s.store.ListMetricSamples(ctx, userID, summarySampleLimit)
	if err != nil {
		return nil, apperrors.Storage("list metric samples", err)
	}

	filtered, err := FilterSamples(samples, filter, now)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Window:  filter.Window,
		Sources: sources,
		Cards:   make([]MetricCard, 0, len(CardMetrics)),
		Samples: filtered,
	}
	for _, name := range CardMetrics {
		summary.Cards = append(summary.Cards, MetricCard{
			Metric:  name,
			Average: MetricAverage(samples, name),
			Trend:   MetricTrend(samples, name),
		})
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, summary, s.ttl); err != nil {
			logger.Warn("Summary cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return summary, nil
}

// RecordSamples stores samples for the user and drops the user's cached summaries.
func (s *Service) RecordSamples(ctx context.Context, userID string, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	now := s.now()
	for i := range samples {
		samples[i].UserID = userID
		if samples[i].ID == "" {
			samples[i].ID = uuid.New().String()
		}
		if samples[i].CreatedAt.IsZero() {
			samples[i].CreatedAt = now
		}
	}

	if err := s.store.InsertMetricSamples(ctx, samples); err != nil {
		return apperrors.Storage("insert metric samples", err)
	}
	metrics.MetricSamplesRecorded.Add(float64(len(samples)))

	s.Invalidate(ctx, userID)
	return nil
}

// SeedSampleData writes thirty days of demo samples for a user that has
// connected sources and no samples yet. It returns the number written.
func (s *Service) SeedSampleData(ctx context.Context, userID string) (int, error) {
	sources, err := s.store.ListDataSources(ctx, userID, models.SourceConnected)
	if err != nil {
		return 0, apperrors.Storage("list connected sources", err)
	}
	if len(sources) == 0 {
		return 0, nil
	}

	existing, err := s.store.CountMetricSamples(ctx, userID)
	if err != nil {
		return 0, apperrors.Storage("count metric samples", err)
	}
	if existing > 0 {
		return 0, nil
	}

	samples := s.generateSamples(sources, s.now())
	if err := s.RecordSamples(ctx, userID, samples); err != nil {
		return 0, err
	}

	logger.Info("Sample analytics data seeded",
		zap.String("user_id", userID),
		zap.Int("samples", len(samples)),
	)
	return len(samples), nil
}

type sampleData struct {
	Trend  string  `json:"trend"`
	Change float64 `json:"change"`
}

func (s *Service) generateSamples(sources []models.DataSource, now time.Time) []models.MetricSample {
	s.randMu.Lock()
	defer s.randMu.Unlock()

	today := truncateDay(now)
	out := make([]models.MetricSample, 0, seedDays*len(seedMetrics))
	for day := 0; day < seedDays; day++ {
		date := today.AddDate(0, 0, -day)
		for _, name := range seedMetrics {
			value := math.Round(s.rand.Float64()*1000 + 100)

			trend := "down"
			if s.rand.Float64() > 0.5 {
				trend = "up"
			}
			data, _ := json.Marshal(sampleData{
				Trend:  trend,
				Change: round2((s.rand.Float64() - 0.5) * 20),
			})

			out = append(out, models.MetricSample{
				MetricName:   name,
				MetricValue:  value,
				MetricData:   data,
				DateRecorded: date,
				SourceID:     sources[s.rand.Intn(len(sources))].ID,
			})
		}
	}
	return out
}

// Invalidate drops every cached summary of the user. Cached summaries carry
// the connected source list, so connection changes must call it too.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, summaryPrefix(userID)); err != nil {
		logger.Warn("Summary cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func summaryPrefix(userID string) string {
	return "summary:" + utils.HashString(userID) + ":"
}

// summaryKey includes the day so a window never outlives its cutoff.
func (s *Service) summaryKey(userID string, filter Filter, now time.Time) string {
	return summaryPrefix(userID) + utils.HashKey(
		filter.SourceID,
		filter.Metric,
		filter.Window,
		now.UTC().Format(models.DateLayout),
	)
}
