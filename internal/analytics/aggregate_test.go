package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
)

var today = time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)

func sample(name string, value float64, daysAgo int) models.MetricSample {
	return models.MetricSample{
		MetricName:   name,
		MetricValue:  value,
		DateRecorded: today.AddDate(0, 0, -daysAgo),
		SourceID:     "src-1",
	}
}

func TestMetricAverage(t *testing.T) {
	assert.Equal(t, 0.0, MetricAverage(nil, "total_revenue"))

	samples := []models.MetricSample{
		sample("total_revenue", 10, 0),
		sample("total_revenue", 20, 1),
		sample("total_revenue", 30, 2),
		sample("page_views", 1000, 0),
	}
	assert.Equal(t, 20.0, MetricAverage(samples, "total_revenue"))
	assert.Equal(t, 0.0, MetricAverage(samples, "user_count"))
}

func TestMetricTrend(t *testing.T) {
	tests := []struct {
		name      string
		samples   []models.MetricSample
		want      float64
		direction Direction
		isNil     bool
	}{
		{name: "no samples", isNil: true},
		{name: "single sample", samples: []models.MetricSample{sample("m", 5, 0)}, isNil: true},
		{
			name:      "drop reported as absolute",
			samples:   []models.MetricSample{sample("m", 100, 1), sample("m", 80, 0)},
			want:      20,
			direction: DirectionDown,
		},
		{
			name:      "latest first regardless of input order",
			samples:   []models.MetricSample{sample("m", 80, 1), sample("m", 100, 0)},
			want:      25,
			direction: DirectionUp,
		},
		{
			name:      "rounded to two decimals",
			samples:   []models.MetricSample{sample("m", 4, 0), sample("m", 3, 1)},
			want:      33.33,
			direction: DirectionUp,
		},
		{
			name:      "unchanged",
			samples:   []models.MetricSample{sample("m", 7, 0), sample("m", 7, 1)},
			want:      0,
			direction: DirectionFlat,
		},
		{
			name:    "zero previous has no finite trend",
			samples: []models.MetricSample{sample("m", 7, 0), sample("m", 0, 1)},
			isNil:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MetricTrend(tt.samples, "m")
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.direction, got.Direction)
			assert.Equal(t, "vs last period", got.Label)
		})
	}
}

func TestMetricTrend_TwentyFivePercent(t *testing.T) {
	// Previous 80, latest 100.
	got := MetricTrend([]models.MetricSample{sample("m", 100, 0), sample("m", 80, 1)}, "m")
	require.NotNil(t, got)
	assert.Equal(t, 25.0, got.Value)
}

func TestParseWindow(t *testing.T) {
	for key, days := range map[string]int{"": 7, "7d": 7, "30d": 30, "90d": 90, "365d": 365} {
		got, err := ParseWindow(key)
		require.NoError(t, err)
		assert.Equal(t, days, got, key)
	}

	_, err := ParseWindow("14d")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestFilterSamples(t *testing.T) {
	other := sample("page_views", 1, 0)
	other.SourceID = "src-2"

	samples := []models.MetricSample{
		sample("total_revenue", 1, 0),
		sample("total_revenue", 2, 7),
		sample("total_revenue", 3, 8),
		sample("total_revenue", 4, -1),
		other,
	}

	week, err := FilterSamples(samples, Filter{Window: "7d"}, today)
	require.NoError(t, err)
	assert.Len(t, week, 3)

	bySource, err := FilterSamples(samples, Filter{SourceID: "src-2", Window: "30d"}, today)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "page_views", bySource[0].MetricName)

	byMetric, err := FilterSamples(samples, Filter{SourceID: "all", Metric: "total_revenue", Window: "30d"}, today)
	require.NoError(t, err)
	assert.Len(t, byMetric, 3)

	_, err = FilterSamples(samples, Filter{Window: "1y"}, today)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
