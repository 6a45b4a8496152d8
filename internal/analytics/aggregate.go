// Package analytics computes metric cards and filtered views over a user's
// metric samples.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
)

const (
	DefaultWindow = "7d"
	trendLabel    = "vs last period"
)

var windows = map[string]int{
	"7d":   7,
	"30d":  30,
	"90d":  90,
	"365d": 365,
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend is the relative change between the two most recent samples of a metric.
// Value is an absolute percentage rounded to two decimals.
type Trend struct {
	Value     float64   `json:"value"`
	Label     string    `json:"label"`
	Direction Direction `json:"direction"`
}

type Filter struct {
	SourceID string
	Metric   string
	Window   string
}

// ParseWindow returns the number of days for a window key. Empty means DefaultWindow.
func ParseWindow(window string) (int, error) {
	if window == "" {
		window = DefaultWindow
	}
	days, ok := windows[window]
	if !ok {
		return 0, apperrors.Validationf("unsupported date range %q", window)
	}
	return days, nil
}

// MetricAverage is the mean value of the samples named name, or 0 when none match.
func MetricAverage(samples []models.MetricSample, name string) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if s.MetricName == name {
			sum += s.MetricValue
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// MetricTrend compares the latest and previous samples of a metric by date.
// It returns nil with fewer than two samples or a zero previous value.
func MetricTrend(samples []models.MetricSample, name string) *Trend {
	var matching []models.MetricSample
	for _, s := range samples {
		if s.MetricName == name {
			matching = append(matching, s)
		}
	}
	if len(matching) < 2 {
		return nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].DateRecorded.After(matching[j].DateRecorded)
	})

	current := matching[0].MetricValue
	previous := matching[1].MetricValue
	if previous == 0 {
		return nil
	}

	change := (current - previous) / previous * 100
	direction := DirectionFlat
	switch {
	case change > 0:
		direction = DirectionUp
	case change < 0:
		direction = DirectionDown
	}

	return &Trend{
		Value:     round2(math.Abs(change)),
		Label:     trendLabel,
		Direction: direction,
	}
}

// FilterSamples keeps samples matching the optional source and metric and
// recorded within the window ending today. Empty or "all" disables a filter.
func FilterSamples(samples []models.MetricSample, filter Filter, now time.Time) ([]models.MetricSample, error) {
	days, err := ParseWindow(filter.Window)
	if err != nil {
		return nil, err
	}

	today := truncateDay(now)
	cutoff := today.AddDate(0, 0, -days)

	out := []models.MetricSample{}
	for _, s := range samples {
		if !matchesAll(filter.SourceID, s.SourceID) || !matchesAll(filter.Metric, s.MetricName) {
			continue
		}
		day := truncateDay(s.DateRecorded)
		if day.Before(cutoff) || day.After(today) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func matchesAll(filter, value string) bool {
	return filter == "" || filter == "all" || filter == value
}
