package models

import (
	"encoding/json"
	"time"
)

type SourceStatus string

const (
	SourceConnected    SourceStatus = "connected"
	SourceDisconnected SourceStatus = "disconnected"
	SourceError        SourceStatus = "error"
	SourceSyncing      SourceStatus = "syncing"
)

func (s SourceStatus) Valid() bool {
	switch s {
	case SourceConnected, SourceDisconnected, SourceError, SourceSyncing:
		return true
	}
	return false
}

type InsightKind string

const (
	InsightAnomaly        InsightKind = "anomaly"
	InsightTrend          InsightKind = "trend"
	InsightForecast       InsightKind = "forecast"
	InsightBenchmark      InsightKind = "benchmark"
	InsightRecommendation InsightKind = "recommendation"
)

func (k InsightKind) Valid() bool {
	switch k {
	case InsightAnomaly, InsightTrend, InsightForecast, InsightBenchmark, InsightRecommendation:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Category string

const (
	CategoryRevenue    Category = "revenue"
	CategoryTraffic    Category = "traffic"
	CategoryConversion Category = "conversion"
	CategoryUser       Category = "user"
	CategoryMarketing  Category = "marketing"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryRevenue, CategoryTraffic, CategoryConversion, CategoryUser, CategoryMarketing:
		return true
	}
	return false
}

type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

func (i Impact) Valid() bool {
	switch i {
	case ImpactPositive, ImpactNegative, ImpactNeutral:
		return true
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DataSource is one (user, integration) connection.
type DataSource struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Status    SourceStatus    `json:"status"`
	LastSync  *time.Time      `json:"last_sync,omitempty"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DateLayout is the storage and wire format of MetricSample.DateRecorded.
const DateLayout = "2006-01-02"

type MetricSample struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	MetricName   string          `json:"metric_name"`
	MetricValue  float64         `json:"metric_value"`
	MetricData   json.RawMessage `json:"metric_data,omitempty"`
	DateRecorded time.Time       `json:"-"`
	SourceID     string          `json:"source_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (m MetricSample) MarshalJSON() ([]byte, error) {
	type alias MetricSample
	return json.Marshal(struct {
		alias
		DateRecorded string `json:"date_recorded"`
	}{
		alias:        alias(m),
		DateRecorded: m.DateRecorded.Format(DateLayout),
	})
}

func (m *MetricSample) UnmarshalJSON(data []byte) error {
	type alias MetricSample
	aux := struct {
		*alias
		DateRecorded string `json:"date_recorded"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.DateRecorded == "" {
		return nil
	}
	date, err := time.Parse(DateLayout, aux.DateRecorded)
	if err != nil {
		return err
	}
	m.DateRecorded = date
	return nil
}

type Insight struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Kind        InsightKind `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Category    Category    `json:"category"`
	Impact      Impact      `json:"impact"`
	Confidence  int         `json:"confidence"`
	DataSource  string      `json:"data_source"`
	CreatedAt   time.Time   `json:"created_at"`
	DismissedAt *time.Time  `json:"dismissed_at,omitempty"`
}

type Report struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Schedule      *string         `json:"schedule"`
	IsActive      bool            `json:"is_active"`
	LastGenerated *time.Time      `json:"last_generated"`
	Config        json.RawMessage `json:"config"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ReportConfig is the config payload written by template creation.
type ReportConfig struct {
	Template    string `json:"template"`
	Description string `json:"description"`
}

type ChatTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation holds the single stored exchange list for a user.
type Conversation struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Messages  []ChatTurn `json:"messages"`
	Title     *string    `json:"title,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
