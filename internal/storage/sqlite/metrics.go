package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/logger"
)

const metricColumns = `id, user_id, metric_name, metric_value, metric_data, date_recorded, source_id, created_at`

func (c *Client) InsertMetricSamples(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO analytics_data (`+metricColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare metric insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		var data any
		if len(s.MetricData) > 0 {
			data = string(s.MetricData)
		}
		_, err := stmt.ExecContext(ctx,
			s.ID,
			s.UserID,
			s.MetricName,
			s.MetricValue,
			data,
			s.DateRecorded.Format(models.DateLayout),
			nullableString(s.SourceID),
			toMillis(s.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert metric sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metric samples: %w", err)
	}

	logger.Debug("Metric samples inserted", zap.Int("count", len(samples)))
	return nil
}

// ListMetricSamples returns up to limit samples, most recent date first.
func (c *Client) ListMetricSamples(ctx context.Context, userID string, limit int) ([]models.MetricSample, error) {
	query := `SELECT ` + metricColumns + ` FROM analytics_data WHERE user_id = ?
		ORDER BY date_recorded DESC, created_at DESC LIMIT ?`
	return c.queryMetricSamples(ctx, query, userID, limit)
}

// RecentMetricSamples returns up to limit samples, most recently written first.
func (c *Client) RecentMetricSamples(ctx context.Context, userID string, limit int) ([]models.MetricSample, error) {
	query := `SELECT ` + metricColumns + ` FROM analytics_data WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return c.queryMetricSamples(ctx, query, userID, limit)
}

func (c *Client) CountMetricSamples(ctx context.Context, userID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_data WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count metric samples: %w", err)
	}
	return n, nil
}

func (c *Client) queryMetricSamples(ctx context.Context, query, userID string, limit int) ([]models.MetricSample, error) {
	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric samples: %w", err)
	}
	defer rows.Close()

	samples := []models.MetricSample{}
	for rows.Next() {
		var s models.MetricSample
		var data, sourceID sql.NullString
		var date string
		var createdAt int64

		err := rows.Scan(&s.ID, &s.UserID, &s.MetricName, &s.MetricValue, &data, &date, &sourceID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		recorded, err := time.Parse(models.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date_recorded %q: %w", date, err)
		}

		if data.Valid {
			s.MetricData = []byte(data.String)
		}
		s.DateRecorded = recorded
		s.SourceID = sourceID.String
		s.CreatedAt = fromMillis(createdAt)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metric samples: %w", err)
	}

	return samples, nil
}
