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

const insightColumns = `id, user_id, type, title, description, severity, category, impact,
	confidence, data_source, created_at, dismissed_at`

func (c *Client) InsertInsights(ctx context.Context, insights []models.Insight) error {
	if len(insights) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO insights (`+insightColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insight insert: %w", err)
	}
	defer stmt.Close()

	for _, in := range insights {
		_, err := stmt.ExecContext(ctx,
			in.ID,
			in.UserID,
			string(in.Kind),
			in.Title,
			in.Description,
			string(in.Severity),
			string(in.Category),
			string(in.Impact),
			in.Confidence,
			in.DataSource,
			toMillis(in.CreatedAt),
			nullableMillis(in.DismissedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert insight: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insights: %w", err)
	}

	logger.Debug("Insights inserted", zap.Int("count", len(insights)))
	return nil
}

// ListInsights returns the user's non-dismissed insights, newest first.
// A non-positive limit returns all of them.
func (c *Client) ListInsights(ctx context.Context, userID string, limit int) ([]models.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights
		WHERE user_id = ? AND dismissed_at IS NULL
		ORDER BY created_at DESC, rowid DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	insights := []models.Insight{}
	for rows.Next() {
		var in models.Insight
		var kind, severity, category, impact string
		var createdAt int64
		var dismissedAt sql.NullInt64

		err := rows.Scan(&in.ID, &in.UserID, &kind, &in.Title, &in.Description, &severity, &category, &impact,
			&in.Confidence, &in.DataSource, &createdAt, &dismissedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		in.Kind = models.InsightKind(kind)
		in.Severity = models.Severity(severity)
		in.Category = models.Category(category)
		in.Impact = models.Impact(impact)
		in.CreatedAt = fromMillis(createdAt)
		in.DismissedAt = timePtr(dismissedAt)
		insights = append(insights, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate insights: %w", err)
	}

	return insights, nil
}

// DismissInsight stamps dismissed_at. Unknown, foreign and already dismissed ids are ErrNotFound.
func (c *Client) DismissInsight(ctx context.Context, userID, id string, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE insights SET dismissed_at = ? WHERE id = ? AND user_id = ? AND dismissed_at IS NULL`,
		toMillis(at), id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to dismiss insight: %w", err)
	}
	return rowsAffected(res)
}
