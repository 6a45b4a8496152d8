package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

const reportColumns = `id, user_id, name, type, schedule, is_active, last_generated, config, created_at, updated_at`

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var schedule sql.NullString
	var active int
	var lastGenerated sql.NullInt64
	var config string
	var createdAt, updatedAt int64

	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Type, &schedule, &active, &lastGenerated, &config, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if schedule.Valid {
		r.Schedule = &schedule.String
	}
	r.IsActive = active != 0
	r.LastGenerated = timePtr(lastGenerated)
	r.Config = []byte(config)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

func (c *Client) InsertReport(ctx context.Context, r *models.Report) error {
	var schedule any
	if r.Schedule != nil {
		schedule = *r.Schedule
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.UserID,
		r.Name,
		r.Type,
		schedule,
		boolToInt(r.IsActive),
		nullableMillis(r.LastGenerated),
		rawOrEmpty(r.Config),
		toMillis(r.CreatedAt),
		toMillis(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	logger.Debug("Report inserted", zap.String("report_id", r.ID), zap.String("type", r.Type))
	return nil
}

func (c *Client) GetReport(ctx context.Context, userID, id string) (*models.Report, error) {
	r, err := scanReport(c.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

func (c *Client) ListReports(ctx context.Context, userID string) ([]models.Report, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}

	return reports, nil
}

// MarkReportGenerated stamps last_generated, never earlier than created_at.
func (c *Client) MarkReportGenerated(ctx context.Context, userID, id string, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE reports SET last_generated = MAX(?, created_at), updated_at = ? WHERE id = ? AND user_id = ?`,
		toMillis(at), toMillis(at), id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark report generated: %w", err)
	}
	return rowsAffected(res)
}

// ToggleReportActive flips is_active in a single statement.
func (c *Client) ToggleReportActive(ctx context.Context, userID, id string, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE reports SET is_active = 1 - is_active, updated_at = ? WHERE id = ? AND user_id = ?`,
		toMillis(at), id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle report: %w", err)
	}
	return rowsAffected(res)
}

func (c *Client) DeleteReport(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return rowsAffected(res)
}
