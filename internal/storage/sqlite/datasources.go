package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

const dataSourceColumns = `id, user_id, name, type, status, last_sync, config, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataSource(row rowScanner) (*models.DataSource, error) {
	var ds models.DataSource
	var status, config string
	var lastSync sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&ds.ID, &ds.UserID, &ds.Name, &ds.Type, &status, &lastSync, &config, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	ds.Status = models.SourceStatus(status)
	ds.LastSync = timePtr(lastSync)
	ds.Config = []byte(config)
	ds.CreatedAt = fromMillis(createdAt)
	ds.UpdatedAt = fromMillis(updatedAt)
	return &ds, nil
}

func (c *Client) InsertDataSource(ctx context.Context, ds *models.DataSource) error {
	query := `INSERT INTO data_sources (` + dataSourceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		ds.ID,
		ds.UserID,
		ds.Name,
		ds.Type,
		string(ds.Status),
		nullableMillis(ds.LastSync),
		rawOrEmpty(ds.Config),
		toMillis(ds.CreatedAt),
		toMillis(ds.UpdatedAt),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return apperrors.Conflict("insert data source", err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert data source: %w", err)
	}

	logger.Debug("Data source inserted",
		zap.String("source_id", ds.ID),
		zap.String("user_id", ds.UserID),
		zap.String("type", ds.Type),
	)
	return nil
}

func (c *Client) GetDataSource(ctx context.Context, userID, id string) (*models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE id = ? AND user_id = ?`

	ds, err := scanDataSource(c.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	return ds, nil
}

func (c *Client) GetDataSourceByType(ctx context.Context, userID, sourceType string) (*models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE user_id = ? AND type = ?`

	ds, err := scanDataSource(c.db.QueryRowContext(ctx, query, userID, sourceType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source by type: %w", err)
	}
	return ds, nil
}

// ListDataSources returns the user's sources newest first. An empty status lists all of them.
func (c *Client) ListDataSources(ctx context.Context, userID string, status models.SourceStatus) ([]models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	sources := []models.DataSource{}
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sources = append(sources, *ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate data sources: %w", err)
	}

	return sources, nil
}

// SetDataSourceStatus changes status only and leaves last_sync untouched.
func (c *Client) SetDataSourceStatus(ctx context.Context, id string, status models.SourceStatus, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE data_sources SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update data source status: %w", err)
	}
	return rowsAffected(res)
}

// UpdateDataSourceSync sets status and last_sync together. A nil lastSync clears it.
func (c *Client) UpdateDataSourceSync(ctx context.Context, id string, status models.SourceStatus, lastSync *time.Time, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE data_sources SET status = ?, last_sync = ?, updated_at = ? WHERE id = ?`,
		string(status), nullableMillis(lastSync), toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update data source sync: %w", err)
	}
	return rowsAffected(res)
}
