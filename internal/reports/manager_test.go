package reports

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/internal/storage/sqlite"
	"github.com/pulseboard/backend/pkg/apperrors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newManager(t *testing.T) (*Manager, *clock) {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := &clock{t: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)}
	return NewManager(db, c.now), c
}

func TestTemplates(t *testing.T) {
	m, _ := newManager(t)
	templates := m.Templates()
	require.Len(t, templates, 4)
	assert.Equal(t, "revenue_summary", templates[0].Key)
}

func TestCreateFromTemplate(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	r, err := m.CreateFromTemplate(ctx, "u1", "user_analytics")
	require.NoError(t, err)
	assert.Equal(t, "User Analytics", r.Name)
	assert.Equal(t, "user_analytics", r.Type)
	assert.True(t, r.IsActive)
	assert.Nil(t, r.Schedule)
	assert.Nil(t, r.LastGenerated)

	var cfg models.ReportConfig
	require.NoError(t, json.Unmarshal(r.Config, &cfg))
	assert.Equal(t, "user_analytics", cfg.Template)
	assert.Equal(t, "User engagement, retention, and behavior analysis", cfg.Description)

	_, err = m.CreateFromTemplate(ctx, "u1", "churn_report")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestToggleActive_RoundTrip(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	r, err := m.CreateFromTemplate(ctx, "u1", "revenue_summary")
	require.NoError(t, err)

	paused, err := m.ToggleActive(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)

	active, err := m.ToggleActive(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, active.IsActive)
	assert.Nil(t, active.Schedule)
}

func TestGenerate_NeverBeforeCreation(t *testing.T) {
	m, c := newManager(t)
	ctx := context.Background()

	r, err := m.CreateFromTemplate(ctx, "u1", "performance_metrics")
	require.NoError(t, err)

	c.t = c.t.Add(2 * time.Hour)
	generated, err := m.Generate(ctx, "u1", r.ID)
	require.NoError(t, err)
	require.NotNil(t, generated.LastGenerated)
	assert.True(t, generated.LastGenerated.Equal(c.t))

	// Clock skew backwards.
	c.t = r.CreatedAt.Add(-24 * time.Hour)
	generated, err = m.Generate(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.False(t, generated.LastGenerated.Before(generated.CreatedAt))
}

func TestDelete_ThenNotFound(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	r, err := m.CreateFromTemplate(ctx, "u1", "marketing_attribution")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "u1", r.ID))

	_, err = m.Get(ctx, "u1", r.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = m.Generate(ctx, "u1", r.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "u1", r.ID), apperrors.ErrNotFound)
}

func TestByIDOperations_ScopedToOwner(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	r, err := m.CreateFromTemplate(ctx, "u1", "revenue_summary")
	require.NoError(t, err)

	_, err = m.ToggleActive(ctx, "intruder", r.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "intruder", r.ID), apperrors.ErrNotFound)

	still, err := m.Get(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)
}

func TestListAndStats(t *testing.T) {
	m, c := newManager(t)
	ctx := context.Background()

	revenue, err := m.CreateFromTemplate(ctx, "u1", "revenue_summary")
	require.NoError(t, err)
	c.t = c.t.Add(time.Minute)
	users, err := m.CreateFromTemplate(ctx, "u1", "user_analytics")
	require.NoError(t, err)
	c.t = c.t.Add(time.Minute)
	_, err = m.CreateFromTemplate(ctx, "u1", "performance_metrics")
	require.NoError(t, err)

	_, err = m.ToggleActive(ctx, "u1", users.ID)
	require.NoError(t, err)
	_, err = m.Generate(ctx, "u1", revenue.ID)
	require.NoError(t, err)

	all, err := m.List(ctx, "u1", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "performance_metrics", all[0].Type)

	inactive, err := m.List(ctx, "u1", Filter{Status: "inactive"})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, users.ID, inactive[0].ID)

	byName, err := m.List(ctx, "u1", Filter{Search: "REVENUE", Type: "revenue_summary", Status: "active"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	_, err = m.List(ctx, "u1", Filter{Status: "paused"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	stats, err := m.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Active: 2, Scheduled: 0, Generated: 1}, *stats)
}
