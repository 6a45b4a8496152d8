package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/backend/internal/datasource"
	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/internal/storage/sqlite"
	"github.com/pulseboard/backend/pkg/apperrors"
)

type fakeStore struct {
	mu       sync.Mutex
	samples  []models.MetricSample
	sources  []models.DataSource
	listErr  error
	lists    int
	inserted int
}

func (f *fakeStore) ListMetricSamples(_ context.Context, userID string, limit int) ([]models.MetricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.MetricSample
	for _, s := range f.samples {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateRecorded.After(out[j].DateRecorded) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountMetricSamples(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.samples {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) InsertMetricSamples(_ context.Context, samples []models.MetricSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, samples...)
	f.inserted += len(samples)
	return nil
}

func (f *fakeStore) ListDataSources(_ context.Context, userID string, status models.SourceStatus) ([]models.DataSource, error) {
	var out []models.DataSource
	for _, ds := range f.sources {
		if ds.UserID == userID && (status == "" || ds.Status == status) {
			out = append(out, ds)
		}
	}
	return out, nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (c *fakeCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *fakeCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

func connected(user, id string) models.DataSource {
	return models.DataSource{ID: id, UserID: user, Type: id, Status: models.SourceConnected}
}

func TestSummary_CardsAndFilteredSamples(t *testing.T) {
	store := &fakeStore{}
	for i, v := range []float64{100, 80, 60} {
		s := sample("total_revenue", v, i*10)
		s.UserID = "u1"
		store.samples = append(store.samples, s)
	}

	svc := NewService(store, Config{Now: func() time.Time { return today }})
	summary, err := svc.Summary(context.Background(), "u1", Filter{})
	require.NoError(t, err)

	assert.Equal(t, "7d", summary.Window)
	require.Len(t, summary.Cards, 4)
	assert.Equal(t, "total_revenue", summary.Cards[0].Metric)
	assert.Equal(t, 80.0, summary.Cards[0].Average)
	require.NotNil(t, summary.Cards[0].Trend)
	assert.Equal(t, 25.0, summary.Cards[0].Trend.Value)
	assert.Nil(t, summary.Cards[1].Trend)

	// Only today's sample is inside the 7 day window.
	assert.Len(t, summary.Samples, 1)
}

func TestSummary_InvalidWindow(t *testing.T) {
	svc := NewService(&fakeStore{}, Config{})
	_, err := svc.Summary(context.Background(), "u1", Filter{Window: "2d"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSummary_StorageError(t *testing.T) {
	svc := NewService(&fakeStore{listErr: errors.New("database is locked")}, Config{})
	_, err := svc.Summary(context.Background(), "u1", Filter{})
	assert.ErrorIs(t, err, apperrors.ErrStorage)
}

func TestSummary_CachedUntilSamplesRecorded(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	svc := NewService(store, Config{Cache: cache, CacheTTL: time.Minute, Now: func() time.Time { return today }})
	ctx := context.Background()

	first, err := svc.Summary(ctx, "u1", Filter{Window: "30d"})
	require.NoError(t, err)
	assert.Empty(t, first.Samples)

	_, err = svc.Summary(ctx, "u1", Filter{Window: "30d"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.lists)

	require.NoError(t, svc.RecordSamples(ctx, "u1", []models.MetricSample{sample("page_views", 500, 1)}))

	again, err := svc.Summary(ctx, "u1", Filter{Window: "30d"})
	require.NoError(t, err)
	assert.Equal(t, 2, store.lists)
	require.Len(t, again.Samples, 1)
	assert.Equal(t, "u1", again.Samples[0].UserID)
	assert.NotEmpty(t, again.Samples[0].ID)
}

func TestSummary_CachedSourcesFollowConnectionChanges(t *testing.T) {
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "summary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, Config{Cache: newFakeCache(), CacheTTL: time.Minute, Now: func() time.Time { return today }})
	registry := datasource.NewRegistry(db, datasource.Config{Invalidator: svc})
	t.Cleanup(registry.Close)
	ctx := context.Background()

	before, err := svc.Summary(ctx, "u1", Filter{})
	require.NoError(t, err)
	assert.Empty(t, before.Sources)

	_, err = registry.ToggleConnection(ctx, "u1", "stripe")
	require.NoError(t, err)

	after, err := svc.Summary(ctx, "u1", Filter{})
	require.NoError(t, err)
	require.Len(t, after.Sources, 1)
	assert.Equal(t, "stripe", after.Sources[0].Type)

	_, err = registry.ToggleConnection(ctx, "u1", "stripe")
	require.NoError(t, err)

	disconnected, err := svc.Summary(ctx, "u1", Filter{})
	require.NoError(t, err)
	assert.Empty(t, disconnected.Sources)
}

func TestSeedSampleData(t *testing.T) {
	store := &fakeStore{sources: []models.DataSource{connected("u1", "src-a"), connected("u1", "src-b")}}
	svc := NewService(store, Config{
		Rand: rand.New(rand.NewSource(42)),
		Now:  func() time.Time { return today },
	})
	ctx := context.Background()

	n, err := svc.SeedSampleData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30*11, n)

	days := map[string]bool{}
	for _, s := range store.samples {
		assert.GreaterOrEqual(t, s.MetricValue, 100.0)
		assert.LessOrEqual(t, s.MetricValue, 1100.0)
		assert.Equal(t, s.MetricValue, float64(int(s.MetricValue)))
		assert.Contains(t, []string{"src-a", "src-b"}, s.SourceID)

		var data sampleData
		require.NoError(t, json.Unmarshal(s.MetricData, &data))
		assert.Contains(t, []string{"up", "down"}, data.Trend)
		days[s.DateRecorded.Format(models.DateLayout)] = true
	}
	assert.Len(t, days, 30)
	assert.True(t, days["2024-06-15"])

	// A second call finds existing samples and writes nothing.
	n, err = svc.SeedSampleData(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedSampleData_NoConnectedSources(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, Config{})

	n, err := svc.SeedSampleData(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, store.inserted)
}

func TestSeedSampleData_DeterministicWithSeed(t *testing.T) {
	run := func() []float64 {
		store := &fakeStore{sources: []models.DataSource{connected("u1", "src-a")}}
		svc := NewService(store, Config{Rand: rand.New(rand.NewSource(7)), Now: func() time.Time { return today }})
		_, err := svc.SeedSampleData(context.Background(), "u1")
		require.NoError(t, err)
		var values []float64
		for _, s := range store.samples {
			values = append(values, s.MetricValue)
		}
		return values
	}
	assert.Equal(t, run(), run())
}
