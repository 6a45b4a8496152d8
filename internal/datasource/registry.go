package datasource

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/catalog"
	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

var ErrClosed = errors.New("data source registry closed")

type Store interface {
	InsertDataSource(ctx context.Context, ds *models.DataSource) error
	GetDataSource(ctx context.Context, userID, id string) (*models.DataSource, error)
	GetDataSourceByType(ctx context.Context, userID, sourceType string) (*models.DataSource, error)
	ListDataSources(ctx context.Context, userID string, status models.SourceStatus) ([]models.DataSource, error)
	SetDataSourceStatus(ctx context.Context, id string, status models.SourceStatus, at time.Time) error
	UpdateDataSourceSync(ctx context.Context, id string, status models.SourceStatus, lastSync *time.Time, at time.Time) error
}

// Syncer pulls fresh data for one source. A nil Syncer makes every sync succeed.
type Syncer interface {
	Sync(ctx context.Context, ds models.DataSource) error
}

type SyncerFunc func(ctx context.Context, ds models.DataSource) error

func (f SyncerFunc) Sync(ctx context.Context, ds models.DataSource) error {
	return f(ctx, ds)
}

// Invalidator drops derived views of a user's data, such as cached
// analytics summaries listing the connected sources.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

type Config struct {
	SyncDelay   time.Duration
	Syncer      Syncer
	Invalidator Invalidator
	Now         func() time.Time
}

type Filter struct {
	Search   string
	Category string
	Status   string
}

type Stats struct {
	Connected      int `json:"connected"`
	RecentlySynced int `json:"recently_synced"`
	Available      int `json:"available"`
}

// Registry manages a user's integration connections and owns the
// background syncs started by Refresh.
type Registry struct {
	store       Store
	syncer      Syncer
	invalidator Invalidator
	delay       time.Duration
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
}

func NewRegistry(store Store, cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		store:       store,
		syncer:      cfg.Syncer,
		invalidator: cfg.Invalidator,
		delay:       cfg.SyncDelay,
		now:         cfg.Now,
		ctx:         ctx,
		cancel:      cancel,
		inFlight:    make(map[string]struct{}),
	}
}

// ListAvailable filters the static catalog by search text over name and type
// and by exact category. Empty or "all" values match everything.
func (r *Registry) ListAvailable(filter Filter) []catalog.Integration {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := []catalog.Integration{}
	for _, in := range catalog.Integrations() {
		if search != "" &&
			!strings.Contains(strings.ToLower(in.Name), search) &&
			!strings.Contains(strings.ToLower(in.Type), search) {
			continue
		}
		if !matchesAll(filter.Category, in.Category) {
			continue
		}
		out = append(out, in)
	}
	return out
}

func (r *Registry) ListConnected(ctx context.Context, userID string, filter Filter) ([]models.DataSource, error) {
	sources, err := r.store.ListDataSources(ctx, userID, "")
	if err != nil {
		return nil, apperrors.Storage("list data sources", err)
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]models.DataSource, 0, len(sources))
	for _, ds := range sources {
		if !matchesAll(filter.Status, string(ds.Status)) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ds.Name), search) {
			continue
		}
		out = append(out, ds)
	}
	return out, nil
}

// ToggleConnection connects an unknown or inactive source and disconnects a
// connected one. A (user, type) pair never gets a second row.
func (r *Registry) ToggleConnection(ctx context.Context, userID, sourceType string) (*models.DataSource, error) {
	integration, ok := catalog.LookupIntegration(sourceType)
	if !ok {
		return nil, apperrors.Validationf("unknown data source type %q", sourceType)
	}

	now := r.now()
	existing, err := r.store.GetDataSourceByType(ctx, userID, sourceType)
	if errors.Is(err, apperrors.ErrNotFound) {
		ds := &models.DataSource{
			ID:        uuid.New().String(),
			UserID:    userID,
			Name:      integration.Name,
			Type:      sourceType,
			Status:    models.SourceConnected,
			LastSync:  &now,
			Config:    []byte(`{}`),
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = r.store.InsertDataSource(ctx, ds)
		if err == nil {
			r.recordToggle(ctx, ds)
			return ds, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.Storage("insert data source", err)
		}
		// A concurrent toggle created the row first; toggle that row instead.
		existing, err = r.store.GetDataSourceByType(ctx, userID, sourceType)
	}
	if err != nil {
		return nil, apperrors.Storage("get data source", err)
	}

	if existing.Status == models.SourceConnected {
		existing.Status = models.SourceDisconnected
		existing.LastSync = nil
	} else {
		existing.Status = models.SourceConnected
		existing.LastSync = &now
	}
	existing.UpdatedAt = now

	if err := r.store.UpdateDataSourceSync(ctx, existing.ID, existing.Status, existing.LastSync, now); err != nil {
		return nil, apperrors.Storage("update data source", err)
	}
	r.recordToggle(ctx, existing)
	return existing, nil
}

func (r *Registry) recordToggle(ctx context.Context, ds *models.DataSource) {
	r.invalidate(ctx, ds.UserID)
	metrics.DataSourceToggles.WithLabelValues(string(ds.Status)).Inc()
	logger.Info("Data source toggled",
		zap.String("user_id", ds.UserID),
		zap.String("type", ds.Type),
		zap.String("status", string(ds.Status)),
	)
}

// Refresh marks the source as syncing and schedules the sync in the
// background. A source already syncing is returned as is.
func (r *Registry) Refresh(ctx context.Context, userID, sourceID string) (*models.DataSource, error) {
	ds, err := r.store.GetDataSource(ctx, userID, sourceID)
	if err != nil {
		return nil, apperrors.Storage("get data source", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if _, busy := r.inFlight[ds.ID]; busy {
		r.mu.Unlock()
		return ds, nil
	}
	r.inFlight[ds.ID] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	now := r.now()
	if err := r.store.SetDataSourceStatus(ctx, ds.ID, models.SourceSyncing, now); err != nil {
		r.finish(ds.ID)
		return nil, apperrors.Storage("mark data source syncing", err)
	}
	ds.Status = models.SourceSyncing
	ds.UpdatedAt = now
	r.invalidate(ctx, ds.UserID)

	go r.runSync(*ds)

	return ds, nil
}

func (r *Registry) finish(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
	r.wg.Done()
}

func (r *Registry) runSync(ds models.DataSource) {
	defer r.finish(ds.ID)

	timer := time.NewTimer(r.delay)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
		metrics.DataSourceSyncs.WithLabelValues("cancelled").Inc()
		logger.Debug("Data source sync cancelled", zap.String("source_id", ds.ID))
		return
	case <-timer.C:
	}

	var syncErr error
	if r.syncer != nil {
		syncErr = r.syncer.Sync(r.ctx, ds)
	}
	if r.ctx.Err() != nil {
		metrics.DataSourceSyncs.WithLabelValues("cancelled").Inc()
		return
	}

	now := r.now()
	if syncErr != nil {
		logger.Error("Data source sync failed",
			zap.String("source_id", ds.ID),
			zap.String("type", ds.Type),
			zap.Error(syncErr),
		)
		if err := r.store.SetDataSourceStatus(r.ctx, ds.ID, models.SourceError, now); err != nil {
			logger.Error("Failed to record sync failure", zap.String("source_id", ds.ID), zap.Error(err))
		}
		r.invalidate(r.ctx, ds.UserID)
		metrics.DataSourceSyncs.WithLabelValues("error").Inc()
		return
	}

	if err := r.store.UpdateDataSourceSync(r.ctx, ds.ID, models.SourceConnected, &now, now); err != nil {
		logger.Error("Failed to record sync completion", zap.String("source_id", ds.ID), zap.Error(err))
		metrics.DataSourceSyncs.WithLabelValues("error").Inc()
		return
	}

	r.invalidate(r.ctx, ds.UserID)
	metrics.DataSourceSyncs.WithLabelValues("success").Inc()
	logger.Info("Data source synced", zap.String("source_id", ds.ID), zap.String("type", ds.Type))
}

func (r *Registry) invalidate(ctx context.Context, userID string) {
	if r.invalidator != nil {
		r.invalidator.Invalidate(ctx, userID)
	}
}

func (r *Registry) Stats(ctx context.Context, userID string) (*Stats, error) {
	sources, err := r.store.ListDataSources(ctx, userID, "")
	if err != nil {
		return nil, apperrors.Storage("list data sources", err)
	}

	stats := &Stats{}
	for _, ds := range sources {
		if ds.Status == models.SourceConnected {
			stats.Connected++
		}
		if ds.LastSync != nil {
			stats.RecentlySynced++
		}
	}
	stats.Available = len(catalog.Integrations()) - len(sources)
	if stats.Available < 0 {
		stats.Available = 0
	}
	return stats, nil
}

// Close cancels pending syncs and waits for them to return.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func matchesAll(filter, value string) bool {
	return filter == "" || filter == "all" || filter == value
}
