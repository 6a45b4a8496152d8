// Package reports manages report definitions created from the fixed templates.
// A report is Active or Paused until it is deleted; generating only stamps
// last_generated and produces no document.
package reports

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/catalog"
	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

type Store interface {
	InsertReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, userID, id string) (*models.Report, error)
	ListReports(ctx context.Context, userID string) ([]models.Report, error)
	MarkReportGenerated(ctx context.Context, userID, id string, at time.Time) error
	ToggleReportActive(ctx context.Context, userID, id string, at time.Time) error
	DeleteReport(ctx context.Context, userID, id string) error
}

type Filter struct {
	Search string
	Type   string
	// Status is "active", "inactive" or empty/"all".
	Status string
}

type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Scheduled int `json:"scheduled"`
	Generated int `json:"generated"`
}

type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now}
}

func (m *Manager) Templates() []catalog.ReportTemplate {
	return catalog.ReportTemplates()
}

func (m *Manager) CreateFromTemplate(ctx context.Context, userID, templateKey string) (*models.Report, error) {
	tpl, ok := catalog.LookupTemplate(templateKey)
	if !ok {
		return nil, apperrors.Validationf("unknown report template %q", templateKey)
	}

	config, err := json.Marshal(models.ReportConfig{Template: tpl.Key, Description: tpl.Description})
	if err != nil {
		return nil, apperrors.Storage("encode report config", err)
	}

	now := m.now()
	report := &models.Report{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      tpl.Name,
		Type:      tpl.Key,
		IsActive:  true,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.InsertReport(ctx, report); err != nil {
		return nil, apperrors.Storage("insert report", err)
	}

	metrics.ReportOperations.WithLabelValues("create").Inc()
	logger.Info("Report created",
		zap.String("user_id", userID),
		zap.String("report_id", report.ID),
		zap.String("template", tpl.Key),
	)
	return report, nil
}

// Generate records a generation run. last_generated never precedes created_at.
func (m *Manager) Generate(ctx context.Context, userID, reportID string) (*models.Report, error) {
	if err := m.store.MarkReportGenerated(ctx, userID, reportID, m.now()); err != nil {
		return nil, apperrors.Storage("mark report generated", err)
	}
	metrics.ReportOperations.WithLabelValues("generate").Inc()
	return m.get(ctx, userID, reportID)
}

func (m *Manager) ToggleActive(ctx context.Context, userID, reportID string) (*models.Report, error) {
	if err := m.store.ToggleReportActive(ctx, userID, reportID, m.now()); err != nil {
		return nil, apperrors.Storage("toggle report", err)
	}
	report, err := m.get(ctx, userID, reportID)
	if err != nil {
		return nil, err
	}

	op := "pause"
	if report.IsActive {
		op = "activate"
	}
	metrics.ReportOperations.WithLabelValues(op).Inc()
	return report, nil
}

func (m *Manager) Delete(ctx context.Context, userID, reportID string) error {
	if err := m.store.DeleteReport(ctx, userID, reportID); err != nil {
		return apperrors.Storage("delete report", err)
	}
	metrics.ReportOperations.WithLabelValues("delete").Inc()
	logger.Info("Report deleted", zap.String("user_id", userID), zap.String("report_id", reportID))
	return nil
}

func (m *Manager) Get(ctx context.Context, userID, reportID string) (*models.Report, error) {
	return m.get(ctx, userID, reportID)
}

func (m *Manager) get(ctx context.Context, userID, reportID string) (*models.Report, error) {
	report, err := m.store.GetReport(ctx, userID, reportID)
	if err != nil {
		return nil, apperrors.Storage("get report", err)
	}
	return report, nil
}

func (m *Manager) List(ctx context.Context, userID string, filter Filter) ([]models.Report, error) {
	switch filter.Status {
	case "", "all", "active", "inactive":
	default:
		return nil, apperrors.Validationf("unknown status filter %q", filter.Status)
	}

	all, err := m.store.ListReports(ctx, userID)
	if err != nil {
		return nil, apperrors.Storage("list reports", err)
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := []models.Report{}
	for _, r := range all {
		if search != "" && !strings.Contains(strings.ToLower(r.Name), search) {
			continue
		}
		if filter.Type != "" && filter.Type != "all" && filter.Type != r.Type {
			continue
		}
		switch filter.Status {
		case "active":
			if !r.IsActive {
				continue
			}
		case "inactive":
			if r.IsActive {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Manager) Stats(ctx context.Context, userID string) (*Stats, error) {
	all, err := m.store.ListReports(ctx, userID)
	if err != nil {
		return nil, apperrors.Storage("list reports", err)
	}

	stats := &Stats{Total: len(all)}
	for _, r := range all {
		if r.IsActive {
			stats.Active++
		}
		if r.Schedule != nil {
			stats.Scheduled++
		}
		if r.LastGenerated != nil {
			stats.Generated++
		}
	}
	return stats, nil
}
