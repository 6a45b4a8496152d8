package insights

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

// Filter narrows a feed. Empty or "all" fields match everything; set fields are AND-combined.
type Filter struct {
	Search   string
	Severity string
	Kind     string
	Category string
}

// Apply returns the insights matching every set field of filter, in input order.
// Search is a case-insensitive substring match on title or description.
func Apply(insights []models.Insight, filter Filter) []models.Insight {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := []models.Insight{}
	for _, in := range insights {
		if search != "" &&
			!strings.Contains(strings.ToLower(in.Title), search) &&
			!strings.Contains(strings.ToLower(in.Description), search) {
			continue
		}
		if !matchesAll(filter.Severity, string(in.Severity)) ||
			!matchesAll(filter.Kind, string(in.Kind)) ||
			!matchesAll(filter.Category, string(in.Category)) {
			continue
		}
		out = append(out, in)
	}
	return out
}

func matchesAll(filter, value string) bool {
	return filter == "" || filter == "all" || filter == value
}

type Store interface {
	ListInsights(ctx context.Context, userID string, limit int) ([]models.Insight, error)
	DismissInsight(ctx context.Context, userID, id string, at time.Time) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// List returns the user's live feed, newest first, narrowed by filter.
func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]models.Insight, error) {
	all, err := s.store.ListInsights(ctx, userID, 0)
	if err != nil {
		return nil, apperrors.Storage("list insights", err)
	}
	return Apply(all, filter), nil
}

// Dismiss removes an insight from the user's feed for good.
func (s *Service) Dismiss(ctx context.Context, userID, insightID string) error {
	if err := s.store.DismissInsight(ctx, userID, insightID, s.now()); err != nil {
		return apperrors.Storage("dismiss insight", err)
	}

	logger.Info("Insight dismissed", zap.String("user_id", userID), zap.String("insight_id", insightID))
	return nil
}
