package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/repositories"
)

// StatsService reports usage over the caller's bots.
type StatsService interface {
	Stats(ctx context.Context, ownerID uuid.UUID) (*models.UsageStats, error)
	RecentActivity(ctx context.Context, ownerID uuid.UUID) ([]*models.MessageLog, error)
}

type statsService struct {
	logs repositories.MessageLogRepository
}

// NewStatsService creates a new stats service.
func NewStatsService(logs repositories.MessageLogRepository) StatsService {
	return &statsService{logs: logs}
}

func (s *statsService) Stats(ctx context.Context, ownerID uuid.UUID) (*models.UsageStats, error) {
	return s.logs.Stats(ctx, ownerID)
}

// RecentActivity returns at most models.RecentActivityLimit logs, newest first.
func (s *statsService) RecentActivity(ctx context.Context, ownerID uuid.UUID) ([]*models.MessageLog, error) {
	return s.logs.Recent(ctx, ownerID, models.RecentActivityLimit)
}

var _ StatsService = (*statsService)(nil)
