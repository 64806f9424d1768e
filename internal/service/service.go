package service

import (
	"go.uber.org/zap"

	"expo-engine/backend/config"
	"expo-engine/backend/internal/metrics"
	"expo-engine/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Conflict      ConflictService
	StandConflict StandConflictService
	Priority      PriorityService
	Scheduling    SchedulingService
	Export        ExportService
}

// NewService 创建 Service 聚合；locker 与 m 均可为 nil
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	locker DetectionLocker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		Conflict:      NewConflictService(&cfg.Engine, repo, locker, m, logger),
		StandConflict: NewStandConflictService(&cfg.Engine, repo, m, logger),
		Priority:      NewPriorityService(repo, logger),
		Scheduling:    NewSchedulingService(cfg, repo, m, logger),
		Export:        NewExportService(repo, logger),
	}
}
