package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"expo-engine/backend/config"
	"expo-engine/backend/internal/dto"
	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/metrics"
	"expo-engine/backend/internal/model"
	"expo-engine/backend/internal/repository"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// 排程单条失败原因
const (
	reasonActivityNotFound  = "活动不存在"
	reasonActivityCancelled = "活动已取消"
	reasonAlreadyScheduled  = "活动已排定时间"
	reasonPersistFailed     = "写入排程结果失败"
)

// SchedulingService 时间段生成与自动排程业务接口
type SchedulingService interface {
	GenerateSlots(ctx context.Context, eventID string, req *dto.GenerateSlotsRequest) (*engine.SlotSet, error)
	// AutoSchedule 对指定的未排定活动做贪心排程；DryRun 时只返回方案不落库
	AutoSchedule(ctx context.Context, eventID string, req *dto.AutoScheduleRequest, actorID string) (*dto.AutoScheduleResponse, error)
}

type schedulingService struct {
	cfg     *config.Config
	repo    *repository.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewSchedulingService 创建 SchedulingService 实例
func NewSchedulingService(cfg *config.Config, repo *repository.Repository, m *metrics.Metrics, logger *zap.Logger) SchedulingService {
	return &schedulingService{cfg: cfg, repo: repo, metrics: m, logger: logger}
}

// ════════════════════════════════════════════════════════════
// GenerateSlots
// ════════════════════════════════════════════════════════════
//
// 已排定且未取消的活动视为占用，与之重叠的时间段标记为不可用

func (s *schedulingService) GenerateSlots(ctx context.Context, eventID string, req *dto.GenerateSlotsRequest) (*engine.SlotSet, error) {
	if err := s.ensureEvent(ctx, eventID); err != nil {
		return nil, err
	}

	booked, err := s.bookedRanges(ctx, eventID)
	if err != nil {
		return nil, err
	}

	set, err := engine.GenerateSlots(eventID, s.slotOptions(req), booked, s.cfg.Engine.Location())
	if err != nil {
		return nil, err
	}

	s.logger.Info("时间段生成完成",
		zap.String("event_id", eventID),
		zap.Int("total", set.Total),
		zap.Int("available", set.Available),
	)
	return &set, nil
}

// ════════════════════════════════════════════════════════════
// AutoSchedule
// ════════════════════════════════════════════════════════════
//
// 1. 读取指定活动，不存在/已取消/已排定的计入 errors
// 2. 按请求参数生成时间段（已占用时段不可用）
// 3. 贪心排程，未排入的活动带原因返回
// 4. 非 DryRun 时逐条以乐观锁写回，单条失败计入 errors

func (s *schedulingService) AutoSchedule(ctx context.Context, eventID string, req *dto.AutoScheduleRequest, actorID string) (*dto.AutoScheduleResponse, error) {
	if err := s.ensureEvent(ctx, eventID); err != nil {
		return nil, err
	}

	activities, err := s.repo.Activity.ListByIDs(ctx, eventID, req.ActivityIDs)
	if err != nil {
		s.logger.Error("查询活动失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	itemErrors := make([]engine.ItemError, 0)
	byID := make(map[string]*model.Activity, len(activities))
	inputs := make([]engine.Activity, 0, len(activities))
	for i := range activities {
		a := &activities[i]
		byID[a.ActivityID] = a
		switch {
		case a.Status == engine.ActivityCancelled:
			itemErrors = append(itemErrors, engine.ItemError{ItemID: a.ActivityID, Reason: reasonActivityCancelled})
		case a.StartTime != nil && a.EndTime != nil && a.Status != engine.ActivityDraft:
			itemErrors = append(itemErrors, engine.ItemError{ItemID: a.ActivityID, Reason: reasonAlreadyScheduled})
		default:
			inputs = append(inputs, a.ToEngine())
		}
	}
	for _, id := range req.ActivityIDs {
		if _, ok := byID[id]; !ok {
			itemErrors = append(itemErrors, engine.ItemError{ItemID: id, Reason: reasonActivityNotFound})
		}
	}

	booked, err := s.bookedRanges(ctx, eventID)
	if err != nil {
		return nil, err
	}
	set, err := engine.GenerateSlots(eventID, s.slotOptions(&req.Slots), booked, s.cfg.Engine.Location())
	if err != nil {
		return nil, err
	}
	itemErrors = append(itemErrors, set.Errors...)

	margin := s.cfg.Scheduler.MarginMinutes
	if req.MarginMinutes != nil {
		margin = *req.MarginMinutes
	}
	result, err := engine.AutoSchedule(inputs, set.AvailableSlots(), engine.ScheduleOptions{
		PriorityByType: req.PriorityByType,
		MarginMinutes:  margin,
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.AutoScheduleResponse{
		EventID:     eventID,
		Scheduled:   result.Scheduled,
		Unscheduled: result.Unscheduled,
	}

	if !req.DryRun {
		for _, p := range result.Scheduled {
			if err := s.repo.Activity.UpdateSchedule(ctx, byID[p.ActivityID], p.Start, p.End, actorID); err != nil {
				if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
					s.logger.Error("写入排程结果失败", zap.String("activity_id", p.ActivityID), zap.Error(err))
				}
				itemErrors = append(itemErrors, engine.ItemError{ItemID: p.ActivityID, Reason: reasonPersistFailed})
			}
		}
		resp.Persisted = true
	}
	resp.Errors = itemErrors

	s.metrics.Scheduled(len(result.Scheduled), len(result.Unscheduled))
	s.metrics.ItemErrors("auto_schedule", len(itemErrors))
	s.logger.Info("自动排程完成",
		zap.String("event_id", eventID),
		zap.Int("scheduled", len(result.Scheduled)),
		zap.Int("unscheduled", len(result.Unscheduled)),
		zap.Bool("dry_run", req.DryRun),
	)
	return resp, nil
}

// ── 内部辅助 ──

func (s *schedulingService) ensureEvent(ctx context.Context, eventID string) error {
	if _, err := s.repo.Event.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		s.logger.Error("查询展会失败", zap.String("event_id", eventID), zap.Error(err))
		return err
	}
	return nil
}

func (s *schedulingService) bookedRanges(ctx context.Context, eventID string) ([]engine.TimeRange, error) {
	activities, err := s.repo.Activity.ListBooked(ctx, eventID)
	if err != nil {
		s.logger.Error("查询已排定活动失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}
	ranges := make([]engine.TimeRange, 0, len(activities))
	for _, a := range activities {
		if a.StartTime == nil || a.EndTime == nil {
			continue
		}
		ranges = append(ranges, engine.TimeRange{Start: *a.StartTime, End: *a.EndTime})
	}
	return ranges, nil
}

// slotOptions 未填写的数值项取 scheduler 配置默认值
func (s *schedulingService) slotOptions(req *dto.GenerateSlotsRequest) engine.SlotOptions {
	def := s.cfg.Scheduler
	opts := engine.SlotOptions{
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		SlotMinutes:     def.SlotMinutes,
		DayStartHour:    def.DayStartHour,
		DayEndHour:      def.DayEndHour,
		AllowedWeekdays: req.AllowedWeekdays,
		ExcludedDates:   req.ExcludedDates,
	}
	if req.SlotMinutes != nil {
		opts.SlotMinutes = *req.SlotMinutes
	}
	if req.DayStartHour != nil {
		opts.DayStartHour = *req.DayStartHour
	}
	if req.DayEndHour != nil {
		opts.DayEndHour = *req.DayEndHour
	}
	return opts
}

