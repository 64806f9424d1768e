package service

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// ── 冲突模块业务错误 ──

var (
	ErrEventNotFound       = fmt.Errorf("展会不存在: %w", pkgerrors.ErrNotFound)
	ErrConflictNotFound    = fmt.Errorf("冲突记录不存在: %w", pkgerrors.ErrNotFound)
	ErrUnknownAction       = fmt.Errorf("未知的状态机操作: %w", pkgerrors.ErrInvalidTransition)
	ErrDetectionInProgress = fmt.Errorf("该展会正在执行冲突检测: %w", pkgerrors.ErrConstraintViolation)
)

const (
	systemActor    = "system"
	sweepBatchSize = 200
	sweepReason    = "处理期限已过，系统自动升级"
)

// DetectionLocker 检测运行的分布式锁（Redis 实现见 pkg/redis）
type DetectionLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// ConflictService 活动冲突业务接口
type ConflictService interface {
	// DetectActivityConflicts 检测展会内活动两两冲突并去重落库
	DetectActivityConflicts(ctx context.Context, eventID, actorID string) (*dto.DetectionResponse, error)
	Get(ctx context.Context, id string) (*dto.ConflictResponse, error)
	ListByEvent(ctx context.Context, eventID string, req *dto.ConflictListRequest) ([]dto.ConflictResponse, int64, error)
	ListActive(ctx context.Context, eventID string) ([]dto.ConflictResponse, error)
	Summary(ctx context.Context, eventID string) (*dto.ConflictSummaryResponse, error)
	// Transition 执行状态机操作，以状态+版本号做比较交换
	Transition(ctx context.Context, id string, req *dto.TransitionRequest, actorID string) (*dto.ConflictResponse, error)
	// EscalateExpired 巡检超期冲突（活动冲突与展位冲突）
	EscalateExpired(ctx context.Context) (*dto.SweepResponse, error)
}

type conflictService struct {
	cfg     *config.EngineConfig
	repo    *repository.Repository
	locker  DetectionLocker
	metrics *metrics.Metrics
	machine engine.Machine
	logger  *zap.Logger
	now     func() time.Time
}

// NewConflictService 创建 ConflictService 实例；locker 为 nil 时不加锁，仅依赖唯一索引去重
func NewConflictService(
	cfg *config.EngineConfig,
	repo *repository.Repository,
	locker DetectionLocker,
	m *metrics.Metrics,
	logger *zap.Logger,
) ConflictService {
	return &conflictService{
		cfg:     cfg,
		repo:    repo,
		locker:  locker,
		metrics: m,
		machine: engine.NewMachine(cfg.EscalationStep).WithReviewWindow(time.Duration(cfg.ReviewWindowHours) * time.Hour),
		logger:  logger,
		now:     time.Now,
	}
}

// ════════════════════════════════════════════════════════════
// DetectActivityConflicts
// ════════════════════════════════════════════════════════════
//
// 1. 校验展会存在
// 2. 获取展会级检测锁（可选）
// 3. 两两检测，逐条以活跃键去重插入
// 4. 已存在的活跃冲突计入 records，但不计入 newly_created

func (s *conflictService) DetectActivityConflicts(ctx context.Context, eventID, actorID string) (resp *dto.DetectionResponse, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveDetection("activity", started, err) }()

	if _, err := s.repo.Event.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询展会失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	release, err := s.acquireLock(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer release()

	activities, err := s.repo.Activity.ListByEvent(ctx, eventID)
	if err != nil {
		s.logger.Error("查询展会活动失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	inputs := make([]engine.Activity, 0, len(activities))
	for i := range activities {
		inputs = append(inputs, activities[i].ToEngine())
	}

	detected, itemErrors := engine.DetectActivityConflicts(inputs)
	if itemErrors == nil {
		itemErrors = []engine.ItemError{}
	}

	now := s.now()
	deadline := now.Add(time.Duration(s.cfg.ReviewWindowHours) * time.Hour)

	resp = &dto.DetectionResponse{
		EventID:    eventID,
		TotalFound: len(detected),
		Records:    make([]dto.ConflictResponse, 0, len(detected)),
	}

	for _, d := range detected {
		s.metrics.ConflictFound(string(d.Kind))

		requiresApproval := s.cfg.RequireApprovalForCritical && d.Severity == engine.SeverityCritical
		record := model.NewScheduleConflict(d, deadline, requiresApproval)
		if actorID != "" {
			record.CreatedBy = &actorID
			record.UpdatedBy = &actorID
		}

		created, err := s.repo.ScheduleConflict.CreateIfAbsent(ctx, record)
		if err != nil {
			s.logger.Error("写入冲突失败", zap.String("active_key", d.ActiveKey()), zap.Error(err))
			itemErrors = append(itemErrors, engine.ItemError{ItemID: d.ActiveKey(), Reason: "写入冲突失败"})
			continue
		}
		if created {
			resp.NewlyCreated++
			s.metrics.ConflictCreated(string(d.Kind), string(d.Severity))
			resp.Records = append(resp.Records, *s.toConflictResponse(record, now))
			continue
		}

		existing, err := s.repo.ScheduleConflict.FindActive(ctx, d.PairKey(), d.Kind)
		if err != nil {
			// 活跃冲突在插入与查询之间被终结
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			s.logger.Error("查询活跃冲突失败", zap.String("active_key", d.ActiveKey()), zap.Error(err))
			itemErrors = append(itemErrors, engine.ItemError{ItemID: d.ActiveKey(), Reason: "查询活跃冲突失败"})
			continue
		}
		resp.Records = append(resp.Records, *s.toConflictResponse(existing, now))
	}

	resp.Errors = itemErrors
	s.metrics.ItemErrors("detect_activity", len(itemErrors))

	s.logger.Info("活动冲突检测完成",
		zap.String("event_id", eventID),
		zap.Int("activities", len(activities)),
		zap.Int("total_found", resp.TotalFound),
		zap.Int("newly_created", resp.NewlyCreated),
		zap.Int("errors", len(itemErrors)),
	)
	return resp, nil
}

// acquireLock 取展会级检测锁；Redis 不可用时降级为无锁运行
func (s *conflictService) acquireLock(ctx context.Context, eventID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := "detect:activity:" + eventID
	ttl := s.cfg.DetectionLockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	token, ok, err := s.locker.TryLock(ctx, key, ttl)
	if err != nil {
		s.logger.Warn("获取检测锁失败，降级为无锁检测", zap.String("key", key), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, ErrDetectionInProgress
	}

	return func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("释放检测锁失败", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// ────────────────────── Get ──────────────────────

func (s *conflictService) Get(ctx context.Context, id string) (*dto.ConflictResponse, error) {
	c, err := s.getConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toConflictResponse(c, s.now()), nil
}

func (s *conflictService) getConflict(ctx context.Context, id string) (*model.ScheduleConflict, error) {
	c, err := s.repo.ScheduleConflict.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConflictNotFound
		}
		s.logger.Error("查询冲突失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return c, nil
}

// ────────────────────── List ──────────────────────

func (s *conflictService) ListByEvent(ctx context.Context, eventID string, req *dto.ConflictListRequest) ([]dto.ConflictResponse, int64, error) {
	filter := repository.ConflictFilter{
		Status:   req.Status,
		Kind:     req.Kind,
		Severity: req.Severity,
		Offset:   req.GetOffset(),
		Limit:    req.GetPageSize(),
	}

	conflicts, total, err := s.repo.ScheduleConflict.ListByEvent(ctx, eventID, filter)
	if err != nil {
		s.logger.Error("列出冲突失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, 0, err
	}

	now := s.now()
	result := make([]dto.ConflictResponse, 0, len(conflicts))
	for i := range conflicts {
		result = append(result, *s.toConflictResponse(&conflicts[i], now))
	}
	return result, total, nil
}

func (s *conflictService) ListActive(ctx context.Context, eventID string) ([]dto.ConflictResponse, error) {
	conflicts, err := s.repo.ScheduleConflict.ListActiveByEvent(ctx, eventID)
	if err != nil {
		s.logger.Error("列出活跃冲突失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	now := s.now()
	result := make([]dto.ConflictResponse, 0, len(conflicts))
	for i := range conflicts {
		result = append(result, *s.toConflictResponse(&conflicts[i], now))
	}
	return result, nil
}

// ────────────────────── Summary ──────────────────────

func (s *conflictService) Summary(ctx context.Context, eventID string) (*dto.ConflictSummaryResponse, error) {
	counts, err := s.repo.ScheduleConflict.CountByEvent(ctx, eventID)
	if err != nil {
		s.logger.Error("统计冲突失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	resp := &dto.ConflictSummaryResponse{
		EventID:    eventID,
		ByKind:     make(map[string]int64),
		BySeverity: make(map[string]int64),
		ByStatus:   make(map[string]int64),
	}
	for _, c := range counts {
		resp.Total += c.Total
		if !engine.IsTerminal(c.Status) {
			resp.Active += c.Total
		}
		resp.ByKind[c.Kind] += c.Total
		resp.BySeverity[c.Severity] += c.Total
		resp.ByStatus[c.Status] += c.Total
	}
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// Transition
// ════════════════════════════════════════════════════════════

func (s *conflictService) Transition(ctx context.Context, id string, req *dto.TransitionRequest, actorID string) (resp *dto.ConflictResponse, err error) {
	action, ok := engine.ParseAction(req.Action)
	if !ok {
		return nil, ErrUnknownAction
	}
	defer func() { s.metrics.Transition("schedule", req.Action, err) }()

	c, err := s.getConflict(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, err := s.machine.Apply(c.ConflictLifecycle.ToEngine(), action, req.Payload(actorID), now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ScheduleConflict.UpdateLifecycle(ctx, c, model.LifecycleFromEngine(next), actorID); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新冲突状态失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("冲突状态迁移",
		zap.String("id", id),
		zap.String("action", req.Action),
		zap.String("status", c.Status),
		zap.String("actor_id", actorID),
	)
	return s.toConflictResponse(c, now), nil
}

// ════════════════════════════════════════════════════════════
// EscalateExpired
// ════════════════════════════════════════════════════════════
//
// 超期只是派生判断，不会自动迁移；由本巡检（CLI sweep 或服务端定时器）
// 按批次读取超期冲突并决定强制升级或标记紧急。单条失败计入 errors 不中断。

func (s *conflictService) EscalateExpired(ctx context.Context) (*dto.SweepResponse, error) {
	now := s.now()
	resp := &dto.SweepResponse{Errors: []engine.ItemError{}}

	scheduleConflicts, err := s.repo.ScheduleConflict.ListExpired(ctx, now, sweepBatchSize)
	if err != nil {
		s.logger.Error("查询超期活动冲突失败", zap.Error(err))
		return nil, err
	}
	for i := range scheduleConflicts {
		c := &scheduleConflicts[i]
		next, outcome, err := s.machine.SweepOverdue(c.ConflictLifecycle.ToEngine(), s.escalationTarget(), sweepReason, now)
		if err == nil && outcome != engine.SweepNone {
			err = s.repo.ScheduleConflict.UpdateLifecycle(ctx, c, model.LifecycleFromEngine(next), systemActor)
		}
		s.countSweep(resp, c.ConflictID, outcome, err)
	}

	standConflicts, err := s.repo.StandConflict.ListExpired(ctx, now, sweepBatchSize)
	if err != nil {
		s.logger.Error("查询超期展位冲突失败", zap.Error(err))
		return nil, err
	}
	for i := range standConflicts {
		c := &standConflicts[i]
		next, outcome, err := s.machine.SweepOverdue(c.ConflictLifecycle.ToEngine(), s.escalationTarget(), sweepReason, now)
		if err == nil && outcome != engine.SweepNone {
			err = s.repo.StandConflict.UpdateResolution(ctx, c, model.LifecycleFromEngine(next),
				c.AssignedCompanyID, []string(c.CompensatedCompanies), systemActor)
		}
		s.countSweep(resp, c.StandConflictID, outcome, err)
	}

	s.metrics.SweepEscalated(resp.Escalated)
	s.metrics.ItemErrors("sweep", len(resp.Errors))
	s.logger.Info("超期冲突巡检完成",
		zap.Int("escalated", resp.Escalated),
		zap.Int("flagged", resp.Flagged),
		zap.Int("errors", len(resp.Errors)),
	)
	return resp, nil
}

func (s *conflictService) escalationTarget() string {
	if s.cfg.EscalationTarget != "" {
		return s.cfg.EscalationTarget
	}
	return "coordinacion"
}

func (s *conflictService) countSweep(resp *dto.SweepResponse, id string, outcome engine.SweepOutcome, err error) {
	if err != nil {
		s.logger.Warn("巡检处理冲突失败", zap.String("id", id), zap.Error(err))
		resp.Errors = append(resp.Errors, engine.ItemError{ItemID: id, Reason: err.Error()})
		return
	}
	switch outcome {
	case engine.SweepEscalated:
		resp.Escalated++
	case engine.SweepFlagged:
		resp.Flagged++
	}
}

// ── 内部辅助 ──

func (s *conflictService) toConflictResponse(c *model.ScheduleConflict, now time.Time) *dto.ConflictResponse {
	return &dto.ConflictResponse{
		ID:                c.ConflictID,
		EventID:           c.EventID,
		ActivityAID:       c.ActivityAID,
		ActivityBID:       c.ActivityBID,
		Kind:              c.Kind,
		Severity:          c.Severity,
		Description:       c.Description,
		Detail:            c.Detail.Data(),
		DetectionMethod:   c.DetectionMethod,
		LifecycleResponse: toLifecycleResponse(&c.ConflictLifecycle, now),
		Version:           c.Version,
		CreatedAt:         dto.FormatTime(c.CreatedAt),
	}
}

// toLifecycleResponse 生命周期字段映射（两类冲突共用）
func toLifecycleResponse(l *model.ConflictLifecycle, now time.Time) dto.LifecycleResponse {
	notifications := []engine.Notification(l.Notifications)
	if notifications == nil {
		notifications = []engine.Notification{}
	}
	return dto.LifecycleResponse{
		Status:                l.Status,
		Priority:              l.Priority,
		IsUrgent:              l.IsUrgent,
		IsExpired:             l.ToEngine().IsExpired(now),
		Deadline:              dto.FormatTimePtr(l.Deadline),
		ReviewerID:            l.ReviewerID,
		ReviewStartedAt:       dto.FormatTimePtr(l.ReviewStartedAt),
		ResolutionAction:      l.ResolutionAction,
		ResolutionDescription: l.ResolutionDescription,
		ResolvedBy:            l.ResolvedBy,
		ResolvedAt:            dto.FormatTimePtr(l.ResolvedAt),
		ResolutionHours:       l.ResolutionHours,
		EscalatedTo:           l.EscalatedTo,
		EscalationReason:      l.EscalationReason,
		RequiresApproval:      l.RequiresApproval,
		ApprovedBy:            l.ApprovedBy,
		Justification:         l.Justification,
		Notifications:         notifications,
	}
}
