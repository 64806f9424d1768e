package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
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

// ── 展位冲突模块业务错误 ──

var (
	ErrStandConflictNotFound = fmt.Errorf("展位冲突不存在: %w", pkgerrors.ErrNotFound)
	ErrNoStandCompetition    = fmt.Errorf("该展位当前没有竞争申请: %w", pkgerrors.ErrNotFound)
	ErrRequestNotFound       = fmt.Errorf("展位申请不存在: %w", pkgerrors.ErrNotFound)
	ErrHistoryNotFound       = fmt.Errorf("裁决历史不存在: %w", pkgerrors.ErrNotFound)
	ErrEntryNotReversible    = fmt.Errorf("该历史条目不可撤销: %w", pkgerrors.ErrConstraintViolation)
	ErrEntryAlreadyReversed  = fmt.Errorf("该历史条目已被撤销: %w", pkgerrors.ErrConstraintViolation)
)

// competingStatuses 参与展位竞争检测的申请状态
var competingStatuses = []string{engine.RequestRequested, engine.RequestInReview, engine.RequestApproved}

// StandConflictService 展位竞争冲突业务接口
//
// 检测只返回候选不落库；落库、裁决、撤销均需显式调用。
// 裁决（进入 resuelto）在同一事务中完成：冲突 CAS 更新、获胜/落选申请结果、
// 展位状态、裁决历史追加。
type StandConflictService interface {
	DetectStandConflicts(ctx context.Context, eventID string) (*dto.StandCandidatesResponse, error)
	PersistCandidate(ctx context.Context, eventID string, req *dto.PersistStandConflictRequest, actorID string) (*dto.StandConflictResponse, error)
	Get(ctx context.Context, id string) (*dto.StandConflictResponse, error)
	ListByEvent(ctx context.Context, eventID string, req *dto.StandConflictListRequest) ([]dto.StandConflictResponse, int64, error)
	Transition(ctx context.Context, id string, req *dto.TransitionRequest, actorID string) (*dto.StandConflictResponse, error)
	ListHistory(ctx context.Context, id string) ([]dto.HistoryEntryResponse, error)
	RevertEntry(ctx context.Context, seq int64, req *dto.RevertHistoryRequest, actorID string) (*dto.HistoryEntryResponse, error)
}

type standConflictService struct {
	cfg     *config.EngineConfig
	repo    *repository.Repository
	metrics *metrics.Metrics
	machine engine.Machine
	logger  *zap.Logger
	now     func() time.Time
}

// NewStandConflictService 创建 StandConflictService 实例
func NewStandConflictService(
	cfg *config.EngineConfig,
	repo *repository.Repository,
	m *metrics.Metrics,
	logger *zap.Logger,
) StandConflictService {
	return &standConflictService{
		cfg:     cfg,
		repo:    repo,
		metrics: m,
		machine: engine.NewMachine(cfg.EscalationStep).WithReviewWindow(time.Duration(cfg.ReviewWindowHours) * time.Hour),
		logger:  logger,
		now:     time.Now,
	}
}

// ════════════════════════════════════════════════════════════
// DetectStandConflicts
// ════════════════════════════════════════════════════════════

func (s *standConflictService) DetectStandConflicts(ctx context.Context, eventID string) (resp *dto.StandCandidatesResponse, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveDetection("stand", started, err) }()

	candidates, err := s.detect(ctx, eventID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("展位竞争检测完成", zap.String("event_id", eventID), zap.Int("candidates", len(candidates)))
	return &dto.StandCandidatesResponse{EventID: eventID, Candidates: candidates}, nil
}

// detect 读取竞争状态的申请，按企业历史实时评分后分组
func (s *standConflictService) detect(ctx context.Context, eventID string) ([]engine.StandConflictCandidate, error) {
	if _, err := s.repo.Event.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询展会失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	requests, err := s.repo.AssignmentRequest.ListByEvent(ctx, eventID, competingStatuses)
	if err != nil {
		s.logger.Error("查询展位申请失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	now := s.now()
	inputs := make([]engine.StandRequest, 0, len(requests))
	for i := range requests {
		in := requests[i].ToEngine()
		if requests[i].Company != nil {
			in.Score = engine.PriorityScore(requests[i].Company.History(), now)
		}
		inputs = append(inputs, in)
	}

	candidates := engine.DetectStandConflicts(eventID, inputs)
	for _, c := range candidates {
		s.metrics.ConflictFound("stand_" + c.Kind)
	}
	return candidates, nil
}

// ────────────────────── PersistCandidate ──────────────────────

func (s *standConflictService) PersistCandidate(ctx context.Context, eventID string, req *dto.PersistStandConflictRequest, actorID string) (*dto.StandConflictResponse, error) {
	candidates, err := s.detect(ctx, eventID)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(candidates, func(c engine.StandConflictCandidate) bool {
		return c.StandID == req.StandID
	})
	if idx < 0 {
		return nil, ErrNoStandCompetition
	}

	now := s.now()
	record := model.NewStandConflict(candidates[idx], now.Add(time.Duration(s.cfg.ReviewWindowHours)*time.Hour))
	record.CreatedBy = &actorID
	record.UpdatedBy = &actorID

	created, err := s.repo.StandConflict.CreateIfAbsent(ctx, record)
	if err != nil {
		s.logger.Error("写入展位冲突失败", zap.String("stand_id", req.StandID), zap.Error(err))
		return nil, err
	}
	if !created {
		existing, err := s.repo.StandConflict.FindActiveByStand(ctx, req.StandID)
		if err != nil {
			s.logger.Error("查询活跃展位冲突失败", zap.String("stand_id", req.StandID), zap.Error(err))
			return nil, err
		}
		return s.toStandConflictResponse(existing, now), nil
	}

	s.metrics.ConflictCreated("stand_"+record.Kind, string(engine.SeverityHigh))
	s.logger.Info("展位冲突已登记",
		zap.String("id", record.StandConflictID),
		zap.String("stand_id", record.StandID),
		zap.Int("companies", len(record.Companies)),
	)
	return s.toStandConflictResponse(record, now), nil
}

// ────────────────────── Get / List ──────────────────────

func (s *standConflictService) Get(ctx context.Context, id string) (*dto.StandConflictResponse, error) {
	c, err := s.getConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toStandConflictResponse(c, s.now()), nil
}

func (s *standConflictService) getConflict(ctx context.Context, id string) (*model.StandConflict, error) {
	c, err := s.repo.StandConflict.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStandConflictNotFound
		}
		s.logger.Error("查询展位冲突失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return c, nil
}

func (s *standConflictService) ListByEvent(ctx context.Context, eventID string, req *dto.StandConflictListRequest) ([]dto.StandConflictResponse, int64, error) {
	filter := repository.ConflictFilter{
		Status: req.Status,
		Offset: req.GetOffset(),
		Limit:  req.GetPageSize(),
	}
	conflicts, total, err := s.repo.StandConflict.ListByEvent(ctx, eventID, filter)
	if err != nil {
		s.logger.Error("列出展位冲突失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, 0, err
	}

	now := s.now()
	result := make([]dto.StandConflictResponse, 0, len(conflicts))
	for i := range conflicts {
		result = append(result, *s.toStandConflictResponse(&conflicts[i], now))
	}
	return result, total, nil
}

// ════════════════════════════════════════════════════════════
// Transition
// ════════════════════════════════════════════════════════════
//
// 先由状态机判定迁移是否合法，resolver 再校验获胜企业/补偿企业均属于竞争列表；
// 任一校验失败都不产生写入。
// 进入 resuelto 时（resolver 直接终结或 aprobar 审批通过）提交分配结果。

func (s *standConflictService) Transition(ctx context.Context, id string, req *dto.TransitionRequest, actorID string) (resp *dto.StandConflictResponse, err error) {
	action, ok := engine.ParseAction(req.Action)
	if !ok {
		return nil, ErrUnknownAction
	}
	defer func() { s.metrics.Transition("stand", req.Action, err) }()

	c, err := s.getConflict(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, err := s.machine.Apply(c.ConflictLifecycle.ToEngine(), action, req.Payload(actorID), now)
	if err != nil {
		return nil, err
	}

	assigned := c.AssignedCompanyID
	compensated := []string(c.CompensatedCompanies)
	if action == engine.ActionResolve {
		if err := engine.ValidateStandResolution(c.Claims(), req.AssignedCompanyID, req.CompensatedCompanyIDs); err != nil {
			return nil, err
		}
		winner := req.AssignedCompanyID
		assigned = &winner
		compensated = slices.Clone(req.CompensatedCompanyIDs)
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.StandConflict.UpdateResolution(ctx, c, model.LifecycleFromEngine(next), assigned, compensated, actorID); err != nil {
			return err
		}
		if next.Status != engine.StatusResolved || assigned == nil {
			return nil
		}
		return s.commitAssignment(ctx, tx, c, actorID)
	})
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("展位冲突状态迁移失败", zap.String("id", id), zap.String("action", req.Action), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("展位冲突状态迁移",
		zap.String("id", id),
		zap.String("action", req.Action),
		zap.String("status", c.Status),
		zap.String("actor_id", actorID),
	)
	return s.toStandConflictResponse(c, now), nil
}

// commitAssignment 获胜申请置为已分配，其余置为驳回，并追加裁决历史
// 先以 CAS 占用展位，展位已被他处分配时整体回滚
func (s *standConflictService) commitAssignment(ctx context.Context, tx *repository.Repository, c *model.StandConflict, actorID string) error {
	if err := tx.Stand.TransitionStatus(ctx, c.StandID, model.StandAvailable, model.StandAssigned, actorID); err != nil {
		return err
	}

	winnerID := *c.AssignedCompanyID
	compensated := make(map[string]bool, len(c.CompensatedCompanies))
	for _, id := range c.CompensatedCompanies {
		compensated[id] = true
	}

	entries := make([]model.ResolutionHistoryEntry, 0, len(c.Companies))
	for _, claim := range c.Claims() {
		req, err := tx.AssignmentRequest.GetByID(ctx, claim.RequestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrRequestNotFound, claim.RequestID)
			}
			return err
		}

		requestID := req.RequestID
		entry := model.ResolutionHistoryEntry{
			StandConflictID: c.StandConflictID,
			EventID:         c.EventID,
			RequestID:       &requestID,
			CompanyID:       claim.CompanyID,
			StandBefore:     req.AssignedStandID,
			StatusBefore:    req.Status,
			ActorID:         actorID,
			Reversible:      true,
		}

		var (
			status string
			stand  *string
		)
		switch {
		case claim.CompanyID == winnerID:
			standID := c.StandID
			status, stand = engine.RequestAssigned, &standID
			entry.Reason = model.HistoryAssignment
			entry.Note = c.ResolutionDescription
		case compensated[claim.CompanyID]:
			status, stand = engine.RequestRejected, req.AssignedStandID
			entry.Reason = model.HistoryCompensation
			entry.Note = "竞争落选，列入补偿"
		default:
			status, stand = engine.RequestRejected, req.AssignedStandID
			entry.Reason = model.HistoryRejection
			entry.Note = "竞争落选"
		}

		if err := tx.AssignmentRequest.UpdateOutcome(ctx, req, status, stand, actorID); err != nil {
			return err
		}
		entry.StandAfter = stand
		entry.StatusAfter = status
		entries = append(entries, entry)
	}

	return tx.History.Append(ctx, entries)
}

// ────────────────────── History ──────────────────────

func (s *standConflictService) ListHistory(ctx context.Context, id string) ([]dto.HistoryEntryResponse, error) {
	if _, err := s.getConflict(ctx, id); err != nil {
		return nil, err
	}

	entries, err := s.repo.History.ListByConflict(ctx, id)
	if err != nil {
		s.logger.Error("查询裁决历史失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	result := make([]dto.HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		result = append(result, toHistoryEntryResponse(&entries[i]))
	}
	return result, nil
}

// RevertEntry 撤销一条可撤销的历史：申请恢复到原状态/原展位，追加一条 reversion 记录
// 原条目不修改；uk_history_reverses 唯一索引保证同一条目只能被撤销一次
func (s *standConflictService) RevertEntry(ctx context.Context, seq int64, req *dto.RevertHistoryRequest, actorID string) (*dto.HistoryEntryResponse, error) {
	entry, err := s.repo.History.GetBySeq(ctx, seq)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		s.logger.Error("查询裁决历史失败", zap.Int64("seq", seq), zap.Error(err))
		return nil, err
	}
	if !entry.Reversible || entry.Reason == model.HistoryReversal {
		return nil, ErrEntryNotReversible
	}

	reversed, err := s.repo.History.IsReversed(ctx, seq)
	if err != nil {
		s.logger.Error("查询撤销记录失败", zap.Int64("seq", seq), zap.Error(err))
		return nil, err
	}
	if reversed {
		return nil, ErrEntryAlreadyReversed
	}

	originalSeq := entry.Seq
	reversal := model.ResolutionHistoryEntry{
		StandConflictID: entry.StandConflictID,
		EventID:         entry.EventID,
		RequestID:       entry.RequestID,
		CompanyID:       entry.CompanyID,
		StandBefore:     entry.StandAfter,
		StandAfter:      entry.StandBefore,
		StatusBefore:    entry.StatusAfter,
		StatusAfter:     entry.StatusBefore,
		Reason:          model.HistoryReversal,
		Note:            req.Reason,
		ActorID:         actorID,
		Reversible:      false,
		ReversesSeq:     &originalSeq,
	}

	appended := []model.ResolutionHistoryEntry{reversal}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if entry.RequestID != nil {
			ar, err := tx.AssignmentRequest.GetByID(ctx, *entry.RequestID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrRequestNotFound
				}
				return err
			}
			if err := tx.AssignmentRequest.UpdateOutcome(ctx, ar, entry.StatusBefore, entry.StandBefore, actorID); err != nil {
				return err
			}
		}
		// 撤销获胜分配时释放展位
		if entry.Reason == model.HistoryAssignment && entry.StandAfter != nil {
			if err := tx.Stand.TransitionStatus(ctx, *entry.StandAfter, model.StandAssigned, model.StandAvailable, actorID); err != nil {
				return err
			}
		}
		return tx.History.Append(ctx, appended)
	})
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) && !errors.Is(err, pkgerrors.ErrNotFound) {
			s.logger.Error("撤销裁决历史失败", zap.Int64("seq", seq), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("裁决历史已撤销",
		zap.Int64("seq", seq),
		zap.String("stand_conflict_id", entry.StandConflictID),
		zap.String("actor_id", actorID),
	)
	resp := toHistoryEntryResponse(&appended[0])
	return &resp, nil
}

// ── 内部辅助 ──

func (s *standConflictService) toStandConflictResponse(c *model.StandConflict, now time.Time) *dto.StandConflictResponse {
	companies := c.Claims()
	if companies == nil {
		companies = []engine.CompanyClaim{}
	}
	compensated := []string(c.CompensatedCompanies)
	if compensated == nil {
		compensated = []string{}
	}
	return &dto.StandConflictResponse{
		ID:                   c.StandConflictID,
		EventID:              c.EventID,
		StandID:              c.StandID,
		Kind:                 c.Kind,
		Description:          c.Description,
		Companies:            companies,
		AssignedCompanyID:    c.AssignedCompanyID,
		CompensatedCompanies: compensated,
		LifecycleResponse:    toLifecycleResponse(&c.ConflictLifecycle, now),
		Version:              c.Version,
		CreatedAt:            dto.FormatTime(c.CreatedAt),
	}
}

func toHistoryEntryResponse(e *model.ResolutionHistoryEntry) dto.HistoryEntryResponse {
	return dto.HistoryEntryResponse{
		Seq:             e.Seq,
		StandConflictID: e.StandConflictID,
		RequestID:       e.RequestID,
		CompanyID:       e.CompanyID,
		StandBefore:     e.StandBefore,
		StandAfter:      e.StandAfter,
		StatusBefore:    e.StatusBefore,
		StatusAfter:     e.StatusAfter,
		Reason:          e.Reason,
		Note:            e.Note,
		ActorID:         e.ActorID,
		Reversible:      e.Reversible,
		ReversesSeq:     e.ReversesSeq,
		CreatedAt:       dto.FormatTime(e.CreatedAt),
	}
}
