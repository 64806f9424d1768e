package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"expo-engine/backend/internal/dto"
	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
	"expo-engine/backend/internal/repository"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// ── 评分模块业务错误 ──

var (
	ErrCompanyNotFound = fmt.Errorf("企业不存在: %w", pkgerrors.ErrNotFound)
)

// PriorityService 企业优先级评分业务接口
// 评分仅作为人工裁决与排程的参考信号
type PriorityService interface {
	ComputePriorityScore(ctx context.Context, companyID string) (*dto.PriorityScoreResponse, error)
	// RefreshRequestScores 按企业当前历史重算展会下竞争中申请的评分
	RefreshRequestScores(ctx context.Context, eventID string) (*dto.RefreshScoresResponse, error)
}

type priorityService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewPriorityService 创建 PriorityService 实例
func NewPriorityService(repo *repository.Repository, logger *zap.Logger) PriorityService {
	return &priorityService{repo: repo, logger: logger, now: time.Now}
}

// ────────────────────── ComputePriorityScore ──────────────────────

func (s *priorityService) ComputePriorityScore(ctx context.Context, companyID string) (*dto.PriorityScoreResponse, error) {
	company, err := s.repo.Company.GetByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		s.logger.Error("查询企业失败", zap.String("company_id", companyID), zap.Error(err))
		return nil, err
	}

	return s.toScoreResponse(company, s.now()), nil
}

// ────────────────────── RefreshRequestScores ──────────────────────

func (s *priorityService) RefreshRequestScores(ctx context.Context, eventID string) (*dto.RefreshScoresResponse, error) {
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
	resp := &dto.RefreshScoresResponse{EventID: eventID, Errors: []engine.ItemError{}}
	for i := range requests {
		req := &requests[i]
		if req.Company == nil {
			resp.Errors = append(resp.Errors, engine.ItemError{ItemID: req.RequestID, Reason: "申请企业不存在"})
			continue
		}
		score := engine.PriorityScore(req.Company.History(), now)
		if score == req.PriorityScore {
			continue
		}
		if err := s.repo.AssignmentRequest.UpdateScore(ctx, req.RequestID, score); err != nil {
			s.logger.Warn("更新申请评分失败", zap.String("request_id", req.RequestID), zap.Error(err))
			resp.Errors = append(resp.Errors, engine.ItemError{ItemID: req.RequestID, Reason: "更新评分失败"})
			continue
		}
		resp.Updated++
	}

	s.logger.Info("申请评分刷新完成",
		zap.String("event_id", eventID),
		zap.Int("requests", len(requests)),
		zap.Int("updated", resp.Updated),
	)
	return resp, nil
}

// ── 内部辅助 ──

func (s *priorityService) toScoreResponse(c *model.Company, now time.Time) *dto.PriorityScoreResponse {
	history := c.History()
	seniority := 0
	if history.FirstParticipation != nil {
		seniority = engine.WholeYearsBetween(*history.FirstParticipation, now)
	}
	return &dto.PriorityScoreResponse{
		CompanyID:      c.CompanyID,
		Name:           c.Name,
		Score:          engine.PriorityScore(history, now),
		Participations: history.Participations,
		AverageRating:  history.AverageRating,
		SeniorityYears: seniority,
		ComputedAt:     dto.FormatTime(now),
	}
}
