package repository

import (
	"context"

	"gorm.io/gorm"

	"expo-engine/backend/internal/model"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// AssignmentRequestRepository 展位申请数据访问接口
type AssignmentRequestRepository interface {
	Create(ctx context.Context, req *model.AssignmentRequest) error
	GetByID(ctx context.Context, id string) (*model.AssignmentRequest, error)
	// statuses 为空时不按状态过滤；结果预加载企业信息
	ListByEvent(ctx context.Context, eventID string, statuses []string) ([]model.AssignmentRequest, error)
	ListByCompany(ctx context.Context, companyID string) ([]model.AssignmentRequest, error)
	UpdateScore(ctx context.Context, id string, score float64) error
	// 乐观锁更新申请结果（状态与分配展位）
	UpdateOutcome(ctx context.Context, req *model.AssignmentRequest, status string, assignedStandID *string, updatedBy string) error
}

type assignmentRequestRepo struct {
	db *gorm.DB
}

// NewAssignmentRequestRepo 创建 AssignmentRequestRepository 实例
func NewAssignmentRequestRepo(db *gorm.DB) AssignmentRequestRepository {
	return &assignmentRequestRepo{db: db}
}

func (r *assignmentRequestRepo) Create(ctx context.Context, req *model.AssignmentRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *assignmentRequestRepo) GetByID(ctx context.Context, id string) (*model.AssignmentRequest, error) {
	var req model.AssignmentRequest
	err := r.db.WithContext(ctx).
		Preload("Company").
		Where("request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *assignmentRequestRepo) ListByEvent(ctx context.Context, eventID string, statuses []string) ([]model.AssignmentRequest, error) {
	var reqs []model.AssignmentRequest
	db := r.db.WithContext(ctx).
		Preload("Company").
		Where("event_id = ?", eventID)
	if len(statuses) > 0 {
		db = db.Where("status IN ?", statuses)
	}
	err := db.Order("requested_at ASC, request_id ASC").Find(&reqs).Error
	return reqs, err
}

func (r *assignmentRequestRepo) ListByCompany(ctx context.Context, companyID string) ([]model.AssignmentRequest, error) {
	var reqs []model.AssignmentRequest
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("requested_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *assignmentRequestRepo) UpdateScore(ctx context.Context, id string, score float64) error {
	return r.db.WithContext(ctx).
		Model(&model.AssignmentRequest{}).
		Where("request_id = ?", id).
		Update("priority_score", score).Error
}

func (r *assignmentRequestRepo) UpdateOutcome(ctx context.Context, req *model.AssignmentRequest, status string, assignedStandID *string, updatedBy string) error {
	oldVersion := req.Version
	result := r.db.WithContext(ctx).
		Model(&model.AssignmentRequest{}).
		Where("request_id = ? AND version = ?", req.RequestID, oldVersion).
		Updates(map[string]interface{}{
			"status":            status,
			"assigned_stand_id": assignedStandID,
			"version":           oldVersion + 1,
			"updated_by":        updatedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	req.Status = status
	req.AssignedStandID = assignedStandID
	req.Version = oldVersion + 1
	return nil
}
