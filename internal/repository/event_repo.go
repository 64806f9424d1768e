package repository

import (
	"context"

	"gorm.io/gorm"

	"expo-engine/backend/internal/model"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// EventRepository 展会数据访问接口
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// StandRepository 展位数据访问接口
type StandRepository interface {
	Create(ctx context.Context, stand *model.Stand) error
	GetByID(ctx context.Context, id string) (*model.Stand, error)
	// TransitionStatus 仅当展位当前状态为 from 时改为 to；状态已变化返回 ErrOptimisticLock
	TransitionStatus(ctx context.Context, id, from, to, updatedBy string) error
}

// CompanyRepository 企业数据访问接口
type CompanyRepository interface {
	Create(ctx context.Context, company *model.Company) error
	GetByID(ctx context.Context, id string) (*model.Company, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Company, error)
}

// ── Event Repository 实现 ──

type eventRepo struct {
	db *gorm.DB
}

// NewEventRepo 创建 EventRepository 实例
func NewEventRepo(db *gorm.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Order("event_id ASC").
		Pluck("event_id", &ids).Error
	return ids, err
}

// ── Stand Repository 实现 ──

type standRepo struct {
	db *gorm.DB
}

// NewStandRepo 创建 StandRepository 实例
func NewStandRepo(db *gorm.DB) StandRepository {
	return &standRepo{db: db}
}

func (r *standRepo) Create(ctx context.Context, stand *model.Stand) error {
	return r.db.WithContext(ctx).Create(stand).Error
}

func (r *standRepo) GetByID(ctx context.Context, id string) (*model.Stand, error) {
	var stand model.Stand
	err := r.db.WithContext(ctx).
		Where("stand_id = ?", id).
		First(&stand).Error
	if err != nil {
		return nil, err
	}
	return &stand, nil
}

func (r *standRepo) TransitionStatus(ctx context.Context, id, from, to, updatedBy string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Stand{}).
		Where("stand_id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_by": updatedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

// ── Company Repository 实现 ──

type companyRepo struct {
	db *gorm.DB
}

// NewCompanyRepo 创建 CompanyRepository 实例
func NewCompanyRepo(db *gorm.DB) CompanyRepository {
	return &companyRepo{db: db}
}

func (r *companyRepo) Create(ctx context.Context, company *model.Company) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *companyRepo) GetByID(ctx context.Context, id string) (*model.Company, error) {
	var company model.Company
	err := r.db.WithContext(ctx).
		Where("company_id = ?", id).
		First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Company, error) {
	var companies []model.Company
	if len(ids) == 0 {
		return companies, nil
	}
	err := r.db.WithContext(ctx).
		Where("company_id IN ?", ids).
		Order("company_id ASC").
		Find(&companies).Error
	return companies, err
}
