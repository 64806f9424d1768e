package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// ConflictFilter 冲突列表查询条件
type ConflictFilter struct {
	Status   string
	Kind     string
	Severity string
	Offset   int
	Limit    int
}

// ConflictCount 按维度分组的冲突计数
type ConflictCount struct {
	Kind     string
	Severity string
	Status   string
	Total    int64
}

// terminalStatuses 终态列表
var terminalStatuses = []string{engine.StatusResolved, engine.StatusIgnored, engine.StatusCancelled}

// ScheduleConflictRepository 活动冲突数据访问接口
type ScheduleConflictRepository interface {
	// 插入新冲突；活跃键已存在时不插入并返回 false
	CreateIfAbsent(ctx context.Context, conflict *model.ScheduleConflict) (bool, error)
	FindActive(ctx context.Context, pairKey string, kind engine.ConflictKind) (*model.ScheduleConflict, error)
	GetByID(ctx context.Context, id string) (*model.ScheduleConflict, error)
	ListActiveByEvent(ctx context.Context, eventID string) ([]model.ScheduleConflict, error)
	ListByEvent(ctx context.Context, eventID string, filter ConflictFilter) ([]model.ScheduleConflict, int64, error)
	// 已过处理期限且未终结的冲突
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.ScheduleConflict, error)
	CountByEvent(ctx context.Context, eventID string) ([]ConflictCount, error)
	// 以 (id, status, version) 为条件的比较交换更新
	UpdateLifecycle(ctx context.Context, conflict *model.ScheduleConflict, next model.ConflictLifecycle, updatedBy string) error
}

type scheduleConflictRepo struct {
	db *gorm.DB
}

// NewScheduleConflictRepo 创建 ScheduleConflictRepository 实例
func NewScheduleConflictRepo(db *gorm.DB) ScheduleConflictRepository {
	return &scheduleConflictRepo{db: db}
}

func (r *scheduleConflictRepo) CreateIfAbsent(ctx context.Context, conflict *model.ScheduleConflict) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(conflict)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *scheduleConflictRepo) FindActive(ctx context.Context, pairKey string, kind engine.ConflictKind) (*model.ScheduleConflict, error) {
	var conflict model.ScheduleConflict
	err := r.db.WithContext(ctx).
		Where("active_key = ?", engine.ActiveConflictKey(pairKey, kind)).
		First(&conflict).Error
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

func (r *scheduleConflictRepo) GetByID(ctx context.Context, id string) (*model.ScheduleConflict, error) {
	var conflict model.ScheduleConflict
	err := r.db.WithContext(ctx).
		Where("conflict_id = ?", id).
		First(&conflict).Error
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

func (r *scheduleConflictRepo) ListActiveByEvent(ctx context.Context, eventID string) ([]model.ScheduleConflict, error) {
	var conflicts []model.ScheduleConflict
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status NOT IN ?", eventID, terminalStatuses).
		Order("priority ASC, created_at ASC").
		Find(&conflicts).Error
	return conflicts, err
}

func (r *scheduleConflictRepo) ListByEvent(ctx context.Context, eventID string, filter ConflictFilter) ([]model.ScheduleConflict, int64, error) {
	var (
		conflicts []model.ScheduleConflict
		total     int64
	)

	db := r.db.WithContext(ctx).Model(&model.ScheduleConflict{}).Where("event_id = ?", eventID)
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		db = db.Where("kind = ?", filter.Kind)
	}
	if filter.Severity != "" {
		db = db.Where("severity = ?", filter.Severity)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		db = db.Offset(filter.Offset).Limit(filter.Limit)
	}
	err := db.Order("priority ASC, created_at ASC").Find(&conflicts).Error
	return conflicts, total, err
}

func (r *scheduleConflictRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.ScheduleConflict, error) {
	var conflicts []model.ScheduleConflict
	db := r.db.WithContext(ctx).
		Where("status NOT IN ? AND deadline IS NOT NULL AND deadline < ?", terminalStatuses, now).
		Where("NOT (is_urgent = ? AND status IN ?)", true, engine.FlagOnlyStatuses).
		Order("deadline ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	err := db.Find(&conflicts).Error
	return conflicts, err
}

func (r *scheduleConflictRepo) CountByEvent(ctx context.Context, eventID string) ([]ConflictCount, error) {
	var counts []ConflictCount
	err := r.db.WithContext(ctx).
		Model(&model.ScheduleConflict{}).
		Select("kind, severity, status, COUNT(*) AS total").
		Where("event_id = ?", eventID).
		Group("kind, severity, status").
		Order("kind, severity, status").
		Scan(&counts).Error
	return counts, err
}

func (r *scheduleConflictRepo) UpdateLifecycle(ctx context.Context, conflict *model.ScheduleConflict, next model.ConflictLifecycle, updatedBy string) error {
	oldVersion := conflict.Version
	cols := next.Columns()
	cols["version"] = oldVersion + 1
	cols["updated_by"] = updatedBy
	if engine.IsTerminal(next.Status) {
		cols["active_key"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.ScheduleConflict{}).
		Where("conflict_id = ? AND status = ? AND version = ?", conflict.ConflictID, conflict.Status, oldVersion).
		Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}

	conflict.ConflictLifecycle = next
	conflict.Version = oldVersion + 1
	conflict.UpdatedBy = &updatedBy
	if engine.IsTerminal(next.Status) {
		conflict.ActiveKey = nil
	}
	return nil
}
