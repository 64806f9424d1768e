package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// StandConflictRepository 展位冲突数据访问接口
type StandConflictRepository interface {
	// 插入新冲突；同一展位已有活跃冲突时不插入并返回 false
	CreateIfAbsent(ctx context.Context, conflict *model.StandConflict) (bool, error)
	FindActiveByStand(ctx context.Context, standID string) (*model.StandConflict, error)
	GetByID(ctx context.Context, id string) (*model.StandConflict, error)
	ListByEvent(ctx context.Context, eventID string, filter ConflictFilter) ([]model.StandConflict, int64, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.StandConflict, error)
	// 比较交换更新生命周期及裁决结果
	UpdateResolution(ctx context.Context, conflict *model.StandConflict, next model.ConflictLifecycle, assignedCompanyID *string, compensated []string, updatedBy string) error
}

// ResolutionHistoryRepository 展位裁决历史数据访问接口（只追加）
type ResolutionHistoryRepository interface {
	Append(ctx context.Context, entries []model.ResolutionHistoryEntry) error
	GetBySeq(ctx context.Context, seq int64) (*model.ResolutionHistoryEntry, error)
	ListByConflict(ctx context.Context, standConflictID string) ([]model.ResolutionHistoryEntry, error)
	IsReversed(ctx context.Context, seq int64) (bool, error)
}

// ── StandConflict Repository 实现 ──

type standConflictRepo struct {
	db *gorm.DB
}

// NewStandConflictRepo 创建 StandConflictRepository 实例
func NewStandConflictRepo(db *gorm.DB) StandConflictRepository {
	return &standConflictRepo{db: db}
}

func (r *standConflictRepo) CreateIfAbsent(ctx context.Context, conflict *model.StandConflict) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(conflict)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *standConflictRepo) FindActiveByStand(ctx context.Context, standID string) (*model.StandConflict, error) {
	var conflict model.StandConflict
	err := r.db.WithContext(ctx).
		Where("active_key = ?", standID).
		First(&conflict).Error
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

func (r *standConflictRepo) GetByID(ctx context.Context, id string) (*model.StandConflict, error) {
	var conflict model.StandConflict
	err := r.db.WithContext(ctx).
		Where("stand_conflict_id = ?", id).
		First(&conflict).Error
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

func (r *standConflictRepo) ListByEvent(ctx context.Context, eventID string, filter ConflictFilter) ([]model.StandConflict, int64, error) {
	var (
		conflicts []model.StandConflict
		total     int64
	)

	db := r.db.WithContext(ctx).Model(&model.StandConflict{}).Where("event_id = ?", eventID)
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		db = db.Where("kind = ?", filter.Kind)
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

func (r *standConflictRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.StandConflict, error) {
	var conflicts []model.StandConflict
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

func (r *standConflictRepo) UpdateResolution(ctx context.Context, conflict *model.StandConflict, next model.ConflictLifecycle, assignedCompanyID *string, compensated []string, updatedBy string) error {
	oldVersion := conflict.Version
	if compensated == nil {
		compensated = []string{}
	}

	cols := next.Columns()
	cols["assigned_company_id"] = assignedCompanyID
	cols["compensated_companies"] = datatypes.JSONSlice[string](compensated)
	cols["version"] = oldVersion + 1
	cols["updated_by"] = updatedBy
	if engine.IsTerminal(next.Status) {
		cols["active_key"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.StandConflict{}).
		Where("stand_conflict_id = ? AND status = ? AND version = ?", conflict.StandConflictID, conflict.Status, oldVersion).
		Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}

	conflict.ConflictLifecycle = next
	conflict.AssignedCompanyID = assignedCompanyID
	conflict.CompensatedCompanies = datatypes.JSONSlice[string](compensated)
	conflict.Version = oldVersion + 1
	conflict.UpdatedBy = &updatedBy
	if engine.IsTerminal(next.Status) {
		conflict.ActiveKey = nil
	}
	return nil
}

// ── ResolutionHistory Repository 实现 ──

type resolutionHistoryRepo struct {
	db *gorm.DB
}

// NewResolutionHistoryRepo 创建 ResolutionHistoryRepository 实例
func NewResolutionHistoryRepo(db *gorm.DB) ResolutionHistoryRepository {
	return &resolutionHistoryRepo{db: db}
}

func (r *resolutionHistoryRepo) Append(ctx context.Context, entries []model.ResolutionHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *resolutionHistoryRepo) GetBySeq(ctx context.Context, seq int64) (*model.ResolutionHistoryEntry, error) {
	var entry model.ResolutionHistoryEntry
	err := r.db.WithContext(ctx).
		Where("seq = ?", seq).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *resolutionHistoryRepo) ListByConflict(ctx context.Context, standConflictID string) ([]model.ResolutionHistoryEntry, error) {
	var entries []model.ResolutionHistoryEntry
	err := r.db.WithContext(ctx).
		Where("stand_conflict_id = ?", standConflictID).
		Order("seq ASC").
		Find(&entries).Error
	return entries, err
}

func (r *resolutionHistoryRepo) IsReversed(ctx context.Context, seq int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ResolutionHistoryEntry{}).
		Where("reverses_seq = ?", seq).
		Count(&count).Error
	return count > 0, err
}
