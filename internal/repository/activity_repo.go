package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// ActivityRepository 活动数据访问接口
type ActivityRepository interface {
	Create(ctx context.Context, activity *model.Activity) error
	GetByID(ctx context.Context, id string) (*model.Activity, error)
	// 展会下全部未删除活动（含讲者与资源）
	ListByEvent(ctx context.Context, eventID string) ([]model.Activity, error)
	ListByIDs(ctx context.Context, eventID string, ids []string) ([]model.Activity, error)
	// 已排定时间且未取消的活动，用于计算占用时段
	ListBooked(ctx context.Context, eventID string) ([]model.Activity, error)
	// 乐观锁写入排程结果，状态置为 scheduled
	UpdateSchedule(ctx context.Context, activity *model.Activity, start, end time.Time, updatedBy string) error
}

type activityRepo struct {
	db *gorm.DB
}

// NewActivityRepo 创建 ActivityRepository 实例
func NewActivityRepo(db *gorm.DB) ActivityRepository {
	return &activityRepo{db: db}
}

func (r *activityRepo) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Speakers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, speaker_id ASC")
		}).
		Preload("Resources", func(db *gorm.DB) *gorm.DB {
			return db.Order("resource_id ASC")
		})
}

func (r *activityRepo) Create(ctx context.Context, activity *model.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *activityRepo) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	var activity model.Activity
	err := r.withRelations(r.db.WithContext(ctx)).
		Where("activity_id = ?", id).
		First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Activity, error) {
	var activities []model.Activity
	err := r.withRelations(r.db.WithContext(ctx)).
		Where("event_id = ?", eventID).
		Order("activity_id ASC").
		Find(&activities).Error
	return activities, err
}

func (r *activityRepo) ListByIDs(ctx context.Context, eventID string, ids []string) ([]model.Activity, error) {
	var activities []model.Activity
	if len(ids) == 0 {
		return activities, nil
	}
	err := r.withRelations(r.db.WithContext(ctx)).
		Where("event_id = ? AND activity_id IN ?", eventID, ids).
		Order("activity_id ASC").
		Find(&activities).Error
	return activities, err
}

func (r *activityRepo) ListBooked(ctx context.Context, eventID string) ([]model.Activity, error) {
	var activities []model.Activity
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status <> ? AND start_time IS NOT NULL AND end_time IS NOT NULL",
			eventID, engine.ActivityCancelled).
		Order("start_time ASC").
		Find(&activities).Error
	return activities, err
}

func (r *activityRepo) UpdateSchedule(ctx context.Context, activity *model.Activity, start, end time.Time, updatedBy string) error {
	oldVersion := activity.Version
	result := r.db.WithContext(ctx).
		Model(&model.Activity{}).
		Where("activity_id = ? AND version = ?", activity.ActivityID, oldVersion).
		Updates(map[string]interface{}{
			"start_time": start,
			"end_time":   end,
			"status":     engine.ActivityScheduled,
			"version":    oldVersion + 1,
			"updated_by": updatedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	activity.StartTime = &start
	activity.EndTime = &end
	activity.Status = engine.ActivityScheduled
	activity.Version = oldVersion + 1
	return nil
}
