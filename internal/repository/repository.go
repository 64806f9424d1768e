package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Event             EventRepository
	Stand             StandRepository
	Company           CompanyRepository
	Activity          ActivityRepository
	AssignmentRequest AssignmentRequestRepository
	ScheduleConflict  ScheduleConflictRepository
	StandConflict     StandConflictRepository
	History           ResolutionHistoryRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:                db,
		Event:             NewEventRepo(db),
		Stand:             NewStandRepo(db),
		Company:           NewCompanyRepo(db),
		Activity:          NewActivityRepo(db),
		AssignmentRequest: NewAssignmentRequestRepo(db),
		ScheduleConflict:  NewScheduleConflictRepo(db),
		StandConflict:     NewStandConflictRepo(db),
		History:           NewResolutionHistoryRepo(db),
	}
}

// Transaction 在同一数据库事务中执行 fn，fn 收到绑定到该事务的 Repository
// 未连接数据库（单元测试注入 mock）时直接以当前聚合执行
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
