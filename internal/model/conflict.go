package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
)

// ConflictLifecycle 冲突处理生命周期字段（活动冲突与展位冲突共用）
type ConflictLifecycle struct {
	Status                string                                 `gorm:"type:varchar(20);not null;default:detectado;index" json:"status"`
	Priority              int                                    `gorm:"not null;default:5"          json:"priority"`
	IsUrgent              bool                                   `gorm:"not null;default:false"      json:"is_urgent"`
	Deadline              *time.Time                             `gorm:"index"                       json:"deadline,omitempty"`
	ReviewerID            *string                                `gorm:"type:varchar(64)"            json:"reviewer_id,omitempty"`
	ReviewStartedAt       *time.Time                             `json:"review_started_at,omitempty"`
	ResolutionAction      string                                 `gorm:"type:varchar(100)"           json:"resolution_action,omitempty"`
	ResolutionDescription string                                 `gorm:"type:text"                   json:"resolution_description,omitempty"`
	ResolvedBy            *string                                `gorm:"type:varchar(64)"            json:"resolved_by,omitempty"`
	ResolvedAt            *time.Time                             `json:"resolved_at,omitempty"`
	ResolutionHours       *float64                               `json:"resolution_hours,omitempty"`
	EscalatedTo           string                                 `gorm:"type:varchar(100)"           json:"escalated_to,omitempty"`
	EscalationReason      string                                 `gorm:"type:text"                   json:"escalation_reason,omitempty"`
	EscalatedAt           *time.Time                             `json:"escalated_at,omitempty"`
	RequiresApproval      bool                                   `gorm:"not null;default:false"      json:"requires_approval"`
	ApprovedBy            *string                                `gorm:"type:varchar(64)"            json:"approved_by,omitempty"`
	ApprovedAt            *time.Time                             `json:"approved_at,omitempty"`
	Justification         string                                 `gorm:"type:text"                   json:"justification,omitempty"`
	Notifications         datatypes.JSONSlice[engine.Notification] `json:"notifications"`
}

// ToEngine 转换为状态机输入
func (l *ConflictLifecycle) ToEngine() engine.Lifecycle {
	return engine.Lifecycle{
		Status:                l.Status,
		Priority:              l.Priority,
		IsUrgent:              l.IsUrgent,
		Deadline:              l.Deadline,
		ReviewerID:            l.ReviewerID,
		ReviewStartedAt:       l.ReviewStartedAt,
		ResolutionAction:      l.ResolutionAction,
		ResolutionDescription: l.ResolutionDescription,
		ResolvedBy:            l.ResolvedBy,
		ResolvedAt:            l.ResolvedAt,
		ResolutionHours:       l.ResolutionHours,
		EscalatedTo:           l.EscalatedTo,
		EscalationReason:      l.EscalationReason,
		EscalatedAt:           l.EscalatedAt,
		RequiresApproval:      l.RequiresApproval,
		ApprovedBy:            l.ApprovedBy,
		ApprovedAt:            l.ApprovedAt,
		Justification:         l.Justification,
		Notifications:         []engine.Notification(l.Notifications),
	}
}

// LifecycleFromEngine 状态机输出转回持久化字段
func LifecycleFromEngine(l engine.Lifecycle) ConflictLifecycle {
	notifications := l.Notifications
	if notifications == nil {
		notifications = []engine.Notification{}
	}
	return ConflictLifecycle{
		Status:                l.Status,
		Priority:              l.Priority,
		IsUrgent:              l.IsUrgent,
		Deadline:              l.Deadline,
		ReviewerID:            l.ReviewerID,
		ReviewStartedAt:       l.ReviewStartedAt,
		ResolutionAction:      l.ResolutionAction,
		ResolutionDescription: l.ResolutionDescription,
		ResolvedBy:            l.ResolvedBy,
		ResolvedAt:            l.ResolvedAt,
		ResolutionHours:       l.ResolutionHours,
		EscalatedTo:           l.EscalatedTo,
		EscalationReason:      l.EscalationReason,
		EscalatedAt:           l.EscalatedAt,
		RequiresApproval:      l.RequiresApproval,
		ApprovedBy:            l.ApprovedBy,
		ApprovedAt:            l.ApprovedAt,
		Justification:         l.Justification,
		Notifications:         datatypes.JSONSlice[engine.Notification](notifications),
	}
}

// Columns CAS 更新时写入的列
func (l ConflictLifecycle) Columns() map[string]interface{} {
	return map[string]interface{}{
		"status":                 l.Status,
		"priority":               l.Priority,
		"is_urgent":              l.IsUrgent,
		"deadline":               l.Deadline,
		"reviewer_id":            l.ReviewerID,
		"review_started_at":      l.ReviewStartedAt,
		"resolution_action":      l.ResolutionAction,
		"resolution_description": l.ResolutionDescription,
		"resolved_by":            l.ResolvedBy,
		"resolved_at":            l.ResolvedAt,
		"resolution_hours":       l.ResolutionHours,
		"escalated_to":           l.EscalatedTo,
		"escalation_reason":      l.EscalationReason,
		"escalated_at":           l.EscalatedAt,
		"requires_approval":      l.RequiresApproval,
		"approved_by":            l.ApprovedBy,
		"approved_at":            l.ApprovedAt,
		"justification":          l.Justification,
		"notifications":          l.Notifications,
	}
}

// ScheduleConflict 活动冲突记录 对应表 schedule_conflicts
// ActiveKey 在冲突活跃期间为 "pair|kind"，进入终态后置空，由唯一索引保证去重
type ScheduleConflict struct {
	ConflictID      string                                   `gorm:"type:uuid;primaryKey"              json:"conflict_id"`
	EventID         string                                   `gorm:"type:uuid;not null;index"          json:"event_id"`
	ActivityAID     string                                   `gorm:"column:activity_a_id;type:uuid;not null" json:"activity_a_id"`
	ActivityBID     string                                   `gorm:"column:activity_b_id;type:uuid;not null" json:"activity_b_id"`
	PairKey         string                                   `gorm:"type:varchar(80);not null;index"   json:"pair_key"`
	Kind            string                                   `gorm:"type:varchar(20);not null"         json:"kind"`
	Severity        string                                   `gorm:"type:varchar(20);not null"         json:"severity"`
	Description     string                                   `gorm:"type:text"                         json:"description"`
	Detail          datatypes.JSONType[engine.ConflictDetail] `json:"detail"`
	DetectionMethod string                                   `gorm:"type:varchar(20);not null;default:automatico" json:"detection_method"`
	ActiveKey       *string                                  `gorm:"type:varchar(120);uniqueIndex:uk_schedule_conflicts_active_key" json:"-"`
	ConflictLifecycle
	VersionedModel
}

// TableName 指定表名
func (ScheduleConflict) TableName() string { return "schedule_conflicts" }

// BeforeCreate 生成主键
func (c *ScheduleConflict) BeforeCreate(*gorm.DB) error {
	newID(&c.ConflictID)
	c.initVersion()
	return nil
}

// NewScheduleConflict 由检测结果构造新的冲突记录
func NewScheduleConflict(d engine.DetectedConflict, deadline time.Time, requiresApproval bool) *ScheduleConflict {
	activeKey := d.ActiveKey()
	return &ScheduleConflict{
		EventID:         d.EventID,
		ActivityAID:     d.ActivityAID,
		ActivityBID:     d.ActivityBID,
		PairKey:         d.PairKey(),
		Kind:            string(d.Kind),
		Severity:        string(d.Severity),
		Description:     d.Description,
		Detail:          datatypes.NewJSONType(d.Detail),
		DetectionMethod: engine.DetectionAutomatic,
		ActiveKey:       &activeKey,
		ConflictLifecycle: ConflictLifecycle{
			Status:           engine.StatusDetected,
			Priority:         d.Severity.DefaultPriority(),
			Deadline:         &deadline,
			RequiresApproval: requiresApproval,
			Notifications:    datatypes.JSONSlice[engine.Notification]{},
		},
	}
}
