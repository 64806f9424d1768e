package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
)

// StandConflict 展位竞争冲突 对应表 stand_conflicts
// ActiveKey 在活跃期间为展位 ID，保证同一展位至多一条活跃冲突
type StandConflict struct {
	StandConflictID      string                                 `gorm:"type:uuid;primaryKey"             json:"stand_conflict_id"`
	EventID              string                                 `gorm:"type:uuid;not null;index"         json:"event_id"`
	StandID              string                                 `gorm:"type:uuid;not null;index"         json:"stand_id"`
	Kind                 string                                 `gorm:"type:varchar(30);not null;default:multiples_solicitudes" json:"kind"`
	Description          string                                 `gorm:"type:text"                        json:"description"`
	Companies            datatypes.JSONSlice[engine.CompanyClaim] `json:"companies"`
	AssignedCompanyID    *string                                `gorm:"type:uuid"                        json:"assigned_company_id,omitempty"`
	CompensatedCompanies datatypes.JSONSlice[string]            `json:"compensated_companies"`
	ActiveKey            *string                                `gorm:"type:varchar(80);uniqueIndex:uk_stand_conflicts_active_key" json:"-"`
	ConflictLifecycle
	VersionedModel
}

// TableName 指定表名
func (StandConflict) TableName() string { return "stand_conflicts" }

// BeforeCreate 生成主键
func (c *StandConflict) BeforeCreate(*gorm.DB) error {
	newID(&c.StandConflictID)
	c.initVersion()
	return nil
}

// Claims 竞争企业列表
func (c *StandConflict) Claims() []engine.CompanyClaim {
	return []engine.CompanyClaim(c.Companies)
}

// NewStandConflict 由检测候选构造新的展位冲突记录
func NewStandConflict(cand engine.StandConflictCandidate, deadline time.Time) *StandConflict {
	activeKey := cand.StandID
	return &StandConflict{
		EventID:              cand.EventID,
		StandID:              cand.StandID,
		Kind:                 cand.Kind,
		Description:          cand.Description,
		Companies:            datatypes.JSONSlice[engine.CompanyClaim](cand.Companies),
		CompensatedCompanies: datatypes.JSONSlice[string]{},
		ActiveKey:            &activeKey,
		ConflictLifecycle: ConflictLifecycle{
			Status:        engine.StatusDetected,
			Priority:      engine.SeverityHigh.DefaultPriority(),
			Deadline:      &deadline,
			Notifications: datatypes.JSONSlice[engine.Notification]{},
		},
	}
}

// 裁决历史动作
const (
	HistoryAssignment   = "asignacion"
	HistoryCompensation = "compensación"
	HistoryRejection    = "rechazo"
	HistoryReversal     = "reversion"
)

// ResolutionHistoryEntry 展位裁决历史 对应表 stand_resolution_history
// 只追加不修改；Seq 为全局单调递增的排序键，撤销通过追加 ReversesSeq 指向原条目的新记录实现
type ResolutionHistoryEntry struct {
	Seq             int64     `gorm:"primaryKey;autoIncrement"         json:"seq"`
	StandConflictID string    `gorm:"type:uuid;not null;index"         json:"stand_conflict_id"`
	EventID         string    `gorm:"type:uuid;not null"               json:"event_id"`
	RequestID       *string   `gorm:"type:uuid"                        json:"request_id,omitempty"`
	CompanyID       string    `gorm:"type:uuid;not null"               json:"company_id"`
	StandBefore     *string   `gorm:"type:uuid"                        json:"stand_before,omitempty"`
	StandAfter      *string   `gorm:"type:uuid"                        json:"stand_after,omitempty"`
	StatusBefore    string    `gorm:"type:varchar(20)"                 json:"status_before"`
	StatusAfter     string    `gorm:"type:varchar(20)"                 json:"status_after"`
	Reason          string    `gorm:"type:varchar(40);not null"        json:"reason"`
	Note            string    `gorm:"type:text"                        json:"note,omitempty"`
	ActorID         string    `gorm:"type:varchar(64);not null"        json:"actor_id"`
	Reversible      bool      `gorm:"not null;default:false"           json:"reversible"`
	ReversesSeq     *int64    `gorm:"uniqueIndex:uk_history_reverses"  json:"reverses_seq,omitempty"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (ResolutionHistoryEntry) TableName() string { return "stand_resolution_history" }
