package model

import (
	"time"

	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
)

// AssignmentRequest 展位申请 对应表 assignment_requests
// 同一企业在同一展会下至多一条未删除的申请
type AssignmentRequest struct {
	RequestID        string     `gorm:"type:uuid;primaryKey"                        json:"request_id"`
	CompanyID        string     `gorm:"type:uuid;not null;uniqueIndex:uk_request_company_event,where:deleted_at IS NULL" json:"company_id"`
	EventID          string     `gorm:"type:uuid;not null;uniqueIndex:uk_request_company_event,where:deleted_at IS NULL;index" json:"event_id"`
	RequestedStandID *string    `gorm:"type:uuid;index"                             json:"requested_stand_id,omitempty"`
	AssignedStandID  *string    `gorm:"type:uuid"                                   json:"assigned_stand_id,omitempty"`
	Mode             string     `gorm:"type:varchar(20);not null;default:seleccion_directa" json:"mode"`
	Status           string     `gorm:"type:varchar(20);not null;default:solicitada" json:"status"`
	PriorityScore    float64    `gorm:"type:numeric(5,2);not null;default:0"         json:"priority_score"`
	RequestedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"          json:"requested_at"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`

	Company *Company `gorm:"foreignKey:CompanyID;references:CompanyID" json:"company,omitempty"`

	VersionedModel
}

// TableName 指定表名
func (AssignmentRequest) TableName() string { return "assignment_requests" }

// BeforeCreate 生成主键
func (r *AssignmentRequest) BeforeCreate(*gorm.DB) error {
	newID(&r.RequestID)
	r.initVersion()
	return nil
}

// ToEngine 转换为检测输入；企业名称来自预加载的 Company
func (r *AssignmentRequest) ToEngine() engine.StandRequest {
	out := engine.StandRequest{
		RequestID: r.RequestID,
		CompanyID: r.CompanyID,
		StandID:   r.RequestedStandID,
		Status:    r.Status,
		Score:     r.PriorityScore,
	}
	if r.Company != nil {
		out.CompanyName = r.Company.Name
	}
	return out
}
