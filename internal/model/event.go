package model

import (
	"time"

	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
)

// Event 展会 对应表 events
type Event struct {
	EventID  string     `gorm:"type:uuid;primaryKey"                json:"event_id"`
	Name     string     `gorm:"type:varchar(200);not null"          json:"name"`
	StartsOn *time.Time `gorm:"type:date"                           json:"starts_on,omitempty"`
	EndsOn   *time.Time `gorm:"type:date"                           json:"ends_on,omitempty"`
	Status   string     `gorm:"type:varchar(20);not null;default:planificacion" json:"status"`
	SoftDeleteModel
}

// TableName 指定表名
func (Event) TableName() string { return "events" }

// BeforeCreate 生成主键
func (e *Event) BeforeCreate(*gorm.DB) error {
	newID(&e.EventID)
	return nil
}

// Stand 展位 对应表 stands
type Stand struct {
	StandID string `gorm:"type:uuid;primaryKey"                json:"stand_id"`
	EventID string `gorm:"type:uuid;not null;index"            json:"event_id"`
	Code    string `gorm:"type:varchar(40);not null"           json:"code"`
	Status  string `gorm:"type:varchar(20);not null;default:disponible" json:"status"`
	SoftDeleteModel
}

// 展位状态
const (
	StandAvailable = "disponible"
	StandAssigned  = "asignado"
)

// TableName 指定表名
func (Stand) TableName() string { return "stands" }

// BeforeCreate 生成主键
func (s *Stand) BeforeCreate(*gorm.DB) error {
	newID(&s.StandID)
	return nil
}

// Company 参展企业 对应表 companies
type Company struct {
	CompanyID          string     `gorm:"type:uuid;primaryKey"        json:"company_id"`
	Name               string     `gorm:"type:varchar(200);not null"  json:"name"`
	Participations     int        `gorm:"not null;default:0"          json:"participations"`
	AverageRating      *float64   `gorm:"type:numeric(3,2)"           json:"average_rating,omitempty"`
	FirstParticipation *time.Time `gorm:"column:first_participation_at" json:"first_participation_at,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (Company) TableName() string { return "companies" }

// BeforeCreate 生成主键
func (c *Company) BeforeCreate(*gorm.DB) error {
	newID(&c.CompanyID)
	return nil
}

// History 评分输入；未记录首次参展时间时以建档时间代替
func (c *Company) History() engine.CompanyHistory {
	first := c.FirstParticipation
	if first == nil && !c.CreatedAt.IsZero() {
		created := c.CreatedAt
		first = &created
	}
	return engine.CompanyHistory{
		Participations:     c.Participations,
		AverageRating:      c.AverageRating,
		FirstParticipation: first,
	}
}
