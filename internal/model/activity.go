package model

import (
	"time"

	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
)

// Activity 展会活动 对应表 activities
type Activity struct {
	ActivityID      string     `gorm:"type:uuid;primaryKey"                       json:"activity_id"`
	EventID         string     `gorm:"type:uuid;not null;index"                   json:"event_id"`
	Title           string     `gorm:"type:varchar(200);not null"                 json:"title"`
	ActivityType    string     `gorm:"type:varchar(20);not null;default:other"    json:"activity_type"`
	Status          string     `gorm:"type:varchar(20);not null;default:draft"    json:"status"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `gorm:"not null;default:0"                         json:"duration_minutes"`
	Location        *string    `gorm:"type:varchar(200)"                          json:"location,omitempty"`
	Modality        string     `gorm:"type:varchar(20);not null;default:presencial" json:"modality"`
	TrackID         *string    `gorm:"type:varchar(64)"                           json:"track_id,omitempty"`
	Participants    int        `gorm:"column:registered_participants;not null;default:0" json:"registered_participants"`

	Speakers  []ActivitySpeaker  `gorm:"foreignKey:ActivityID;references:ActivityID" json:"speakers,omitempty"`
	Resources []ActivityResource `gorm:"foreignKey:ActivityID;references:ActivityID" json:"resources,omitempty"`

	VersionedModel
}

// TableName 指定表名
func (Activity) TableName() string { return "activities" }

// BeforeCreate 生成主键
func (a *Activity) BeforeCreate(*gorm.DB) error {
	newID(&a.ActivityID)
	a.initVersion()
	return nil
}

// ToEngine 转换为引擎输入（讲者按 position 顺序）
func (a *Activity) ToEngine() engine.Activity {
	out := engine.Activity{
		ID:              a.ActivityID,
		EventID:         a.EventID,
		Type:            a.ActivityType,
		Status:          a.Status,
		Start:           a.StartTime,
		End:             a.EndTime,
		DurationMinutes: a.DurationMinutes,
		Location:        a.Location,
		Modality:        engine.Modality(a.Modality),
		TrackID:         a.TrackID,
		Participants:    a.Participants,
	}
	for _, s := range a.Speakers {
		out.Speakers = append(out.Speakers, engine.SpeakerRef{SpeakerID: s.SpeakerID, Role: s.Role})
	}
	for _, r := range a.Resources {
		out.Resources = append(out.Resources, engine.ResourceRef{ResourceID: r.ResourceID, Critical: r.IsCritical})
	}
	return out
}

// ActivitySpeaker 活动讲者 对应表 activity_speakers
type ActivitySpeaker struct {
	ActivityID string `gorm:"type:uuid;primaryKey"        json:"activity_id"`
	SpeakerID  string `gorm:"type:varchar(64);primaryKey" json:"speaker_id"`
	Role       string `gorm:"type:varchar(40)"            json:"role,omitempty"`
	Position   int    `gorm:"not null;default:0"          json:"position"`
}

// TableName 指定表名
func (ActivitySpeaker) TableName() string { return "activity_speakers" }

// ActivityResource 活动占用资源 对应表 activity_resources
type ActivityResource struct {
	ActivityID string `gorm:"type:uuid;primaryKey"        json:"activity_id"`
	ResourceID string `gorm:"type:varchar(64);primaryKey" json:"resource_id"`
	IsCritical *bool  `json:"is_critical,omitempty"`
}

// TableName 指定表名
func (ActivityResource) TableName() string { return "activity_resources" }
