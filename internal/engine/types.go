// Package engine 冲突检测与分配裁决引擎的纯计算部分。
//
// 本包不依赖存储：输入为普通数据记录，输出为检测结果或新的状态值，
// 持久化、去重落库与并发控制由 service/repository 层负责。
package engine

import "time"

// ItemError 单条记录的处理错误
// 一条记录失败不会中断整个检测/排程，错误与成功结果一并返回
type ItemError struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// ── 活动 ──

// Modality 活动形式
type Modality string

const (
	ModalityInPerson Modality = "presencial"
	ModalityVirtual  Modality = "virtual"
	ModalityHybrid   Modality = "hibrido"
)

// IsPhysical 是否需要线下场地
func (m Modality) IsPhysical() bool {
	return m == ModalityInPerson || m == ModalityHybrid
}

// 活动状态
const (
	ActivityDraft      = "draft"
	ActivityScheduled  = "scheduled"
	ActivityConfirmed  = "confirmed"
	ActivityInProgress = "in_progress"
	ActivityCompleted  = "completed"
	ActivityCancelled  = "cancelled"
)

// SpeakerRef 活动讲者
type SpeakerRef struct {
	SpeakerID string `json:"speaker_id"`
	Role      string `json:"role"`
}

// ResourceRef 活动占用的资源；Critical 为 nil 视为非关键资源
type ResourceRef struct {
	ResourceID string `json:"resource_id"`
	Critical   *bool  `json:"critical,omitempty"`
}

// IsCritical 未定义的关键标记按非关键处理
func (r ResourceRef) IsCritical() bool {
	return r.Critical != nil && *r.Critical
}

// Activity 引擎视角的活动记录
type Activity struct {
	ID              string        `json:"id"`
	EventID         string        `json:"event_id"`
	Type            string        `json:"type"`
	Status          string        `json:"status"`
	Start           *time.Time    `json:"start,omitempty"`
	End             *time.Time    `json:"end,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	Location        *string       `json:"location,omitempty"`
	Modality        Modality      `json:"modality"`
	TrackID         *string       `json:"track_id,omitempty"`
	Speakers        []SpeakerRef  `json:"speakers,omitempty"`
	Resources       []ResourceRef `json:"resources,omitempty"`
	Participants    int           `json:"participants"`
}

// HasTimeRange 是否已排定时间
func (a Activity) HasTimeRange() bool {
	return a.Start != nil && a.End != nil
}

// RequiredMinutes 排程所需时长：已排定的取区间长度，否则取声明时长
func (a Activity) RequiredMinutes() int {
	if a.HasTimeRange() {
		return TimeRange{Start: *a.Start, End: *a.End}.Minutes()
	}
	return a.DurationMinutes
}

// ── 冲突 ──

// ConflictKind 活动冲突维度
type ConflictKind string

const (
	KindTime     ConflictKind = "horario"
	KindLocation ConflictKind = "ubicacion"
	KindSpeaker  ConflictKind = "ponente"
	KindResource ConflictKind = "recurso"
	KindTrack    ConflictKind = "track"
)

// Severity 冲突严重程度
type Severity string

const (
	SeverityLow      Severity = "baja"
	SeverityMedium   Severity = "media"
	SeverityHigh     Severity = "alta"
	SeverityCritical Severity = "critica"
)

// Rank 严重程度序号，越大越严重
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// DefaultPriority 按严重程度给出初始优先级（1 最高，10 最低）
func (s Severity) DefaultPriority() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 6
	default:
		return 8
	}
}

// 检测方式
const (
	DetectionAutomatic = "automatico"
	DetectionManual    = "manual"
	DetectionReported  = "reportado"
)
