package dto

import "expo-engine/backend/internal/engine"

// ── 展位冲突模块 DTO ──

// PersistStandConflictRequest 将检测候选落库
type PersistStandConflictRequest struct {
	StandID string `json:"stand_id" binding:"required"`
}

// StandConflictListRequest 展位冲突列表查询参数
type StandConflictListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=detectado en_revision en_resolucion resuelto escalado ignorado cancelado"`
	PaginationRequest
}

// RevertHistoryRequest 撤销一条裁决历史
type RevertHistoryRequest struct {
	Reason string `json:"reason" binding:"required,min=2,max=500"`
}

// ── 响应 ──

// StandCandidatesResponse 展位竞争检测结果（不落库）
type StandCandidatesResponse struct {
	EventID    string                          `json:"event_id"`
	Candidates []engine.StandConflictCandidate `json:"candidates"`
}

// StandConflictResponse 展位冲突响应
type StandConflictResponse struct {
	ID                   string                `json:"id"`
	EventID              string                `json:"event_id"`
	StandID              string                `json:"stand_id"`
	Kind                 string                `json:"kind"`
	Description          string                `json:"description"`
	Companies            []engine.CompanyClaim `json:"companies"`
	AssignedCompanyID    *string               `json:"assigned_company_id,omitempty"`
	CompensatedCompanies []string              `json:"compensated_companies"`
	LifecycleResponse
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
}

// HistoryEntryResponse 裁决历史条目
type HistoryEntryResponse struct {
	Seq             int64   `json:"seq"`
	StandConflictID string  `json:"stand_conflict_id"`
	RequestID       *string `json:"request_id,omitempty"`
	CompanyID       string  `json:"company_id"`
	StandBefore     *string `json:"stand_before,omitempty"`
	StandAfter      *string `json:"stand_after,omitempty"`
	StatusBefore    string  `json:"status_before"`
	StatusAfter     string  `json:"status_after"`
	Reason          string  `json:"reason"`
	Note            string  `json:"note,omitempty"`
	ActorID         string  `json:"actor_id"`
	Reversible      bool    `json:"reversible"`
	ReversesSeq     *int64  `json:"reverses_seq,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// PriorityScoreResponse 企业优先级评分
type PriorityScoreResponse struct {
	CompanyID      string   `json:"company_id"`
	Name           string   `json:"name"`
	Score          float64  `json:"score"`
	Participations int      `json:"participations"`
	AverageRating  *float64 `json:"average_rating,omitempty"`
	SeniorityYears int      `json:"seniority_years"`
	ComputedAt     string   `json:"computed_at"`
}

// RefreshScoresResponse 批量刷新申请评分结果
type RefreshScoresResponse struct {
	EventID string             `json:"event_id"`
	Updated int                `json:"updated"`
	Errors  []engine.ItemError `json:"errors"`
}
