package dto

import "expo-engine/backend/internal/engine"

// ── 冲突模块 DTO ──

// ConflictListRequest 活动冲突列表查询参数
type ConflictListRequest struct {
	Status   string `form:"status"   binding:"omitempty,oneof=detectado en_revision en_resolucion resuelto escalado ignorado cancelado"`
	Kind     string `form:"kind"     binding:"omitempty,oneof=horario ubicacion ponente recurso track"`
	Severity string `form:"severity" binding:"omitempty,oneof=baja media alta critica"`
	PaginationRequest
}

// TransitionRequest 状态迁移请求（活动冲突与展位冲突共用）
// AssignedCompanyID / CompensatedCompanyIDs 仅用于展位冲突的 resolver 操作
type TransitionRequest struct {
	Action                string   `json:"action"                  binding:"required,oneof=asignar resolver aprobar escalar ignorar cancelar"`
	ReviewerID            string   `json:"reviewer_id"             binding:"omitempty,max=64"`
	ResolutionAction      string   `json:"resolution_action"       binding:"omitempty,max=100"`
	Description           string   `json:"description"             binding:"omitempty,max=2000"`
	EscalateTo            string   `json:"escalate_to"             binding:"omitempty,max=100"`
	Reason                string   `json:"reason"                  binding:"omitempty,max=2000"`
	Justification         string   `json:"justification"           binding:"omitempty,max=2000"`
	Channel               string   `json:"channel"                 binding:"omitempty,oneof=sistema email sms"`
	AssignedCompanyID     string   `json:"assigned_company_id"     binding:"omitempty"`
	CompensatedCompanyIDs []string `json:"compensated_company_ids" binding:"omitempty,dive,required"`
}

// Payload 转换为状态机参数
func (r *TransitionRequest) Payload(actorID string) engine.TransitionPayload {
	return engine.TransitionPayload{
		ActorID:          actorID,
		ReviewerID:       r.ReviewerID,
		ResolutionAction: r.ResolutionAction,
		Description:      r.Description,
		EscalateTo:       r.EscalateTo,
		Reason:           r.Reason,
		Justification:    r.Justification,
		Channel:          r.Channel,
	}
}

// ── 响应 ──

// LifecycleResponse 生命周期字段
type LifecycleResponse struct {
	Status                string                `json:"status"`
	Priority              int                   `json:"priority"`
	IsUrgent              bool                  `json:"is_urgent"`
	IsExpired             bool                  `json:"is_expired"`
	Deadline              *string               `json:"deadline,omitempty"`
	ReviewerID            *string               `json:"reviewer_id,omitempty"`
	ReviewStartedAt       *string               `json:"review_started_at,omitempty"`
	ResolutionAction      string                `json:"resolution_action,omitempty"`
	ResolutionDescription string                `json:"resolution_description,omitempty"`
	ResolvedBy            *string               `json:"resolved_by,omitempty"`
	ResolvedAt            *string               `json:"resolved_at,omitempty"`
	ResolutionHours       *float64              `json:"resolution_hours,omitempty"`
	EscalatedTo           string                `json:"escalated_to,omitempty"`
	EscalationReason      string                `json:"escalation_reason,omitempty"`
	RequiresApproval      bool                  `json:"requires_approval"`
	ApprovedBy            *string               `json:"approved_by,omitempty"`
	Justification         string                `json:"justification,omitempty"`
	Notifications         []engine.Notification `json:"notifications"`
}

// ConflictResponse 活动冲突响应
type ConflictResponse struct {
	ID              string                `json:"id"`
	EventID         string                `json:"event_id"`
	ActivityAID     string                `json:"activity_a_id"`
	ActivityBID     string                `json:"activity_b_id"`
	Kind            string                `json:"kind"`
	Severity        string                `json:"severity"`
	Description     string                `json:"description"`
	Detail          engine.ConflictDetail `json:"detail"`
	DetectionMethod string                `json:"detection_method"`
	LifecycleResponse
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
}

// DetectionResponse 一次检测运行的结果
// TotalFound 为本次检测到的冲突总数，NewlyCreated 为新落库的条数
type DetectionResponse struct {
	EventID      string             `json:"event_id"`
	TotalFound   int                `json:"total_found"`
	NewlyCreated int                `json:"newly_created"`
	Records      []ConflictResponse `json:"records"`
	Errors       []engine.ItemError `json:"errors"`
}

// ConflictSummaryResponse 展会冲突汇总
type ConflictSummaryResponse struct {
	EventID    string           `json:"event_id"`
	Total      int64            `json:"total"`
	Active     int64            `json:"active"`
	ByKind     map[string]int64 `json:"by_kind"`
	BySeverity map[string]int64 `json:"by_severity"`
	ByStatus   map[string]int64 `json:"by_status"`
}

// SweepResponse 过期冲突巡检结果
type SweepResponse struct {
	Escalated int                `json:"escalated"`
	Flagged   int                `json:"flagged"`
	Errors    []engine.ItemError `json:"errors"`
}
