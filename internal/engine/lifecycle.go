package engine

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	pkgerrors "expo-engine/backend/pkg/errors"
)

// 冲突状态（活动冲突与展位冲突共用）
const (
	StatusDetected  = "detectado"
	StatusInReview  = "en_revision"
	StatusResolving = "en_resolucion" // 已提交处理方案，待审批
	StatusResolved  = "resuelto"
	StatusEscalated = "escalado"
	StatusIgnored   = "ignorado"
	StatusCancelled = "cancelado"
)

// IsTerminal 终态不再接受任何状态迁移
func IsTerminal(status string) bool {
	switch status {
	case StatusResolved, StatusIgnored, StatusCancelled:
		return true
	}
	return false
}

// Action 状态机操作
type Action string

const (
	ActionAssign   Action = "asignar"
	ActionResolve  Action = "resolver"
	ActionApprove  Action = "aprobar"
	ActionEscalate Action = "escalar"
	ActionIgnore   Action = "ignorar"
	ActionCancel   Action = "cancelar"
)

// ParseAction 校验并转换操作名
func ParseAction(s string) (Action, bool) {
	a := Action(strings.TrimSpace(s))
	switch a {
	case ActionAssign, ActionResolve, ActionApprove, ActionEscalate, ActionIgnore, ActionCancel:
		return a, true
	}
	return "", false
}

const (
	DefaultEscalationStep = 2
	DefaultChannel        = "sistema"
	minPriority           = 1
	maxPriority           = 10
)

// Notification 通知日志条目，由外部投递组件轮询消费
type Notification struct {
	Type      string    `json:"type"`
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
}

// Lifecycle 冲突处理生命周期字段
type Lifecycle struct {
	Status                string
	Priority              int
	IsUrgent              bool
	Deadline              *time.Time
	ReviewerID            *string
	ReviewStartedAt       *time.Time
	ResolutionAction      string
	ResolutionDescription string
	ResolvedBy            *string
	ResolvedAt            *time.Time
	ResolutionHours       *float64
	EscalatedTo           string
	EscalationReason      string
	EscalatedAt           *time.Time
	RequiresApproval      bool
	ApprovedBy            *string
	ApprovedAt            *time.Time
	Justification         string
	Notifications         []Notification
}

// IsExpired 超过处理期限且尚未终结；仅供调度方轮询判断，不会自动迁移状态
func (l Lifecycle) IsExpired(now time.Time) bool {
	if l.Deadline == nil || IsTerminal(l.Status) {
		return false
	}
	return now.After(*l.Deadline)
}

// TransitionPayload 状态迁移参数，按操作取用对应字段
type TransitionPayload struct {
	ActorID          string `json:"-"`
	ReviewerID       string `json:"reviewer_id,omitempty"`
	ResolutionAction string `json:"resolution_action,omitempty"`
	Description      string `json:"description,omitempty"`
	EscalateTo       string `json:"escalate_to,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Justification    string `json:"justification,omitempty"`
	Channel          string `json:"channel,omitempty"`
}

// Machine 冲突状态机
type Machine struct {
	EscalationStep int
	// ReviewWindow 重新指派时，已过期的处理期限顺延该时长；0 表示不顺延
	ReviewWindow time.Duration
}

// NewMachine 创建状态机；step<=0 时使用默认步长
func NewMachine(escalationStep int) Machine {
	if escalationStep <= 0 {
		escalationStep = DefaultEscalationStep
	}
	return Machine{EscalationStep: escalationStep}
}

// WithReviewWindow 设置重新指派时的期限顺延时长
func (m Machine) WithReviewWindow(d time.Duration) Machine {
	m.ReviewWindow = d
	return m
}

// Apply 执行一次状态迁移，返回新的生命周期值
// 出错时返回的 error 归类为 ErrInvalidTransition 或 ErrConstraintViolation，cur 保持不变
func (m Machine) Apply(cur Lifecycle, action Action, p TransitionPayload, now time.Time) (Lifecycle, error) {
	if IsTerminal(cur.Status) {
		return cur, invalidTransition(cur.Status, action)
	}

	next := cur
	channel := p.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	var recipient string

	switch action {
	case ActionAssign:
		if cur.Status != StatusDetected && cur.Status != StatusEscalated {
			return cur, invalidTransition(cur.Status, action)
		}
		if err := required("reviewer_id", p.ReviewerID); err != nil {
			return cur, err
		}
		reviewer := p.ReviewerID
		started := now
		next.Status = StatusInReview
		next.ReviewerID = &reviewer
		next.ReviewStartedAt = &started
		if m.ReviewWindow > 0 && cur.Deadline != nil && !now.Before(*cur.Deadline) {
			deadline := now.Add(m.ReviewWindow)
			next.Deadline = &deadline
		}
		recipient = reviewer

	case ActionResolve:
		if cur.Status != StatusInReview {
			return cur, invalidTransition(cur.Status, action)
		}
		if err := required("resolution_action", p.ResolutionAction); err != nil {
			return cur, err
		}
		if err := required("description", p.Description); err != nil {
			return cur, err
		}
		if err := required("actor_id", p.ActorID); err != nil {
			return cur, err
		}
		resolver := p.ActorID
		next.ResolutionAction = p.ResolutionAction
		next.ResolutionDescription = p.Description
		next.ResolvedBy = &resolver
		if cur.RequiresApproval {
			next.Status = StatusResolving
			recipient = "aprobacion"
		} else {
			finalize(&next, now)
			recipient = "organizador"
		}

	case ActionApprove:
		if cur.Status != StatusResolving {
			return cur, invalidTransition(cur.Status, action)
		}
		if err := required("actor_id", p.ActorID); err != nil {
			return cur, err
		}
		approver := p.ActorID
		approvedAt := now
		next.ApprovedBy = &approver
		next.ApprovedAt = &approvedAt
		finalize(&next, now)
		recipient = "organizador"

	case ActionEscalate:
		if cur.Status != StatusInReview && cur.Status != StatusResolving {
			return cur, invalidTransition(cur.Status, action)
		}
		if err := required("escalate_to", p.EscalateTo); err != nil {
			return cur, err
		}
		if err := required("reason", p.Reason); err != nil {
			return cur, err
		}
		escalatedAt := now
		next.Status = StatusEscalated
		next.IsUrgent = true
		next.Priority = m.raisePriority(cur.Priority)
		next.EscalatedTo = p.EscalateTo
		next.EscalationReason = p.Reason
		next.EscalatedAt = &escalatedAt
		recipient = p.EscalateTo

	case ActionIgnore:
		if err := required("justification", p.Justification); err != nil {
			return cur, err
		}
		resolvedAt := now
		next.Status = StatusIgnored
		next.Justification = p.Justification
		next.ResolvedAt = &resolvedAt
		if p.ActorID != "" {
			actor := p.ActorID
			next.ResolvedBy = &actor
		}
		recipient = "organizador"

	case ActionCancel:
		if err := required("reason", p.Reason); err != nil {
			return cur, err
		}
		resolvedAt := now
		next.Status = StatusCancelled
		next.Justification = p.Reason
		next.ResolvedAt = &resolvedAt
		recipient = "organizador"

	default:
		return cur, fmt.Errorf("%w: 未知操作 %q", pkgerrors.ErrInvalidTransition, action)
	}

	next.Notifications = append(slices.Clone(cur.Notifications), Notification{
		Type:      "conflicto_" + string(action),
		Recipient: recipient,
		Channel:   channel,
		Timestamp: now,
	})

	return next, nil
}

// raisePriority 数值越小越紧急，下限为 1
func (m Machine) raisePriority(current int) int {
	if current < minPriority || current > maxPriority {
		current = (minPriority + maxPriority) / 2
	}
	step := m.EscalationStep
	if step <= 0 {
		step = DefaultEscalationStep
	}
	return max(minPriority, current-step)
}

// finalize 进入 resuelto 并计算处理时长（小时，保留两位小数）
func finalize(l *Lifecycle, now time.Time) {
	resolvedAt := now
	l.Status = StatusResolved
	l.ResolvedAt = &resolvedAt

	hours := 0.0
	if l.ReviewStartedAt != nil && now.After(*l.ReviewStartedAt) {
		hours = math.Round(now.Sub(*l.ReviewStartedAt).Hours()*100) / 100
	}
	l.ResolutionHours = &hours
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: 缺少必填参数 %s", pkgerrors.ErrConstraintViolation, field)
	}
	return nil
}

func invalidTransition(status string, action Action) error {
	return fmt.Errorf("%w: 状态 %s 不允许执行 %s", pkgerrors.ErrInvalidTransition, status, action)
}

// ── 超期巡检 ──

// SweepOutcome 超期巡检对单条冲突的处理结果
type SweepOutcome int

const (
	SweepNone SweepOutcome = iota
	SweepEscalated
	SweepFlagged
)

// FlagOnlyStatuses 超期时只标记紧急、不强制升级的状态
var FlagOnlyStatuses = []string{StatusDetected, StatusEscalated}

// SweepSettled 已被巡检处理过，再次巡检不会产生变化
func (l Lifecycle) SweepSettled() bool {
	return l.IsUrgent && slices.Contains(FlagOnlyStatuses, l.Status)
}

// NotificationOverdue 超期标记的通知类型
const NotificationOverdue = "conflicto_vencido"

// SweepOverdue 处理一条超期冲突
// 审核中/裁决中的冲突强制升级到 target；待处理或已升级但尚未标记紧急的仅置紧急并追加通知
func (m Machine) SweepOverdue(cur Lifecycle, target, reason string, now time.Time) (Lifecycle, SweepOutcome, error) {
	if !cur.IsExpired(now) {
		return cur, SweepNone, nil
	}

	switch cur.Status {
	case StatusInReview, StatusResolving:
		next, err := m.Apply(cur, ActionEscalate, TransitionPayload{
			ActorID:    "system",
			EscalateTo: target,
			Reason:     reason,
		}, now)
		if err != nil {
			return cur, SweepNone, err
		}
		return next, SweepEscalated, nil
	}

	if cur.SweepSettled() {
		return cur, SweepNone, nil
	}
	recipient := target
	if cur.ReviewerID != nil {
		recipient = *cur.ReviewerID
	}
	next := cur
	next.IsUrgent = true
	next.Notifications = append(slices.Clone(cur.Notifications), Notification{
		Type:      NotificationOverdue,
		Recipient: recipient,
		Channel:   DefaultChannel,
		Timestamp: now,
	})
	return next, SweepFlagged, nil
}
