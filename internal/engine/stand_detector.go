package engine

import (
	"fmt"
	"sort"

	pkgerrors "expo-engine/backend/pkg/errors"
)

// 展位申请状态
const (
	RequestRequested = "solicitada"
	RequestInReview  = "en_revision"
	RequestApproved  = "aprobada"
	RequestRejected  = "rechazada"
	RequestAssigned  = "asignada"
	RequestCancelled = "cancelada"
)

// 申请方式
const (
	ModeDirectPick = "seleccion_directa"
	ModeManual     = "manual"
	ModeAutomatic  = "automatica"
)

// 展位冲突类型
const (
	StandKindMultipleRequests = "multiples_solicitudes"
	StandKindOverbooking      = "sobreventa"
	StandKindIncompatibility  = "incompatibilidad"
	StandKindScheduleClash    = "horario"
	StandKindOther            = "otro"
)

// StandRequest 展位申请（检测输入），Score 由调用方按 PriorityScore 预先计算
type StandRequest struct {
	RequestID   string  `json:"request_id"`
	CompanyID   string  `json:"company_id"`
	CompanyName string  `json:"company_name"`
	StandID     *string `json:"stand_id,omitempty"`
	Status      string  `json:"status"`
	Score       float64 `json:"score"`
}

// CompanyClaim 冲突中的竞争企业
type CompanyClaim struct {
	CompanyID     string  `json:"company_id"`
	Name          string  `json:"name"`
	PriorityScore float64 `json:"priority_score"`
	RequestID     string  `json:"request_id"`
}

// StandConflictCandidate 展位竞争候选（检测器不落库）
type StandConflictCandidate struct {
	EventID     string         `json:"event_id"`
	StandID     string         `json:"stand_id"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	Companies   []CompanyClaim `json:"companies"`
}

// IsCompetingRequest 参与竞争检测的申请状态
func IsCompetingRequest(status string) bool {
	switch status {
	case RequestRequested, RequestInReview, RequestApproved:
		return true
	}
	return false
}

// DetectStandConflicts 按申请的具体展位分组，同一展位多于一家企业即为冲突
// 未指定展位的申请属于自动分配模式，不在本检测范围内
func DetectStandConflicts(eventID string, requests []StandRequest) []StandConflictCandidate {
	groups := make(map[string][]StandRequest)
	for _, r := range requests {
		if r.StandID == nil || *r.StandID == "" || !IsCompetingRequest(r.Status) {
			continue
		}
		groups[*r.StandID] = append(groups[*r.StandID], r)
	}

	standIDs := make([]string, 0, len(groups))
	for standID, members := range groups {
		if len(members) > 1 {
			standIDs = append(standIDs, standID)
		}
	}
	sort.Strings(standIDs)

	candidates := make([]StandConflictCandidate, 0, len(standIDs))
	for _, standID := range standIDs {
		members := groups[standID]
		claims := make([]CompanyClaim, 0, len(members))
		for _, m := range members {
			claims = append(claims, CompanyClaim{
				CompanyID:     m.CompanyID,
				Name:          m.CompanyName,
				PriorityScore: m.Score,
				RequestID:     m.RequestID,
			})
		}
		SortClaims(claims)

		candidates = append(candidates, StandConflictCandidate{
			EventID:     eventID,
			StandID:     standID,
			Kind:        StandKindMultipleRequests,
			Description: fmt.Sprintf("展位 %s 被 %d 家企业同时申请", standID, len(claims)),
			Companies:   claims,
		})
	}
	return candidates
}

// SortClaims 评分降序，同分按企业 ID 升序
func SortClaims(claims []CompanyClaim) {
	sort.SliceStable(claims, func(i, j int) bool {
		if claims[i].PriorityScore != claims[j].PriorityScore {
			return claims[i].PriorityScore > claims[j].PriorityScore
		}
		return claims[i].CompanyID < claims[j].CompanyID
	})
}

// ValidateStandResolution 获胜企业必须在竞争列表中；补偿企业不得包含获胜企业且必须在列表中
func ValidateStandResolution(claims []CompanyClaim, assignedCompanyID string, compensated []string) error {
	if assignedCompanyID == "" {
		return fmt.Errorf("%w: 必须指定获胜企业", pkgerrors.ErrConstraintViolation)
	}
	members := make(map[string]bool, len(claims))
	for _, c := range claims {
		members[c.CompanyID] = true
	}
	if !members[assignedCompanyID] {
		return fmt.Errorf("%w: 企业 %s 不在冲突企业列表中", pkgerrors.ErrConstraintViolation, assignedCompanyID)
	}
	for _, id := range compensated {
		if id == assignedCompanyID {
			return fmt.Errorf("%w: 获胜企业 %s 不能同时列为补偿企业", pkgerrors.ErrConstraintViolation, id)
		}
		if !members[id] {
			return fmt.Errorf("%w: 补偿企业 %s 不在冲突企业列表中", pkgerrors.ErrConstraintViolation, id)
		}
	}
	return nil
}
