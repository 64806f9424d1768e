package engine

import "time"

// 优先级评分各项上限
const (
	maxParticipationPoints = 25
	maxSeniorityPoints     = 20
	maxRating              = 5
	maxScore               = 100
)

// CompanyHistory 企业参展历史（评分输入）
type CompanyHistory struct {
	Participations     int        `json:"participations"`
	AverageRating      *float64   `json:"average_rating,omitempty"`
	FirstParticipation *time.Time `json:"first_participation,omitempty"`
}

// PriorityScore 企业申请优先级评分，结果在 [0,100]
//
//	score = min(25, 参展次数*5) + 平均评分*10 + min(20, 首次参展至今年数*2)
//
// 仅作为人工裁决和自动排程的参考信号，引擎不会据此自动分配展位。
func PriorityScore(h CompanyHistory, now time.Time) float64 {
	participations := h.Participations
	if participations < 0 {
		participations = 0
	}
	score := float64(min(maxParticipationPoints, participations*5))

	if h.AverageRating != nil {
		rating := *h.AverageRating
		if rating < 0 {
			rating = 0
		}
		if rating > maxRating {
			rating = maxRating
		}
		score += rating * 10
	}

	if h.FirstParticipation != nil {
		score += float64(min(maxSeniorityPoints, WholeYearsBetween(*h.FirstParticipation, now)*2))
	}

	if score > maxScore {
		score = maxScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

// WholeYearsBetween 两个时间点之间的整年数（未满一年不计），from 晚于 to 时为 0
func WholeYearsBetween(from, to time.Time) int {
	if !from.Before(to) {
		return 0
	}
	years := to.Year() - from.Year()
	anniversary := from.AddDate(years, 0, 0)
	if anniversary.After(to) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
