package engine

import (
	"fmt"
	"sort"
	"strings"
)

// ConflictDetail 冲突的结构化明细（按冲突维度填充对应字段）
type ConflictDetail struct {
	OverlapMinutes int      `json:"overlap_minutes"`
	OverlapPercent int      `json:"overlap_percent,omitempty"`
	Location       string   `json:"location,omitempty"`
	SpeakerIDs     []string `json:"speaker_ids,omitempty"`
	ResourceIDs    []string `json:"resource_ids,omitempty"`
	CriticalIDs    []string `json:"critical_resource_ids,omitempty"`
	TrackID        string   `json:"track_id,omitempty"`
}

// DetectedConflict 一对活动在某一维度上的冲突
// ActivityAID/ActivityBID 已按规范顺序（字典序小者在前）排列
type DetectedConflict struct {
	EventID     string         `json:"event_id"`
	ActivityAID string         `json:"activity_a_id"`
	ActivityBID string         `json:"activity_b_id"`
	Kind        ConflictKind   `json:"kind"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Detail      ConflictDetail `json:"detail"`
}

// PairKey 活动对的规范键
func (c DetectedConflict) PairKey() string {
	_, _, key := CanonicalPair(c.ActivityAID, c.ActivityBID)
	return key
}

// ActiveKey 活跃冲突唯一键：活动对 + 冲突维度
func (c DetectedConflict) ActiveKey() string {
	return ActiveConflictKey(c.PairKey(), c.Kind)
}

// CanonicalPair 无序活动对的规范顺序
func CanonicalPair(a, b string) (first, second, key string) {
	if b < a {
		a, b = b, a
	}
	return a, b, a + "|" + b
}

// ActiveConflictKey 活跃冲突唯一键
func ActiveConflictKey(pairKey string, kind ConflictKind) string {
	return pairKey + "|" + string(kind)
}

// TimeOverlapSeverity 按重叠占较长活动时长的比例分级
// ≥80% critica，≥50% alta，≥20% media，其余 baja；全部为整数运算
func TimeOverlapSeverity(overlapMinutes, durationA, durationB int) Severity {
	maxDur := durationA
	if durationB > maxDur {
		maxDur = durationB
	}
	if maxDur <= 0 || overlapMinutes <= 0 {
		return SeverityLow
	}
	scaled := overlapMinutes * 100
	switch {
	case scaled >= 80*maxDur:
		return SeverityCritical
	case scaled >= 50*maxDur:
		return SeverityHigh
	case scaled >= 20*maxDur:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsDetectable 参与检测的活动：未草稿、未取消、已排定时间
func IsDetectable(a Activity) bool {
	if a.Status == ActivityDraft || a.Status == ActivityCancelled {
		return false
	}
	return a.HasTimeRange()
}

// DetectActivityConflicts 对同一活动内的全部活动做两两扫描
// 非法时间区间的活动记入 ItemError 并跳过，不影响其余活动
func DetectActivityConflicts(activities []Activity) ([]DetectedConflict, []ItemError) {
	candidates := make([]Activity, 0, len(activities))
	itemErrors := make([]ItemError, 0)

	for _, a := range activities {
		if !IsDetectable(a) {
			continue
		}
		if err := ValidateRange(*a.Start, *a.End); err != nil {
			itemErrors = append(itemErrors, ItemError{ItemID: a.ID, Reason: err.Error()})
			continue
		}
		candidates = append(candidates, a)
	}

	// 固定顺序，保证多次运行输出一致
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})

	conflicts := make([]DetectedConflict, 0)
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			conflicts = append(conflicts, DetectPair(candidates[i], candidates[j])...)
		}
	}

	return conflicts, itemErrors
}

// DetectPair 评估一对活动的全部冲突维度；各维度独立成条
// 调用方需保证两者都有合法时间区间
func DetectPair(a, b Activity) []DetectedConflict {
	if b.ID < a.ID {
		a, b = b, a
	}

	if !Overlaps(*a.Start, *a.End, *b.Start, *b.End) {
		// 其余维度都以时间重叠为前提
		return nil
	}
	// 不足一分钟的重叠记为 0 分钟，严重度落到 baja
	overlap := OverlapMinutes(*a.Start, *a.End, *b.Start, *b.End)

	durA := TimeRange{Start: *a.Start, End: *a.End}.Minutes()
	durB := TimeRange{Start: *b.Start, End: *b.End}.Minutes()
	maxDur := durA
	if durB > maxDur {
		maxDur = durB
	}

	base := DetectedConflict{
		EventID:     a.EventID,
		ActivityAID: a.ID,
		ActivityBID: b.ID,
	}
	result := make([]DetectedConflict, 0, 2)

	// 时间重叠
	timeConflict := base
	timeConflict.Kind = KindTime
	timeConflict.Severity = TimeOverlapSeverity(overlap, durA, durB)
	timeConflict.Detail = ConflictDetail{OverlapMinutes: overlap}
	if maxDur > 0 {
		timeConflict.Detail.OverlapPercent = overlap * 100 / maxDur
	}
	timeConflict.Description = fmt.Sprintf("活动时间重叠 %d 分钟（占较长活动的 %d%%）", overlap, timeConflict.Detail.OverlapPercent)
	result = append(result, timeConflict)

	// 同一场地：双方都需线下场地且地点一致（忽略大小写与首尾空白）
	if a.Modality.IsPhysical() && b.Modality.IsPhysical() && sameLocation(a.Location, b.Location) {
		c := base
		c.Kind = KindLocation
		c.Severity = SeverityHigh
		c.Detail = ConflictDetail{OverlapMinutes: overlap, Location: strings.TrimSpace(*a.Location)}
		c.Description = fmt.Sprintf("同一场地 %q 同时段被两个活动占用", c.Detail.Location)
		result = append(result, c)
	}

	// 同一讲者
	if shared := sharedSpeakers(a.Speakers, b.Speakers); len(shared) > 0 {
		c := base
		c.Kind = KindSpeaker
		c.Severity = SeverityHigh
		c.Detail = ConflictDetail{OverlapMinutes: overlap, SpeakerIDs: shared}
		c.Description = fmt.Sprintf("讲者 %s 同时段被安排在两个活动", strings.Join(shared, ", "))
		result = append(result, c)
	}

	// 同一资源
	if shared, critical := sharedResources(a.Resources, b.Resources); len(shared) > 0 {
		c := base
		c.Kind = KindResource
		c.Severity = SeverityMedium
		if len(critical) > 0 {
			c.Severity = SeverityCritical
		}
		c.Detail = ConflictDetail{OverlapMinutes: overlap, ResourceIDs: shared, CriticalIDs: critical}
		c.Description = fmt.Sprintf("资源 %s 同时段被重复占用", strings.Join(shared, ", "))
		result = append(result, c)
	}

	// 同一分会场
	if a.TrackID != nil && b.TrackID != nil && *a.TrackID == *b.TrackID {
		c := base
		c.Kind = KindTrack
		c.Severity = SeverityMedium
		c.Detail = ConflictDetail{OverlapMinutes: overlap, TrackID: *a.TrackID}
		c.Description = fmt.Sprintf("分会场 %s 内两个活动时间重叠", *a.TrackID)
		result = append(result, c)
	}

	return result
}

func sameLocation(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	la := strings.TrimSpace(*a)
	lb := strings.TrimSpace(*b)
	if la == "" || lb == "" {
		return false
	}
	return strings.EqualFold(la, lb)
}

func sharedSpeakers(a, b []SpeakerRef) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s.SpeakerID] = true
	}
	shared := make([]string, 0)
	added := make(map[string]bool)
	for _, s := range b {
		if seen[s.SpeakerID] && !added[s.SpeakerID] {
			shared = append(shared, s.SpeakerID)
			added[s.SpeakerID] = true
		}
	}
	sort.Strings(shared)
	return shared
}

// sharedResources 返回共享资源 ID 以及其中被任一方标记为关键的资源
func sharedResources(a, b []ResourceRef) (shared []string, critical []string) {
	byID := make(map[string]ResourceRef, len(a))
	for _, r := range a {
		byID[r.ResourceID] = r
	}
	added := make(map[string]bool)
	for _, r := range b {
		other, ok := byID[r.ResourceID]
		if !ok || added[r.ResourceID] {
			continue
		}
		added[r.ResourceID] = true
		shared = append(shared, r.ResourceID)
		if r.IsCritical() || other.IsCritical() {
			critical = append(critical, r.ResourceID)
		}
	}
	sort.Strings(shared)
	sort.Strings(critical)
	return shared, critical
}
