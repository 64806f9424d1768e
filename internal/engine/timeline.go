package engine

import (
	"fmt"
	"time"

	pkgerrors "expo-engine/backend/pkg/errors"
)

// TimeRange 左闭右开时间区间 [Start, End)
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps 判断两个左闭右开区间是否重叠，首尾相接不算重叠
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// OverlapMinutes 重叠分钟数：max(0, min(aEnd,bEnd) - max(aStart,bStart))
// 不足一分钟的部分向下取整
func OverlapMinutes(aStart, aEnd, bStart, bEnd time.Time) int {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !start.Before(end) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// ValidateRange 校验区间结束时间晚于开始时间
func ValidateRange(start, end time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("%w: 结束时间 %s 必须晚于开始时间 %s",
			pkgerrors.ErrComputation, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// Overlaps 区间版本
func (r TimeRange) Overlaps(o TimeRange) bool {
	return Overlaps(r.Start, r.End, o.Start, o.End)
}

// Minutes 区间长度（分钟）
func (r TimeRange) Minutes() int {
	if !r.Start.Before(r.End) {
		return 0
	}
	return int(r.End.Sub(r.Start) / time.Minute)
}
