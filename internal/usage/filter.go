package usage

import (
	"github.com/packagewjx/procusage/pkg/core"
	"github.com/samber/lo"
)

// Range 闭区间时间范围，nil表示不限制
type Range struct {
	Start *int64
	End   *int64
}

func (r Range) IsZero() bool {
	return r.Start == nil && r.End == nil
}

func (r Range) Contains(record *core.UsageRecord) bool {
	if r.IsZero() {
		return true
	}
	if ts, ok := record.Timestamp.Int(); ok {
		return (r.Start == nil || ts >= *r.Start) && (r.End == nil || ts <= *r.End)
	}

	// 非整数的时间戳，如10.5
	ts, ok := record.Timestamp.Float()
	if !ok {
		return false
	}
	if r.Start != nil && ts < float64(*r.Start) {
		return false
	}
	if r.End != nil && ts > float64(*r.End) {
		return false
	}
	return true
}

// Filter 保留时间戳在范围内的记录。没有任何边界时原样返回，包括没有时间戳的记录。
func Filter(records []*core.UsageRecord, r Range) []*core.UsageRecord {
	if r.IsZero() {
		return records
	}
	return lo.Filter(records, func(record *core.UsageRecord, _ int) bool {
		return record != nil && r.Contains(record)
	})
}
