package usage

import (
	"testing"

	"github.com/packagewjx/procusage/pkg/core"
	"github.com/stretchr/testify/assert"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func timestamps(records []*core.UsageRecord) []string {
	result := make([]string, len(records))
	for i, r := range records {
		if r.Timestamp != nil {
			result[i] = r.Timestamp.Value
		}
	}
	return result
}

func TestFilter(t *testing.T) {
	records := []*core.UsageRecord{
		{Timestamp: core.NewNumericTimestamp(10)},
		{Timestamp: core.NewTextTimestamp("20")},
		{Timestamp: core.NewNumericTimestamp(30)},
		{Timestamp: core.NewTextTimestamp("bad")},
	}

	assert.Equal(t, []string{"20", "30"}, timestamps(Filter(records, Range{Start: int64Ptr(15)})))
	assert.Equal(t, []string{"10", "20"}, timestamps(Filter(records, Range{End: int64Ptr(20)})))
	assert.Equal(t, []string{"20"}, timestamps(Filter(records, Range{Start: int64Ptr(15), End: int64Ptr(25)})))
	assert.Equal(t, records, Filter(records, Range{}))
}

func TestFilter_MissingTimestamp(t *testing.T) {
	name := "com.example"
	records := []*core.UsageRecord{
		{PackageName: &name},
		{Timestamp: core.NewTextTimestamp("")},
		{Timestamp: core.NewTextTimestamp(" 12 ")},
	}

	assert.Len(t, Filter(records, Range{}), 3)
	filtered := Filter(records, Range{Start: int64Ptr(0)})
	if assert.Len(t, filtered, 1) {
		assert.Equal(t, " 12 ", filtered[0].Timestamp.Value)
	}
	assert.Empty(t, Filter(records, Range{End: int64Ptr(11)}))
}

func TestRange_Contains(t *testing.T) {
	r := Range{Start: int64Ptr(10), End: int64Ptr(10)}
	assert.True(t, r.Contains(&core.UsageRecord{Timestamp: core.NewNumericTimestamp(10)}))
	assert.True(t, r.Contains(&core.UsageRecord{Timestamp: core.NewTextTimestamp("10.0")}))
	assert.False(t, r.Contains(&core.UsageRecord{Timestamp: core.NewTextTimestamp("NaN")}))
	assert.False(t, r.Contains(&core.UsageRecord{}))
}

func TestRange_ContainsLargeIntegers(t *testing.T) {
	const end = int64(1700000000000000000)
	r := Range{End: int64Ptr(end)}
	assert.True(t, r.Contains(&core.UsageRecord{Timestamp: core.NewNumericTimestamp(end)}))
	assert.False(t, r.Contains(&core.UsageRecord{Timestamp: core.NewNumericTimestamp(end + 1)}))
	assert.False(t, r.Contains(&core.UsageRecord{Timestamp: core.NewTextTimestamp("1700000000000000001")}))

	r = Range{Start: int64Ptr(end + 1)}
	assert.False(t, r.Contains(&core.UsageRecord{Timestamp: core.NewNumericTimestamp(end)}))
	assert.True(t, r.Contains(&core.UsageRecord{Timestamp: core.NewNumericTimestamp(end + 1)}))
}

func TestRange_ContainsFractional(t *testing.T) {
	r := Range{Start: int64Ptr(10), End: int64Ptr(11)}
	assert.True(t, r.Contains(&core.UsageRecord{Timestamp: core.NewTextTimestamp("10.5")}))
	assert.False(t, r.Contains(&core.UsageRecord{Timestamp: core.NewTextTimestamp("11.5")}))
	assert.False(t, r.Contains(&core.UsageRecord{Timestamp: core.NewTextTimestamp("9.99")}))
}
