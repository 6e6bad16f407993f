package usage

import (
	"fmt"

	"github.com/packagewjx/procusage/internal/source"
	"github.com/packagewjx/procusage/pkg/core"
	"github.com/samber/lo"
)

// 源表中已知的列名
const (
	ColumnPackageName = "PackageName"
	ColumnPids        = "Pids"
	ColumnMetrics     = "Metrics"
	ColumnByteSize    = "ByteSize"
	ColumnTimestamp   = "Timestamp"
)

const (
	LayoutAuto    = "auto"
	LayoutGeneric = "generic"
	LayoutPacked  = "packed"
)

// Layout 一种源表结构。Plan决定查询哪些列，Convert将查询出的一行转换为UsageRecord。
type Layout interface {
	Name() string
	// 根据表中存在的列生成SELECT表达式。返回空表示本表不产生数据。
	Plan(columns []string) []string
	Convert(row source.Row) (*core.UsageRecord, error)
}

type genericColumn struct {
	column string
	alias  string
	// 为false的列只跟随其他列一起查询，单独存在时不让表产生记录
	known  bool
	assign func(r *core.UsageRecord, v interface{})
}

// 通用列布局的已知列，按此顺序投影
var genericColumns = []genericColumn{
	{column: ColumnPackageName, alias: "package_name", known: true, assign: func(r *core.UsageRecord, v interface{}) {
		r.PackageName = stringPtr(stringify(v))
	}},
	{column: ColumnPids, alias: "pids", known: true, assign: func(r *core.UsageRecord, v interface{}) {
		r.Pids = stringPtr(stringify(v))
	}},
	{column: ColumnMetrics, alias: "metrics", known: true, assign: func(r *core.UsageRecord, v interface{}) {
		r.Metrics = stringPtr(stringify(v))
	}},
	{column: ColumnByteSize, alias: "byte_size", known: true, assign: func(r *core.UsageRecord, v interface{}) {
		r.ByteSize = toNumber(v)
	}},
	{column: ColumnTimestamp, alias: "timestamp", assign: func(r *core.UsageRecord, v interface{}) {
		r.Timestamp = toTimestamp(v)
	}},
}

type genericLayout struct{}

// GenericLayout 只投影表中实际存在的已知列
func GenericLayout() Layout {
	return genericLayout{}
}

func (genericLayout) Name() string {
	return LayoutGeneric
}

func (genericLayout) Plan(columns []string) []string {
	present := lo.Filter(genericColumns, func(c genericColumn, _ int) bool {
		return lo.Contains(columns, c.column)
	})
	if !lo.SomeBy(present, func(c genericColumn) bool { return c.known }) {
		return nil
	}
	return lo.Map(present, func(c genericColumn, _ int) string {
		return fmt.Sprintf("%s AS %s", source.QuoteIdent(c.column), c.alias)
	})
}

func (genericLayout) Convert(row source.Row) (*core.UsageRecord, error) {
	record := &core.UsageRecord{}
	for _, c := range genericColumns {
		v, ok := row[c.alias]
		if !ok {
			continue
		}
		c.assign(record, v)
	}
	return record, nil
}

type packedLayout struct {
	delimiter string
}

// PackedLayout 固定查询行号、包名、进程号与打包指标四列，并拆分打包指标
func PackedLayout(delimiter string) Layout {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return packedLayout{delimiter: delimiter}
}

func (packedLayout) Name() string {
	return LayoutPacked
}

func (packedLayout) Plan([]string) []string {
	return []string{
		"rowid AS uid",
		fmt.Sprintf("%s AS package_name", source.QuoteIdent(ColumnPackageName)),
		fmt.Sprintf("%s AS pids", source.QuoteIdent(ColumnPids)),
		fmt.Sprintf("%s AS metrics", source.QuoteIdent(ColumnMetrics)),
	}
}

func (l packedLayout) Convert(row source.Row) (*core.UsageRecord, error) {
	packed, ok := row["metrics"]
	if !ok {
		return nil, fmt.Errorf("结果中缺少metrics列")
	}

	record := &core.UsageRecord{
		PackageName: stringPtr(stringify(row["package_name"])),
		Pids:        stringPtr(stringify(row["pids"])),
	}
	if uid, ok := row["uid"].(int64); ok {
		record.UID = &uid
	}

	m := ParsePackedMetrics(stringify(packed), l.delimiter)
	record.Timestamp = core.NewTextTimestamp(m.Timestamp)
	record.UsageTime = stringPtr(m.UsageTime)
	record.DeltaCpuTime = stringPtr(m.DeltaCpuTime)
	record.CpuUsage = stringPtr(m.CpuUsage)
	record.RxData = stringPtr(m.RxData)
	record.TxData = stringPtr(m.TxData)
	return record, nil
}

// DetectLayout 只根据表中的列选择布局，不读取数据。
// 同时含有PackageName、Pids、Metrics且不含ByteSize与Timestamp的表使用打包指标布局，其余使用通用列布局。
// 打包字段不完整的行由PackedLayout按行降级为空的子字段。
func DetectLayout(columns []string, delimiter string) Layout {
	if lo.Contains(columns, ColumnByteSize) || lo.Contains(columns, ColumnTimestamp) {
		return GenericLayout()
	}
	if !lo.Every(columns, []string{ColumnPackageName, ColumnPids, ColumnMetrics}) {
		return GenericLayout()
	}
	return PackedLayout(delimiter)
}
