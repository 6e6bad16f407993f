package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/packagewjx/procusage/internal/source"
	"github.com/packagewjx/procusage/pkg/core"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// DefaultTables 期望的表名，按优先级排列。先出现的表的记录排在前面。
var DefaultTables = []string{"processes1", "processes2", "processes3"}

type OpenFunc func(ctx context.Context, path string, log logrus.FieldLogger) (source.Source, error)

type Options struct {
	Tables    []string
	Delimiter string
	// auto、generic或packed
	Layout string
	// 针对单个表指定布局，优先于Layout
	TableLayouts map[string]string
}

func (o *Options) Complete() error {
	if len(o.Tables) == 0 {
		o.Tables = DefaultTables
	}
	if o.Delimiter == "" {
		o.Delimiter = DefaultDelimiter
	}
	if o.Layout == "" {
		o.Layout = LayoutAuto
	}
	if !validLayout(o.Layout) {
		return fmt.Errorf("未知的布局%s", o.Layout)
	}
	for table, layout := range o.TableLayouts {
		if !validLayout(layout) {
			return fmt.Errorf("表%s的布局%s未知", table, layout)
		}
	}
	return nil
}

func validLayout(layout string) bool {
	return layout == LayoutAuto || layout == LayoutGeneric || layout == LayoutPacked
}

// RowSkip 被跳过的行及原因
type RowSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// TableResult 单个表的处理结果。Err不为空时本表没有贡献任何记录。
type TableResult struct {
	Table   string              `json:"table"`
	Layout  string              `json:"layout,omitempty"`
	Records []*core.UsageRecord `json:"-"`
	Skipped []RowSkip           `json:"skipped,omitempty"`
	Err     error               `json:"-"`
}

func (t *TableResult) MarshalJSON() ([]byte, error) {
	type alias TableResult
	var message string
	if t.Err != nil {
		message = t.Err.Error()
	}
	return json.Marshal(&struct {
		*alias
		Count int    `json:"count"`
		Error string `json:"error,omitempty"`
	}{alias: (*alias)(t), Count: len(t.Records), Error: message})
}

// Report 一次规范化的全部结果
type Report struct {
	Path   string         `json:"path"`
	Tables []*TableResult `json:"tables"`
	// 数据源本身无法读取时的错误
	Err error `json:"-"`
}

// Records 按表的优先级拼接所有表的记录
func (r *Report) Records() []*core.UsageRecord {
	result := make([]*core.UsageRecord, 0)
	for _, t := range r.Tables {
		result = append(result, t.Records...)
	}
	return result
}

type Normalizer struct {
	opts   Options
	open   OpenFunc
	logger logrus.FieldLogger
}

func NewNormalizer(opts Options, logger logrus.FieldLogger) (*Normalizer, error) {
	if err := opts.Complete(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Normalizer{
		opts:   opts,
		open:   source.Open,
		logger: logger.WithField("component", "normalizer"),
	}, nil
}

// Normalize 读取path处的数据库，返回所有期望表中的记录。数据源不存在或不可读时返回空切片。
func (n *Normalizer) Normalize(ctx context.Context, path string) []*core.UsageRecord {
	return n.NormalizeWithReport(ctx, path).Records()
}

func (n *Normalizer) NormalizeWithReport(ctx context.Context, path string) *Report {
	report := &Report{Path: path, Tables: make([]*TableResult, 0)}
	if path == "" {
		report.Err = fmt.Errorf("没有数据源")
		return report
	}

	src, err := n.open(ctx, path, n.logger)
	if err != nil {
		n.logger.WithError(err).Warnf("无法打开数据源%s", path)
		report.Err = err
		return report
	}
	defer func() {
		if err := src.Close(); err != nil {
			n.logger.WithError(err).Warnf("关闭数据源%s出错", path)
		}
	}()

	available, err := src.Tables()
	if err != nil {
		n.logger.WithError(err).Warnf("读取数据源%s的表出错", path)
		report.Err = err
		return report
	}
	n.logger.Debugf("可用的表：%v", available)

	tables := lo.Filter(n.opts.Tables, func(t string, _ int) bool {
		return lo.Contains(available, t)
	})
	for _, table := range tables {
		result := n.normalizeTable(src, table)
		if result.Err != nil {
			n.logger.WithError(result.Err).Warnf("跳过表%s", table)
		}
		for _, skip := range result.Skipped {
			n.logger.Warnf("跳过表%s的第%d行：%s", table, skip.Index, skip.Reason)
		}
		report.Tables = append(report.Tables, result)
	}

	return report
}

func (n *Normalizer) layoutFor(table string, columns []string) Layout {
	name := n.opts.Layout
	if l, ok := n.opts.TableLayouts[table]; ok {
		name = l
	}
	switch name {
	case LayoutGeneric:
		return GenericLayout()
	case LayoutPacked:
		return PackedLayout(n.opts.Delimiter)
	default:
		return DetectLayout(columns, n.opts.Delimiter)
	}
}

func (n *Normalizer) normalizeTable(src source.Source, table string) *TableResult {
	result := &TableResult{Table: table, Records: make([]*core.UsageRecord, 0)}

	columns, err := src.Columns(table)
	if err != nil {
		result.Err = err
		return result
	}
	n.logger.Debugf("表%s的列：%v", table, columns)

	layout := n.layoutFor(table, columns)
	result.Layout = layout.Name()

	exprs := layout.Plan(columns)
	if len(exprs) == 0 {
		n.logger.Debugf("表%s中没有已知的列", table)
		return result
	}

	reader, err := src.Select(table, exprs)
	if err != nil {
		result.Err = err
		return result
	}
	defer reader.Close()

	records := make([]*core.UsageRecord, 0)
	skipped := make([]RowSkip, 0)
	index := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		var rowErr *source.RowError
		if errors.As(err, &rowErr) {
			skipped = append(skipped, RowSkip{Index: rowErr.Index, Reason: rowErr.Err.Error()})
			index++
			continue
		} else if err != nil {
			// 读取中途失败，整个表不贡献记录
			result.Err = err
			return result
		}

		record, err := layout.Convert(row)
		if err != nil {
			skipped = append(skipped, RowSkip{Index: index, Reason: err.Error()})
		} else {
			records = append(records, record)
		}
		index++
	}

	result.Records = records
	result.Skipped = skipped
	return result
}
