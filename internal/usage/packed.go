package usage

import "strings"

const DefaultDelimiter = ":"

// 打包指标字段中各子字段的位置
const (
	packedTimestamp = iota
	packedUsageTime
	packedDeltaCpuTime
	packedCpuUsage
	packedRxData
	packedTxData

	NumPackedFields
)

// PackedMetrics 打包指标字段拆分后的六个子字段
type PackedMetrics struct {
	Timestamp    string
	UsageTime    string
	DeltaCpuTime string
	CpuUsage     string
	RxData       string
	TxData       string
}

// ParsePackedMetrics 按分隔符拆分打包指标。不足六段时所有子字段为空串，多出的部分忽略。
func ParsePackedMetrics(packed, delimiter string) PackedMetrics {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	parts := strings.Split(packed, delimiter)
	if len(parts) < NumPackedFields {
		return PackedMetrics{}
	}
	return PackedMetrics{
		Timestamp:    parts[packedTimestamp],
		UsageTime:    parts[packedUsageTime],
		DeltaCpuTime: parts[packedDeltaCpuTime],
		CpuUsage:     parts[packedCpuUsage],
		RxData:       parts[packedRxData],
		TxData:       parts[packedTxData],
	}
}
