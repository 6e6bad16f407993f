package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// UsageRecord 一条进程资源使用记录。不同布局的表产生的字段不同，不产生的字段为nil，序列化时省略。
type UsageRecord struct {
	Timestamp   *Timestamp `json:"timestamp,omitempty"`
	UID         *int64     `json:"uid,omitempty"`
	PackageName *string    `json:"package_name,omitempty"`
	Pids        *string    `json:"pids,omitempty"`

	// 通用列布局
	Metrics  *string      `json:"metrics,omitempty"`
	ByteSize *json.Number `json:"byte_size,omitempty"`

	// 打包指标布局
	UsageTime    *string `json:"usagetime,omitempty"`
	DeltaCpuTime *string `json:"delta_cpu_time,omitempty"`
	CpuUsage     *string `json:"cpu_usage,omitempty"`
	RxData       *string `json:"rx_data,omitempty"`
	TxData       *string `json:"tx_data,omitempty"`
}

// Timestamp 保留时间戳的原始文本，以及数据库中是否以数值存储
type Timestamp struct {
	Value   string
	Numeric bool
}

func NewNumericTimestamp(v int64) *Timestamp {
	return &Timestamp{Value: strconv.FormatInt(v, 10), Numeric: true}
}

func NewTextTimestamp(v string) *Timestamp {
	return &Timestamp{Value: v}
}

// Int 时间戳为整数时返回其值。整数应优先于Float比较，超过2^53的值转换为float64会丢失精度。
func (t *Timestamp) Int() (int64, bool) {
	if t == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(t.Value), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Float 尝试将时间戳转换为数值。空串、非数字、NaN与Inf都视为无法转换。
func (t *Timestamp) Float() (float64, bool) {
	if t == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Numeric {
		return []byte(t.Value), nil
	}
	return json.Marshal(t.Value)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		t.Numeric = false
		return json.Unmarshal(data, &t.Value)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	t.Value = n.String()
	t.Numeric = true
	return nil
}

