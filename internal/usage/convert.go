package usage

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/packagewjx/procusage/pkg/core"
)

func stringPtr(s string) *string {
	return &s
}

// stringify 将数据库中的值转换为字符串，NULL转换为空串
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// toNumber 将数据库中的数值转换为json.Number。NULL或无法解析的值返回nil。
func toNumber(v interface{}) *json.Number {
	var s string
	switch val := v.(type) {
	case int64:
		s = strconv.FormatInt(val, 10)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(stringify(val)), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return nil
	}
	n := json.Number(s)
	return &n
}

// toTimestamp 整数与浮点数保留数值属性，文本原样保存
func toTimestamp(v interface{}) *core.Timestamp {
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		return core.NewNumericTimestamp(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return &core.Timestamp{Value: strconv.FormatFloat(val, 'f', -1, 64), Numeric: true}
	default:
		return core.NewTextTimestamp(stringify(val))
	}
}
