package report

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// valueText is the string form used by the CSV and XML renderers.
func valueText(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	case int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.Format(timeLayout)
	default:
		return fmt.Sprint(typed)
	}
}

// jsonValue maps a row value onto something encoding/json always accepts.
func jsonValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(timeLayout)
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
			return nil
		}
		return typed
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
