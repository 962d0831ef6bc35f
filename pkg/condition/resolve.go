package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Resolve walks a dotted path through a structured value. Each segment descends one
// object field; a list is replaced by its first element. A missing or null segment
// resolves to nil.
func Resolve(root any, path string) any {
	current := normalize(root)

	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}

		current = firstIfList(current)

		object, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = object[segment]
		if !ok || current == nil {
			return nil
		}
	}

	return firstIfList(current)
}

func firstIfList(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}

		return list[0]
	}

	return v
}

// normalize turns arbitrary Go values into the map/slice shapes produced by encoding/json.
func normalize(v any) any {
	switch value := v.(type) {
	case nil, map[string]any, []any, string, bool, float64:
		return value
	case json.RawMessage:
		return decodeJSON(value)
	case []byte:
		return decodeJSON(value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil
		}

		return decodeJSON(data)
	}
}

func decodeJSON(data []byte) any {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}

	return out
}

// coerce converts a resolved value to the Go type CEL expects for t.
// Values that cannot be converted become the type's zero value.
func (t VarType) coerce(v any) any {
	switch t {
	case TypeString:
		return toString(v)
	case TypeBoolean:
		return toBool(v)
	case TypeInteger, TypeLong:
		return toInt(v)
	case TypeFloat, TypeDouble:
		return toFloat(v)
	default:
		return v
	}
}

func toString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case json.Number:
		return value.String()
	case map[string]any, []any:
		data, _ := json.Marshal(value)

		return string(data)
	default:
		return fmt.Sprint(value)
	}
}

func toBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		b, _ := strconv.ParseBool(value)

		return b
	case float64:
		return value != 0
	case int:
		return value != 0
	case int64:
		return value != 0
	default:
		return false
	}
}

func toInt(v any) int64 {
	switch value := v.(type) {
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0
		}

		return int64(value)
	case float32:
		return int64(value)
	case int:
		return int64(value)
	case int32:
		return int64(value)
	case int64:
		return value
	case uint64:
		return int64(value)
	case json.Number:
		i, err := value.Int64()
		if err != nil {
			f, _ := value.Float64()

			return int64(f)
		}

		return i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			f, _ := strconv.ParseFloat(strings.TrimSpace(value), 64)

			return int64(f)
		}

		return i
	case bool:
		if value {
			return 1
		}

		return 0
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int:
		return float64(value)
	case int32:
		return float64(value)
	case int64:
		return float64(value)
	case uint64:
		return float64(value)
	case json.Number:
		f, _ := value.Float64()

		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(value), 64)

		return f
	case bool:
		if value {
			return 1
		}

		return 0
	default:
		return 0
	}
}
