package executor

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// asList snapshots a list message. A nil message is an empty list.
func asList(message any) ([]any, error) {
	switch v := message.(type) {
	case nil:
		return []any{}, nil
	case []any:
		items := make([]any, len(v))
		copy(items, v)

		return items, nil
	case json.RawMessage:
		var items []any
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotAList, err)
		}

		if items == nil {
			items = []any{}
		}

		return items, nil
	}

	rv := reflect.ValueOf(message)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T", ErrNotAList, message)
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	return items, nil
}

// cloneValue copies decoded JSON structures so static step messages are never shared
// between transactions.
func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = cloneValue(item)
		}

		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}
