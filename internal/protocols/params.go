package protocols

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Merge returns defaults overlaid with params. Only top-level keys are replaced.
func Merge(defaults, params map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(params))
	maps.Copy(out, defaults)
	maps.Copy(out, params)
	return out
}

// DecodeParams decodes a parameter map into out.
//
// Input is weakly typed so environment variables and prompt answers can be
// plain strings. Unknown keys are rejected. Strings that look like JSON
// objects or arrays are parsed before decoding into maps, slices or structs,
// and comma-separated strings decode into string slices.
func DecodeParams(params map[string]any, out any, hooks ...mapstructure.DecodeHookFunc) error {
	all := make([]mapstructure.DecodeHookFunc, 0, len(hooks)+2)
	all = append(all, JSONStringHook())
	all = append(all, hooks...)
	all = append(all, mapstructure.StringToSliceHookFunc(","))

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		ZeroFields:       true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(all...),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return &core.ConfigError{Message: err.Error()}
	}
	return nil
}

// JSONStringHook parses JSON object or array strings destined for a map,
// slice or struct.
func JSONStringHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		switch to.Kind() {
		case reflect.Map, reflect.Slice, reflect.Struct:
		default:
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
			return data, nil
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
		return v, nil
	}
}

// Positive returns a ConfigError unless v > 0.
func Positive(field string, v float64) error {
	if v <= 0 {
		return &core.ConfigError{Field: field, Message: fmt.Sprintf("must be positive (got %g)", v)}
	}
	return nil
}

// Missing reports whether key is absent, empty, or zero in params.
func Missing(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok || v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) == "" || x == "0"
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case map[string]any:
		return len(x) == 0
	case map[string]string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}
