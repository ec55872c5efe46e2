package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	// ErrMalformed reports a response that is not a JSON object of the expected shape.
	ErrMalformed = errors.New("malformed ai response")
	// ErrMissingField reports a response without one of the required keys.
	ErrMissingField = errors.New("ai response is missing required fields")
)

// Schema lists the keys a response must carry.
type Schema struct {
	// Required keys must be present and non-null.
	Required []string
	// Nullable keys must be present but may be null.
	Nullable []string
}

// Decode parses a model answer into out, a pointer to a struct with json tags.
// Numeric and boolean strings ("85", "true") and numbers in string fields are
// converted. Any other type mismatch is ErrMalformed, and a required key
// holding a blank string counts as missing.
func Decode(raw string, out any, schema Schema) error {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return fmt.Errorf("%w: empty response", ErrMalformed)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var missing []string
	for _, key := range schema.Required {
		v, ok := data[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		if str, isString := v.(string); isString && strings.TrimSpace(str) == "" {
			missing = append(missing, key)
		}
	}
	for _, key := range schema.Nullable {
		if _, ok := data[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "json",
		DecodeHook: scalarHook,
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return nil
}

// scalarHook converts the scalar spellings models mix up. It never turns a
// value into a zero value: a string that does not parse is an error.
func scalarHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	for to.Kind() == reflect.Pointer {
		to = to.Elem()
	}

	switch v := data.(type) {
	case string:
		s := strings.TrimSpace(v)
		switch to.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", v)
			}
			return f, nil
		case reflect.Bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", v)
			}
			return b, nil
		}
	case float64:
		if to.Kind() == reflect.String {
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}
	return data, nil
}

// ExtractJSON strips markdown fences and any prose around the outermost JSON object.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return strings.TrimSpace(raw)
	}
	return raw[start : end+1]
}

// Percent rounds v and clamps it into 0..100.
func Percent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
