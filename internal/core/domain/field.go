package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldValue is an extracted field that is either a plain value or a value
// scored with an extraction confidence. Extracted payloads carry both shapes;
// they are resolved here so readers never inspect the raw form again.
type FieldValue struct {
	value      string
	confidence float64
	scored     bool
}

func Plain(value string) FieldValue {
	return FieldValue{value: strings.TrimSpace(value)}
}

func Scored(value string, confidence float64) FieldValue {
	return FieldValue{value: strings.TrimSpace(value), confidence: confidence, scored: true}
}

func (f FieldValue) String() string { return f.value }

func (f FieldValue) Empty() bool { return f.value == "" }

// Confidence reports the extraction confidence for scored values.
func (f FieldValue) Confidence() (float64, bool) {
	return f.confidence, f.scored
}

// FieldValueOf resolves a decoded JSON node into a FieldValue. Objects are
// treated as scored values only when they carry a "value" key.
func FieldValueOf(node any) (FieldValue, bool) {
	switch v := node.(type) {
	case nil:
		return FieldValue{}, false
	case map[string]any:
		raw, ok := v["value"]
		if !ok {
			return FieldValue{}, false
		}
		inner, ok := scalarString(raw)
		if !ok {
			return FieldValue{}, false
		}
		if conf, ok := v["confidence"].(float64); ok {
			return Scored(inner, conf), inner != ""
		}
		return Plain(inner), inner != ""
	default:
		s, ok := scalarString(v)
		if !ok {
			return FieldValue{}, false
		}
		return Plain(s), s != ""
	}
}

func (f FieldValue) MarshalJSON() ([]byte, error) {
	if f.scored {
		return json.Marshal(struct {
			Value      string  `json:"value"`
			Confidence float64 `json:"confidence"`
		}{f.value, f.confidence})
	}
	return json.Marshal(f.value)
}

func (f *FieldValue) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = FieldValue{}
		return nil
	}
	var node any
	if err := json.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}
	resolved, _ := FieldValueOf(node)
	*f = resolved
	return nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// LookupField walks dotted paths through decoded JSON and returns the first
// non-empty value. Paths are tried in order.
func LookupField(data map[string]any, paths ...string) FieldValue {
	for _, path := range paths {
		var node any = data
		for _, key := range strings.Split(path, ".") {
			obj, ok := node.(map[string]any)
			if !ok {
				node = nil
				break
			}
			node = obj[key]
		}
		if value, ok := FieldValueOf(node); ok {
			return value
		}
	}
	return FieldValue{}
}
