package modules

import (
	"encoding/json"
	"strings"
)

// IsEmpty reports whether a module payload carries no answers. null, blank
// strings, empty arrays and objects whose every value is empty all count as
// empty. false and 0 are answers. Invalid JSON is treated as empty.
func IsEmpty(payload json.RawMessage) bool {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return true
	}
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return true
	}
	return isEmptyValue(v)
}

func isEmptyValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []interface{}:
		for _, e := range x {
			if !isEmptyValue(e) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		for _, e := range x {
			if !isEmptyValue(e) {
				return false
			}
		}
		return true
	}
	return false
}

// fieldPresent reports whether the top-level field of an object payload has
// a non-empty value.
func fieldPresent(payload json.RawMessage, field string) bool {
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return false
	}
	v, ok := obj[field]
	return ok && !isEmptyValue(v)
}
