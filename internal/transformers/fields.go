package transformers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// field resolves a dotted path against the document fields.
func field(doc domain.Document, path string) gjson.Result {
	if path == domain.IDField {
		id, _ := json.Marshal(doc.ID)
		return gjson.ParseBytes(id)
	}
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(data, path)
}

// stringField returns the string at path. ok is false when the path is
// absent; an error is returned when it holds something other than a string.
func stringField(doc domain.Document, path string) (s string, ok bool, err error) {
	r := field(doc, path)
	if !r.Exists() || r.Type == gjson.Null {
		return "", false, nil
	}
	if r.Type != gjson.String {
		return "", true, fmt.Errorf("field %s is %s, not a string", path, r.Type)
	}
	return r.String(), true, nil
}

// sameValue compares two field values by their JSON encoding, so that an
// int derived in memory equals the float64 read back from a store.
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// getStringFromConfig extracts a string from a generic config map.
func getStringFromConfig(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// getStringSliceFromConfig extracts a string list from a generic config map.
// Handles []string, []any from TOML/JSON parsing and comma separated strings.
func getStringSliceFromConfig(cfg map[string]any, key string, fallback []string) []string {
	switch v := cfg[key].(type) {
	case []string:
		if len(v) > 0 {
			return v
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	case string:
		if out := splitList(v); len(out) > 0 {
			return out
		}
	}
	return fallback
}
