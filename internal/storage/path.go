package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var kindPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// SchemaRecordKey is the key holding the persisted schema record for one
// source kind.
func SchemaRecordKey(kind string) (string, error) {
	if !kindPattern.MatchString(kind) {
		return "", fmt.Errorf("invalid source kind: %q", kind)
	}
	return "schema_" + kind + ".json", nil
}

// CleanKey normalizes a slash-separated key and rejects keys that escape
// their root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("record key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid record key: %q", key)
	}
	return cleaned, nil
}

// CleanPrefix normalizes a key prefix; "" and "/" mean no prefix.
func CleanPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if prefix = path.Clean(prefix); prefix == "." {
		return ""
	}
	return prefix
}
