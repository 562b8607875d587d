package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// toInt64 coerces a loosely typed JSON value. Anything unparsable yields 0.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		if n > math.MaxInt64 {
			return 0
		}
		return int64(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int64(n)
	case json.Number:
		return parseIntString(n.String())
	case string:
		return parseIntString(n)
	case bool:
		if n {
			return 1
		}
		return 0
	}
	return 0
}

func parseIntString(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}

func toInt(v any) int {
	return int(toInt64(v))
}

// toUint64 coerces timestamps; negative values clamp to 0.
func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u
		}
	case string:
		if u, err := strconv.ParseUint(strings.TrimSpace(n), 10, 64); err == nil {
			return u
		}
	}
	if i := toInt64(v); i > 0 {
		return uint64(i)
	}
	return 0
}

// toString renders identifiers that stations may send as numbers.
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

// toBool accepts booleans, numbers and the usual string spellings.
func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return toInt64(v) != 0
}
