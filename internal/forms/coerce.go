package forms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "01/02/2006"

// TextValue stringifies a request value. nil becomes the empty string,
// whole floats lose their ".0" and times use the US form date layout.
func TextValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(dateLayout)
	case *time.Time:
		if val == nil {
			return ""
		}
		return TextValue(*val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// CheckValue coerces a request value to a checkbox state.
func CheckValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "yes", "y", "on", "1", "x", "checked":
			return true
		}
		return false
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return CheckValue(TextValue(val))
	}
}

// ParseAssignment splits a "key=value" CLI assignment. Values "true" and
// "false" stay strings; the schema decides how they are coerced.
func ParseAssignment(s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return key, value, nil
}
