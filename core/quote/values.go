package quote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number returns the numeric reading of a parameter value
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		d, ok := ParseAmount(n)
		if !ok {
			return 0, false
		}
		f, _ := d.Float64()
		return f, true
	}
	return 0, false
}

// Text renders a parameter value for display and label matching
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}
