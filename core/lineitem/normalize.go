package lineitem

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"easyquote/core/quote"
)

var (
	hexColorPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)
	numericPattern  = regexp.MustCompile(`^[+-]?(\d+([.,]\d+)?|[.,]\d+)$`)
)

// NormalizeValue converts a prompt value to the form the pricing engine expects.
// The second result is false when the value must be omitted from the request.
//
// Six hex digits are a colour only when prefixed with "#" or containing a hex
// letter; an all-digit value such as "100000" is a number.
func NormalizeValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return normalizeText(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return normalizeText(t.String())
		}
		return f, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		return t, true
	}
	return normalizeText(quote.Text(v))
}

func normalizeText(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if hexColorPattern.MatchString(s) && (strings.HasPrefix(s, "#") || strings.ContainsAny(s, "abcdefABCDEF")) {
		return strings.ToUpper(strings.TrimPrefix(s, "#")), true
	}
	if numericPattern.MatchString(s) {
		f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err == nil {
			return f, true
		}
	}
	return s, true
}

// BuildInputs turns parameters into recompute inputs, dropping empty values
func BuildInputs(params []quote.Parameter) []quote.Input {
	inputs := make([]quote.Input, 0, len(params))
	for _, p := range params {
		v, ok := NormalizeValue(p.Value)
		if !ok {
			continue
		}
		inputs = append(inputs, quote.Input{ID: p.ID, Value: v})
	}
	return inputs
}
