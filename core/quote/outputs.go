package quote

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NotAvailable is the sentinel the pricing engine uses for outputs it could not compute
const NotAvailable = "#N/A"

// PriceOf returns the price carried by the first output typed "price".
// The second result is false when there is no such output or its value is not a number.
func PriceOf(outputs []Output) (decimal.Decimal, bool) {
	for _, o := range outputs {
		if o.Type != PriceOutputType {
			continue
		}
		// first match wins, even when unparseable
		return ParseAmount(o.Value)
	}
	return decimal.Zero, false
}

// DisplayOutputs returns the "other outputs" shown next to the price: outputs that
// are not the price, carry a usable value and do not describe an image.
func DisplayOutputs(outputs []Output) []Output {
	result := make([]Output, 0, len(outputs))
	for _, o := range outputs {
		if o.Type == PriceOutputType {
			continue
		}
		v := strings.TrimSpace(o.Value)
		if v == "" || v == NotAvailable {
			continue
		}
		if isImage(o) {
			continue
		}
		result = append(result, o)
	}
	return result
}

func isImage(o Output) bool {
	for _, s := range []string{o.Type, o.Name} {
		s = strings.ToLower(s)
		if strings.Contains(s, "image") || strings.Contains(s, "imagen") || strings.Contains(s, "img") {
			return true
		}
	}
	return false
}

// ParseAmount parses a monetary or numeric text value. Both "." and "," are accepted
// as decimal separators; when both appear the last one is the decimal separator and
// the other is treated as a thousands separator. Currency symbols and spaces are ignored.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '€', '$', '£':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" || s == NotAvailable {
		return decimal.Zero, false
	}

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
