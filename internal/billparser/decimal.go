package billparser

import (
	"strconv"
	"strings"
)

// ParseDecimal reads a number written with Brazilian or international
// separators: "1.234,56", "254,0", "0.95", "1,234.5". When only dots appear,
// a single dot followed by exactly three digits is a thousands separator
// unless the integer part is zero.
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, false
		}
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		intPart := s[:strings.IndexByte(s, '.')]
		if strings.Count(s, ".") > 1 || (len(s)-lastDot-1 == 3 && strings.TrimLeft(intPart, "0") != "") {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseDecimalOr is ParseDecimal with a default for unparseable input.
func ParseDecimalOr(s string, def float64) float64 {
	if v, ok := ParseDecimal(s); ok {
		return v
	}
	return def
}
