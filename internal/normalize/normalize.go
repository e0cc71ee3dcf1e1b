// Package normalize turns loosely typed extracted values into numbers.
//
// The extraction stage emits whatever the language model produced: bare
// numbers, nulls, or prose such as "Rs. 25,000 per month" or "65% of
// ex-showroom price". The helpers here pull a single magnitude out of that.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// digits, optional thousands separators, optional decimal fraction
	numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

	// 1-3 digit integer directly followed by a percent sign. The leading
	// group rejects digits and decimal points so "12.5%" does not match.
	percentPattern = regexp.MustCompile(`(?:^|[^\d.])(\d{1,3})%`)
)

// ExtractNumber returns the first numeric magnitude found in v.
// Thousands separators are stripped. Returns false for nil input, for
// input without digits, and for a match that does not parse.
func ExtractNumber(v any) (float64, bool) {
	s, ok := stringify(v)
	if !ok {
		return 0, false
	}

	match := numberPattern.FindString(s)
	if match == "" {
		return 0, false
	}

	n, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExtractPercentage returns the first whole percentage found in v.
// Fractional percentages are not recognized.
func ExtractPercentage(v any) (float64, bool) {
	s, ok := stringify(v)
	if !ok {
		return 0, false
	}

	m := percentPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExtractCurrency is ExtractNumber; currency symbols are ignored.
func ExtractCurrency(v any) (float64, bool) {
	return ExtractNumber(v)
}

// stringify renders v the way it would appear in the extracted document.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case []byte:
		return string(t), true
	default:
		if b, err := json.Marshal(t); err == nil {
			return string(b), true
		}
		return fmt.Sprint(t), true
	}
}
