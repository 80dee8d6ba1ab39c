package judge

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	undefinedKey = "undefined"
	protoKey     = "__proto__"
)

// truthy reports whether a decoded JSON value counts as a pass.
// null, false, numeric zero and "" are falsy; everything else is truthy,
// including "0", [] and {}.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		// overflow parses to ±Inf with an error, which is still truthy
		f, _ := strconv.ParseFloat(string(x), 64)
		return f != 0
	default:
		return true
	}
}

// keyOf renders an exercise name the way it would be stringified as an
// object key.
func keyOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return formatNumber(x)
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			if el != nil {
				parts[i] = keyOf(el)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// formatNumber produces the shortest round-trip form, switching to
// exponent notation outside [1e-6, 1e21).
func formatNumber(n json.Number) string {
	f, _ := strconv.ParseFloat(string(n), 64)
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}
