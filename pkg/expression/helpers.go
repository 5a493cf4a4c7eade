package expression

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// mathHelpers returns the namespaced Math table (§4.2: the only helper
// group the spec writes with a dotted prefix, e.g. Math.abs(-42)).
func mathHelpers() map[string]any {
	return map[string]any{
		"abs":    func(x float64) float64 { return math.Abs(x) },
		"ceil":   func(x float64) float64 { return math.Ceil(x) },
		"floor":  func(x float64) float64 { return math.Floor(x) },
		"round":  func(x float64) float64 { return math.Round(x) },
		"min":    func(a, b float64) float64 { return math.Min(a, b) },
		"max":    func(a, b float64) float64 { return math.Max(a, b) },
		"pow":    func(a, b float64) float64 { return math.Pow(a, b) },
		"sqrt":   func(x float64) float64 { return math.Sqrt(x) },
		"random": func() float64 { return rand.Float64() },
		"PI":     math.Pi,
		"E":      math.E,
	}
}

func helperNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func helperTimestamp() int64 {
	return time.Now().UTC().UnixMilli()
}

// helperFormatDate formats value (an RFC3339 string, or a unix-millis
// number) according to fmt ∈ {ISO, locale, date, time}.
func helperFormatDate(value any, layout string) string {
	t, ok := parseTimeValue(value)
	if !ok {
		return ""
	}
	switch layout {
	case "ISO":
		return t.Format(time.RFC3339)
	case "date":
		return t.Format("2006-01-02")
	case "time":
		return t.Format("15:04:05")
	case "locale":
		return t.Format("Jan 2, 2006 3:04 PM")
	default:
		return t.Format(time.RFC3339)
	}
}

func parseTimeValue(value any) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	case int64:
		return time.UnixMilli(v).UTC(), true
	case int:
		return time.UnixMilli(int64(v)).UTC(), true
	default:
		return time.Time{}, false
	}
}

func helperIsString(v any) bool {
	_, ok := v.(string)
	return ok
}

func helperIsNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32:
		return true
	default:
		return false
	}
}

func helperIsBoolean(v any) bool {
	_, ok := v.(bool)
	return ok
}

func helperIsArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

func helperIsObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func helperJSONEncode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func helperJSONDecode(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

func helperIsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func helperSlugify(s string) string {
	lower := strings.ToLower(s)
	slug := slugNonAlnum.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

func helperTruncate(s string, length float64) string {
	n := int(length)
	if n < 0 {
		n = 0
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func helperBase64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func helperBase64Decode(s string) string {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(data)
}

func helperToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return helperJSONEncode(v)
	}
}

func helperToNumber(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return 0
	}
}
