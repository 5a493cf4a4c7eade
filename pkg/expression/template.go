package expression

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// holePattern matches both hole forms: ${expression} (evaluated) and
// {{path}} (pure lookup). Capture group 1 is the ${} body, group 2 the
// {{}} body.
var holePattern = regexp.MustCompile(`\$\{([^}]*)\}|\{\{([^}]*)\}\}`)

// EvaluateTemplate expands every ${expr} and {{path}} hole in tpl against
// vars. ${} holes are evaluated right-to-left (to avoid index shifts
// while substituting variable-length results) but assembled back into
// the string in original left-to-right order; on a per-hole evaluation
// error the original literal hole text is retained. {{}} holes resolve
// via pure dotted-path lookup against vars, never through the expression
// evaluator, and stringify the result: primitives in natural form,
// null/undefined as empty string, objects by JSON-encode.
func (e *Evaluator) EvaluateTemplate(ctx context.Context, tpl string, vars map[string]any) (string, error) {
	matches := holePattern.FindAllStringSubmatchIndex(tpl, -1)
	if matches == nil {
		return tpl, nil
	}

	replacements := make([]string, len(matches))

	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		full := tpl[m[0]:m[1]]

		if m[2] >= 0 { // ${...}
			body := tpl[m[2]:m[3]]
			result, err := e.Evaluate(ctx, body, vars)
			if err != nil {
				replacements[i] = full
				continue
			}
			replacements[i] = stringifyTemplateValue(result)
			continue
		}

		// {{...}} pure path lookup.
		path := strings.TrimSpace(tpl[m[4]:m[5]])
		value, ok := lookupPath(vars, path)
		if !ok {
			replacements[i] = ""
			continue
		}
		replacements[i] = stringifyTemplateValue(value)
	}

	var b strings.Builder
	last := 0
	for i, m := range matches {
		b.WriteString(tpl[last:m[0]])
		b.WriteString(replacements[i])
		last = m[1]
	}
	b.WriteString(tpl[last:])
	return b.String(), nil
}

// EvaluateValue evaluates a whole-string ${...} hole and returns the raw
// typed result instead of a stringified template expansion; used by
// set-variable nodes that want the evaluated value's native type rather
// than its string form. If s is not a single whole-string ${...} hole,
// it falls back to EvaluateTemplate and returns the stringified result.
func (e *Evaluator) EvaluateValue(ctx context.Context, s string, vars map[string]any) (any, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") && strings.Count(trimmed, "${") == 1 {
		body := trimmed[2 : len(trimmed)-1]
		return e.Evaluate(ctx, body, vars)
	}
	return e.EvaluateTemplate(ctx, s, vars)
}

// EvaluateObject recursively walks arrays and objects, applying template
// evaluation to every string leaf; non-string leaves are returned
// unchanged.
func (e *Evaluator) EvaluateObject(ctx context.Context, o any, vars map[string]any) (any, error) {
	switch val := o.(type) {
	case string:
		return e.EvaluateTemplate(ctx, val, vars)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			res, err := e.EvaluateObject(ctx, v, vars)
			if err != nil {
				return nil, err
			}
			out[k] = res
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			res, err := e.EvaluateObject(ctx, v, vars)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	default:
		return o, nil
	}
}

func stringifyTemplateValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		return helperJSONEncode(val)
	default:
		return helperToString(val)
	}
}

// lookupPath navigates vars via a dotted path ("a.b.c"), returning
// (nil, false) at the first missing segment -- never falling through to
// any identifier outside vars.
func lookupPath(vars map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var cur any = vars
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := m[seg]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// ValidateTemplate checks that every ${...} hole in tpl compiles, without
// executing any of them.
func (e *Evaluator) ValidateTemplate(tpl string) error {
	matches := holePattern.FindAllStringSubmatchIndex(tpl, -1)
	for _, m := range matches {
		if m[2] < 0 {
			continue
		}
		body := tpl[m[2]:m[3]]
		if err := e.Validate(body); err != nil {
			return fmt.Errorf("hole %q: %w", body, err)
		}
	}
	return nil
}
