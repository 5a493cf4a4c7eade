// Package expression provides the sandboxed expression evaluator used to
// interpolate user-supplied snippets against a per-execution variable
// context. It never reuses the host runtime's eval: expressions compile to
// an expr-lang/expr AST and run against an explicit, whitelisted
// environment, so identifier resolution failures surface as undefined
// rather than falling through to Go or host globals.
package expression

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/workflowkit/engine/pkg/models"
)

// DefaultTimeout is the wall-clock budget applied to an evaluation when
// Options.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// DefaultMaxMemory is the soft allocation budget (in approximate bytes of
// the serialized environment) applied when Options.MaxMemory is unset.
// Zero disables the check.
const DefaultMaxMemory int64 = 0

// hostilePatterns are token substrings that never belong in a sandboxed
// expression. Their presence rejects the expression outright, before it
// is ever compiled.
var hostilePatterns = []string{
	"require(",
	"import ",
	"eval(",
	"Function(",
	"process.",
	"global.",
	"__proto__",
	"constructor",
	"prototype",
	"setTimeout",
	"setInterval",
}

// sanitizedKeys are host-introspection keys stripped from any context
// handed to the evaluator, regardless of what the hostile-pattern scan
// catches in the expression text itself.
var sanitizedKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Options configures an Evaluator's safety budgets.
type Options struct {
	// Timeout is the wall-clock budget for a single evaluation.
	Timeout time.Duration
	// MaxMemory is the soft allocation budget, approximated from the
	// serialized size of the environment. Zero disables the check.
	MaxMemory int64
	// CacheCapacity bounds the compiled-program LRU cache.
	CacheCapacity int
}

// DefaultOptions returns the evaluator's default safety budgets.
func DefaultOptions() Options {
	return Options{
		Timeout:       DefaultTimeout,
		MaxMemory:     DefaultMaxMemory,
		CacheCapacity: 200,
	}
}

// Evaluator compiles and runs expressions against an explicit variable
// context plus the whitelisted helper tables (Math, date, type, JSON,
// utility). It is safe for concurrent use.
type Evaluator struct {
	opts  Options
	cache *programCache
}

// NewEvaluator creates an Evaluator with the given safety budgets.
func NewEvaluator(opts Options) *Evaluator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = 200
	}
	return &Evaluator{
		opts:  opts,
		cache: newProgramCache(opts.CacheCapacity),
	}
}

// checkHostile rejects an expression containing a published hostile
// token pattern before it is ever compiled or run.
func checkHostile(expression string) error {
	for _, pattern := range hostilePatterns {
		if strings.Contains(expression, pattern) {
			return &models.ExprError{Message: fmt.Sprintf("expression contains disallowed pattern %q", pattern)}
		}
	}
	return nil
}

// sanitize strips host-introspection keys from a variable context before
// it is exposed to the evaluator, recursively through nested maps.
func sanitize(vars map[string]any) map[string]any {
	return sanitizeDepth(vars, 0)
}

func sanitizeDepth(v any, depth int) map[string]any {
	m, ok := v.(map[string]any)
	if !ok || depth > 20 {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		if sanitizedKeys[k] {
			continue
		}
		out[k] = sanitizeValue(val, depth+1)
	}
	return out
}

func sanitizeValue(v any, depth int) any {
	if depth > 20 {
		return v
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			if sanitizedKeys[k] {
				continue
			}
			out[k] = sanitizeValue(vv, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = sanitizeValue(vv, depth+1)
		}
		return out
	default:
		return v
	}
}

// buildEnv merges the sanitized variable context with the whitelisted
// helper tables. No other identifiers are in scope.
func (e *Evaluator) buildEnv(vars map[string]any) map[string]any {
	env := map[string]any{
		"Math":         mathHelpers(),
		"now":          helperNow,
		"timestamp":    helperTimestamp,
		"formatDate":   helperFormatDate,
		"isString":     helperIsString,
		"isNumber":     helperIsNumber,
		"isBoolean":    helperIsBoolean,
		"isArray":      helperIsArray,
		"isObject":     helperIsObject,
		"jsonEncode":   helperJSONEncode,
		"jsonDecode":   helperJSONDecode,
		"isEmpty":      helperIsEmpty,
		"slugify":      helperSlugify,
		"truncate":     helperTruncate,
		"base64Encode": helperBase64Encode,
		"base64Decode": helperBase64Decode,
		"toString":     helperToString,
		"toNumber":     helperToNumber,
	}
	for k, v := range sanitize(vars) {
		env[k] = v
	}
	return env
}

// approxSize estimates the in-memory footprint of an environment via its
// serialized JSON length -- a soft allocation counter, not an exact
// accounting (DESIGN NOTES: "a monotonic clock and a soft allocation
// counter").
func approxSize(env map[string]any) int64 {
	data, err := json.Marshal(env)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

func (e *Evaluator) compile(expression string, env map[string]any) (*vm.Program, error) {
	if program, ok := e.cache.get(expression); ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.cache.put(expression, program)
	return program, nil
}

// runWithBudget runs a compiled program under the evaluator's wall-clock
// budget, converting panics and timeouts into the §7 error taxonomy.
func (e *Evaluator) runWithBudget(ctx context.Context, program *vm.Program, env map[string]any) (any, error) {
	type outcome struct {
		value any
		err   error
	}

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{nil, fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		v, err := expr.Run(program, env)
		ch <- outcome{v, err}
	}()

	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, &models.ExprError{Message: res.err.Error()}
		}
		return res.value, nil
	case <-ctx.Done():
		return nil, &models.ExprTimeout{Budget: timeout.String()}
	case <-time.After(timeout):
		return nil, &models.ExprTimeout{Budget: timeout.String()}
	}
}

// Evaluate runs expression against ctx∪prevResults (vars), returning the
// raw result (not coerced to a string or bool). Identifier resolution
// failures yield nil (undefined), never a host global.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	if err := checkHostile(expression); err != nil {
		return nil, err
	}

	env := e.buildEnv(vars)
	if e.opts.MaxMemory > 0 && approxSize(env) > e.opts.MaxMemory {
		return nil, &models.ExprMemory{Limit: e.opts.MaxMemory}
	}

	program, err := e.compile(expression, env)
	if err != nil {
		return nil, &models.ExprError{Message: err.Error()}
	}

	return e.runWithBudget(ctx, program, env)
}

// Validate checks expression for hostile patterns and syntactic validity
// without executing it.
func (e *Evaluator) Validate(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return nil
	}
	if err := checkHostile(expression); err != nil {
		return err
	}
	env := e.buildEnv(nil)
	if _, err := e.compile(expression, env); err != nil {
		return &models.ExprError{Message: err.Error()}
	}
	return nil
}

// TestExpression validates then evaluates expression against vars,
// returning the result for ad-hoc testing (§6.1 testExpression).
func (e *Evaluator) TestExpression(ctx context.Context, expression string, vars map[string]any) (any, error) {
	if err := e.Validate(expression); err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, expression, vars)
}

// programCache is a small thread-safe LRU of compiled expr programs,
// grounded on pkg/engine's ConditionCache (same eviction shape, adapted
// for this package so pkg/expression has no dependency on pkg/engine).
type programCache struct {
	capacity int
	mu       sync.RWMutex
	items    map[string]*list.Element
	order    *list.List
}

type programCacheEntry struct {
	key     string
	program *vm.Program
}

func newProgramCache(capacity int) *programCache {
	return &programCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *programCache) get(key string) (*vm.Program, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*programCacheEntry).program, true
}

func (c *programCache) put(key string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*programCacheEntry).program = program
		return
	}
	el := c.order.PushFront(&programCacheEntry{key: key, program: program})
	c.items[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*programCacheEntry).key)
		}
	}
}
