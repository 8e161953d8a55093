// Package expr implements the two expression-evaluation entry points every
// task attribute needing dynamic behavior goes through: evaluate-predicate
// (the "when"/"loop"/"assert" boolean-or-value context) and interpolate (the
// "{{ expr }}" string-template context). Both evaluate against a
// varctx.Context, exposed to expressions as directly addressable top-level
// names, with a fixed allow-list of pure builtins and no reflection into
// process internals.
package expr

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/SouthPatron/reasonchip/pkg/varctx"
)

// DefaultRecursionLimit bounds Interpolate's structural recursion.
const DefaultRecursionLimit = 64

// EvaluationError wraps a failed expression evaluation with its source text.
type EvaluationError struct {
	Expression string
	Cause      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("expr: evaluating %q: %s", e.Expression, e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }

// ErrRecursionLimit is returned by Interpolate when structural recursion
// exceeds the configured limit.
type ErrRecursionLimit struct {
	Limit int
}

func (e *ErrRecursionLimit) Error() string {
	return fmt.Sprintf("expr: interpolation recursion limit (%d) exceeded", e.Limit)
}

// Evaluator evaluates expressions and interpolated templates against a
// varctx.Context. It is stateless and safe for concurrent use; every
// evaluation gets a fresh, locked-down goja.Runtime.
type Evaluator struct {
	RecursionLimit int
}

// New returns an Evaluator with the default recursion limit.
func New() *Evaluator {
	return &Evaluator{RecursionLimit: DefaultRecursionLimit}
}

var placeholderRE = regexp.MustCompile(`\{\{(.*?)\}\}`)

// EvaluatePredicate evaluates expr against vc and returns its truthy/falsey
// value. Used for "when" and "assert"; "loop" expressions go through
// Evaluate, since they yield a sequence or mapping.
func (e *Evaluator) EvaluatePredicate(ctx context.Context, expression string, vc *varctx.Context) (bool, error) {
	v, err := e.Evaluate(ctx, expression, vc)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Evaluate runs expression against vc and returns the resulting native Go
// value (goja.Value.Export()).
func (e *Evaluator) Evaluate(ctx context.Context, expression string, vc *varctx.Context) (any, error) {
	rt := newRuntime(vc)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := rt.RunString(expression)
	if err != nil {
		return nil, &EvaluationError{Expression: expression, Cause: err}
	}
	if v == nil {
		return nil, nil
	}
	return v.Export(), nil
}

// EvaluateCode runs an inline multi-statement code body (a CodeTask's
// "code" field) against vc, with the task's interpolated params exposed as
// a "params" global, and returns whatever the script assigns to a
// var-declared global named "result" (undeclared/let/const bindings are not
// visible outside the script and yield a nil result, same as a script that
// never assigns one).
func (e *Evaluator) EvaluateCode(ctx context.Context, code string, vc *varctx.Context, params map[string]any) (any, error) {
	rt := newRuntime(vc)
	if err := rt.Set("params", params); err != nil {
		return nil, &EvaluationError{Expression: code, Cause: err}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	if _, err := rt.RunString(code); err != nil {
		return nil, &EvaluationError{Expression: code, Cause: err}
	}

	result := rt.Get("result")
	if result == nil {
		return nil, nil
	}
	return result.Export(), nil
}

// Interpolate recursively walks value, replacing "{{ expr }}" placeholders
// in every string encountered:
//
//   - If a string is entirely one placeholder (after trimming surrounding
//     whitespace), the placeholder's native evaluated value replaces the
//     string outright (type-preserving).
//   - Otherwise every placeholder in the string is evaluated and stringified,
//     and the results are concatenated back into the surrounding text.
//   - Mappings and sequences are deep-copied with every element
//     interpolated.
//   - Any other scalar is returned unchanged.
func (e *Evaluator) Interpolate(ctx context.Context, value any, vc *varctx.Context) (any, error) {
	limit := e.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}
	return e.interpolate(ctx, value, vc, 0, limit)
}

func (e *Evaluator) interpolate(ctx context.Context, value any, vc *varctx.Context, depth, limit int) (any, error) {
	if depth > limit {
		return nil, &ErrRecursionLimit{Limit: limit}
	}

	switch v := value.(type) {
	case string:
		return e.interpolateString(ctx, v, vc)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			iv, err := e.interpolate(ctx, item, vc, depth+1, limit)
			if err != nil {
				return nil, err
			}
			out[k] = iv
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			iv, err := e.interpolate(ctx, item, vc, depth+1, limit)
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	default:
		return value, nil
	}
}

func (e *Evaluator) interpolateString(ctx context.Context, s string, vc *varctx.Context) (any, error) {
	matches := placeholderRE.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s, nil
	}

	if isSinglePlaceholder(s, matches) {
		expression := strings.TrimSpace(s[matches[0][2]:matches[0][3]])
		return e.Evaluate(ctx, expression, vc)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		exprStart, exprEnd := m[2], m[3]
		b.WriteString(s[last:start])

		expression := strings.TrimSpace(s[exprStart:exprEnd])
		v, err := e.Evaluate(ctx, expression, vc)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(v))
		last = end
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// isSinglePlaceholder reports whether s is, after trimming whitespace,
// exactly one "{{ ... }}" placeholder with nothing else around it.
func isSinglePlaceholder(s string, matches [][]int) bool {
	if len(matches) != 1 {
		return false
	}
	before := strings.TrimSpace(s[:matches[0][0]])
	after := strings.TrimSpace(s[matches[0][1]:])
	return before == "" && after == ""
}

func stringify(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	default:
		return fmt.Sprint(vv)
	}
}

func truthy(v any) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	case string:
		return vv != ""
	case int64:
		return vv != 0
	case float64:
		return vv != 0
	case []any:
		return len(vv) > 0
	case map[string]any:
		return len(vv) > 0
	default:
		return true
	}
}

// newRuntime builds a fresh, locked-down goja.Runtime with the variable
// context's top-level keys exposed as directly addressable globals and the
// fixed builtin allow-list installed. No require, no Function constructor
// exposure beyond the evaluated expression body, no host reflection.
func newRuntime(vc *varctx.Context) *goja.Runtime {
	rt := goja.New()

	for name, value := range vc.Raw() {
		rt.Set(name, value)
	}

	installBuiltins(rt)

	return rt
}
