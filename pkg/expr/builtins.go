package expr

import (
	"fmt"
	"html"
	"math"
	"sort"
	"strconv"

	"github.com/dop251/goja"
)

// installBuiltins sets the fixed, pure builtin allow-list on rt's global
// object. Every builtin is a native Go closure; none perform I/O, module
// loading, or reach into process internals.
func installBuiltins(rt *goja.Runtime) {
	set := func(name string, fn any) {
		if err := rt.Set(name, fn); err != nil {
			panic(fmt.Sprintf("expr: installing builtin %q: %v", name, err))
		}
	}

	set("abs", biAbs)
	set("min", biMin)
	set("max", biMax)
	set("sum", biSum)
	set("round", biRound)
	set("pow", biPow)
	set("len", biLen)
	set("int", biInt)
	set("float", biFloat)
	set("str", biStr)
	set("bool", biBool)
	set("list", biList)
	set("tuple", biList)
	set("dict", biDict)
	set("sorted", biSorted)
	set("reversed", biReversed)
	set("enumerate", biEnumerate)
	set("range", biRange)
	set("all", biAll)
	set("any", biAny)
	set("repr", biRepr)
	set("format", biFormat)
	set("type", biType)
	set("isinstance", biIsInstance)
	set("iter", biIter)
	set("next", biNext)
	set("escape", biEscape)
	set("unescape", biUnescape)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func asSeq(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case map[string]any:
		keys := make([]any, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].(string) < keys[j].(string) })
		return keys, true
	case string:
		out := make([]any, 0, len(s))
		for _, r := range s {
			out = append(out, string(r))
		}
		return out, true
	default:
		return nil, false
	}
}

func biAbs(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("abs: unsupported operand type %T", v)
	}
	if i, isInt := v.(int64); isInt {
		if i < 0 {
			i = -i
		}
		return i, nil
	}
	return math.Abs(f), nil
}

func biMin(args ...any) (any, error) {
	items := args
	if len(args) == 1 {
		if seq, ok := asSeq(args[0]); ok {
			items = seq
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("min: empty sequence")
	}
	best := items[0]
	bestF, _ := toFloat(best)
	for _, it := range items[1:] {
		f, ok := toFloat(it)
		if ok && f < bestF {
			best, bestF = it, f
		}
	}
	return best, nil
}

func biMax(args ...any) (any, error) {
	items := args
	if len(args) == 1 {
		if seq, ok := asSeq(args[0]); ok {
			items = seq
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("max: empty sequence")
	}
	best := items[0]
	bestF, _ := toFloat(best)
	for _, it := range items[1:] {
		f, ok := toFloat(it)
		if ok && f > bestF {
			best, bestF = it, f
		}
	}
	return best, nil
}

func biSum(v any) (any, error) {
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("sum: unsupported operand type %T", v)
	}
	var total float64
	for _, it := range seq {
		f, ok := toFloat(it)
		if !ok {
			return nil, fmt.Errorf("sum: unsupported element type %T", it)
		}
		total += f
	}
	return total, nil
}

func biRound(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("round: expected at least one argument")
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("round: unsupported operand type %T", args[0])
	}
	ndigits := 0
	if len(args) > 1 {
		nf, ok := toFloat(args[1])
		if ok {
			ndigits = int(nf)
		}
	}
	mult := math.Pow(10, float64(ndigits))
	return math.Round(f*mult) / mult, nil
}

func biPow(base, exp any) (any, error) {
	b, ok1 := toFloat(base)
	e, ok2 := toFloat(exp)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("pow: unsupported operand types")
	}
	return math.Pow(b, e), nil
}

func biLen(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return int64(len([]rune(s))), nil
	case []any:
		return int64(len(s)), nil
	case map[string]any:
		return int64(len(s)), nil
	default:
		return nil, fmt.Errorf("len: unsupported operand type %T", v)
	}
}

func biInt(v any) (any, error) {
	switch n := v.(type) {
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return nil, fmt.Errorf("int: invalid literal %q", n)
			}
			return int64(f), nil
		}
		return i, nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("int: unsupported operand type %T", v)
		}
		return int64(f), nil
	}
}

func biFloat(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("float: unsupported operand type %T", v)
	}
	return f, nil
}

func biStr(v any) (any, error) {
	return stringify(v), nil
}

func biBool(v any) (any, error) {
	return truthy(v), nil
}

func biList(v any) (any, error) {
	if v == nil {
		return []any{}, nil
	}
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("list: unsupported operand type %T", v)
	}
	return seq, nil
}

func biDict(args ...any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	switch v := args[0].(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case []any:
		out := make(map[string]any, len(v))
		for _, pair := range v {
			p, ok := pair.([]any)
			if !ok || len(p) != 2 {
				return nil, fmt.Errorf("dict: expected sequence of 2-element pairs")
			}
			key, ok := p[0].(string)
			if !ok {
				return nil, fmt.Errorf("dict: pair key must be a string")
			}
			out[key] = p[1]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dict: unsupported operand type %T", args[0])
	}
}

func biSorted(v any) (any, error) {
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("sorted: unsupported operand type %T", v)
	}
	out := make([]any, len(seq))
	copy(out, seq)
	sort.SliceStable(out, func(i, j int) bool {
		fi, iok := toFloat(out[i])
		fj, jok := toFloat(out[j])
		if iok && jok {
			return fi < fj
		}
		return stringify(out[i]) < stringify(out[j])
	})
	return out, nil
}

func biReversed(v any) (any, error) {
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("reversed: unsupported operand type %T", v)
	}
	out := make([]any, len(seq))
	for i, item := range seq {
		out[len(seq)-1-i] = item
	}
	return out, nil
}

func biEnumerate(v any) (any, error) {
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("enumerate: unsupported operand type %T", v)
	}
	out := make([]any, len(seq))
	for i, item := range seq {
		out[i] = []any{int64(i), item}
	}
	return out, nil
}

func biRange(args ...any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		f, ok := toFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("range: unsupported operand type")
		}
		stop = int64(f)
	case 2, 3:
		fs, ok1 := toFloat(args[0])
		fe, ok2 := toFloat(args[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("range: unsupported operand type")
		}
		start, stop = int64(fs), int64(fe)
		if len(args) == 3 {
			fstep, ok := toFloat(args[2])
			if !ok || fstep == 0 {
				return nil, fmt.Errorf("range: invalid step")
			}
			step = int64(fstep)
		}
	default:
		return nil, fmt.Errorf("range: expected 1 to 3 arguments")
	}

	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func biAll(v any) (any, error) {
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("all: unsupported operand type %T", v)
	}
	for _, item := range seq {
		if !truthy(item) {
			return false, nil
		}
	}
	return true, nil
}

func biAny(v any) (any, error) {
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("any: unsupported operand type %T", v)
	}
	for _, item := range seq {
		if truthy(item) {
			return true, nil
		}
	}
	return false, nil
}

func biRepr(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return strconv.Quote(s), nil
	default:
		return fmt.Sprintf("%#v", s), nil
	}
}

func biFormat(args ...any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	if len(args) == 1 {
		return stringify(args[0]), nil
	}
	spec, ok := args[1].(string)
	if !ok || spec == "" {
		return stringify(args[0]), nil
	}
	return fmt.Sprintf("%"+spec, args[0]), nil
}

func biType(v any) (any, error) {
	switch v.(type) {
	case nil:
		return "NoneType", nil
	case bool:
		return "bool", nil
	case int64, int:
		return "int", nil
	case float64, float32:
		return "float", nil
	case string:
		return "str", nil
	case []any:
		return "list", nil
	case map[string]any:
		return "dict", nil
	default:
		return fmt.Sprintf("%T", v), nil
	}
}

func biIsInstance(v, typeName any) (any, error) {
	t, err := biType(v)
	if err != nil {
		return nil, err
	}
	switch names := typeName.(type) {
	case string:
		return t == names, nil
	case []any:
		for _, n := range names {
			if s, ok := n.(string); ok && s == t {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// iterator is the value produced by iter() and consumed by next(); it is a
// plain Go value passed back through goja's Export/ToValue round trip.
type iterator struct {
	seq []any
	idx int
}

func biIter(v any) (any, error) {
	seq, ok := asSeq(v)
	if !ok {
		return nil, fmt.Errorf("iter: unsupported operand type %T", v)
	}
	return &iterator{seq: seq}, nil
}

func biNext(v any) (any, error) {
	it, ok := v.(*iterator)
	if !ok {
		return nil, fmt.Errorf("next: not an iterator")
	}
	if it.idx >= len(it.seq) {
		return nil, fmt.Errorf("next: StopIteration")
	}
	val := it.seq[it.idx]
	it.idx++
	return val, nil
}

func biEscape(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("escape: unsupported operand type %T", v)
	}
	return html.EscapeString(s), nil
}

func biUnescape(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("unescape: unsupported operand type %T", v)
	}
	return html.UnescapeString(s), nil
}
