// Package varctx implements the nested, path-addressable variable tree that
// every pipeline run is evaluated against.
package varctx

import (
	"fmt"
	"strconv"
	"strings"
)

// NotFound is returned by Get when a dotted path does not resolve to a value.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("varctx: path not found: %q", e.Path)
}

// TypeMismatch is returned when an operation expects a sequence or mapping at
// a path and finds something else.
type TypeMismatch struct {
	Path string
	Want string
	Got  any
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("varctx: %q: expected %s, got %T", e.Path, e.Want, e.Got)
}

// Context is a tree of named values: leaves are scalars (bool, int, float,
// string, nil, []byte); interior nodes are map[string]any or []any. Keys
// never contain '.'; dotted paths address into the tree.
//
// A Context is not safe for concurrent mutation. Each task evaluation owns
// either the root Context or a Child() of it; scope propagation between
// tasks is always explicit.
type Context struct {
	root map[string]any
}

// New creates an empty Context.
func New() *Context {
	return &Context{root: make(map[string]any)}
}

// FromMap wraps an existing map as the root of a Context. The map is used
// directly, not copied; callers that need isolation should call Child first.
func FromMap(m map[string]any) *Context {
	if m == nil {
		m = make(map[string]any)
	}
	return &Context{root: m}
}

// Raw returns the underlying root mapping. Callers must not mutate it
// directly if the Context is shared.
func (c *Context) Raw() map[string]any {
	return c.root
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get resolves a dotted path. Integer segments index into sequences.
// Returns a *NotFound error (use errors.As) if the path does not resolve.
func (c *Context) Get(path string) (any, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return c.root, nil
	}
	var cur any = c.root
	for i, seg := range segs {
		next, ok := descend(cur, seg)
		if !ok {
			return nil, &NotFound{Path: path}
		}
		cur = next
		_ = i
	}
	return cur, nil
}

func descend(cur any, seg string) (any, bool) {
	switch v := cur.(type) {
	case map[string]any:
		val, ok := v[seg]
		return val, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return v[idx], true
	default:
		return nil, false
	}
}

// Set assigns value at path, creating intermediate mappings as needed.
// Sequence indexing by integer path segment is only permitted on an
// already-existing sequence; it cannot grow or create one.
func (c *Context) Set(path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		if m, ok := value.(map[string]any); ok {
			c.root = m
			return nil
		}
		return &TypeMismatch{Path: path, Want: "map", Got: value}
	}
	return setInto(c.root, segs, value, path)
}

func setInto(container map[string]any, segs []string, value any, fullPath string) error {
	seg := segs[0]
	if len(segs) == 1 {
		container[seg] = value
		return nil
	}

	existing, ok := container[seg]
	if !ok || existing == nil {
		child := make(map[string]any)
		container[seg] = child
		return setInto(child, segs[1:], value, fullPath)
	}

	switch v := existing.(type) {
	case map[string]any:
		return setInto(v, segs[1:], value, fullPath)
	case []any:
		idx, err := strconv.Atoi(segs[1])
		if err != nil {
			return &TypeMismatch{Path: fullPath, Want: "map key", Got: existing}
		}
		if idx < 0 || idx >= len(v) {
			return &TypeMismatch{Path: fullPath, Want: "in-range sequence index", Got: idx}
		}
		if len(segs) == 2 {
			v[idx] = value
			return nil
		}
		sub, ok := v[idx].(map[string]any)
		if !ok {
			return &TypeMismatch{Path: fullPath, Want: "map", Got: v[idx]}
		}
		return setInto(sub, segs[2:], value, fullPath)
	default:
		return &TypeMismatch{Path: fullPath, Want: "map", Got: existing}
	}
}

// Append appends value to the sequence at path. If the path exists it must
// hold a []any; otherwise Append fails with *TypeMismatch. A path that does
// not yet exist is created as a new empty sequence first.
func (c *Context) Append(path string, value any) error {
	existing, err := c.Get(path)
	if err != nil {
		var nf *NotFound
		if !asNotFound(err, &nf) {
			return err
		}
		return c.Set(path, []any{value})
	}
	seq, ok := existing.([]any)
	if !ok {
		return &TypeMismatch{Path: path, Want: "sequence", Got: existing}
	}
	return c.Set(path, append(seq, value))
}

func asNotFound(err error, target **NotFound) bool {
	nf, ok := err.(*NotFound)
	if ok {
		*target = nf
	}
	return ok
}

// Merge deep-overlays other onto c. Scalars and sequences in other replace
// the corresponding value in c wholesale; only maps recurse.
func (c *Context) Merge(other map[string]any) {
	c.root = mergeMaps(c.root, other)
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for k, sv := range src {
		if dv, ok := dst[k]; ok {
			dm, dIsMap := dv.(map[string]any)
			sm, sIsMap := sv.(map[string]any)
			if dIsMap && sIsMap {
				dst[k] = mergeMaps(cloneMap(dm), sm)
				continue
			}
		}
		dst[k] = deepCopy(sv)
	}
	return dst
}

// Child returns an independent copy of c; mutations to the child never leak
// back into the parent (copy-on-scope).
func (c *Context) Child() *Context {
	return &Context{root: cloneMap(c.root)}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneMap(vv)
	case []any:
		return cloneSlice(vv)
	default:
		return vv
	}
}

// Merged returns a new Context whose root is parent deep-merged with the
// given overlay, without mutating either input.
func Merged(parent *Context, overlay map[string]any) *Context {
	child := parent.Child()
	child.Merge(overlay)
	return child
}
