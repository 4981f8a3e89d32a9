package graph

import (
	"maps"
	"slices"
)

// View is a read-only window onto a State. Handlers and routers receive a View
// rather than the State itself, so the fields they can observe are exactly the
// fields the executor chose to expose.
type View struct {
	values  map[string]any
	allowed map[string]struct{}
}

// NewView builds a View over a copy of values. It is mainly useful for
// exercising handlers in tests.
func NewView(values map[string]any) View {
	return View{values: maps.Clone(values)}
}

func (v View) visible(field string) bool {
	if v.allowed == nil {
		return true
	}
	_, ok := v.allowed[field]
	return ok
}

// restrict narrows the view to the given fields.
func (v View) restrict(fields []string) View {
	allowed := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if v.visible(f) {
			allowed[f] = struct{}{}
		}
	}
	return View{values: v.values, allowed: allowed}
}

// Get returns a copy of the value of field if it is present and visible.
// Maps and slices are deep copied, so writing to them never reaches the state.
func (v View) Get(field string) (any, bool) {
	if !v.visible(field) {
		return nil, false
	}
	value, ok := v.values[field]
	if !ok {
		return nil, false
	}
	return cloneValue(value), true
}

// Has reports whether field is present and visible.
func (v View) Has(field string) bool {
	if !v.visible(field) {
		return false
	}
	_, ok := v.values[field]
	return ok
}

// Fields returns the visible field names holding a value, sorted.
func (v View) Fields() []string {
	names := make([]string, 0, len(v.values))
	for name := range v.values {
		if v.visible(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// String returns field as a string, or "" when absent or of another type.
func (v View) String(field string) string {
	s, _ := Lookup[string](v, field)
	return s
}

// Bool returns field as a bool, or false when absent or of another type.
func (v View) Bool(field string) bool {
	b, _ := Lookup[bool](v, field)
	return b
}

// Strings returns field as a string slice. A []any holding only strings is
// converted.
func (v View) Strings(field string) []string {
	value, ok := v.Get(field)
	if !ok {
		return nil
	}
	switch vv := value.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

// StringMap returns field as a map of strings. A map[string]any holding only
// strings is converted.
func (v View) StringMap(field string) map[string]string {
	value, ok := v.Get(field)
	if !ok {
		return nil
	}
	switch vv := value.(type) {
	case map[string]string:
		return vv
	case map[string]any:
		out := make(map[string]string, len(vv))
		for k, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out[k] = s
		}
		return out
	}
	return nil
}

// Lookup returns field converted to T.
func Lookup[T any](v View, field string) (T, bool) {
	var zero T
	value, ok := v.Get(field)
	if !ok {
		return zero, false
	}
	t, ok := value.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
