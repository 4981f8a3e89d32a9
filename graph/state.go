package graph

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

// FieldBranchErrors is declared on every graph. Fan-out records the failure of
// each branch under the branch key.
const FieldBranchErrors = "branch_errors"

// MergePolicy governs how a partial update combines with the value already
// held by a field.
type MergePolicy int

const (
	// Replace overwrites the previous value.
	Replace MergePolicy = iota
	// Append concatenates a sequence onto the existing sequence.
	Append
	// UnionMerge shallow-merges a string-keyed mapping; incoming keys win.
	UnionMerge
)

func (p MergePolicy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	case UnionMerge:
		return "union-merge"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Field declares a state field and its merge policy. Schema optionally
// constrains every value written to the field.
type Field struct {
	Name   string
	Policy MergePolicy
	Schema *jsonschema.Schema
}

// Update is the partial state returned by a stage handler.
type Update map[string]any

// State is an immutable snapshot of a case. Every change produces a new State
// through Schema.ApplyPartial; values are shared between snapshots and must
// be treated as read-only.
type State struct {
	values map[string]any
}

// Get returns the value of field, if present.
func (s State) Get(field string) (any, bool) {
	v, ok := s.values[field]
	return v, ok
}

// Len returns the number of fields holding a value.
func (s State) Len() int {
	return len(s.values)
}

// Fields returns the names of the fields holding a value, sorted.
func (s State) Fields() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Map returns a shallow copy of the state values.
func (s State) Map() map[string]any {
	if s.values == nil {
		return map[string]any{}
	}
	return maps.Clone(s.values)
}

// View exposes the whole state read-only.
func (s State) View() View {
	return View{values: s.values}
}

// MarshalJSON encodes the state as a JSON object.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// Schema is the field policy table of a compiled graph.
type Schema struct {
	fields map[string]fieldSpec
}

type fieldSpec struct {
	Field
	resolved *jsonschema.Resolved
}

// NewSchema builds a policy table from field declarations.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]fieldSpec, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("graph: field name is empty")
		}
		if _, ok := s.fields[f.Name]; ok {
			return nil, fmt.Errorf("graph: field %s declared twice", f.Name)
		}
		spec := fieldSpec{Field: f}
		if f.Schema != nil {
			resolved, err := f.Schema.Resolve(nil)
			if err != nil {
				return nil, fmt.Errorf("graph: field %s: %w", f.Name, err)
			}
			spec.resolved = resolved
		}
		s.fields[f.Name] = spec
	}
	return s, nil
}

// Policy returns the merge policy of a declared field.
func (s *Schema) Policy(field string) (MergePolicy, bool) {
	spec, ok := s.fields[field]
	return spec.Policy, ok
}

// Has reports whether field is declared.
func (s *Schema) Has(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// Fields returns the declared fields sorted by name.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.fields))
	for _, name := range slices.Sorted(maps.Keys(s.fields)) {
		out = append(out, s.fields[name].Field)
	}
	return out
}

// ApplyPartial returns a new State in which every key of update has been
// combined with the existing value according to its field policy. The input
// state is never modified.
func (s *Schema) ApplyPartial(state State, update Update) (State, error) {
	next := State{values: state.Map()}
	for _, name := range slices.Sorted(maps.Keys(update)) {
		spec, err := s.check(name, update[name])
		if err != nil {
			return state, err
		}
		existing, present := next.values[name]
		merged, err := mergeValue(spec.Policy, existing, present, update[name])
		if err != nil {
			return state, &SchemaViolation{Field: name, Reason: err.Error()}
		}
		next.values[name] = merged
	}
	return next, nil
}

// Combine folds two partial updates into one so that applying the result
// equals applying a and then b.
func (s *Schema) Combine(a, b Update) (Update, error) {
	out := make(Update, len(a)+len(b))
	maps.Copy(out, a)
	for _, name := range slices.Sorted(maps.Keys(b)) {
		spec, err := s.check(name, b[name])
		if err != nil {
			return nil, err
		}
		existing, present := out[name]
		merged, err := mergeValue(spec.Policy, existing, present, b[name])
		if err != nil {
			return nil, &SchemaViolation{Field: name, Reason: err.Error()}
		}
		out[name] = merged
	}
	return out, nil
}

func (s *Schema) check(name string, value any) (fieldSpec, error) {
	spec, ok := s.fields[name]
	if !ok {
		return spec, &SchemaViolation{Field: name, Reason: "field is not declared"}
	}
	if spec.resolved != nil && value != nil {
		if err := spec.resolved.Validate(value); err != nil {
			return spec, &SchemaViolation{Field: name, Reason: err.Error()}
		}
	}
	return spec, nil
}

func mergeValue(policy MergePolicy, existing any, present bool, incoming any) (any, error) {
	switch policy {
	case Append:
		return appendValues(existing, present, incoming)
	case UnionMerge:
		return unionValues(existing, present, incoming)
	default:
		return incoming, nil
	}
}

// appendValues concatenates two slices into a fresh one. The element type is
// kept when both sides agree, otherwise the result is []any.
func appendValues(existing any, present bool, incoming any) (any, error) {
	in := reflect.ValueOf(incoming)
	if incoming == nil {
		in = reflect.ValueOf([]any(nil))
	}
	if in.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append needs a sequence, got %T", incoming)
	}
	if !present || existing == nil {
		out := reflect.MakeSlice(in.Type(), 0, in.Len())
		return reflect.AppendSlice(out, in).Interface(), nil
	}
	cur := reflect.ValueOf(existing)
	if cur.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append onto non-sequence %T", existing)
	}
	if cur.Type() == in.Type() {
		out := reflect.MakeSlice(cur.Type(), 0, cur.Len()+in.Len())
		out = reflect.AppendSlice(out, cur)
		return reflect.AppendSlice(out, in).Interface(), nil
	}
	out := make([]any, 0, cur.Len()+in.Len())
	for i := 0; i < cur.Len(); i++ {
		out = append(out, cur.Index(i).Interface())
	}
	for i := 0; i < in.Len(); i++ {
		out = append(out, in.Index(i).Interface())
	}
	return out, nil
}

// unionValues shallow-merges two string-keyed maps into a fresh one. The map
// type is kept when both sides agree, otherwise the result is map[string]any.
func unionValues(existing any, present bool, incoming any) (any, error) {
	in := reflect.ValueOf(incoming)
	if incoming == nil {
		in = reflect.ValueOf(map[string]any(nil))
	}
	if in.Kind() != reflect.Map || in.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("union-merge needs a string-keyed mapping, got %T", incoming)
	}
	if !present || existing == nil {
		out := reflect.MakeMapWithSize(in.Type(), in.Len())
		copyMap(out, in)
		return out.Interface(), nil
	}
	cur := reflect.ValueOf(existing)
	if cur.Kind() != reflect.Map || cur.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("union-merge onto non-mapping %T", existing)
	}
	if cur.Type() == in.Type() {
		out := reflect.MakeMapWithSize(cur.Type(), cur.Len()+in.Len())
		copyMap(out, cur)
		copyMap(out, in)
		return out.Interface(), nil
	}
	out := make(map[string]any, cur.Len()+in.Len())
	iter := cur.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	iter = in.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}

func copyMap(dst, src reflect.Value) {
	iter := src.MapRange()
	for iter.Next() {
		dst.SetMapIndex(iter.Key(), iter.Value())
	}
}

// cloneValue returns v with every nested map and slice copied. Other values
// are returned as is.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		return cloneReflect(v.Elem())
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	default:
		return v
	}
}
