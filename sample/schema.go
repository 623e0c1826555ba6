package sample

import (
	"fmt"
	"slices"
)

// FieldSpec pins the layout of one field.
type FieldSpec struct {
	Kind  Kind
	DType DType
	Shape []int
}

// String implements fmt.Stringer.
func (fs FieldSpec) String() string {
	if fs.Kind == KindArray {
		return fmt.Sprintf("%s%v", fs.DType, fs.Shape)
	}
	return fmt.Sprintf("scalar(%d)", fs.Kind)
}

// Schema pins the field set and per-field layout of a dataset's samples.
//
// A schema is derived once from the first materialized sample and is
// immutable for the lifetime of a cache backend. Every subsequently
// stored sample must conform exactly.
type Schema map[string]FieldSpec

// SchemaOf derives a schema from the given sample.
func SchemaOf(s *Sample) Schema {
	schema := make(Schema, s.Len())
	for _, name := range s.Fields() {
		v, _ := s.Get(name)
		spec := FieldSpec{Kind: v.Kind}
		if v.Kind == KindArray {
			spec.DType = v.Arr.DType
			spec.Shape = slices.Clone(v.Arr.Shape)
		}
		schema[name] = spec
	}
	return schema
}

// ArrayFields returns the names of array-valued fields in sorted order.
func (sc Schema) ArrayFields() []string {
	var names []string
	for name, spec := range sc {
		if spec.Kind == KindArray {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// ScalarFields returns the names of scalar fields in sorted order.
func (sc Schema) ScalarFields() []string {
	var names []string
	for name, spec := range sc {
		if spec.Kind != KindArray {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// ItemBytes returns the total array payload of one conforming item.
func (sc Schema) ItemBytes() int {
	total := 0
	for _, spec := range sc {
		if spec.Kind != KindArray {
			continue
		}
		n := spec.DType.Size()
		for _, dim := range spec.Shape {
			n *= dim
		}
		total += n
	}
	return total
}

// Rename moves a field spec from old to new.
func (sc Schema) Rename(old, new string) {
	if spec, ok := sc[old]; ok {
		delete(sc, old)
		sc[new] = spec
	}
}

// SchemaError reports a sample that disagrees with the pinned schema.
// It is a programming-contract violation, never recovered from.
type SchemaError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation on field %q: %s", e.Field, e.Reason)
}

// Validate checks a sample against the schema. Missing fields, extra
// fields, and dtype/shape mismatches on array fields all fail.
func (sc Schema) Validate(s *Sample) error {
	if s.Len() != len(sc) {
		for _, name := range s.Fields() {
			if _, ok := sc[name]; !ok {
				return &SchemaError{Field: name, Reason: "field not in schema"}
			}
		}
	}
	for name, spec := range sc {
		v, ok := s.Get(name)
		if !ok {
			return &SchemaError{Field: name, Reason: "field missing from sample"}
		}
		if v.Kind != spec.Kind {
			return &SchemaError{Field: name, Reason: fmt.Sprintf("kind mismatch: want %d, got %d", spec.Kind, v.Kind)}
		}
		if spec.Kind != KindArray {
			continue
		}
		if v.Arr == nil {
			return &SchemaError{Field: name, Reason: "nil array"}
		}
		if v.Arr.DType != spec.DType {
			return &SchemaError{Field: name, Reason: fmt.Sprintf("dtype mismatch: want %s, got %s", spec.DType, v.Arr.DType)}
		}
		if !slices.Equal(v.Arr.Shape, spec.Shape) {
			return &SchemaError{Field: name, Reason: fmt.Sprintf("shape mismatch: want %v, got %v", spec.Shape, v.Arr.Shape)}
		}
	}
	return nil
}
