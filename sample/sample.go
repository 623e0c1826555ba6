// Package sample defines the typed sample model shared by sources,
// transforms and cache backends.
//
// A Sample is a set of named fields. Array fields carry a fixed dtype and
// shape; scalar fields carry small typed values (labels, tags). The field
// set and the per-field layout are pinned by a Schema derived from the
// first materialized sample and enforced on every subsequent write.
package sample

import (
	"bytes"
	"fmt"
	"slices"
	"unsafe"
)

// DType identifies the element type of an Array.
type DType uint8

const (
	// DTypeInvalid represents an invalid dtype.
	DTypeInvalid DType = iota
	// DTypeUint8 is an 8-bit unsigned integer.
	DTypeUint8
	// DTypeInt16 is a 16-bit signed integer.
	DTypeInt16
	// DTypeUint16 is a 16-bit unsigned integer.
	DTypeUint16
	// DTypeInt32 is a 32-bit signed integer.
	DTypeInt32
	// DTypeUint32 is a 32-bit unsigned integer.
	DTypeUint32
	// DTypeFloat32 is a 32-bit float.
	DTypeFloat32
	// DTypeFloat64 is a 64-bit float.
	DTypeFloat64
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case DTypeUint8:
		return 1
	case DTypeInt16, DTypeUint16:
		return 2
	case DTypeInt32, DTypeUint32, DTypeFloat32:
		return 4
	case DTypeFloat64:
		return 8
	default:
		return 0
	}
}

// String implements fmt.Stringer.
func (d DType) String() string {
	switch d {
	case DTypeUint8:
		return "uint8"
	case DTypeInt16:
		return "int16"
	case DTypeUint16:
		return "uint16"
	case DTypeInt32:
		return "int32"
	case DTypeUint32:
		return "uint32"
	case DTypeFloat32:
		return "float32"
	case DTypeFloat64:
		return "float64"
	default:
		return "invalid"
	}
}

// Array is a contiguous multi-dimensional array in row-major order.
//
// Data holds the elements in native byte order. Typed accessors
// reinterpret the backing bytes without copying; callers that hand a
// slice to another goroutine or process boundary must Clone first.
type Array struct {
	DType DType
	Shape []int
	Data  []byte
}

// NewArray allocates a zeroed array of the given dtype and shape.
func NewArray(dtype DType, shape ...int) *Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Array{
		DType: dtype,
		Shape: slices.Clone(shape),
		Data:  make([]byte, n*dtype.Size()),
	}
}

// NumElems returns the number of elements.
func (a *Array) NumElems() int {
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	return n
}

// NumBytes returns the size of the backing data in bytes.
func (a *Array) NumBytes() int { return len(a.Data) }

// Ndim returns the number of dimensions.
func (a *Array) Ndim() int { return len(a.Shape) }

// Clone returns a deep copy of the array.
func (a *Array) Clone() *Array {
	return &Array{
		DType: a.DType,
		Shape: slices.Clone(a.Shape),
		Data:  bytes.Clone(a.Data),
	}
}

// Equal reports whether two arrays have identical dtype, shape and bytes.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.DType == b.DType && slices.Equal(a.Shape, b.Shape) && bytes.Equal(a.Data, b.Data)
}

// Uint8s returns the elements as a []uint8 view over the backing bytes.
func (a *Array) Uint8s() []uint8 { return a.Data }

// Int16s returns the elements as an []int16 view over the backing bytes.
func (a *Array) Int16s() []int16 {
	if len(a.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&a.Data[0])), len(a.Data)/2)
}

// Uint16s returns the elements as a []uint16 view over the backing bytes.
func (a *Array) Uint16s() []uint16 {
	if len(a.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&a.Data[0])), len(a.Data)/2)
}

// Int32s returns the elements as an []int32 view over the backing bytes.
func (a *Array) Int32s() []int32 {
	if len(a.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&a.Data[0])), len(a.Data)/4)
}

// Uint32s returns the elements as a []uint32 view over the backing bytes.
func (a *Array) Uint32s() []uint32 {
	if len(a.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&a.Data[0])), len(a.Data)/4)
}

// Float32s returns the elements as a []float32 view over the backing bytes.
func (a *Array) Float32s() []float32 {
	if len(a.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&a.Data[0])), len(a.Data)/4)
}

// Float64s returns the elements as a []float64 view over the backing bytes.
func (a *Array) Float64s() []float64 {
	if len(a.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&a.Data[0])), len(a.Data)/8)
}

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindArray represents an array value.
	KindArray
	// KindInt represents an integer scalar.
	KindInt
	// KindFloat represents a float scalar.
	KindFloat
	// KindString represents a string scalar.
	KindString
)

// Value is a tagged field value: either an array or a small scalar.
//
// Scalars cover ground-truth columns (class ids, regression targets,
// tags) that live in process-local tables and are never mirrored into a
// cache backend.
type Value struct {
	Kind Kind
	Arr  *Array
	I64  int64
	F64  float64
	Str  string
}

// ArrayValue wraps an array.
func ArrayValue(a *Array) Value { return Value{Kind: KindArray, Arr: a} }

// Int wraps an integer scalar.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float wraps a float scalar.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String wraps a string scalar.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// IsArray reports whether the value holds an array.
func (v Value) IsArray() bool { return v.Kind == KindArray }

// Clone deep-copies the value.
func (v Value) Clone() Value {
	if v.Kind == KindArray && v.Arr != nil {
		return Value{Kind: KindArray, Arr: v.Arr.Clone()}
	}
	return v
}

// Equal reports whether two values are identical.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindArray:
		return v.Arr.Equal(o.Arr)
	case KindInt:
		return v.I64 == o.I64
	case KindFloat:
		return v.F64 == o.F64
	case KindString:
		return v.Str == o.Str
	default:
		return true
	}
}

// Sample is a set of named field values.
type Sample struct {
	fields map[string]Value
}

// New creates an empty sample.
func New() *Sample {
	return &Sample{fields: make(map[string]Value)}
}

// Set stores a field value, replacing any previous value.
func (s *Sample) Set(name string, v Value) { s.fields[name] = v }

// SetArray stores an array field.
func (s *Sample) SetArray(name string, a *Array) { s.fields[name] = ArrayValue(a) }

// Get returns the value for a field.
func (s *Sample) Get(name string) (Value, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// Array returns the array stored under name, or nil if the field is
// missing or not array-valued.
func (s *Sample) Array(name string) *Array {
	v, ok := s.fields[name]
	if !ok || v.Kind != KindArray {
		return nil
	}
	return v.Arr
}

// Delete removes a field.
func (s *Sample) Delete(name string) { delete(s.fields, name) }

// Rename moves a field from old to new. It is a no-op if old is absent.
func (s *Sample) Rename(old, new string) {
	if v, ok := s.fields[old]; ok {
		delete(s.fields, old)
		s.fields[new] = v
	}
}

// Has reports whether a field exists.
func (s *Sample) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Len returns the number of fields.
func (s *Sample) Len() int { return len(s.fields) }

// Fields returns the field names in sorted order.
func (s *Sample) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for k := range s.fields {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Equal reports whether both samples hold the same fields with equal
// values.
func (s *Sample) Equal(o *Sample) bool {
	if s.Len() != o.Len() {
		return false
	}
	for name, v := range s.fields {
		ov, ok := o.fields[name]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone deep-copies the sample.
func (s *Sample) Clone() *Sample {
	out := &Sample{fields: make(map[string]Value, len(s.fields))}
	for k, v := range s.fields {
		out.fields[k] = v.Clone()
	}
	return out
}

// String implements fmt.Stringer for debugging.
func (s *Sample) String() string {
	var b bytes.Buffer
	b.WriteString("sample{")
	for i, name := range s.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		v := s.fields[name]
		switch v.Kind {
		case KindArray:
			fmt.Fprintf(&b, "%s:%s%v", name, v.Arr.DType, v.Arr.Shape)
		case KindInt:
			fmt.Fprintf(&b, "%s:%d", name, v.I64)
		case KindFloat:
			fmt.Fprintf(&b, "%s:%g", name, v.F64)
		case KindString:
			fmt.Fprintf(&b, "%s:%q", name, v.Str)
		}
	}
	b.WriteString("}")
	return b.String()
}
