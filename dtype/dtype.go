// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dtype describes the element types carried by striped arrays.
// A Type is a closed variant: either a fixed-width Scalar or a
// Compound made of named fields, each of which is again a Type. Types
// are derived from Go types and are gob-encodable so that ranks can
// exchange and compare them before moving any data.
package dtype

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Kind distinguishes the two variants of a Type.
type Kind int

const (
	// Scalar is a flat, fixed-width element. Fixed-size Go arrays are
	// scalars: they are moved as opaque runs of bytes.
	Scalar Kind = iota
	// Compound is an ordered list of named fields.
	Compound
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Compound:
		return "compound"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// A Type describes the layout of a single array element.
type Type struct {
	Kind Kind
	// Name is the Go name of the type, e.g., "float64", "[3]int32", or
	// "main.particle". Names of compound types are informational only
	// and do not participate in equality.
	Name string
	// Size is the width of the element in bytes.
	Size int
	// Boxed is true for scalar types that hold pointers (strings,
	// slices, maps, interfaces, and so on). Boxed types cannot be
	// transmitted as raw bytes.
	Boxed bool
	// Fields holds the fields of a compound type, in declaration order.
	Fields []Field
}

// A Field is a named member of a compound type.
type Field struct {
	Name   string
	Offset int
	Type   Type
}

// Of returns the Type describing Go type t.
func Of(t reflect.Type) Type {
	if t.Kind() == reflect.Struct {
		typ := Type{Kind: Compound, Name: t.String(), Size: int(t.Size())}
		typ.Fields = make([]Field, t.NumField())
		for i := range typ.Fields {
			f := t.Field(i)
			typ.Fields[i] = Field{Name: f.Name, Offset: int(f.Offset), Type: Of(f.Type)}
		}
		return typ
	}
	return Type{
		Kind:  Scalar,
		Name:  t.String(),
		Size:  int(t.Size()),
		Boxed: HasPointers(t),
	}
}

// IsCompound tells whether t is a compound type.
func (t Type) IsCompound() bool { return t.Kind == Compound }

// Field returns the field with the provided name.
func (t Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Walk calls fn for every scalar leaf of t, in field order. The path
// names the fields leading to the leaf; it is empty when t itself is a
// scalar. Walk stops at the first error returned by fn.
func (t Type) Walk(fn func(path []string, leaf Type) error) error {
	return walk(t, nil, fn)
}

func walk(t Type, path []string, fn func([]string, Type) error) error {
	if t.Kind == Scalar {
		return fn(path, t)
	}
	for _, f := range t.Fields {
		if err := walk(f.Type, append(path[:len(path):len(path)], f.Name), fn); err != nil {
			return err
		}
	}
	return nil
}

// BoxedPath returns the dotted path of the first boxed leaf in t,
// and whether one was found. The path of a boxed scalar is its name.
func (t Type) BoxedPath() (string, bool) {
	var found string
	errFound := fmt.Errorf("found")
	err := t.Walk(func(path []string, leaf Type) error {
		if !leaf.Boxed {
			return nil
		}
		if len(path) == 0 {
			found = leaf.Name
		} else {
			found = strings.Join(path, ".")
		}
		return errFound
	})
	return found, err == errFound
}

// Equal tells whether t and u describe the same layout: the same
// variant, width, field names, offsets and (recursively) field types.
func (t Type) Equal(u Type) bool {
	if t.Kind != u.Kind || t.Size != u.Size {
		return false
	}
	if t.Kind == Scalar {
		return t.Name == u.Name && t.Boxed == u.Boxed
	}
	if len(t.Fields) != len(u.Fields) {
		return false
	}
	for i := range t.Fields {
		f, g := t.Fields[i], u.Fields[i]
		if f.Name != g.Name || f.Offset != g.Offset || !f.Type.Equal(g.Type) {
			return false
		}
	}
	return true
}

// String returns a canonical representation of t. Types that are
// Equal have identical strings.
func (t Type) String() string {
	if t.Kind == Scalar {
		return t.Name
	}
	var b strings.Builder
	b.WriteString("{")
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s@%d", f.Name, f.Type, f.Offset)
	}
	fmt.Fprintf(&b, "}/%d", t.Size)
	return b.String()
}

// Fingerprint returns a 32-bit hash of t's canonical representation.
func (t Type) Fingerprint() uint32 {
	return murmur3.Sum32([]byte(t.String()))
}

// HasPointers reports whether type t contains any pointers. Values of
// such types cannot be moved between ranks as raw bytes.
func HasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return HasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if HasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
