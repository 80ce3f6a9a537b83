// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dtype

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

var basicTypes = map[string]reflect.Type{}

func init() {
	for _, v := range []interface{}{
		false,
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0), uintptr(0),
		float32(0), float64(0), complex64(0), complex128(0),
	} {
		t := reflect.TypeOf(v)
		basicTypes[t.String()] = t
	}
}

// ReflectType synthesizes a Go type with the layout described by t.
// Scalars must be basic numeric types or fixed-size arrays of them;
// compound types become unnamed structs, which requires every field
// name to be exported. ReflectType fails if the synthesized layout
// differs from t.
func (t Type) ReflectType() (reflect.Type, error) {
	if t.Boxed {
		return nil, fmt.Errorf("dtype: cannot synthesize boxed type %s", t.Name)
	}
	var typ reflect.Type
	switch t.Kind {
	case Scalar:
		var err error
		typ, err = scalarType(t.Name)
		if err != nil {
			return nil, err
		}
	case Compound:
		fields := make([]reflect.StructField, len(t.Fields))
		for i, f := range t.Fields {
			if f.Name == "" || !unicode.IsUpper([]rune(f.Name)[0]) {
				return nil, fmt.Errorf("dtype: cannot synthesize unexported field %q of %s", f.Name, t.Name)
			}
			ft, err := f.Type.ReflectType()
			if err != nil {
				return nil, err
			}
			fields[i] = reflect.StructField{Name: f.Name, Type: ft}
		}
		typ = reflect.StructOf(fields)
	default:
		return nil, fmt.Errorf("dtype: invalid kind %v", t.Kind)
	}
	if got := Of(typ); !got.Equal(t) {
		return nil, fmt.Errorf("dtype: synthesized layout %s does not match %s", got, t)
	}
	return typ, nil
}

func scalarType(name string) (reflect.Type, error) {
	if typ, ok := basicTypes[name]; ok {
		return typ, nil
	}
	if !strings.HasPrefix(name, "[") {
		return nil, fmt.Errorf("dtype: cannot synthesize scalar type %s", name)
	}
	end := strings.Index(name, "]")
	if end < 0 {
		return nil, fmt.Errorf("dtype: malformed array type %s", name)
	}
	n, err := strconv.Atoi(name[1:end])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("dtype: malformed array type %s", name)
	}
	elem, err := scalarType(name[end+1:])
	if err != nil {
		return nil, err
	}
	return reflect.ArrayOf(n, elem), nil
}

// Numeric promotion classes, from narrowest to widest.
const (
	classBool = iota
	classUint
	classInt
	classFloat
	classComplex
)

func class(t reflect.Type) (int, bool) {
	switch t.Kind() {
	case reflect.Bool:
		return classBool, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return classUint, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return classInt, true
	case reflect.Float32, reflect.Float64:
		return classFloat, true
	case reflect.Complex64, reflect.Complex128:
		return classComplex, true
	default:
		return 0, false
	}
}

var classTypes = [...]reflect.Type{
	classBool:    reflect.TypeOf(false),
	classUint:    reflect.TypeOf(uint64(0)),
	classInt:     reflect.TypeOf(int64(0)),
	classFloat:   reflect.TypeOf(float64(0)),
	classComplex: reflect.TypeOf(complex128(0)),
}

// Common returns the type to which values of all the provided types
// can be converted. Identical types yield themselves. Mixed numeric
// scalar types are promoted to the widest class among them: uint64,
// int64, float64, or complex128. Any other mixture is an error.
func Common(types ...reflect.Type) (reflect.Type, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("dtype: no types")
	}
	same := true
	for _, t := range types[1:] {
		if t != types[0] {
			same = false
			break
		}
	}
	if same {
		return types[0], nil
	}
	max := -1
	for _, t := range types {
		c, ok := class(t)
		if !ok {
			return nil, fmt.Errorf("dtype: no common type for %s and %s", types[0], t)
		}
		if c > max {
			max = c
		}
	}
	return classTypes[max], nil
}
