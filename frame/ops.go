// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package frame

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/spaolacci/murmur3"
)

var (
	mu        sync.Mutex
	makeOps   = map[reflect.Type]reflect.Value{}
	locations = map[reflect.Type]string{}
	typeOfOps = reflect.TypeOf((*Ops)(nil)).Elem()
)

// Ops represents a set of operations over the flat elements of a
// frame. Ops are instantiated from implementations registered with
// RegisterOps; types with a numeric underlying kind get default
// implementations.
type Ops struct {
	// Less compares two elements of a slice.
	Less func(i, j int) bool
	// HashWithSeed computes a 32-bit hash, given a seed, of an element
	// of a slice.
	HashWithSeed func(i int, seed uint32) uint32
}

// RegisterOps registers an ops implementation. The provided argument
// make should be a function of the form
//
//	func(slice []t) Ops
//
// returning operations for a t-typed slice. RegisterOps panics if
// the argument does not have the required shape or if operations
// have already been registered for type t.
func RegisterOps(make interface{}) {
	typ := reflect.TypeOf(make)
	check := func(ok bool) {
		if !ok {
			panic("frame.RegisterOps: bad type " + typ.String() + "; expected func([]t) frame.Ops")
		}
	}
	check(typ.Kind() == reflect.Func)
	check(typ.NumIn() == 1 && typ.In(0).Kind() == reflect.Slice)
	check(typ.NumOut() == 1 && typ.Out(0) == typeOfOps)
	elem := typ.In(0).Elem()
	mu.Lock()
	defer mu.Unlock()
	if _, ok := makeOps[elem]; ok {
		location, ok := locations[elem]
		if !ok {
			location = "<unknown>"
		}
		panic("frame.RegisterOps: ops already registered for type " + elem.String() + " at " + location)
	}
	makeOps[elem] = reflect.ValueOf(make)
	if _, file, line, ok := runtime.Caller(1); ok {
		locations[elem] = fmt.Sprintf("%s:%d", file, line)
	}
}

// Ops returns the operations over f's flat elements. Operations that
// are not supported by f's element type are nil.
func (f Frame) Ops() Ops {
	typ := f.ElemType()
	mu.Lock()
	make, ok := makeOps[typ]
	mu.Unlock()
	if ok {
		return make.Call([]reflect.Value{f.data})[0].Interface().(Ops)
	}
	return kindOps(f.data)
}

// CanCompare returns whether values of the provided type are ordered.
func CanCompare(typ reflect.Type) bool {
	return Make(typ, 0).Ops().Less != nil
}

// KindOps implements Ops for types with numeric underlying kinds
// through reflection.
func kindOps(v reflect.Value) Ops {
	switch v.Type().Elem().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Ops{
			Less: func(i, j int) bool { return v.Index(i).Int() < v.Index(j).Int() },
			HashWithSeed: func(i int, seed uint32) uint32 {
				return hash64(uint64(v.Index(i).Int()), seed)
			},
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Ops{
			Less: func(i, j int) bool { return v.Index(i).Uint() < v.Index(j).Uint() },
			HashWithSeed: func(i int, seed uint32) uint32 {
				return hash64(v.Index(i).Uint(), seed)
			},
		}
	case reflect.Float32, reflect.Float64:
		return Ops{
			Less: func(i, j int) bool { return v.Index(i).Float() < v.Index(j).Float() },
		}
	case reflect.Bool:
		return Ops{
			Less: func(i, j int) bool { return !v.Index(i).Bool() && v.Index(j).Bool() },
		}
	default:
		return Ops{}
	}
}

func hash64(v uint64, seed uint32) uint32 {
	var b [8]byte
	for i := range b {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return murmur3.Sum32WithSeed(b[:], seed)
}

func init() {
	RegisterOps(func(slice []int64) Ops {
		return Ops{
			Less:         func(i, j int) bool { return slice[i] < slice[j] },
			HashWithSeed: func(i int, seed uint32) uint32 { return hash64(uint64(slice[i]), seed) },
		}
	})
	RegisterOps(func(slice []uint64) Ops {
		return Ops{
			Less:         func(i, j int) bool { return slice[i] < slice[j] },
			HashWithSeed: func(i int, seed uint32) uint32 { return hash64(slice[i], seed) },
		}
	})
	RegisterOps(func(slice []int) Ops {
		return Ops{
			Less:         func(i, j int) bool { return slice[i] < slice[j] },
			HashWithSeed: func(i int, seed uint32) uint32 { return hash64(uint64(slice[i]), seed) },
		}
	})
	RegisterOps(func(slice []float64) Ops {
		return Ops{
			Less: func(i, j int) bool { return slice[i] < slice[j] },
		}
	})
	RegisterOps(func(slice []int32) Ops {
		return Ops{
			Less:         func(i, j int) bool { return slice[i] < slice[j] },
			HashWithSeed: func(i int, seed uint32) uint32 { return hash64(uint64(slice[i]), seed) },
		}
	})
}
