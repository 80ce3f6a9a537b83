// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dtype

import (
	"reflect"
	"strings"
	"testing"
)

type position struct {
	X, Y, Z float64
}

type particle struct {
	ID   uint64
	Pos  position
	Mass float32
	Tag  [2]int16
}

type named struct {
	Name string
	N    int
}

func TestOf(t *testing.T) {
	typ := Of(reflect.TypeOf(particle{}))
	if !typ.IsCompound() {
		t.Fatal("expected compound type")
	}
	if got, want := len(typ.Fields), 4; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	pos, ok := typ.Field("Pos")
	if !ok {
		t.Fatal("no field Pos")
	}
	if got, want := pos.Type.Kind, Compound; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := pos.Offset, 8; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	tag, _ := typ.Field("Tag")
	if got, want := tag.Type.Name, "[2]int16"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok := typ.BoxedPath(); ok {
		t.Error("particle should not be boxed")
	}
	if got, want := typ.Size, int(reflect.TypeOf(particle{}).Size()); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBoxed(t *testing.T) {
	path, ok := Of(reflect.TypeOf(named{})).BoxedPath()
	if !ok {
		t.Fatal("expected boxed type")
	}
	if got, want := path, "Name"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	path, ok = Of(reflect.TypeOf([]int{})).BoxedPath()
	if !ok || path != "[]int" {
		t.Errorf("got %v %v, want []int true", path, ok)
	}
	if _, ok := Of(reflect.TypeOf([4]float64{})).BoxedPath(); ok {
		t.Error("arrays of floats are not boxed")
	}
}

func TestEqual(t *testing.T) {
	type a struct{ X, Y int32 }
	type b struct{ X, Y int32 }
	type c struct{ Y, X int32 }
	type d struct{ X, Y int64 }
	ta, tb := Of(reflect.TypeOf(a{})), Of(reflect.TypeOf(b{}))
	if !ta.Equal(tb) {
		t.Errorf("%s and %s should be equal", ta, tb)
	}
	if ta.Fingerprint() != tb.Fingerprint() {
		t.Error("fingerprints differ for equal types")
	}
	for _, v := range []interface{}{c{}, d{}, int32(0), struct{ X int32 }{}} {
		tv := Of(reflect.TypeOf(v))
		if ta.Equal(tv) {
			t.Errorf("%s and %s should not be equal", ta, tv)
		}
	}
	if Of(reflect.TypeOf(int32(0))).Equal(Of(reflect.TypeOf(uint32(0)))) {
		t.Error("int32 and uint32 should not be equal")
	}
}

func TestWalk(t *testing.T) {
	var leaves []string
	err := Of(reflect.TypeOf(particle{})).Walk(func(path []string, leaf Type) error {
		leaves = append(leaves, strings.Join(path, ".")+":"+leaf.Name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ID:uint64", "Pos.X:float64", "Pos.Y:float64", "Pos.Z:float64", "Mass:float32", "Tag:[2]int16"}
	if !reflect.DeepEqual(leaves, want) {
		t.Errorf("got %v, want %v", leaves, want)
	}
}

func TestReflectType(t *testing.T) {
	for _, v := range []interface{}{
		int8(0), uint64(0), complex64(0), [3]float32{}, [2][2]uint16{}, position{},
		struct {
			A uint8
			B [3]int64
			C struct{ D float32 }
		}{},
	} {
		want := Of(reflect.TypeOf(v))
		typ, err := want.ReflectType()
		if err != nil {
			t.Errorf("%s: %v", want, err)
			continue
		}
		if got := Of(typ); !got.Equal(want) {
			t.Errorf("got %s, want %s", got, want)
		}
	}
	type unexported struct{ x int }
	if _, err := Of(reflect.TypeOf(unexported{})).ReflectType(); err == nil {
		t.Error("expected error for unexported field")
	}
	if _, err := Of(reflect.TypeOf("")).ReflectType(); err == nil {
		t.Error("expected error for boxed type")
	}
}

func TestCommon(t *testing.T) {
	var (
		typeOfInt32   = reflect.TypeOf(int32(0))
		typeOfInt64   = reflect.TypeOf(int64(0))
		typeOfUint8   = reflect.TypeOf(uint8(0))
		typeOfUint64  = reflect.TypeOf(uint64(0))
		typeOfFloat32 = reflect.TypeOf(float32(0))
		typeOfFloat64 = reflect.TypeOf(float64(0))
		typeOfPos     = reflect.TypeOf(position{})
	)
	for _, c := range []struct {
		in   []reflect.Type
		want reflect.Type
	}{
		{[]reflect.Type{typeOfInt32, typeOfInt32}, typeOfInt32},
		{[]reflect.Type{typeOfPos, typeOfPos}, typeOfPos},
		{[]reflect.Type{typeOfUint8, typeOfUint64}, typeOfUint64},
		{[]reflect.Type{typeOfUint8, typeOfInt32}, typeOfInt64},
		{[]reflect.Type{typeOfInt32, typeOfFloat32}, typeOfFloat64},
	} {
		got, err := Common(c.in...)
		if err != nil {
			t.Errorf("%v: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("%v: got %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := Common(typeOfPos, typeOfInt32); err == nil {
		t.Error("expected error")
	}
}
