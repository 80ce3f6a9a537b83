// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package frame

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/grailbio/darray/dtype"
)

// CanBytes tells whether frames of element type t can be viewed as
// raw bytes.
func CanBytes(t reflect.Type) bool { return !dtype.HasPointers(t) }

// sliceHeader is a safe version of SliceHeader used within this package.
type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

// Bytes returns the memory backing f's elements as a byte slice. The
// returned slice aliases f. Bytes panics if f's element type holds
// pointers.
func (f Frame) Bytes() []byte {
	if !f.IsValid() {
		return nil
	}
	elem := f.ElemType()
	if dtype.HasPointers(elem) {
		panic(fmt.Sprintf("frame.Bytes: element type %v holds pointers", elem))
	}
	n := f.data.Len() * int(elem.Size())
	if n == 0 {
		return nil
	}
	var b []byte
	hdr := (*sliceHeader)(unsafe.Pointer(&b))
	hdr.Data = unsafe.Pointer(f.data.Pointer())
	hdr.Len = n
	hdr.Cap = n
	return b
}

// FromBytes returns a new frame of element type typ and the provided
// trailing shape whose contents are copied from p. The length of p
// must be a whole number of rows.
func FromBytes(typ reflect.Type, p []byte, trailing ...int) Frame {
	w := product(trailing) * int(typ.Size())
	var rows int
	if w > 0 {
		if len(p)%w != 0 {
			panic(fmt.Sprintf("frame.FromBytes: %d bytes is not a whole number of %d-byte rows", len(p), w))
		}
		rows = len(p) / w
	}
	f := Make(typ, rows, trailing...)
	copy(f.Bytes(), p)
	return f
}
