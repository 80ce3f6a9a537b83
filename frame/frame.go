// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package frame contains the rank-local buffers of striped arrays.
// A Frame is a flat Go slice together with a trailing shape: row i of
// the frame consists of the RowSize() consecutive elements starting at
// element i*RowSize(). Frames of pointer-free element types can be
// viewed as raw bytes, which is how their rows travel between ranks.
package frame

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/grailbio/darray/dtype"
)

// A Frame is a row-major buffer of elements. The zero Frame is
// invalid; it stands in for "no buffer" (for example, on ranks that
// receive nothing from a gather).
//
// Rows are counted from the elements, so a frame whose trailing shape
// has a zero dimension holds no rows.
type Frame struct {
	data  reflect.Value
	shape []int
}

// Make returns a new zero-filled frame of the provided element type
// with the given number of rows and trailing shape.
func Make(typ reflect.Type, rows int, trailing ...int) Frame {
	n := rows * product(trailing)
	return Frame{
		data:  reflect.MakeSlice(reflect.SliceOf(typ), n, n),
		shape: append([]int(nil), trailing...),
	}
}

// Of returns a frame backed by the provided slice, which is not
// copied. Of panics if slice is not a slice or if its length is not a
// multiple of the product of the trailing shape.
func Of(slice interface{}, trailing ...int) Frame {
	return FromValue(reflect.ValueOf(slice), trailing...)
}

// FromValue is like Of, but takes a reflect.Value.
func FromValue(v reflect.Value, trailing ...int) Frame {
	if v.Kind() != reflect.Slice {
		panic(fmt.Sprintf("frame.Of: expected slice, got %v", v.Type()))
	}
	for _, d := range trailing {
		if d < 0 {
			panic(fmt.Sprintf("frame.Of: negative dimension in %v", trailing))
		}
	}
	if r := product(trailing); r == 0 && v.Len() != 0 || r != 0 && v.Len()%r != 0 {
		panic(fmt.Sprintf("frame.Of: slice of length %d does not hold whole rows of shape %v", v.Len(), trailing))
	}
	return Frame{data: v, shape: append([]int(nil), trailing...)}
}

// IsValid tells whether f is backed by a buffer.
func (f Frame) IsValid() bool { return f.data.IsValid() }

// Len returns the number of rows in f.
func (f Frame) Len() int {
	if !f.data.IsValid() {
		return 0
	}
	r := f.RowSize()
	if r == 0 {
		return 0
	}
	return f.data.Len() / r
}

// NumElems returns the number of elements in f.
func (f Frame) NumElems() int {
	if !f.data.IsValid() {
		return 0
	}
	return f.data.Len()
}

// RowSize returns the number of elements in each row.
func (f Frame) RowSize() int { return product(f.shape) }

// Trailing returns the trailing shape of f: the dimensions of each row.
func (f Frame) Trailing() []int { return append([]int(nil), f.shape...) }

// Shape returns the full shape of f: its length followed by its
// trailing shape.
func (f Frame) Shape() []int { return append([]int{f.Len()}, f.shape...) }

// ElemType returns the Go type of f's elements.
func (f Frame) ElemType() reflect.Type { return f.data.Type().Elem() }

// Type returns the descriptor of f's element type.
func (f Frame) Type() dtype.Type { return dtype.Of(f.ElemType()) }

// Value returns the flat slice backing f.
func (f Frame) Value() reflect.Value { return f.data }

// Interface returns the flat slice backing f.
func (f Frame) Interface() interface{} { return f.data.Interface() }

// Elem returns the ith element of the flat buffer.
func (f Frame) Elem(i int) reflect.Value { return f.data.Index(i) }

// Slice returns the rows [i, j) of f, sharing storage.
func (f Frame) Slice(i, j int) Frame {
	r := f.RowSize()
	return Frame{data: f.data.Slice(i*r, j*r), shape: f.shape}
}

// Row returns row i of f as a single-row frame sharing storage.
func (f Frame) Row(i int) Frame { return f.Slice(i, i+1) }

// Copy copies rows from src into dst and returns the number of rows
// copied. Copy panics if the element types differ.
func Copy(dst, src Frame) int {
	n := reflect.Copy(dst.data, src.data)
	if r := dst.RowSize(); r > 0 {
		return n / r
	}
	return 0
}

// Append appends the rows of g to f, returning the appended frame.
// As with Go's builtin append, the result may share storage with f.
// If f is invalid, the result has g's element type and shape.
func Append(f, g Frame) Frame {
	if !f.IsValid() {
		f = Make(g.ElemType(), 0, g.shape...)
	}
	return Frame{data: reflect.AppendSlice(f.data, g.data), shape: f.shape}
}

// Concat returns a new frame holding the rows of every provided frame
// in order. The frames must share element type and trailing shape;
// invalid frames are skipped. The result has the provided element type
// and trailing shape.
func Concat(typ reflect.Type, trailing []int, frames ...Frame) Frame {
	var n int
	for _, f := range frames {
		n += f.Len()
	}
	out := Make(typ, n, trailing...)
	var off int
	for _, f := range frames {
		if !f.IsValid() {
			continue
		}
		off += Copy(out.Slice(off, n), f)
	}
	return out
}

// Take returns a new frame whose row i is row idx[i] of f.
func (f Frame) Take(idx []int) Frame {
	out := Make(f.ElemType(), len(idx), f.shape...)
	if CanBytes(f.ElemType()) {
		var (
			w   = f.rowBytes()
			src = f.Bytes()
			dst = out.Bytes()
		)
		for i, j := range idx {
			copy(dst[i*w:(i+1)*w], src[j*w:(j+1)*w])
		}
		return out
	}
	for i, j := range idx {
		Copy(out.Row(i), f.Row(j))
	}
	return out
}

// Field returns a new frame holding the named field of every element
// of f, with f's trailing shape. Field panics if f's elements are not
// structs or lack the field.
func (f Frame) Field(name string) Frame {
	elem := f.ElemType()
	sf, ok := fieldOf(elem, name)
	if !ok {
		panic(fmt.Sprintf("frame.Field: type %v has no field %q", elem, name))
	}
	out := Make(sf.Type, f.Len(), f.shape...)
	if CanBytes(elem) {
		var (
			src = f.Bytes()
			dst = out.Bytes()
			es  = int(elem.Size())
			fs  = int(sf.Type.Size())
			off = int(sf.Offset)
		)
		for i := 0; i < f.NumElems(); i++ {
			copy(dst[i*fs:(i+1)*fs], src[i*es+off:i*es+off+fs])
		}
		return out
	}
	for i := 0; i < f.NumElems(); i++ {
		out.data.Index(i).Set(f.data.Index(i).FieldByIndex(sf.Index))
	}
	return out
}

// SetField assigns the named field of every element of f from the
// elements of col, which must have the field's type and f's number of
// elements.
func (f Frame) SetField(name string, col Frame) {
	elem := f.ElemType()
	sf, ok := fieldOf(elem, name)
	if !ok {
		panic(fmt.Sprintf("frame.SetField: type %v has no field %q", elem, name))
	}
	if col.ElemType() != sf.Type || col.NumElems() != f.NumElems() {
		panic(fmt.Sprintf("frame.SetField: cannot assign %v to field %q of %v", col, name, f))
	}
	if CanBytes(elem) {
		var (
			src = col.Bytes()
			dst = f.Bytes()
			es  = int(elem.Size())
			fs  = int(sf.Type.Size())
			off = int(sf.Offset)
		)
		for i := 0; i < f.NumElems(); i++ {
			copy(dst[i*es+off:i*es+off+fs], src[i*fs:(i+1)*fs])
		}
		return
	}
	for i := 0; i < f.NumElems(); i++ {
		f.data.Index(i).FieldByIndex(sf.Index).Set(col.data.Index(i))
	}
}

func fieldOf(t reflect.Type, name string) (reflect.StructField, bool) {
	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.Name == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// Convert returns a new frame with f's elements converted to type
// typ, following Go's conversion rules.
func (f Frame) Convert(typ reflect.Type) Frame {
	if f.ElemType() == typ {
		out := Make(typ, f.Len(), f.shape...)
		Copy(out, f)
		return out
	}
	out := Make(typ, f.Len(), f.shape...)
	for i := 0; i < f.NumElems(); i++ {
		out.data.Index(i).Set(f.data.Index(i).Convert(typ))
	}
	return out
}

// RowEqual tells whether row i of f equals row j of g. Floating point
// and complex elements are compared numerically, with NaNs equal to
// each other; other elements are compared bytewise. Both frames must
// have pointer-free elements.
func (f Frame) RowEqual(i int, g Frame, j int) bool {
	w, v := f.rowBytes(), g.rowBytes()
	if w != v {
		return false
	}
	switch k := f.ElemType().Kind(); k {
	case reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		if g.ElemType().Kind() != k {
			return false
		}
		r := f.RowSize()
		for e := 0; e < r; e++ {
			if !numericEqual(f.data.Index(i*r+e), g.data.Index(j*r+e)) {
				return false
			}
		}
		return true
	}
	return bytes.Equal(f.Bytes()[i*w:(i+1)*w], g.Bytes()[j*v:(j+1)*v])
}

func numericEqual(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Float32, reflect.Float64:
		x, y := a.Float(), b.Float()
		return x == y || x != x && y != y
	default:
		x, y := a.Complex(), b.Complex()
		return x == y || x != x && y != y
	}
}

func (f Frame) rowBytes() int {
	return f.RowSize() * int(f.ElemType().Size())
}

// Equal tells whether f and g hold (deeply) equal elements with the
// same shape.
func Equal(f, g Frame) bool {
	if f.IsValid() != g.IsValid() {
		return false
	}
	if !f.IsValid() {
		return true
	}
	if f.ElemType() != g.ElemType() || !reflect.DeepEqual(f.Shape(), g.Shape()) {
		return false
	}
	for i := 0; i < f.NumElems(); i++ {
		if !reflect.DeepEqual(f.data.Index(i).Interface(), g.data.Index(i).Interface()) {
			return false
		}
	}
	return true
}

// String returns a descriptive string of the frame.
func (f Frame) String() string {
	if !f.IsValid() {
		return "frame[invalid]"
	}
	return fmt.Sprintf("frame%v%s", f.Shape(), f.ElemType())
}

// WriteTab writes the frame in tabular format to the provided
// io.Writer, one row per line.
func (f Frame) WriteTab(w io.Writer) {
	var tw tabwriter.Writer
	tw.Init(w, 4, 4, 1, ' ', 0)
	fmt.Fprintln(&tw, f.String())
	r := f.RowSize()
	values := make([]string, r)
	for i := 0; i < f.Len(); i++ {
		for j := range values {
			values[j] = fmt.Sprint(f.data.Index(i*r + j))
		}
		fmt.Fprintln(&tw, strings.Join(values, "\t"))
	}
	tw.Flush()
}

// TabString returns a string representing the frame in tabular format.
func (f Frame) TabString() string {
	var b bytes.Buffer
	f.WriteTab(&b)
	return b.String()
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
