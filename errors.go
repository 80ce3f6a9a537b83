// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/darray/comm"
)

// Kind classifies the errors reported by the operations in this
// package. Every rank participating in a failed operation reports an
// error of the same kind.
type Kind int

const (
	// OK is the kind of a nil error.
	OK Kind = iota
	// CountMismatch indicates that per-rank counts have the wrong
	// length or the wrong sum.
	CountMismatch
	// ShapeMismatch indicates that trailing dimensions differ across
	// ranks or arrays.
	ShapeMismatch
	// TypeMismatch indicates that element types differ across ranks.
	TypeMismatch
	// UnsupportedElementType indicates an element type that cannot
	// be used by an operation, for example because it holds pointers.
	UnsupportedElementType
	// InvalidLocalInput indicates that a rank supplied a malformed
	// local buffer or argument.
	InvalidLocalInput
	// PaddingInfeasible indicates a padding request that cannot be
	// satisfied by the elements preceding a rank.
	PaddingInfeasible

	maxKind
)

var kindNames = [...]string{
	OK:                     "ok",
	CountMismatch:          "count mismatch",
	ShapeMismatch:          "shape mismatch",
	TypeMismatch:           "type mismatch",
	UnsupportedElementType: "unsupported element type",
	InvalidLocalInput:      "invalid local input",
	PaddingInfeasible:      "padding infeasible",
}

func (k Kind) String() string {
	if k < 0 || k >= maxKind {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the error type carried by failed operations. It is
// wrapped in a *errors.Error that names the operation; use KindOf to
// recover its kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

// KindOf returns the kind of the darray error wrapped by err, or OK
// if err is nil or does not carry one.
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind
		case *errors.Error:
			err = e.Err
		default:
			return OK
		}
	}
	return OK
}

// newError returns an error of the provided kind for operation op.
func newError(op string, kind Kind, format string, args ...interface{}) error {
	base := errors.Invalid
	if kind == UnsupportedElementType {
		base = errors.NotSupported
	}
	return errors.E(base, op, &Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Agree makes a locally detected failure collective: every rank
// learns the largest error kind observed by any rank, and all ranks
// return an error of that kind. Ranks that observed the failure
// themselves return their own error. Errors that do not carry a kind
// must not be passed to agree.
func agree(ctx context.Context, c *comm.Comm, op string, err error) error {
	kind := KindOf(err)
	max, cerr := c.AllreduceInt(ctx, int64(kind), comm.Max)
	if cerr != nil {
		return cerr
	}
	switch {
	case max == int64(OK):
		return nil
	case max == int64(kind):
		return err
	default:
		return newError(op, Kind(max), "failed on another rank")
	}
}
