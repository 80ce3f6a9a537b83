// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package darray implements striped arrays: logical arrays whose rows
	are partitioned contiguously, in rank order, across the ranks of a
	communicator (package github.com/grailbio/darray/comm). Every rank
	runs the same program and holds one contiguous range of rows in a
	local frame (package github.com/grailbio/darray/frame).

	The package provides collective redistribution primitives (Gather,
	Scatter, FrontPad), boundary resolution between ranks (Topology), and
	the DistributedArray type, which supports global sorting, unique
	label assignment, histograms over sorted integers, and
	concatenation.

	All operations in this package are collective: every rank of the
	communicator must call them in the same order, with compatible
	arguments. Validation that depends on more than one rank is
	performed through collective exchange, so that when an operation
	fails, it fails on every rank with an error of the same Kind.

	Rows move between ranks as raw bytes, so element types must be
	free of pointers: numeric types, fixed-size arrays, and structs
	composed of them. Structs are moved field by field.

	A typical program sorts an array of particle records by a key and
	labels the distinct keys:

		err := comm.Run(ctx, n, func(ctx context.Context, c *comm.Comm) error {
			a, err := darray.New(ctx, c, frame.Of(particles))
			if err != nil {
				return err
			}
			if err := a.Sort(ctx, "Key"); err != nil {
				return err
			}
			keys, err := a.Field(ctx, "Key")
			if err != nil {
				return err
			}
			labels, err := keys.UniqueLabels(ctx)
			...
		})
*/
package darray
