// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package defaultsize holds the tunable sizes used internally by the
// darray packages. They are configured by flag.
package defaultsize

import "flag"

var (
	// Chunk is the number of rows processed at a time by chunked
	// reductions such as bounds computations.
	Chunk int
	// SortOversample is the number of samples each rank contributes
	// per rank when choosing sort splitters.
	SortOversample int
	// MaxMessage is the largest transport message, in bytes. Larger
	// payloads are split into chunks.
	MaxMessage int
)

func init() {
	flag.IntVar(&Chunk, "darray-internal-chunk-rows", 1024*1024*8,
		"Number of rows processed at a time by chunked reductions.")
	flag.IntVar(&SortOversample, "darray-internal-sort-oversample", 32,
		"Number of splitter samples drawn per rank during parallel sort.")
	flag.IntVar(&MaxMessage, "darray-internal-max-message-bytes", 64<<20,
		"Maximum size of a single transport message.")
}
