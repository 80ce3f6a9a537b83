// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command darray runs a small distributed array pipeline over a set
// of ranks, either within the process or on bigmachine machines.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/darray/comm"
	"github.com/grailbio/darray/comm/machinecomm"
)

var (
	rowsFlag  = flag.Int("rows", 10000, "number of keys generated by each rank")
	maxFlag   = flag.Uint64("max", 1000, "keys are generated in [0, max)")
	seedFlag  = flag.Int64("seed", 1, "random seed; rank i uses seed+i")
	inputFlag = flag.String("input", "", "read keys, one per line, from this path or s3:// URL instead of generating them")
	topFlag   = flag.Int("top", 10, "number of bins displayed in the summary")
)

const programName = "darray.pipeline"

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
	machinecomm.Register(programName, pipeline)
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: darray [flags]

Command darray sorts a set of unsigned keys distributed across n ranks,
labels the distinct keys, counts them, and computes their bounds.
Rank 0 logs a summary of the result.

Keys are either generated randomly by each rank or, with -input, read
by rank 0 from a file and scattered evenly across the ranks.

The flags are:
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	var (
		n          = flag.Int("n", 4, "number of ranks")
		system     = flag.String("system", "local", "where ranks run: local (goroutines) or bigmachine (local bigmachine processes)")
		maxMessage = flag.Int("maxmessage", 0, "maximum size of a message exchanged between ranks; 0 uses the default")
	)
	log.AddFlags()
	flag.Parse()
	if flag.NArg() != 0 {
		flag.Usage()
	}
	if *n < 1 {
		log.Fatal("invalid number of ranks ", *n)
	}
	if *maxFlag == 0 || *maxFlag > 1<<62 {
		log.Fatal("invalid key bound ", *maxFlag)
	}

	ctx := context.Background()
	switch *system {
	default:
		fmt.Fprintf(os.Stderr, "unknown system %s\n", *system)
		flag.Usage()
	case "local":
		var opts []comm.Option
		if *maxMessage > 0 {
			opts = append(opts, comm.MaxMessageSize(*maxMessage))
		}
		must.Nil(comm.Run(ctx, *n, pipeline, opts...), "pipeline")
	case "bigmachine":
		// Worker processes inherit the command line, so the pipeline
		// sees the same flags on every machine.
		b := bigmachine.Start(bigmachine.Local)
		stats, err := machinecomm.Run(ctx, b, *n, programName, *maxMessage)
		b.Shutdown()
		must.Nil(err, "pipeline")
		var total comm.Values
		for i, s := range stats {
			log.Printf("rank %d: %s", i, s)
			if total == nil {
				total = make(comm.Values)
			}
			total.Add(s)
		}
		log.Printf("total: %s", total)
	}
}
