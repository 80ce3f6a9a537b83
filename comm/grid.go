// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"math"
	"sort"
)

// Grid3D factors n ranks into a three-dimensional process grid
// a x b x c with a*b*c == n and a <= b <= c. Factors are chosen close
// to the cube root of n, then the square root of the remainder.
func Grid3D(n int) (a, b, c int) {
	if n <= 0 {
		return 0, 0, 0
	}
	s := n
	a = largestDivisorBelow(s, int(math.Cbrt(float64(s)))+1)
	s /= a
	b = largestDivisorBelow(s, int(math.Sqrt(float64(s)))+1)
	s /= b
	dims := []int{a, b, s}
	sort.Ints(dims)
	return dims[0], dims[1], dims[2]
}

// largestDivisorBelow returns the largest divisor of n that is at
// most start.
func largestDivisorBelow(n, start int) int {
	for d := start; d > 1; d-- {
		if n%d == 0 {
			return d
		}
	}
	return 1
}
