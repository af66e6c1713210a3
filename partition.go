// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"flag"
	"fmt"
)

// splitContiguous divides n items into k contiguous ranges
// [start,end). The first n%k ranges get one extra item. Some ranges
// are empty when k > n.
func splitContiguous(n, k int) [][2]int {
	if k < 1 {
		k = 1
	}
	ranges := make([][2]int, k)
	size, extra := n/k, n%k
	start := 0
	for i := range ranges {
		end := start + size
		if i < extra {
			end++
		}
		ranges[i] = [2]int{start, end}
		start = end
	}
	return ranges
}

// batchArgs selects one slice of the gene list, so a large scoring
// job can be divided across several processes.
type batchArgs struct {
	batch   int
	batches int
}

func (b *batchArgs) Flags(flags *flag.FlagSet) {
	flags.IntVar(&b.batches, "batches", 1, "number of batches")
	flags.IntVar(&b.batch, "batch", -1, "only do `N`th batch (-1 = all)")
}

func (b *batchArgs) Args(batch int) []string {
	return []string{
		fmt.Sprintf("-batches=%d", b.batches),
		fmt.Sprintf("-batch=%d", batch),
	}
}

func (b *batchArgs) Slice(in []string) []string {
	if b.batches <= 1 || b.batch < 0 {
		return in
	}
	if b.batch >= b.batches {
		return nil
	}
	rng := splitContiguous(len(in), b.batches)[b.batch]
	return in[rng[0]:rng[1]]
}
