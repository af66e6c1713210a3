// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"fmt"
	"sort"
	"sync"
)

// ReferenceVariant is one reference panel record. Genotype holds one
// minor-allele count (0, 1 or 2) per panel sample.
type ReferenceVariant struct {
	ID       string
	Position int
	MAF      float64
	Genotype []uint8
	Alt      string
	Ref      string
}

// ReferencePanel opens per-chromosome handles on LD reference data.
// Handles are not safe for concurrent use; each worker opens its own.
type ReferencePanel interface {
	Open(chr string) (ChromosomePanel, error)
}

// ChromosomePanel is an open handle on one chromosome's reference
// data.
type ChromosomePanel interface {
	// SortedPositions returns the distinct indexed positions in
	// increasing order. Handles load them once; callers must not
	// modify the result.
	SortedPositions() ([]int, error)
	// RangeQuery returns the ids of records with lo <= position <=
	// hi, ordered by position.
	RangeQuery(lo, hi int) ([]string, error)
	// ByVariantIDs returns one record per id (nil if the id is not
	// indexed), in the order of ids.
	ByVariantIDs(ids []string) ([]*ReferenceVariant, error)
	// ByPositions returns the records at the given positions, in the
	// order of positions. A position holding several records yields
	// all of them, in insertion order.
	ByPositions(positions []int) ([]*ReferenceVariant, error)
	// VariantIDs returns the set of ids on the chromosome.
	VariantIDs() (map[string]bool, error)
	Close() error
}

// positionsInWindow returns the part of sorted within [lo, hi].
func positionsInWindow(sorted []int, lo, hi int) []int {
	i := sort.SearchInts(sorted, lo)
	j := sort.SearchInts(sorted, hi+1)
	return sorted[i:j]
}

// MemoryPanel is a ReferencePanel held in memory.
type MemoryPanel struct {
	mtx  sync.Mutex
	chrs map[string][]ReferenceVariant
}

// Add appends records to chromosome chr.
func (mp *MemoryPanel) Add(chr string, rvs ...ReferenceVariant) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	if mp.chrs == nil {
		mp.chrs = map[string][]ReferenceVariant{}
	}
	mp.chrs[chr] = append(mp.chrs[chr], rvs...)
}

// Open implements ReferencePanel. The handle sees a snapshot of the
// chromosome at the time of the call.
func (mp *MemoryPanel) Open(chr string) (ChromosomePanel, error) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	rvs, ok := mp.chrs[chr]
	if !ok {
		return nil, fmt.Errorf("reference panel: no data for chromosome %q", chr)
	}
	sorted := append([]ReferenceVariant(nil), rvs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	mc := &memoryChromosome{rvs: sorted, positions: []int{}}
	for _, rv := range sorted {
		if n := len(mc.positions); n == 0 || mc.positions[n-1] != rv.Position {
			mc.positions = append(mc.positions, rv.Position)
		}
	}
	return mc, nil
}

type memoryChromosome struct {
	rvs       []ReferenceVariant // sorted by position
	positions []int
}

func (mc *memoryChromosome) SortedPositions() ([]int, error) {
	return mc.positions, nil
}

func (mc *memoryChromosome) first(pos int) int {
	return sort.Search(len(mc.rvs), func(i int) bool { return mc.rvs[i].Position >= pos })
}

func (mc *memoryChromosome) RangeQuery(lo, hi int) ([]string, error) {
	var ids []string
	for i := mc.first(lo); i < len(mc.rvs) && mc.rvs[i].Position <= hi; i++ {
		ids = append(ids, mc.rvs[i].ID)
	}
	return ids, nil
}

func (mc *memoryChromosome) ByVariantIDs(ids []string) ([]*ReferenceVariant, error) {
	idx := map[string]int{}
	for i := len(mc.rvs) - 1; i >= 0; i-- {
		idx[mc.rvs[i].ID] = i
	}
	out := make([]*ReferenceVariant, len(ids))
	for i, id := range ids {
		if j, ok := idx[id]; ok {
			rv := mc.rvs[j]
			out[i] = &rv
		}
	}
	return out, nil
}

func (mc *memoryChromosome) ByPositions(positions []int) ([]*ReferenceVariant, error) {
	var out []*ReferenceVariant
	for _, pos := range positions {
		for i := mc.first(pos); i < len(mc.rvs) && mc.rvs[i].Position == pos; i++ {
			rv := mc.rvs[i]
			out = append(out, &rv)
		}
	}
	return out, nil
}

func (mc *memoryChromosome) VariantIDs() (map[string]bool, error) {
	ids := make(map[string]bool, len(mc.rvs))
	for _, rv := range mc.rvs {
		ids[rv.ID] = true
	}
	return ids, nil
}

func (mc *memoryChromosome) Close() error {
	mc.rvs = nil
	return nil
}
