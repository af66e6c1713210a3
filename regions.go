// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

type interval struct {
	start int
	end   int // inclusive
}

type intervalTreeNode struct {
	interval interval
	maxend   int
}

// intervalTree is an implicit binary tree laid out like a heap.
type intervalTree []intervalTreeNode

// regionSet answers whether a chromosome range overlaps any of a set
// of target regions. Add all regions, then Freeze, then Overlaps.
type regionSet struct {
	intervals map[string][]interval
	itrees    map[string]intervalTree
	frozen    bool
}

func (rs *regionSet) Add(chr string, start, end int) {
	if rs.intervals == nil {
		rs.intervals = map[string][]interval{}
	}
	chr = strings.TrimPrefix(chr, "chr")
	rs.intervals[chr] = append(rs.intervals[chr], interval{start, end})
}

func (rs *regionSet) Freeze() {
	rs.itrees = map[string]intervalTree{}
	for chr, intervals := range rs.intervals {
		rs.itrees[chr] = buildIntervalTree(intervals)
	}
	rs.frozen = true
}

// Overlaps reports whether [start,end] on chr overlaps a region.
func (rs *regionSet) Overlaps(chr string, start, end int) bool {
	if !rs.frozen {
		panic("bug: (*regionSet)Overlaps() called before Freeze()")
	}
	return rs.itrees[strings.TrimPrefix(chr, "chr")].check(0, interval{start, end})
}

// Len returns the number of regions added.
func (rs *regionSet) Len() int {
	n := 0
	for _, in := range rs.intervals {
		n += len(in)
	}
	return n
}

// FilterGenes returns the names of genes whose window (gene body
// extended by window on both sides) overlaps a region.
func (rs *regionSet) FilterGenes(anno *Annotation, names []string, window int) []string {
	var out []string
	for _, name := range names {
		g, ok := anno.Lookup(name)
		if ok && rs.Overlaps(g.Chromosome, g.Start-window, g.End+window) {
			out = append(out, name)
		}
	}
	return out
}

func buildIntervalTree(in []interval) intervalTree {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		return in[i].start < in[j].start
	})
	size := 1
	for size < len(in) {
		size = size * 2
	}
	itree := make(intervalTree, size)
	itree.importSlice(0, in)
	for i := len(in); i < size; i++ {
		itree[i].maxend = -1
	}
	return itree
}

func (itree intervalTree) check(root int, q interval) bool {
	return root < len(itree) &&
		itree[root].maxend >= q.start &&
		((itree[root].interval.start <= q.end && itree[root].interval.end >= q.start) ||
			itree.check(root*2+1, q) ||
			itree.check(root*2+2, q))
}

func (itree intervalTree) importSlice(root int, in []interval) int {
	mid := len(in) / 2
	node := intervalTreeNode{interval: in[mid], maxend: in[mid].end}
	if mid > 0 {
		end := itree.importSlice(root*2+1, in[0:mid])
		if end > node.maxend {
			node.maxend = end
		}
	}
	if mid+1 < len(in) {
		end := itree.importSlice(root*2+2, in[mid+1:])
		if end > node.maxend {
			node.maxend = end
		}
	}
	itree[root] = node
	return node.maxend
}

// readBED loads regions from BED text (chrom, 0-based start, exclusive
// end). Comment, track and browser lines are ignored.
func readBED(r io.Reader) (*regionSet, error) {
	rs := &regionSet{}
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 fields", lineno)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		if end <= start {
			continue
		}
		rs.Add(fields[0], start+1, end)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	rs.Freeze()
	return rs, nil
}

func loadBED(fnm string) (*regionSet, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readBED(f)
}
