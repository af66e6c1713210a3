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
	"sync"
)

// GenePValue is one entry of a ScoreTable.
type GenePValue struct {
	Symbol string
	P      float64
}

// ScoreTable holds the latest p-value per gene symbol. It is safe for
// concurrent use.
type ScoreTable struct {
	mtx    sync.Mutex
	scores map[string]float64
}

func NewScoreTable() *ScoreTable {
	return &ScoreTable{scores: map[string]float64{}}
}

// Upsert sets the p-value of symbol, replacing any earlier value.
func (st *ScoreTable) Upsert(symbol string, p float64) {
	st.mtx.Lock()
	defer st.mtx.Unlock()
	st.scores[symbol] = p
}

func (st *ScoreTable) Get(symbol string) (float64, bool) {
	st.mtx.Lock()
	defer st.mtx.Unlock()
	p, ok := st.scores[symbol]
	return p, ok
}

func (st *ScoreTable) Len() int {
	st.mtx.Lock()
	defer st.mtx.Unlock()
	return len(st.scores)
}

// Top returns the n entries with the lowest p-values, ascending. Ties
// are ordered by symbol. n < 0 returns all entries.
func (st *ScoreTable) Top(n int) []GenePValue {
	st.mtx.Lock()
	all := make([]GenePValue, 0, len(st.scores))
	for sym, p := range st.scores {
		all = append(all, GenePValue{sym, p})
	}
	st.mtx.Unlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].P != all[j].P {
			return all[i].P < all[j].P
		}
		return all[i].Symbol < all[j].Symbol
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Write writes "symbol<TAB>p" lines, lowest p first.
func (st *ScoreTable) Write(w io.Writer) error {
	bufw := bufio.NewWriter(w)
	for _, e := range st.Top(-1) {
		fmt.Fprintf(bufw, "%s\t%s\n", e.Symbol, strconv.FormatFloat(e.P, 'g', -1, 64))
	}
	return bufw.Flush()
}

// Save writes the table to fnm (gzip-compressed if fnm ends in .gz).
func (st *ScoreTable) Save(fnm string) error {
	f, err := zcreate(fnm)
	if err != nil {
		return err
	}
	if err := st.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read adds entries from tab-separated text, using columns gcol
// (symbol) and pcol (p-value). Unparseable lines are skipped.
func (st *ScoreTable) Read(r io.Reader, gcol, pcol int, header bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")
		if gcol >= len(fields) || pcol >= len(fields) {
			continue
		}
		p, err := strconv.ParseFloat(fields[pcol], 64)
		if err != nil {
			continue
		}
		st.Upsert(fields[gcol], p)
	}
	return scanner.Err()
}

// Load reads a table written by Save.
func (st *ScoreTable) Load(fnm string) error {
	f, err := zopen(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	return st.Read(f, 0, 1, false)
}
