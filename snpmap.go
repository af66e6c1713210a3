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

	log "github.com/sirupsen/logrus"
)

// MapEntry is the association of one variant with one gene in a SNP
// mapping table (e.g. eQTL summary statistics).
type MapEntry struct {
	P       float64
	Effect  float64
	Alleles Alleles
}

// SNPMap maps genes to their associated variants.
type SNPMap struct {
	Name        string
	withAlleles bool
	genes       map[string]map[string]MapEntry
	variants    map[string][]string // variant -> genes, in load order
}

// NewSNPMap returns an empty map.
func NewSNPMap(name string, withAlleles bool) *SNPMap {
	return &SNPMap{
		Name:        name,
		withAlleles: withAlleles,
		genes:       map[string]map[string]MapEntry{},
		variants:    map[string][]string{},
	}
}

// Add records an association, replacing any previous entry for the
// same gene and variant.
func (m *SNPMap) Add(gene, variant string, e MapEntry) {
	entries, ok := m.genes[gene]
	if !ok {
		entries = map[string]MapEntry{}
		m.genes[gene] = entries
	}
	if _, ok := entries[variant]; !ok {
		m.variants[variant] = append(m.variants[variant], gene)
	}
	entries[variant] = e
}

// Genes returns the mapped gene names, sorted.
func (m *SNPMap) Genes() []string {
	genes := make([]string, 0, len(m.genes))
	for g := range m.genes {
		genes = append(genes, g)
	}
	sort.Strings(genes)
	return genes
}

// Entries returns the variant entries of gene.
func (m *SNPMap) Entries(gene string) (map[string]MapEntry, bool) {
	e, ok := m.genes[gene]
	return e, ok
}

// Len returns the number of distinct mapped variants.
func (m *SNPMap) Len() int { return len(m.variants) }

// removeVariant drops a variant from every gene.
func (m *SNPMap) removeVariant(id string) {
	for _, g := range m.variants[id] {
		delete(m.genes[g], id)
		if len(m.genes[g]) == 0 {
			delete(m.genes, g)
		}
	}
	delete(m.variants, id)
}

// SNPMapFormat describes a mapping table. Column numbers are 0-based;
// -1 means absent.
type SNPMapFormat struct {
	Name         string  `toml:"name"`
	File         string  `toml:"file"`
	GeneColumn   int     `toml:"gcol"`
	SNPColumn    int     `toml:"rcol"`
	WeightColumn int     `toml:"wcol"` // p-value
	BetaColumn   int     `toml:"bcol"`
	A1Column     int     `toml:"a1col"`
	A2Column     int     `toml:"a2col"`
	Delimiter    string  `toml:"delimiter"`
	PFilter      float64 `toml:"pfilter"` // keep rows with p < PFilter
	Header       bool    `toml:"header"`
}

// DefaultSNPMapFormat is gene, variant, p, effect, tab separated.
func DefaultSNPMapFormat() SNPMapFormat {
	return SNPMapFormat{
		Name:         "MAP",
		GeneColumn:   0,
		SNPColumn:    1,
		WeightColumn: 2,
		BetaColumn:   3,
		A1Column:     -1,
		A2Column:     -1,
		Delimiter:    "\t",
		PFilter:      1,
	}
}

// ReadSNPMap parses a mapping table.
func ReadSNPMap(r io.Reader, mf SNPMapFormat) (*SNPMap, error) {
	if mf.GeneColumn < 0 || mf.SNPColumn < 0 || mf.WeightColumn < 0 || mf.BetaColumn < 0 {
		return nil, fmt.Errorf("gene, variant, p and beta columns are required")
	}
	if mf.PFilter == 0 {
		mf.PFilter = 1
	}
	withAlleles := mf.A1Column >= 0 && mf.A2Column >= 0
	maxcol := mf.GeneColumn
	for _, col := range []int{mf.SNPColumn, mf.WeightColumn, mf.BetaColumn, mf.A1Column, mf.A2Column} {
		if col > maxcol {
			maxcol = col
		}
	}
	m := NewSNPMap(mf.Name, withAlleles)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	for lineno := 1; scanner.Scan(); lineno++ {
		if lineno == 1 && mf.Header {
			continue
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		var fields []string
		if mf.Delimiter == "" {
			fields = strings.Fields(line)
		} else {
			fields = strings.Split(line, mf.Delimiter)
		}
		if len(fields) <= maxcol {
			return nil, fmt.Errorf("line %d: %d fields, need at least %d", lineno, len(fields), maxcol+1)
		}
		p, err := strconv.ParseFloat(fields[mf.WeightColumn], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: p-value: %w", lineno, err)
		}
		if !(p > 0 && p < 1 && p < mf.PFilter) {
			continue
		}
		b, err := strconv.ParseFloat(fields[mf.BetaColumn], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: beta: %w", lineno, err)
		}
		e := MapEntry{P: p, Effect: b}
		if withAlleles {
			e.Alleles = Alleles{strings.ToUpper(fields[mf.A1Column]), strings.ToUpper(fields[mf.A2Column])}
		}
		m.Add(fields[mf.GeneColumn], fields[mf.SNPColumn], e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"map":      m.Name,
		"genes":    len(m.genes),
		"variants": m.Len(),
	}).Info("loaded SNP map")
	return m, nil
}

// LoadSNPMap reads mf.File (possibly gzipped).
func LoadSNPMap(mf SNPMapFormat) (*SNPMap, error) {
	f, err := zopen(mf.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadSNPMap(f, mf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mf.File, err)
	}
	return m, nil
}
