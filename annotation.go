// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// GeneRecord is one annotated gene.
type GeneRecord struct {
	ID         string `csv:"gene_id"`
	Chromosome string `csv:"chr"`
	Start      int    `csv:"start"`
	End        int    `csv:"end"`
	Strand     string `csv:"strand"`
	Symbol     string `csv:"symbol"`
	Merged     string `csv:"merged,omitempty"` // ids of genes merged into this record
}

// Annotation is an immutable gene annotation snapshot, safe for
// concurrent readers.
type Annotation struct {
	genes    []GeneRecord
	byID     map[string]int
	bySymbol map[string]int
	byChr    map[string][]int
}

// NewAnnotation builds a snapshot. Later records with a duplicate id
// are rejected.
func NewAnnotation(genes []GeneRecord) (*Annotation, error) {
	a := &Annotation{
		genes:    append([]GeneRecord(nil), genes...),
		byID:     make(map[string]int, len(genes)),
		bySymbol: make(map[string]int, len(genes)),
		byChr:    map[string][]int{},
	}
	for i, g := range a.genes {
		if g.ID == "" {
			return nil, fmt.Errorf("gene record %d has no id", i)
		}
		if _, dup := a.byID[g.ID]; dup {
			return nil, fmt.Errorf("duplicate gene id %q", g.ID)
		}
		if g.End < g.Start {
			return nil, fmt.Errorf("gene %q: end %d < start %d", g.ID, g.End, g.Start)
		}
		a.byID[g.ID] = i
		if g.Symbol != "" {
			if _, dup := a.bySymbol[g.Symbol]; !dup {
				a.bySymbol[g.Symbol] = i
			}
		}
		a.byChr[g.Chromosome] = append(a.byChr[g.Chromosome], i)
	}
	return a, nil
}

// Len returns the number of genes.
func (a *Annotation) Len() int { return len(a.genes) }

// Lookup finds a gene by symbol, or failing that by id.
func (a *Annotation) Lookup(name string) (GeneRecord, bool) {
	if i, ok := a.bySymbol[name]; ok {
		return a.genes[i], true
	}
	if i, ok := a.byID[name]; ok {
		return a.genes[i], true
	}
	return GeneRecord{}, false
}

// OnChromosome returns the genes annotated on chr, in snapshot order.
func (a *Annotation) OnChromosome(chr string) []GeneRecord {
	var out []GeneRecord
	for _, i := range a.byChr[chr] {
		out = append(out, a.genes[i])
	}
	return out
}

// Genes returns all genes in snapshot order.
func (a *Annotation) Genes() []GeneRecord {
	return append([]GeneRecord(nil), a.genes...)
}

// ReadAnnotation decodes a tab-separated snapshot with a header row
// naming the GeneRecord columns.
func ReadAnnotation(r io.Reader) (*Annotation, error) {
	var genes []GeneRecord
	if err := gocsv.UnmarshalCSV(tsvReader(r), &genes); err != nil {
		return nil, fmt.Errorf("decode annotation: %w", err)
	}
	return NewAnnotation(genes)
}

// LoadAnnotation reads an annotation snapshot file (possibly gzipped).
func LoadAnnotation(fnm string) (*Annotation, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := ReadAnnotation(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return a, nil
}

// WriteAnnotation encodes the snapshot in the format read by
// ReadAnnotation.
func WriteAnnotation(w io.Writer, a *Annotation) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	genes := a.Genes()
	if err := gocsv.MarshalCSV(&genes, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func tsvReader(r io.Reader) gocsv.CSVReader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}
