// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// AlleleMode says whether reference records must also match the study
// alleles. It is resolved once per study pair.
type AlleleMode int

const (
	WithoutAlleles AlleleMode = iota
	WithAlleles
)

func (m AlleleMode) String() string {
	if m == WithAlleles {
		return "with alleles"
	}
	return "without alleles"
}

// correlationBuilder selects the reference variants of a gene window
// and computes their LD correlation.
type correlationBuilder struct {
	window  int
	maf     float64
	mode    AlleleMode
	alleles map[string]Alleles // study alleles, used WithAlleles
	backend linalgBackend
}

// geneLD is the LD structure of one gene window. Row i of corr is
// variant ids[i].
type geneLD struct {
	corr *mat.SymDense
	ids  []string
}

// build returns the correlation matrix of the window variants of g
// that pass permissible and the MAF filter. For a variant id with
// several qualifying records the lowest MAF record wins, keeping the
// position of the first one seen.
func (cb *correlationBuilder) build(g GeneRecord, permissible func(string) bool, handle ChromosomePanel) (geneLD, error) {
	positions, err := handle.SortedPositions()
	if err != nil {
		return geneLD{}, err
	}
	rvs, err := handle.ByPositions(positionsInWindow(positions, g.Start-cb.window, g.End+cb.window))
	if err != nil {
		return geneLD{}, err
	}
	var kept []*ReferenceVariant
	slot := map[string]int{}
	for _, rv := range rvs {
		if rv == nil || !(rv.MAF > cb.maf) || !permissible(rv.ID) {
			continue
		}
		if cb.mode == WithAlleles {
			if a, ok := cb.alleles[rv.ID]; !ok || a != (Alleles{rv.Alt, rv.Ref}) {
				continue
			}
		}
		if i, seen := slot[rv.ID]; seen {
			if rv.MAF < kept[i].MAF {
				kept[i] = rv
			}
			continue
		}
		slot[rv.ID] = len(kept)
		kept = append(kept, rv)
	}

	ld := geneLD{ids: make([]string, len(kept))}
	for i, rv := range kept {
		ld.ids[i] = rv.ID
	}
	if len(kept) < 2 {
		ld.corr = mat.NewSymDense(1, []float64{1})
		return ld, nil
	}
	rows := make([][]uint8, len(kept))
	for i, rv := range kept {
		if len(rv.Genotype) != len(kept[0].Genotype) || len(rv.Genotype) < 2 {
			return geneLD{}, fmt.Errorf("variant %s: %d genotypes, expected %d (at least 2)", rv.ID, len(rv.Genotype), len(kept[0].Genotype))
		}
		rows[i] = rv.Genotype
	}
	ld.corr = cb.backend.Correlation(rows)
	return ld, nil
}
