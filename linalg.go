// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"errors"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// linalgBackend computes the dense linear algebra used by the scorer.
type linalgBackend interface {
	Name() string
	// Correlation returns the Pearson correlation between rows.
	Correlation(rows [][]uint8) *mat.SymDense
	// Eigenvalues returns the eigenvalues of a symmetric matrix in
	// ascending order.
	Eigenvalues(m *mat.SymDense) ([]float64, error)
}

// selectBackend resolves the configured backend name. Unknown names
// fall back to gonum.
func selectBackend(name string) linalgBackend {
	switch name {
	case "", "gonum", "cpu":
		return gonumBackend{}
	default:
		log.Warnf("linear algebra backend %q is not available, using gonum", name)
		return gonumBackend{}
	}
}

type gonumBackend struct{}

func (gonumBackend) Name() string { return "gonum" }

func (gonumBackend) Correlation(rows [][]uint8) *mat.SymDense {
	nvar := len(rows)
	nsamp := len(rows[0])
	// stat.CorrelationMatrix treats columns as variables
	x := mat.NewDense(nsamp, nvar, nil)
	for j, row := range rows {
		for i, g := range row {
			x.Set(i, j, float64(g))
		}
	}
	corr := mat.NewSymDense(nvar, nil)
	stat.CorrelationMatrix(corr, x, nil)
	for i := 0; i < nvar; i++ {
		for j := i; j < nvar; j++ {
			if i == j {
				corr.SetSym(i, j, 1)
			} else if v := corr.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				// monomorphic in the panel
				corr.SetSym(i, j, 0)
			}
		}
	}
	return corr
}

var errEigen = errors.New("eigendecomposition failed")

func (gonumBackend) Eigenvalues(m *mat.SymDense) ([]float64, error) {
	var es mat.EigenSym
	if ok := es.Factorize(m, false); !ok {
		return nil, errEigen
	}
	return es.Values(nil), nil
}

// truncatedSpectrum returns the positive eigenvalues in descending
// order, and the cutoff varcutoff*sum of them.
func truncatedSpectrum(eigenvalues []float64, varcutoff float64) ([]float64, float64) {
	var pos []float64
	var total float64
	for _, l := range eigenvalues {
		if l > 0 {
			pos = append(pos, l)
			total += l
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(pos)))
	return pos, varcutoff * total
}
