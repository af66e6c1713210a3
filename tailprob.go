// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"github.com/cmatKhan/PascalX/davies"
	"gonum.org/v1/gonum/mat"
)

// tailState is the path taken for one gene.
type tailState int

const (
	insufficient tailState = iota // no variants
	degenerate                    // one variant, closed form
	matrix                        // eigen decomposition + solver
)

func stateFor(nvariants int) tailState {
	switch {
	case nvariants == 0:
		return insufficient
	case nvariants == 1:
		return degenerate
	default:
		return matrix
	}
}

// minTailP replaces an exact zero closed-form tail probability.
const minTailP = 1e-16

// tailResult is the outcome of one tail probability query. Status is
// the solver status; a result is usable only if ok().
type tailResult struct {
	P      float64
	Status davies.Status
	Terms  int // chi-squared terms passed to the solver
}

func (tr tailResult) ok() bool {
	return tr.Status == davies.OK && tr.P > 0
}

// tailEngine maps a joint statistic and LD matrix to a p-value.
type tailEngine struct {
	stat      JointStatistic
	backend   linalgBackend
	varcutoff float64
	pcorr     float64
	leftTail  bool
	accuracy  float64
	mode      davies.Mode
	limit     int
}

// withAccuracy returns a copy of te using a different solver
// accuracy.
func (te tailEngine) withAccuracy(acc float64) *tailEngine {
	te.accuracy = acc
	return &te
}

// tail evaluates the statistic s for a gene whose qualifying variants
// have LD matrix corr.
func (te *tailEngine) tail(s float64, corr *mat.SymDense, nvariants int) (tailResult, error) {
	switch stateFor(nvariants) {
	case degenerate:
		return te.singleVariant(s), nil
	case matrix:
		return te.matrixTail(s, corr)
	default:
		return tailResult{}, nil
	}
}

func (te *tailEngine) singleVariant(s float64) tailResult {
	p := te.stat.SingleVariantTail(s, te.pcorr, te.leftTail)
	if p == 0 {
		p = minTailP
	}
	return tailResult{P: p}
}

// retained returns the prefix of the descending spectrum lambda kept
// by the variance cutoff. The leading eigenvalue seeds the accumulated
// variance; subsequent eigenvalues are added until it reaches cutoff.
func retained(lambda []float64, cutoff float64) []float64 {
	if len(lambda) == 0 {
		return nil
	}
	acc := lambda[0]
	for i := 1; i < len(lambda); i++ {
		acc += lambda[i]
		if acc >= cutoff {
			return lambda[:i+1]
		}
	}
	return lambda
}

// coefficients returns the signed chi-squared coefficients for the
// truncated spectrum of corr, two per retained eigenvalue.
func (te *tailEngine) coefficients(s float64, corr *mat.SymDense) ([]float64, error) {
	eigenvalues, err := te.backend.Eigenvalues(corr)
	if err != nil {
		return nil, err
	}
	var coefs []float64
	for _, l := range retained(truncatedSpectrum(eigenvalues, te.varcutoff)) {
		terms := te.stat.CorrectionTerms(s, l, te.pcorr)
		coefs = append(coefs, terms[0], terms[1])
	}
	return coefs, nil
}

func (te *tailEngine) matrixTail(s float64, corr *mat.SymDense) (tailResult, error) {
	coefs, err := te.coefficients(s, corr)
	if err != nil {
		return tailResult{}, err
	}
	tr := tailResult{Terms: len(coefs)}
	if len(coefs) == 0 {
		tr.Status = davies.InvalidParameters
		return tr, nil
	}
	offset := te.stat.Offset(s)
	if te.leftTail {
		tr.P, tr.Status = davies.ShiftedTail(-1, 0, offset, coefs, te.accuracy, te.mode, te.limit)
	} else {
		tr.P, tr.Status = davies.UpperTail(offset, coefs, te.accuracy, te.mode, te.limit)
	}
	return tr, nil
}
