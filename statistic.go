// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
)

var errZeroDenominator = errors.New("NaN for denom")

// JointStatistic combines the per-variant signals of two studies into
// one test statistic, and describes the null distribution of that
// statistic as a weighted sum of chi-squared variables.
type JointStatistic interface {
	Name() string
	// Combine returns the statistic for signals w (first study) and
	// z (second study), which are in the same variant order.
	Combine(w, z []float64) (float64, error)
	// CorrectionTerms returns the two chi-squared coefficients
	// contributed by eigenvalue lambda.
	CorrectionTerms(s, lambda, pcorr float64) [2]float64
	// Offset returns the point at which the distribution function of
	// the weighted sum is evaluated.
	Offset(s float64) float64
	// SingleVariantTail is the closed-form tail probability when one
	// variant contributes.
	SingleVariantTail(s, pcorr float64, leftTail bool) float64
}

// ParseStatistic returns the statistic named "sum" or "ratio".
func ParseStatistic(name string) (JointStatistic, error) {
	switch name {
	case "", "sum", "zsum":
		return SumStatistic{}, nil
	case "ratio", "rsum":
		return RatioStatistic{}, nil
	default:
		return nil, fmt.Errorf("unknown statistic %q", name)
	}
}

// SumStatistic is the coherence score z·w.
type SumStatistic struct{}

func (SumStatistic) Name() string { return "sum" }

func (SumStatistic) Combine(w, z []float64) (float64, error) {
	return floats.Dot(z, w), nil
}

func (SumStatistic) CorrectionTerms(s, lambda, pcorr float64) [2]float64 {
	return [2]float64{0.5 * (1 + pcorr) * lambda, -0.5 * (1 - pcorr) * lambda}
}

func (SumStatistic) Offset(s float64) float64 { return s }

// SingleVariantTail uses the density K0(|x|)/pi of a product of two
// standard normals.
func (SumStatistic) SingleVariantTail(s, pcorr float64, leftTail bool) float64 {
	t := besselK0Tail(math.Abs(s))
	upper := s > 0
	if leftTail {
		upper = !upper
	}
	if upper {
		return t
	}
	return 1 - t
}

// besselK0Tail returns (1/pi) * integral from x to infinity of K0,
// i.e. P(XY > x) for independent standard normals X, Y and x >= 0,
// written as (1/pi) * integral over u >= 0 of exp(-x cosh u)/cosh u.
func besselK0Tail(x float64) float64 {
	if x == 0 {
		return 0.5
	}
	// exp(-x(cosh u - 1)) < e^-40 beyond hi
	hi := math.Acosh(1 + 40/x)
	if hi > 40 {
		hi = 40
	}
	f := func(u float64) float64 {
		c := math.Cosh(u)
		return math.Exp(-x*c) / c
	}
	return quad.Fixed(f, 0, hi, 512, nil, 0) / math.Pi
}

// RatioStatistic is the coherence score scaled by the second study's
// signal variance, z·w / z·z.
type RatioStatistic struct{}

func (RatioStatistic) Name() string { return "ratio" }

func (RatioStatistic) Combine(w, z []float64) (float64, error) {
	norm := floats.Dot(z, z)
	if norm == 0 {
		return math.NaN(), errZeroDenominator
	}
	return floats.Dot(z, w) / norm, nil
}

func (RatioStatistic) CorrectionTerms(s, lambda, pcorr float64) [2]float64 {
	d := math.Sqrt(1 + s*s - pcorr*s)
	return [2]float64{
		lambda * (1 + (pcorr-s)/d) / 2 * d,
		-lambda * (1 - (pcorr-s)/d) / 2 * d,
	}
}

func (RatioStatistic) Offset(s float64) float64 { return 0 }

// SingleVariantTail is the Cauchy tail of (s-pcorr)/sqrt(1-pcorr^2).
func (RatioStatistic) SingleVariantTail(s, pcorr float64, leftTail bool) float64 {
	cdf := 0.5 + math.Atan((s-pcorr)/math.Sqrt(1-pcorr*pcorr))/math.Pi
	if leftTail {
		return cdf
	}
	return 1 - cdf
}
