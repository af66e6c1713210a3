// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// chiSquaredUpperInverse returns x such that P(X > x) = p for X
// chi-squared with one degree of freedom. The complemented incomplete
// gamma inverse keeps full precision for very small p.
func chiSquaredUpperInverse(p float64) float64 {
	if p >= 1 {
		return 0
	}
	return 2 * mathext.GammaIncRegCompInv(0.5, p)
}

// signal maps a p-value and effect estimate back to a signed z-like
// statistic.
func signal(p, effect float64) float64 {
	return sign(effect) * math.Sqrt(chiSquaredUpperInverse(p))
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// signals returns signal(p[id], effect[id]) for each id, in order.
func signals(ids []string, p, effect func(string) float64) []float64 {
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = signal(p(id), effect(id))
	}
	return out
}
