// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package davies

import (
	"fmt"
)

// Mode selects how tail queries deal with an evaluation that did not
// reach the requested accuracy.
type Mode int

const (
	// Auto retries at a 10x relaxed accuracy, up to
	// AutoMaxAccuracy, while the evaluation reports RoundOff or
	// TermLimit.
	Auto Mode = iota
	// Plain evaluates once and reports whatever status results.
	Plain
)

// ParseMode parses "auto" or "davies".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return Auto, nil
	case "davies", "plain":
		return Plain, nil
	default:
		return Auto, fmt.Errorf("unknown solver mode %q", s)
	}
}

func (m Mode) String() string {
	if m == Plain {
		return "davies"
	}
	return "auto"
}

// AutoMaxAccuracy is the coarsest accuracy Auto mode relaxes to.
const AutoMaxAccuracy = 1e-8

// retryable reports whether a coarser accuracy can help.
func (s Status) retryable() bool {
	return s == RoundOff || s == TermLimit
}

func cdf(offset float64, coefs []float64, acc float64, mode Mode, limit int) (float64, Status) {
	dist := Distribution{Coef: coefs}
	p, status, _ := dist.CDF(offset, acc, limit)
	for mode == Auto && status.retryable() && acc*10 <= AutoMaxAccuracy*1.0000001 {
		acc *= 10
		p, status, _ = dist.CDF(offset, acc, limit)
	}
	return p, status
}

// UpperTail returns P(Q > offset) where Q is the weighted sum of
// independent one-degree-of-freedom central chi-squared variables with
// the given coefficients.
func UpperTail(offset float64, coefs []float64, acc float64, mode Mode, limit int) (float64, Status) {
	p, status := cdf(offset, coefs, acc, mode, limit)
	if p < 0 {
		return p, status
	}
	return 1 - p, status
}

// ShiftedTail returns shift - scale*P(Q < offset). ShiftedTail(-1, 0,
// ...) is the lower tail.
func ShiftedTail(scale, shift, offset float64, coefs []float64, acc float64, mode Mode, limit int) (float64, Status) {
	p, status := cdf(offset, coefs, acc, mode, limit)
	if p < 0 {
		return p, status
	}
	return shift - scale*p, status
}
