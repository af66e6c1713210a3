// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package davies computes the distribution function of a linear
// combination of independent (non-central) chi-squared random
// variables, using Davies' numerical inversion of the characteristic
// function (Davies 1980, Applied Statistics algorithm AS 155).
package davies

import (
	"math"
	"sort"
)

// Status reports how a distribution function evaluation went. Zero
// means the result meets the requested accuracy.
type Status int

const (
	OK Status = iota
	// TermLimit means the required accuracy could not be reached
	// within the integration term limit.
	TermLimit
	// RoundOff means round-off error may be significant.
	RoundOff
	// InvalidParameters means a negative degree of freedom or
	// non-centrality, or an all-zero distribution.
	InvalidParameters
	// NoIntegrationParameters means the search for integration
	// parameters exceeded the term limit.
	NoIntegrationParameters
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case TermLimit:
		return "term limit exceeded"
	case RoundOff:
		return "round-off error possibly significant"
	case InvalidParameters:
		return "invalid parameters"
	case NoIntegrationParameters:
		return "unable to locate integration parameters"
	default:
		return "unknown status"
	}
}

// Trace holds the diagnostics of one evaluation.
type Trace struct {
	AbsSum       float64 // absolute value sum of the integrand
	Terms        int     // total number of integration terms
	Integrations int
	Interval     float64 // integration interval in the final integration
	Truncation   float64 // truncation point in the initial integration
	ConvergenceS float64 // sd of the initial convergence factor
	Cycles       int     // cycles spent locating integration parameters
}

// Distribution is Q = sum_j Coef[j]*X_j + Sigma*N, where X_j is
// chi-squared with DF[j] degrees of freedom and non-centrality
// NonCentrality[j], and N is standard normal. Nil DF means one degree
// of freedom for every term; nil NonCentrality means central.
type Distribution struct {
	Coef          []float64
	DF            []int
	NonCentrality []float64
	Sigma         float64
}

// CDF returns P(Q < c), computed to absolute accuracy acc using at
// most limit integration terms.
func (d Distribution) CDF(c, acc float64, limit int) (float64, Status, Trace) {
	r := len(d.Coef)
	q := &qf{
		lb:    d.Coef,
		n:     d.DF,
		nc:    d.NonCentrality,
		r:     r,
		lim:   limit,
		c:     c,
		th:    make([]int, r),
		unord: true,
	}
	if q.n == nil {
		q.n = make([]int, r)
		for j := range q.n {
			q.n[j] = 1
		}
	}
	if q.nc == nil {
		q.nc = make([]float64, r)
	}
	return q.run(d.Sigma, acc)
}

const log28 = .0866 // log(2)/8

var rats = [4]float64{1, 2, 4, 8}

type errCounter struct{}

// qf carries the working state of one evaluation.
type qf struct {
	lb    []float64
	nc    []float64
	n     []int
	th    []int
	r     int
	lim   int
	count int
	c     float64

	sigsq, lmax, lmin, mean float64
	intl, ersm              float64
	unord, fail             bool
}

func (q *qf) run(sigma, acc float64) (qfval float64, status Status, trace Trace) {
	defer func() {
		trace.Cycles = q.count
		if e := recover(); e != nil {
			if _, ok := e.(errCounter); !ok {
				panic(e)
			}
			qfval, status = -1, NoIntegrationParameters
		}
	}()
	if len(q.n) != q.r || len(q.nc) != q.r {
		return -1, InvalidParameters, trace
	}

	acc1 := acc
	xlim := float64(q.lim)

	q.sigsq = sigma * sigma
	sd := q.sigsq
	for j := 0; j < q.r; j++ {
		nj, lj, ncj := q.n[j], q.lb[j], q.nc[j]
		if nj < 0 || ncj < 0 {
			return -1, InvalidParameters, trace
		}
		sd += lj * lj * (2*float64(nj) + 4*ncj)
		q.mean += lj * (float64(nj) + ncj)
		if q.lmax < lj {
			q.lmax = lj
		} else if q.lmin > lj {
			q.lmin = lj
		}
	}
	if sd == 0 {
		if q.c > 0 {
			return 1, OK, trace
		}
		return 0, OK, trace
	}
	if q.lmin == 0 && q.lmax == 0 && sigma == 0 {
		return -1, InvalidParameters, trace
	}
	sd = math.Sqrt(sd)
	almx := q.lmax
	if almx < -q.lmin {
		almx = -q.lmin
	}

	// starting values for findu, ctff
	utx := 16 / sd
	up := 4.5 / sd
	un := -up
	// truncation point with no convergence factor
	utx = q.findu(utx, .5*acc1)
	// does a convergence factor help
	if q.c != 0 && almx > 0.07*sd {
		tausq := .25 * acc1 / q.cfe(q.c)
		if q.fail {
			q.fail = false
		} else if q.truncation(utx, tausq) < .2*acc1 {
			q.sigsq += tausq
			utx = q.findu(utx, .25*acc1)
			trace.ConvergenceS = math.Sqrt(tausq)
		}
	}
	trace.Truncation = utx
	acc1 = 0.5 * acc1

	var intv, xnt float64
	for {
		// find the range of the distribution, quit if c is outside it
		var d1, d2 float64
		d1, up = q.ctff(acc1, up)
		d1 -= q.c
		if d1 < 0 {
			return 1, OK, trace
		}
		d2, un = q.ctff(acc1, un)
		d2 = q.c - d2
		if d2 < 0 {
			return 0, OK, trace
		}
		if d1 > d2 {
			intv = 2 * math.Pi / d1
		} else {
			intv = 2 * math.Pi / d2
		}
		// number of terms for main and auxiliary integrations
		xnt = utx / intv
		xntm := 3 / math.Sqrt(acc1)
		if xnt <= xntm*1.5 {
			break
		}
		if xntm > xlim {
			return -1, TermLimit, trace
		}
		ntm := int(math.Floor(xntm + 0.5))
		intv1 := utx / float64(ntm)
		x := 2 * math.Pi / intv1
		if x <= math.Abs(q.c) {
			break
		}
		tausq := .33 * acc1 / (1.1 * (q.cfe(q.c-x) + q.cfe(q.c+x)))
		if q.fail {
			break
		}
		acc1 = .67 * acc1
		// auxiliary integration
		q.integrate(ntm, intv1, tausq, false)
		xlim -= xntm
		q.sigsq += tausq
		trace.Integrations++
		trace.Terms += ntm + 1
		// truncation point with the new convergence factor
		utx = q.findu(utx, .25*acc1)
		acc1 = 0.75 * acc1
	}

	// main integration
	trace.Interval = intv
	if xnt > xlim {
		return -1, TermLimit, trace
	}
	nt := int(math.Floor(xnt + 0.5))
	q.integrate(nt, intv, 0, true)
	trace.Integrations++
	trace.Terms += nt + 1
	qfval = 0.5 - q.intl
	trace.AbsSum = q.ersm

	// round-off test, allowing for radix 8 or 16 machines
	x := q.ersm + acc/10
	for _, rat := range rats {
		if rat*x == rat*q.ersm {
			status = RoundOff
		}
	}
	return qfval, status, trace
}

func (q *qf) counter() {
	q.count++
	if q.count > q.lim {
		panic(errCounter{})
	}
}

func exp1(x float64) float64 {
	if x < -50 {
		return 0
	}
	return math.Exp(x)
}

// log1 returns log(1+x) if first, else log(1+x)-x.
func log1(x float64, first bool) float64 {
	if math.Abs(x) > 0.1 {
		if first {
			return math.Log(1 + x)
		}
		return math.Log(1+x) - x
	}
	y := x / (2 + x)
	term := 2 * y * y * y
	k := 3.0
	var s float64
	if first {
		s = 2 * y
	} else {
		s = -x * y
	}
	y = y * y
	for s1 := s + term/k; s1 != s; s1 = s + term/k {
		k += 2
		term *= y
		s = s1
	}
	return s
}

// order sorts term indexes by decreasing absolute coefficient.
func (q *qf) order() {
	for j := range q.th {
		q.th[j] = j
	}
	sort.SliceStable(q.th, func(a, b int) bool {
		return math.Abs(q.lb[q.th[a]]) > math.Abs(q.lb[q.th[b]])
	})
	q.unord = false
}

// errbd bounds the tail probability using the mgf; it returns the
// bound and the cutoff point.
func (q *qf) errbd(u float64) (bound, cx float64) {
	q.counter()
	xconst := u * q.sigsq
	sum1 := u * xconst
	u = 2 * u
	for j := q.r - 1; j >= 0; j-- {
		nj, lj, ncj := float64(q.n[j]), q.lb[j], q.nc[j]
		x := u * lj
		y := 1 - x
		xconst += lj * (ncj/y + nj) / y
		sum1 += ncj*(x/y)*(x/y) + nj*(x*x/y+log1(-x, false))
	}
	return exp1(-0.5 * sum1), xconst
}

// ctff finds a cutoff such that P(Q > cutoff) < accx if upn > 0, or
// P(Q < cutoff) < accx otherwise. It returns the cutoff and the
// updated upn.
func (q *qf) ctff(accx, upn float64) (float64, float64) {
	u2 := upn
	u1 := 0.0
	c1 := q.mean
	rb := 2 * q.lmin
	if u2 > 0 {
		rb = 2 * q.lmax
	}
	var c2 float64
	for {
		var bound float64
		bound, c2 = q.errbd(u2 / (1 + u2*rb))
		if bound <= accx {
			break
		}
		u1, c1 = u2, c2
		u2 = 2 * u2
	}
	for u := (c1 - q.mean) / (c2 - q.mean); u < 0.9; u = (c1 - q.mean) / (c2 - q.mean) {
		u = (u1 + u2) / 2
		bound, xconst := q.errbd(u / (1 + u*rb))
		if bound > accx {
			u1, c1 = u, xconst
		} else {
			u2, c2 = u, xconst
		}
	}
	return c2, u2
}

// truncation bounds the integration error due to truncation at u.
func (q *qf) truncation(u, tausq float64) float64 {
	q.counter()
	var sum1, prod2, prod3 float64
	s := 0
	sum2 := (q.sigsq + tausq) * u * u
	prod1 := 2 * sum2
	u = 2 * u
	for j := 0; j < q.r; j++ {
		lj, ncj, nj := q.lb[j], q.nc[j], q.n[j]
		x := (u * lj) * (u * lj)
		sum1 += ncj * x / (1 + x)
		if x > 1 {
			prod2 += float64(nj) * math.Log(x)
			prod3 += float64(nj) * log1(x, true)
			s += nj
		} else {
			prod1 += float64(nj) * log1(x, true)
		}
	}
	sum1 = 0.5 * sum1
	prod2 += prod1
	prod3 += prod1
	x := exp1(-sum1-0.25*prod2) / math.Pi
	y := exp1(-sum1-0.25*prod3) / math.Pi
	err1 := 1.0
	if s != 0 {
		err1 = x * 2 / float64(s)
	}
	err2 := 1.0
	if prod3 > 1 {
		err2 = 2.5 * y
	}
	if err2 < err1 {
		err1 = err2
	}
	x = 0.5 * sum2
	err2 = 1.0
	if x > y {
		err2 = y / x
	}
	if err1 < err2 {
		return err1
	}
	return err2
}

// findu finds u such that truncation(u) < accx and
// truncation(u/1.2) > accx, starting from ut.
func (q *qf) findu(ut, accx float64) float64 {
	u := ut / 4
	if q.truncation(u, 0) > accx {
		for u = ut; q.truncation(u, 0) > accx; u = ut {
			ut *= 4
		}
	} else {
		ut = u
		for u = u / 4; q.truncation(u, 0) <= accx; u = u / 4 {
			ut = u
		}
	}
	for _, divis := range [4]float64{2, 1.4, 1.2, 1.1} {
		u = ut / divis
		if q.truncation(u, 0) <= accx {
			ut = u
		}
	}
	return ut
}

// integrate carries out the integration with nterm terms at stepsize
// interv. Unless mainx, the integrand is multiplied by
// 1-exp(-0.5*tausq*u^2).
func (q *qf) integrate(nterm int, interv, tausq float64, mainx bool) {
	inpi := interv / math.Pi
	for k := nterm; k >= 0; k-- {
		u := (float64(k) + 0.5) * interv
		sum1 := -2 * u * q.c
		sum2 := math.Abs(sum1)
		sum3 := -0.5 * q.sigsq * u * u
		for j := q.r - 1; j >= 0; j-- {
			nj := float64(q.n[j])
			x := 2 * q.lb[j] * u
			y := x * x
			sum3 -= 0.25 * nj * log1(y, true)
			y = q.nc[j] * x / (1 + y)
			z := nj*math.Atan(x) + y
			sum1 += z
			sum2 += math.Abs(z)
			sum3 -= 0.5 * x * y
		}
		x := inpi * exp1(sum3) / u
		if !mainx {
			x *= 1 - exp1(-0.5*tausq*u*u)
		}
		q.intl += math.Sin(0.5*sum1) * x
		q.ersm += 0.5 * sum2 * x
	}
}

// cfe returns the coefficient of tausq in the error when the
// convergence factor exp1(-0.5*tausq*u^2) is used at x.
func (q *qf) cfe(x float64) float64 {
	q.counter()
	if q.unord {
		q.order()
	}
	axl := math.Abs(x)
	sxl := 1.0
	if x <= 0 {
		sxl = -1
	}
	sum1 := 0.0
	for j := q.r - 1; j >= 0; j-- {
		t := q.th[j]
		if q.lb[t]*sxl > 0 {
			lj := math.Abs(q.lb[t])
			axl1 := axl - lj*(float64(q.n[t])+q.nc[t])
			axl2 := lj / log28
			if axl1 > axl2 {
				axl = axl1
				continue
			}
			if axl > axl2 {
				axl = axl2
			}
			sum1 = (axl - axl1) / lj
			for k := j - 1; k >= 0; k-- {
				sum1 += float64(q.n[q.th[k]]) + q.nc[q.th[k]]
			}
			break
		}
	}
	if sum1 > 100 {
		q.fail = true
		return 1
	}
	return math.Pow(2, sum1/4) / (math.Pi * axl * axl)
}
