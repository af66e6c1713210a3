// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"math"

	"github.com/cmatKhan/PascalX/davies"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type statisticSuite struct{}

var _ = check.Suite(&statisticSuite{})

func (s *statisticSuite) TestParse(c *check.C) {
	for name, expect := range map[string]string{"": "sum", "sum": "sum", "zsum": "sum", "ratio": "ratio", "rsum": "ratio"} {
		stat, err := ParseStatistic(name)
		c.Assert(err, check.IsNil)
		c.Check(stat.Name(), check.Equals, expect)
	}
	_, err := ParseStatistic("max")
	c.Check(err, check.ErrorMatches, `unknown statistic "max"`)
}

func (s *statisticSuite) TestCombine(c *check.C) {
	w := []float64{1, -2, 3}
	z := []float64{0.5, 0.5, 1}
	sum, err := SumStatistic{}.Combine(w, z)
	c.Check(err, check.IsNil)
	c.Check(sum, check.Equals, 2.5)
	ratio, err := RatioStatistic{}.Combine(w, z)
	c.Check(err, check.IsNil)
	c.Check(ratio, check.Equals, 2.5/1.5)
	_, err = RatioStatistic{}.Combine(w, []float64{0, 0, 0})
	c.Check(err, check.Equals, errZeroDenominator)
}

// The closed forms agree with the solver on the 1x1 LD matrix.
func (s *statisticSuite) TestSingleVariantMatchesSolver(c *check.C) {
	c.Check(besselK0Tail(0), check.Equals, 0.5)
	for _, x := range []float64{0.5, 1, 3, 8} {
		coefs := SumStatistic{}.CorrectionTerms(x, 1, 0)
		p, status := davies.UpperTail(x, coefs[:], 1e-10, davies.Auto, 1000000)
		c.Check(status, check.Equals, davies.OK)
		c.Check(math.Abs(besselK0Tail(x)-p) < 1e-7, check.Equals, true, check.Commentf("x=%g closed=%g solver=%g", x, besselK0Tail(x), p))
		c.Check(math.Abs(SumStatistic{}.SingleVariantTail(-x, 0, false)-(1-p)) < 1e-7, check.Equals, true)
		c.Check(math.Abs(SumStatistic{}.SingleVariantTail(-x, 0, true)-p) < 1e-7, check.Equals, true)
	}
	// the ratio offset is zero, where the solver gets no convergence
	// factor and needs a coarser accuracy
	for _, r := range []float64{-2, -0.3, 0.5, 2} {
		coefs := RatioStatistic{}.CorrectionTerms(r, 1, 0)
		p, status := davies.UpperTail(0, coefs[:], 1e-6, davies.Plain, 1000000)
		c.Check(status, check.Equals, davies.OK)
		closed := RatioStatistic{}.SingleVariantTail(r, 0, false)
		c.Check(math.Abs(closed-p) < 1e-5, check.Equals, true, check.Commentf("r=%g closed=%g solver=%g", r, closed, p))
	}
}

func (s *statisticSuite) TestRetained(c *check.C) {
	c.Check(retained(nil, 0), check.HasLen, 0)
	c.Check(retained([]float64{3}, 2.97), check.DeepEquals, []float64{3})
	c.Check(retained([]float64{1.9, 0.1}, 1.8), check.DeepEquals, []float64{1.9, 0.1})
	c.Check(retained([]float64{2, 0.6, 0.3, 0.1}, 2.5), check.DeepEquals, []float64{2, 0.6})

	rnd := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		eig := make([]float64, 1+rnd.Intn(20))
		for i := range eig {
			eig[i] = rnd.Float64()*4 - 0.5
		}
		varcutoff := 0.5 + rnd.Float64()/2
		spectrum, cutoff := truncatedSpectrum(eig, varcutoff)
		for i := 1; i < len(spectrum); i++ {
			c.Check(spectrum[i] <= spectrum[i-1], check.Equals, true)
		}
		kept := retained(spectrum, cutoff)
		if len(kept) < 2 {
			continue
		}
		c.Check(floats.Sum(kept) >= cutoff || len(kept) == len(spectrum), check.Equals, true)
		if len(kept) > 2 {
			c.Check(floats.Sum(kept[:len(kept)-1]) < cutoff, check.Equals, true)
		}
	}
}

func testEngine(stat JointStatistic) *tailEngine {
	return &tailEngine{
		stat:      stat,
		backend:   gonumBackend{},
		varcutoff: 0.99,
		accuracy:  DefaultConfig().Accuracy,
		mode:      davies.Auto,
		limit:     1000000,
	}
}

func (s *statisticSuite) TestEngine(c *check.C) {
	te := testEngine(SumStatistic{})
	tr, err := te.tail(1, nil, 0)
	c.Check(err, check.IsNil)
	c.Check(tr.ok(), check.Equals, false)

	tr, err = te.tail(1e6, mat.NewSymDense(1, []float64{1}), 1)
	c.Check(err, check.IsNil)
	c.Check(tr.P, check.Equals, minTailP)
	c.Check(tr.ok(), check.Equals, true)

	ident := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	tr, err = te.tail(3, ident, 2)
	c.Assert(err, check.IsNil)
	c.Check(tr.ok(), check.Equals, true)
	c.Check(tr.Terms, check.Equals, 4)
	c.Check(math.Abs(tr.P-0.5*math.Exp(-3)) < 1e-9, check.Equals, true)

	te.leftTail = true
	tr, err = te.tail(3, ident, 2)
	c.Assert(err, check.IsNil)
	c.Check(math.Abs(tr.P-(1-0.5*math.Exp(-3))) < 1e-9, check.Equals, true)

	te = testEngine(SumStatistic{}).withAccuracy(1e-6)
	c.Check(te.accuracy, check.Equals, 1e-6)
	te.limit = 1
	tr, err = te.tail(3, ident, 2)
	c.Assert(err, check.IsNil)
	c.Check(tr.Status, check.Equals, davies.NoIntegrationParameters)
	c.Check(tr.ok(), check.Equals, false)
}

func (s *statisticSuite) TestStrongLD(c *check.C) {
	// perfectly correlated pair: one eigenvalue 2, the other 0 up to rounding
	te := testEngine(SumStatistic{})
	corr := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	tr, err := te.tail(4, corr, 2)
	c.Assert(err, check.IsNil)
	c.Check(math.Abs(tr.P-besselK0Tail(2)) < 1e-7, check.Equals, true, check.Commentf("p=%g", tr.P))
}
