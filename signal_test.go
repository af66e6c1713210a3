// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/check.v1"
)

type signalSuite struct{}

var _ = check.Suite(&signalSuite{})

func (s *signalSuite) TestChiSquaredUpperInverse(c *check.C) {
	c.Check(fmt.Sprintf("%.7f", chiSquaredUpperInverse(0.05)), check.Equals, "3.8414588")
	c.Check(fmt.Sprintf("%.7f", chiSquaredUpperInverse(0.01)), check.Equals, "6.6348966")
	c.Check(fmt.Sprintf("%.7f", chiSquaredUpperInverse(0.2)), check.Equals, "1.6423744")
	c.Check(chiSquaredUpperInverse(1), check.Equals, 0.0)
	chisq := distuv.ChiSquared{K: 1}
	for _, p := range []float64{0.9, 0.5, 1e-3, 1e-8, 1e-20} {
		x := chiSquaredUpperInverse(p)
		c.Check(math.Abs(chisq.Survival(x)-p)/p < 1e-6, check.Equals, true, check.Commentf("p=%g x=%g", p, x))
	}
	// tiny p values stay finite and ordered
	c.Check(chiSquaredUpperInverse(1e-300) > chiSquaredUpperInverse(1e-200), check.Equals, true)
	c.Check(math.IsInf(chiSquaredUpperInverse(1e-300), 0), check.Equals, false)
}

func (s *signalSuite) TestSignal(c *check.C) {
	c.Check(fmt.Sprintf("%.6f", signal(0.05, 2.5)), check.Equals, "1.959964")
	c.Check(fmt.Sprintf("%.6f", signal(0.05, -0.1)), check.Equals, "-1.959964")
	c.Check(signal(0.05, 0), check.Equals, 0.0)

	p := map[string]float64{"rs1": 0.05, "rs2": 0.01}
	b := map[string]float64{"rs1": -1, "rs2": 3}
	out := signals([]string{"rs2", "rs1"}, func(id string) float64 { return p[id] }, func(id string) float64 { return b[id] })
	c.Check(out, check.HasLen, 2)
	c.Check(fmt.Sprintf("%.6f %.6f", out[0], out[1]), check.Equals, "2.575829 -1.959964")
}
