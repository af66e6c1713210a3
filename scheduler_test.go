// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"fmt"
	"math"

	"github.com/cmatKhan/PascalX/davies"
	"go.uber.org/goleak"
	"gopkg.in/check.v1"
)

type schedulerSuite struct{}

var _ = check.Suite(&schedulerSuite{})

func (s *schedulerSuite) scorer(c *check.C, fx testFixture, modify func(*Config)) *Scorer {
	cfg := DefaultConfig()
	if modify != nil {
		modify(&cfg)
	}
	sc, err := NewScorer(cfg, fx.anno, fx.panel, fx.repo)
	c.Assert(err, check.IsNil)
	return sc
}

func (s *schedulerSuite) TestScoreSum(c *check.C) {
	defer goleak.VerifyNone(c, goleak.IgnoreCurrent())
	fx := newTestFixture(c)
	sc := s.scorer(c, fx, func(cfg *Config) { cfg.Workers = 3 })
	res, err := sc.Score([]string{"XG", "GAMMA", "BETA", "ALPHA", "NOSUCHGENE"}, "A", "B")
	c.Assert(err, check.IsNil)

	c.Assert(res.Scored, check.HasLen, 2)
	alpha, beta := res.Scored[0], res.Scored[1]
	c.Check(alpha.Symbol, check.Equals, "ALPHA")
	c.Check(alpha.NVariants, check.Equals, 2)
	c.Check(alpha.Sign, check.Equals, 1.0)
	// identity LD: z.w is a difference of two unit exponentials
	expect := 0.5 * math.Exp(-8.27727101617102)
	c.Check(math.Abs(alpha.P-expect)/expect < 1e-6, check.Equals, true, check.Commentf("p=%g expect=%g", alpha.P, expect))

	c.Check(beta.Symbol, check.Equals, "BETA")
	c.Check(beta.NVariants, check.Equals, 1)
	sig := signal(0.05, -0.2)
	c.Check(beta.P, check.Equals, besselK0Tail(sig*sig))

	c.Check(res.Failed, check.HasLen, 0)
	c.Check(res.NoData, check.DeepEquals, []GeneNoData{{GeneID: "G3", Symbol: "GAMMA", Reason: ReasonNoVariants}})
	// sex chromosome genes are in no category
	c.Check(res.Len(), check.Equals, 3)

	p, ok := sc.Scores.Get("ALPHA")
	c.Check(ok, check.Equals, true)
	c.Check(p, check.Equals, alpha.P)
	_, ok = sc.Scores.Get("GAMMA")
	c.Check(ok, check.Equals, false)
}

func (s *schedulerSuite) TestWorkerCountDoesNotChangeResults(c *check.C) {
	fx := newTestFixture(c)
	var prev *Results
	for _, workers := range []int{1, 2, 4, 7} {
		sc := s.scorer(c, fx, func(cfg *Config) { cfg.Workers = workers })
		res, err := sc.ScoreChromosomes([]string{"1", "2", "X"}, "A", "B")
		c.Assert(err, check.IsNil)
		c.Check(res.Len(), check.Equals, 3)
		if prev != nil {
			c.Check(res, check.DeepEquals, prev, check.Commentf("workers=%d", workers))
		}
		prev = res
	}
}

func (s *schedulerSuite) TestScoreRatio(c *check.C) {
	fx := newTestFixture(c)
	b, err := fx.repo.Get("B")
	c.Assert(err, check.IsNil)
	b.Effect["rs3"] = 0
	sc := s.scorer(c, fx, func(cfg *Config) { cfg.Statistic = "ratio" })
	res, err := sc.Score([]string{"ALPHA", "BETA"}, "A", "B")
	c.Assert(err, check.IsNil)
	c.Assert(res.Scored, check.HasLen, 1)
	c.Check(res.Scored[0].Symbol, check.Equals, "ALPHA")
	c.Check(res.Scored[0].P > 0 && res.Scored[0].P < 1, check.Equals, true)
	c.Check(res.NoData, check.DeepEquals, []GeneNoData{{GeneID: "G2", Symbol: "BETA", Reason: ReasonZeroDenominator}})
}

func (s *schedulerSuite) TestFailureAndRescore(c *check.C) {
	fx := newTestFixture(c)
	sc := s.scorer(c, fx, func(cfg *Config) {
		cfg.Limit = 1
		cfg.AutoRescore = true
	})
	res, err := sc.Score([]string{"ALPHA", "BETA"}, "A", "B")
	c.Assert(err, check.IsNil)
	// the single variant gene has a closed form and does not use the
	// solver
	c.Assert(res.Scored, check.HasLen, 1)
	c.Check(res.Scored[0].Symbol, check.Equals, "BETA")
	c.Assert(res.Failed, check.HasLen, 1)
	f := res.Failed[0]
	c.Check(f.Symbol, check.Equals, "ALPHA")
	c.Check(f.Status, check.Equals, davies.NoIntegrationParameters)
	c.Check(f.NVariants, check.Equals, 2)
	c.Check(fmt.Sprintf("%.6f", f.Statistic), check.Equals, "8.277271")
	_, ok := sc.Scores.Get("ALPHA")
	c.Check(ok, check.Equals, false)
}

// The first pass cannot reach 1e-12 within the term limit; the
// rescore at 1e-10 can.
func (s *schedulerSuite) TestRescoreRecovers(c *check.C) {
	fx := newTestFixture(c)
	sc := s.scorer(c, fx, func(cfg *Config) {
		cfg.Mode = "plain"
		cfg.Accuracy = 1e-12
		cfg.AutoRescore = true
		cfg.RescoreAccuracy = 1e-10
		cfg.Workers = 2
	})
	res, err := sc.Score([]string{"ALPHA", "BETA", "GAMMA"}, "A", "B")
	c.Assert(err, check.IsNil)
	c.Check(res.Failed, check.HasLen, 0)
	c.Check(res.NoData, check.HasLen, 1)
	c.Check(res.Len(), check.Equals, 3)
	seen := map[string]int{}
	for _, gs := range res.Scored {
		seen[gs.Symbol]++
	}
	c.Check(seen, check.DeepEquals, map[string]int{"ALPHA": 1, "BETA": 1})

	expect := 0.5 * math.Exp(-8.27727101617102)
	p, ok := sc.Scores.Get("ALPHA")
	c.Check(ok, check.Equals, true)
	c.Check(math.Abs(p-expect)/expect < 1e-5, check.Equals, true, check.Commentf("p=%g expect=%g", p, expect))
	c.Check(sc.Scores.Len(), check.Equals, 2)

	sc = s.scorer(c, fx, func(cfg *Config) {
		cfg.Mode = "plain"
		cfg.Accuracy = 1e-12
	})
	res, err = sc.Score([]string{"ALPHA"}, "A", "B")
	c.Assert(err, check.IsNil)
	c.Assert(res.Failed, check.HasLen, 1)
	c.Check(res.Failed[0].Status, check.Equals, davies.TermLimit)
}

func (s *schedulerSuite) TestMapped(c *check.C) {
	fx := newTestFixture(c)
	a := testStudy("A")
	m := NewSNPMap("map", false)
	m.Add("ALPHA", "rs-not-in-study", MapEntry{P: 0.01, Effect: 1})
	m.Add("ALPHA", "rs2", MapEntry{P: a.P["rs2"], Effect: a.Effect["rs2"]})
	m.Add("ALPHA", "rs1", MapEntry{P: a.P["rs1"], Effect: a.Effect["rs1"]})
	sc := s.scorer(c, fx, nil)
	res, err := sc.ScoreMappedGenes([]string{"ALPHA", "BETA"}, m, "B")
	c.Assert(err, check.IsNil)
	c.Assert(res.Scored, check.HasLen, 1)
	expect := 0.5 * math.Exp(-8.27727101617102)
	c.Check(math.Abs(res.Scored[0].P-expect)/expect < 1e-6, check.Equals, true)
	c.Check(res.NoData, check.DeepEquals, []GeneNoData{{GeneID: "G2", Symbol: "BETA", Reason: ReasonNoVariants}})
}

func (s *schedulerSuite) TestUnknownStudy(c *check.C) {
	fx := newTestFixture(c)
	sc := s.scorer(c, fx, nil)
	_, err := sc.Score([]string{"ALPHA"}, "A", "C")
	c.Check(err, check.ErrorMatches, `study "C" not loaded`)
	c.Check(sc.Scores.Len(), check.Equals, 0)
}

func (s *schedulerSuite) TestMissingChromosomeAborts(c *check.C) {
	fx := newTestFixture(c)
	anno, err := NewAnnotation(append(testGenes, GeneRecord{ID: "G5", Chromosome: "5", Start: 1, End: 2, Symbol: "FIVE"}))
	c.Assert(err, check.IsNil)
	fx.anno = anno
	sc := s.scorer(c, fx, func(cfg *Config) { cfg.Workers = 2 })
	_, err = sc.Score([]string{"ALPHA", "FIVE"}, "A", "B")
	c.Check(err, check.ErrorMatches, `gene FIVE: .*no data for chromosome "5"`)
	c.Check(sc.Scores.Len(), check.Equals, 0)
}

func (s *schedulerSuite) TestSplitContiguous(c *check.C) {
	c.Check(splitContiguous(10, 3), check.DeepEquals, [][2]int{{0, 4}, {4, 7}, {7, 10}})
	c.Check(splitContiguous(2, 4), check.DeepEquals, [][2]int{{0, 1}, {1, 2}, {2, 2}, {2, 2}})
	for n := 0; n < 30; n++ {
		for k := 1; k < 12; k++ {
			seen := 0
			next := 0
			for _, r := range splitContiguous(n, k) {
				c.Check(r[0], check.Equals, next)
				seen += r[1] - r[0]
				next = r[1]
			}
			c.Check(seen, check.Equals, n)
		}
	}
}

func (s *schedulerSuite) TestBatchArgs(c *check.C) {
	in := []string{"a", "b", "c", "d", "e"}
	var all []string
	for batch := 0; batch < 3; batch++ {
		b := batchArgs{batch: batch, batches: 3}
		all = append(all, b.Slice(in)...)
	}
	c.Check(all, check.DeepEquals, in)
	c.Check((&batchArgs{batch: -1, batches: 3}).Slice(in), check.DeepEquals, in)
}
