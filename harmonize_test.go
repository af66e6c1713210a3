// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"gopkg.in/check.v1"
)

type harmonizeSuite struct{}

var _ = check.Suite(&harmonizeSuite{})

func studyWith(name string, alleles map[string]Alleles) *Study {
	st := newStudy(name, true)
	for id, a := range alleles {
		st.P[id] = 0.1
		st.Effect[id] = 1
		st.Alleles[id] = a
	}
	return st
}

func (s *harmonizeSuite) TestStudies(c *check.C) {
	a := studyWith("a", map[string]Alleles{
		"rs1":    {"A", "G"},
		"rs2":    {"C", "T"}, // swapped in b
		"rs3":    {"G", "A"},
		"only-a": {"A", "C"},
	})
	b := studyWith("b", map[string]Alleles{
		"rs1":    {"A", "G"},
		"rs2":    {"T", "C"},
		"rs3":    {"G", "A"},
		"only-b": {"A", "C"},
	})
	rep, err := HarmonizeStudies(a, b, HarmonizeOptions{})
	c.Assert(err, check.IsNil)
	c.Check(rep.Common, check.Equals, 3)
	c.Check(rep.Mismatched, check.Equals, 1)
	c.Check(rep.Removed, check.Equals, 3)
	c.Check(rep.MismatchFraction, check.Equals, 1.0/3)
	for _, st := range []*Study{a, b} {
		c.Check(st.P, check.HasLen, 2)
		c.Check(st.Alleles, check.DeepEquals, map[string]Alleles{"rs1": {"A", "G"}, "rs3": {"G", "A"}})
	}

	// idempotent
	rep, err = HarmonizeStudies(a, b, HarmonizeOptions{})
	c.Assert(err, check.IsNil)
	c.Check(rep.Removed, check.Equals, 0)
	c.Check(a.P, check.HasLen, 2)
}

func (s *harmonizeSuite) TestStudiesWithPanel(c *check.C) {
	fx := newTestFixture(c)
	a := testStudy("a")
	b := testStudy("b")
	// reference has rs3 as G/A; make both studies say A/G
	a.Alleles["rs3"] = Alleles{"A", "G"}
	b.Alleles["rs3"] = Alleles{"A", "G"}
	rep, err := HarmonizeStudies(a, b, HarmonizeOptions{Panel: fx.panel, Chromosomes: []string{"1", "2", "X"}})
	c.Assert(err, check.IsNil)
	c.Check(rep.RefMismatched, check.Equals, 1)
	c.Check(rep.Removed, check.Equals, 1)
	_, ok := a.P["rs3"]
	c.Check(ok, check.Equals, false)
	c.Check(a.P, check.HasLen, 4)
	c.Check(b.P, check.HasLen, 4)
}

func (s *harmonizeSuite) TestPanelErrorLeavesStudies(c *check.C) {
	fx := newTestFixture(c)
	a := testStudy("a")
	b := testStudy("b")
	b.Alleles["rs1"] = Alleles{"G", "A"}
	_, err := HarmonizeStudies(a, b, HarmonizeOptions{Panel: fx.panel})
	c.Check(err, check.ErrorMatches, `harmonize a/b: chromosome 3: .*`)
	c.Check(a.P, check.HasLen, 5)
	c.Check(b.P, check.HasLen, 5)
}

func (s *harmonizeSuite) TestNoAlleles(c *check.C) {
	a := newStudy("a", false)
	a.P["rs1"], a.Effect["rs1"] = 0.1, 1
	b := testStudy("b")
	_, err := HarmonizeStudies(a, b, HarmonizeOptions{})
	c.Check(err, check.ErrorMatches, `harmonize a/b: allele information missing`)
	c.Check(b.P, check.HasLen, 5)
}

func (s *harmonizeSuite) TestMapping(c *check.C) {
	st := studyWith("st", map[string]Alleles{
		"rs1":  {"A", "G"},
		"rs2":  {"C", "T"},
		"rs99": {"C", "T"},
	})
	m := NewSNPMap("map", true)
	m.Add("G1", "rs1", MapEntry{P: 0.1, Effect: 1, Alleles: Alleles{"A", "G"}})
	m.Add("G1", "rs2", MapEntry{P: 0.1, Effect: 1, Alleles: Alleles{"T", "C"}})
	m.Add("G2", "rs2", MapEntry{P: 0.1, Effect: 1, Alleles: Alleles{"T", "C"}})
	m.Add("G2", "rs3", MapEntry{P: 0.1, Effect: 1, Alleles: Alleles{"T", "C"}})
	rep, err := HarmonizeMapping(st, m, HarmonizeOptions{})
	c.Assert(err, check.IsNil)
	c.Check(rep.Common, check.Equals, 2)
	c.Check(rep.Mismatched, check.Equals, 1)
	c.Check(st.Alleles, check.DeepEquals, map[string]Alleles{"rs1": {"A", "G"}})
	e, ok := m.Entries("G1")
	c.Check(ok, check.Equals, true)
	c.Check(e, check.HasLen, 1)
	e, _ = m.Entries("G2")
	c.Check(e, check.HasLen, 1)
}
