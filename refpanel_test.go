// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"sort"

	"gopkg.in/check.v1"
)

type refpanelSuite struct{}

var _ = check.Suite(&refpanelSuite{})

var panelRecords = []ReferenceVariant{
	{ID: "rs3", Position: 300, MAF: 0.2, Genotype: []uint8{0, 1, 2}, Alt: "A", Ref: "C"},
	{ID: "rs1", Position: 100, MAF: 0.1, Genotype: []uint8{1, 1, 0}, Alt: "G", Ref: "T"},
	{ID: "rs2", Position: 200, MAF: 0.3, Genotype: []uint8{2, 0, 0}, Alt: "C", Ref: "G"},
	{ID: "rs2b", Position: 200, MAF: 0.4, Genotype: []uint8{0, 0, 1}, Alt: "T", Ref: "G"},
	{ID: "rs5", Position: 500, MAF: 0.25, Genotype: []uint8{1, 0, 1}},
}

func (s *refpanelSuite) checkPanel(c *check.C, panel ReferencePanel) {
	_, err := panel.Open("9")
	c.Check(err, check.NotNil)

	handle, err := panel.Open("1")
	c.Assert(err, check.IsNil)
	defer handle.Close()

	positions, err := handle.SortedPositions()
	c.Assert(err, check.IsNil)
	c.Check(positions, check.DeepEquals, []int{100, 200, 300, 500})

	ids, err := handle.RangeQuery(150, 300)
	c.Assert(err, check.IsNil)
	sort.Strings(ids)
	c.Check(ids, check.DeepEquals, []string{"rs2", "rs2b", "rs3"})

	rvs, err := handle.ByVariantIDs([]string{"rs3", "missing", "rs1"})
	c.Assert(err, check.IsNil)
	c.Assert(rvs, check.HasLen, 3)
	c.Check(rvs[0].ID, check.Equals, "rs3")
	c.Check(rvs[0].Genotype, check.DeepEquals, []uint8{0, 1, 2})
	c.Check(rvs[0].Alt+rvs[0].Ref, check.Equals, "AC")
	c.Check(rvs[1], check.IsNil)
	c.Check(rvs[2].MAF, check.Equals, 0.1)

	rvs, err = handle.ByPositions([]int{200, 500})
	c.Assert(err, check.IsNil)
	var got []string
	for _, rv := range rvs {
		got = append(got, rv.ID)
	}
	sort.Strings(got)
	c.Check(got, check.DeepEquals, []string{"rs2", "rs2b", "rs5"})

	all, err := handle.VariantIDs()
	c.Assert(err, check.IsNil)
	c.Check(all, check.HasLen, 5)
	c.Check(all["rs2b"], check.Equals, true)
}

func (s *refpanelSuite) TestMemoryPanel(c *check.C) {
	panel := &MemoryPanel{}
	panel.Add("1", panelRecords...)
	s.checkPanel(c, panel)
}

func (s *refpanelSuite) TestSQLitePanel(c *check.C) {
	panel := SQLitePanel{Prefix: c.MkDir() + "/ref"}
	w, err := panel.Create("1")
	c.Assert(err, check.IsNil)
	c.Assert(w.Insert(panelRecords[:2]...), check.IsNil)
	c.Assert(w.Insert(panelRecords[2:]...), check.IsNil)
	c.Assert(w.Close(), check.IsNil)
	s.checkPanel(c, panel)
}

// A chromosome handle reads the position index once.
func (s *refpanelSuite) TestSQLitePositionsLoadedOnce(c *check.C) {
	panel := SQLitePanel{Prefix: c.MkDir() + "/ref"}
	w, err := panel.Create("1")
	c.Assert(err, check.IsNil)
	c.Assert(w.Insert(panelRecords...), check.IsNil)
	c.Assert(w.Close(), check.IsNil)

	handle, err := panel.Open("1")
	c.Assert(err, check.IsNil)
	defer handle.Close()
	positions, err := handle.SortedPositions()
	c.Assert(err, check.IsNil)
	c.Check(positions, check.DeepEquals, []int{100, 200, 300, 500})

	w, err = panel.Create("1")
	c.Assert(err, check.IsNil)
	c.Assert(w.Insert(ReferenceVariant{ID: "rs7", Position: 700, MAF: 0.3, Genotype: []uint8{0, 1, 1}}), check.IsNil)
	c.Assert(w.Close(), check.IsNil)

	positions, err = handle.SortedPositions()
	c.Assert(err, check.IsNil)
	c.Check(positions, check.DeepEquals, []int{100, 200, 300, 500})

	fresh, err := panel.Open("1")
	c.Assert(err, check.IsNil)
	defer fresh.Close()
	positions, err = fresh.SortedPositions()
	c.Assert(err, check.IsNil)
	c.Check(positions, check.DeepEquals, []int{100, 200, 300, 500, 700})
}

func (s *refpanelSuite) TestPositionsInWindow(c *check.C) {
	sorted := []int{10, 20, 20, 30, 40}
	c.Check(positionsInWindow(sorted, 15, 30), check.DeepEquals, []int{20, 20, 30})
	c.Check(positionsInWindow(sorted, 41, 50), check.HasLen, 0)
	c.Check(positionsInWindow(sorted, -5, 10), check.DeepEquals, []int{10})
}
