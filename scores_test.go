// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"bytes"
	"strings"

	"gopkg.in/check.v1"
)

type scoresSuite struct{}

var _ = check.Suite(&scoresSuite{})

func (s *scoresSuite) TestUpsertTop(c *check.C) {
	st := NewScoreTable()
	st.Upsert("B", 0.5)
	st.Upsert("A", 0.01)
	st.Upsert("C", 0.01)
	st.Upsert("B", 1e-5)
	c.Check(st.Len(), check.Equals, 3)
	c.Check(st.Top(2), check.DeepEquals, []GenePValue{{"B", 1e-5}, {"A", 0.01}})
	c.Check(st.Top(-1), check.HasLen, 3)
	c.Check(st.Top(10), check.HasLen, 3)

	var buf bytes.Buffer
	c.Assert(st.Write(&buf), check.IsNil)
	c.Check(buf.String(), check.Equals, "B\t1e-05\nA\t0.01\nC\t0.01\n")
}

func (s *scoresSuite) TestSaveLoad(c *check.C) {
	for _, fnm := range []string{"scores.tsv", "scores.tsv.gz"} {
		fnm = c.MkDir() + "/" + fnm
		st := NewScoreTable()
		st.Upsert("GENE1", 0.123456789)
		st.Upsert("GENE2", 3.5e-12)
		c.Assert(st.Save(fnm), check.IsNil)
		again := NewScoreTable()
		c.Assert(again.Load(fnm), check.IsNil)
		c.Check(again.Top(-1), check.DeepEquals, st.Top(-1))
	}
}

func (s *scoresSuite) TestRead(c *check.C) {
	st := NewScoreTable()
	err := st.Read(strings.NewReader("p\tgene\n0.5\tX\nbogus\tY\n0.1\n"), 1, 0, true)
	c.Assert(err, check.IsNil)
	c.Check(st.Top(-1), check.DeepEquals, []GenePValue{{"X", 0.5}})
}
