// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"io/ioutil"

	"gopkg.in/check.v1"
)

type configSuite struct{}

var _ = check.Suite(&configSuite{})

func (s *configSuite) TestDefaults(c *check.C) {
	cfg, err := ParseConfig("")
	c.Assert(err, check.IsNil)
	c.Check(cfg, check.DeepEquals, DefaultConfig())
	c.Check(cfg.Window, check.Equals, 50000)
	c.Check(cfg.VarCutoff, check.Equals, 0.99)
	c.Check(cfg.MAF, check.Equals, 0.05)
}

func (s *configSuite) TestParse(c *check.C) {
	cfg, err := ParseConfig(`
statistic = "ratio"
window = 10000
workers = 4
annotation = "genes.tsv"
refpanel = "/data/EUR"
autorescore = true

[[study]]
name = "T2D"
file = "t2d.tsv.gz"
a1col = 3
a2col = 4
header = true

[[study]]
file = "multi.tsv"
idcol = 5

[map]
file = "eqtl.tsv"
pfilter = 1e-5
`)
	c.Assert(err, check.IsNil)
	c.Check(cfg.Statistic, check.Equals, "ratio")
	c.Check(cfg.Window, check.Equals, 10000)
	c.Check(cfg.Workers, check.Equals, 4)
	c.Check(cfg.AutoRescore, check.Equals, true)
	c.Check(cfg.Accuracy, check.Equals, 1e-10)
	c.Assert(cfg.Studies, check.HasLen, 2)
	c.Check(cfg.Studies[0].Name, check.Equals, "T2D")
	c.Check(cfg.Studies[0].A1Column, check.Equals, 3)
	c.Check(cfg.Studies[0].PColumn, check.Equals, 1)
	c.Check(cfg.Studies[0].Header, check.Equals, true)
	// unset columns keep their defaults
	c.Check(cfg.Studies[1].A1Column, check.Equals, -1)
	c.Check(cfg.Studies[1].StudyColumn, check.Equals, 5)
	c.Check(cfg.Studies[1].Threshold, check.Equals, 1.0)
	c.Assert(cfg.Map, check.NotNil)
	c.Check(cfg.Map.PFilter, check.Equals, 1e-5)
	c.Check(cfg.Map.Delimiter, check.Equals, "\t")
	c.Check(cfg.Map.A1Column, check.Equals, -1)
}

func (s *configSuite) TestInvalid(c *check.C) {
	for _, trial := range []struct {
		toml string
		err  string
	}{
		{`statistic = "max"`, `unknown statistic "max"`},
		{`mode = "fast"`, `.*fast.*`},
		{`varcutoff = 1.5`, `varcutoff 1.5 out of range .*`},
		{`maf = 0.5`, `maf 0.5 out of range .*`},
		{`pcorr = 1.0`, `pcorr 1 out of range .*`},
		{`workers = 0`, `workers must be positive`},
		{"[[study]]\nname = \"x\"", `study 0: no file`},
		{`window = "big"`, `.*`},
	} {
		_, err := ParseConfig(trial.toml)
		c.Check(err, check.ErrorMatches, trial.err, check.Commentf("%s", trial.toml))
	}
}

func (s *configSuite) TestLoad(c *check.C) {
	fnm := c.MkDir() + "/run.toml"
	c.Assert(ioutil.WriteFile(fnm, []byte("maf = 0.1\n"), 0644), check.IsNil)
	cfg, err := LoadConfig(fnm)
	c.Assert(err, check.IsNil)
	c.Check(cfg.MAF, check.Equals, 0.1)
	_, err = LoadConfig(fnm + ".missing")
	c.Check(err, check.NotNil)
}
