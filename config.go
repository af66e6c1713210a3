// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/BurntSushi/toml"
	"github.com/cmatKhan/PascalX/davies"
)

// Config holds the scorer settings and the inputs to load. It is
// usually read from a TOML file and then overridden by command line
// flags.
type Config struct {
	Statistic       string  `toml:"statistic"`
	Window          int     `toml:"window"`
	VarCutoff       float64 `toml:"varcutoff"`
	MAF             float64 `toml:"maf"`
	LeftTail        bool    `toml:"left_tail"`
	PCorr           float64 `toml:"pcorr"`
	Accuracy        float64 `toml:"accuracy"`
	Mode            string  `toml:"mode"`
	Limit           int     `toml:"limit"`
	Workers         int     `toml:"workers"`
	Backend         string  `toml:"backend"`
	AutoRescore     bool    `toml:"autorescore"`
	RescoreAccuracy float64 `toml:"rescore_accuracy"`

	Annotation string `toml:"annotation"`
	RefPanel   string `toml:"refpanel"` // sqlite panel prefix

	Studies []StudyFormat `toml:"-"`
	Map     *SNPMapFormat `toml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Statistic:       "sum",
		Window:          50000,
		VarCutoff:       0.99,
		MAF:             0.05,
		Accuracy:        1e-10,
		Mode:            "auto",
		Limit:           1000000,
		Workers:         1,
		Backend:         "gonum",
		RescoreAccuracy: 1e-8,
	}
}

// Validate checks value ranges.
func (cfg *Config) Validate() error {
	if _, err := ParseStatistic(cfg.Statistic); err != nil {
		return err
	}
	if _, err := davies.ParseMode(cfg.Mode); err != nil {
		return err
	}
	switch {
	case cfg.Window < 0:
		return errors.New("window must not be negative")
	case !(cfg.VarCutoff > 0 && cfg.VarCutoff <= 1):
		return fmt.Errorf("varcutoff %g out of range (0,1]", cfg.VarCutoff)
	case cfg.MAF < 0 || cfg.MAF >= 0.5:
		return fmt.Errorf("maf %g out of range [0,0.5)", cfg.MAF)
	case !(cfg.PCorr > -1 && cfg.PCorr < 1):
		return fmt.Errorf("pcorr %g out of range (-1,1)", cfg.PCorr)
	case !(cfg.Accuracy > 0):
		return fmt.Errorf("accuracy %g must be positive", cfg.Accuracy)
	case cfg.Limit < 1:
		return errors.New("limit must be positive")
	case cfg.Workers < 1:
		return errors.New("workers must be positive")
	case cfg.AutoRescore && !(cfg.RescoreAccuracy > 0):
		return fmt.Errorf("rescore_accuracy %g must be positive", cfg.RescoreAccuracy)
	}
	return nil
}

// tables holds the table sections of a config file, decoded in a
// second pass so each entry starts from its format defaults.
type tables struct {
	Study []toml.Primitive `toml:"study"`
	Map   toml.Primitive   `toml:"map"`
}

// ParseConfig decodes TOML text on top of DefaultConfig.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, err
	}
	var t tables
	md, err := toml.Decode(data, &t)
	if err != nil {
		return cfg, err
	}
	for i, prim := range t.Study {
		sf := DefaultStudyFormat()
		if err := md.PrimitiveDecode(prim, &sf); err != nil {
			return cfg, fmt.Errorf("study %d: %w", i, err)
		}
		if sf.File == "" {
			return cfg, fmt.Errorf("study %d: no file", i)
		}
		cfg.Studies = append(cfg.Studies, sf)
	}
	if md.IsDefined("map") {
		mf := DefaultSNPMapFormat()
		if err := md.PrimitiveDecode(t.Map, &mf); err != nil {
			return cfg, fmt.Errorf("map: %w", err)
		}
		cfg.Map = &mf
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a TOML config file.
func LoadConfig(fnm string) (Config, error) {
	buf, err := ioutil.ReadFile(fnm)
	if err != nil {
		return DefaultConfig(), err
	}
	cfg, err := ParseConfig(string(buf))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", fnm, err)
	}
	return cfg, nil
}
