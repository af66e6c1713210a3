// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// StudyFormat describes the layout of a GWAS summary statistics file.
// Column numbers are 0-based; -1 means absent.
type StudyFormat struct {
	Name        string  `toml:"name"`
	File        string  `toml:"file"`
	IDColumn    int     `toml:"rscol"`
	PColumn     int     `toml:"pcol"`
	BetaColumn  int     `toml:"bcol"`
	A1Column    int     `toml:"a1col"`
	A2Column    int     `toml:"a2col"`
	StudyColumn int     `toml:"idcol"` // study name per row, for files holding several studies
	Delimiter   string  `toml:"delimiter"`
	NA          string  `toml:"na"`
	Header      bool    `toml:"header"`
	Threshold   float64 `toml:"threshold"` // keep rows with p < Threshold
	MinP        float64 `toml:"mincutoff"`
	Log10P      bool    `toml:"log10p"`
	Rank        bool    `toml:"rank"`
	SNPOnly     bool    `toml:"snponly"`
}

// DefaultStudyFormat is id, p, beta in the first three columns, no
// alleles, whitespace separated.
func DefaultStudyFormat() StudyFormat {
	return StudyFormat{
		Name:        "GWAS",
		IDColumn:    0,
		PColumn:     1,
		BetaColumn:  2,
		A1Column:    -1,
		A2Column:    -1,
		StudyColumn: -1,
		NA:          "n/a",
		Threshold:   1,
	}
}

func (sf *StudyFormat) withAlleles() bool {
	return sf.A1Column >= 0 && sf.A2Column >= 0
}

func (sf *StudyFormat) maxColumn() int {
	max := sf.IDColumn
	for _, col := range []int{sf.PColumn, sf.BetaColumn, sf.A1Column, sf.A2Column, sf.StudyColumn} {
		if col > max {
			max = col
		}
	}
	return max
}

func (sf *StudyFormat) split(line string) []string {
	if sf.Delimiter == "" {
		return strings.Fields(line)
	}
	return strings.Split(line, sf.Delimiter)
}

// LoadStudy reads sf.File (possibly gzipped) and adds the resulting
// studies to repo.
func (repo *StudyRepository) LoadStudy(sf StudyFormat) error {
	f, err := zopen(sf.File)
	if err != nil {
		return err
	}
	defer f.Close()
	studies, err := ReadStudies(f, sf)
	if err != nil {
		return fmt.Errorf("%s: %w", sf.File, err)
	}
	for _, st := range studies {
		repo.Add(st)
	}
	return nil
}

// ReadStudies parses summary statistics. Rows with NA values, or p
// outside (0,1), or p >= sf.Threshold are skipped; kept p-values are
// clamped below at sf.MinP. Without a study column, all rows go to a
// single study named sf.Name.
func ReadStudies(r io.Reader, sf StudyFormat) ([]*Study, error) {
	if sf.IDColumn < 0 || sf.PColumn < 0 || sf.BetaColumn < 0 {
		return nil, fmt.Errorf("id, p and beta columns are required")
	}
	if sf.Threshold == 0 {
		sf.Threshold = 1
	}
	withAlleles := sf.withAlleles()
	byName := map[string]*Study{}
	var order []string
	study := func(name string) *Study {
		st, ok := byName[name]
		if !ok {
			st = newStudy(name, withAlleles)
			byName[name] = st
			order = append(order, name)
		}
		return st
	}
	if sf.StudyColumn < 0 {
		study(sf.Name)
	}

	minp := 1.0
	maxcol := sf.maxColumn()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	for lineno := 1; scanner.Scan(); lineno++ {
		if lineno == 1 && sf.Header {
			continue
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := sf.split(line)
		if len(fields) <= maxcol {
			return nil, fmt.Errorf("line %d: %d fields, need at least %d", lineno, len(fields), maxcol+1)
		}
		if fields[sf.BetaColumn] == sf.NA || fields[sf.PColumn] == sf.NA {
			continue
		}
		b, err := strconv.ParseFloat(fields[sf.BetaColumn], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: beta: %w", lineno, err)
		}
		p, err := strconv.ParseFloat(fields[sf.PColumn], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: p-value: %w", lineno, err)
		}
		if sf.Log10P {
			p = math.Pow(10, -p)
		}
		if !(p > 0 && p < 1 && p < sf.Threshold) {
			continue
		}
		if p < minp {
			minp = p
		}
		name := sf.Name
		if sf.StudyColumn >= 0 {
			name = fields[sf.StudyColumn]
		}
		st := study(name)
		id := fields[sf.IDColumn]
		if withAlleles {
			a1, a2 := strings.ToUpper(fields[sf.A1Column]), strings.ToUpper(fields[sf.A2Column])
			if sf.SNPOnly && (len(a1) != 1 || len(a2) != 1) {
				continue
			}
			st.Alleles[id] = Alleles{a1, a2}
		}
		if p < sf.MinP {
			p = sf.MinP
		}
		st.P[id] = p
		st.Effect[id] = b
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var studies []*Study
	for _, name := range order {
		st := byName[name]
		if sf.Rank {
			ids := make([]string, 0, len(st.P))
			for id := range st.P {
				ids = append(ids, id)
			}
			st.rank(ids)
		}
		log.WithFields(log.Fields{
			"study":    name,
			"variants": st.Len(),
			"minP":     minp,
		}).Info("loaded study")
		studies = append(studies, st)
	}
	return studies, nil
}
