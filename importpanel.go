// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// importPanel builds a SQLite reference panel from tab-separated
// genotype text: chr, pos, id, alt, ref, and a string of per-sample
// alt allele counts ("0", "1" or "2" per sample).
type importPanel struct{}

func (cmd *importPanel) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *importPanel) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	prefix := flags.String("prefix", "", "reference panel `prefix`")
	input := flags.String("i", "-", "genotype `file` (.gz ok)")
	batchSize := flags.Int("batch-size", 10000, "records per transaction")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	}
	if *prefix == "" {
		return errors.New("-prefix is required")
	}
	var r io.Reader = stdin
	if *input != "-" {
		f, err := zopen(*input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	n, err := importGenotypes(r, SQLitePanel{Prefix: *prefix}, *batchSize)
	if err != nil {
		return err
	}
	log.Printf("imported %d variants", n)
	return nil
}

// importGenotypes writes the records read from r to panel, and
// returns the number of records written.
func importGenotypes(r io.Reader, panel SQLitePanel, batchSize int) (int, error) {
	writers := map[string]*SQLitePanelWriter{}
	pending := map[string][]ReferenceVariant{}
	defer func() {
		for _, w := range writers {
			w.Close()
		}
	}()
	flush := func(chr string) error {
		if len(pending[chr]) == 0 {
			return nil
		}
		w, ok := writers[chr]
		if !ok {
			var err error
			w, err = panel.Create(chr)
			if err != nil {
				return err
			}
			writers[chr] = w
		}
		err := w.Insert(pending[chr]...)
		pending[chr] = pending[chr][:0]
		return err
	}

	total := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<28)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 6 {
			return total, fmt.Errorf("line %d: %d fields, expected 6", lineno, len(fields))
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return total, fmt.Errorf("line %d: %w", lineno, err)
		}
		genotype, err := parseDosages(fields[5])
		if err != nil {
			return total, fmt.Errorf("line %d: %w", lineno, err)
		}
		chr := strings.TrimPrefix(fields[0], "chr")
		pending[chr] = append(pending[chr], ReferenceVariant{
			ID:       fields[2],
			Position: pos,
			MAF:      minorAlleleFrequency(genotype),
			Genotype: genotype,
			Alt:      strings.ToUpper(fields[3]),
			Ref:      strings.ToUpper(fields[4]),
		})
		total++
		if len(pending[chr]) >= batchSize {
			if err := flush(chr); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, err
	}
	for chr := range pending {
		if err := flush(chr); err != nil {
			return total, err
		}
	}
	for chr, w := range writers {
		delete(writers, chr)
		if err := w.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func parseDosages(s string) ([]uint8, error) {
	out := make([]uint8, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '2' {
			return nil, fmt.Errorf("invalid allele count %q at sample %d", s[i], i)
		}
		out[i] = s[i] - '0'
	}
	return out, nil
}

func minorAlleleFrequency(genotype []uint8) float64 {
	if len(genotype) == 0 {
		return 0
	}
	sum := 0
	for _, g := range genotype {
		sum += int(g)
	}
	f := float64(sum) / float64(2*len(genotype))
	if f > 0.5 {
		f = 1 - f
	}
	return f
}
