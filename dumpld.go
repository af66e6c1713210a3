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
	"os"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// dumpLD writes the LD correlation matrix of one gene as a .npy file
// and its variant ids, one per line, to a companion text file.
type dumpLD struct{}

func (cmd *dumpLD) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *dumpLD) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	annotationFile := flags.String("annotation", "", "gene annotation `file`")
	refpanel := flags.String("refpanel", "", "reference panel `prefix`")
	gene := flags.String("gene", "", "gene symbol or id")
	window := flags.Int("window", 50000, "gene window extension in `bp`")
	maf := flags.Float64("maf", 0.05, "minimum reference minor allele frequency")
	backend := flags.String("backend", "gonum", "linear algebra backend")
	output := flags.String("o", "", "output `file` (.npy); ids are written to file.ids")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	}
	if *annotationFile == "" || *refpanel == "" || *gene == "" || *output == "" {
		return errors.New("-annotation, -refpanel, -gene and -o are required")
	}
	anno, err := LoadAnnotation(*annotationFile)
	if err != nil {
		return err
	}
	g, ok := anno.Lookup(*gene)
	if !ok {
		return fmt.Errorf("%s not in annotation", *gene)
	}
	handle, err := SQLitePanel{Prefix: *refpanel}.Open(g.Chromosome)
	if err != nil {
		return err
	}
	defer handle.Close()
	cb := &correlationBuilder{window: *window, maf: *maf, backend: selectBackend(*backend)}
	ld, err := cb.build(g, func(string) bool { return true }, handle)
	if err != nil {
		return err
	}
	log.Printf("%s: %d variants", g.Symbol, len(ld.ids))
	return writeLD(*output, ld)
}

func writeLD(fnm string, ld geneLD) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	n := len(ld.ids)
	if n == 0 {
		n = 1
	}
	npw.Shape = []int{n, n}
	data := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data = append(data, ld.corr.At(i, j))
		}
	}
	if err = npw.WriteFloat64(data); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	idf, err := os.Create(fnm + ".ids")
	if err != nil {
		return err
	}
	defer idf.Close()
	bufw = bufio.NewWriter(idf)
	for _, id := range ld.ids {
		fmt.Fprintln(bufw, id)
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	return idf.Close()
}
