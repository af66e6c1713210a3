// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"strconv"
)

type topcmd struct{}

func (cmd *topcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	input := flags.String("i", "-", "scores `file` written by the score command")
	n := flags.Int("n", 10, "number of genes to print (-1 = all)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	st := NewScoreTable()
	if *input == "-" {
		err = st.Read(stdin, 0, 1, false)
	} else {
		err = st.Load(*input)
	}
	if err != nil {
		return 1
	}
	bufw := bufio.NewWriter(stdout)
	for _, e := range st.Top(*n) {
		fmt.Fprintf(bufw, "%s\t%s\n", e.Symbol, strconv.FormatFloat(e.P, 'g', -1, 64))
	}
	if err = bufw.Flush(); err != nil {
		return 1
	}
	return 0
}
