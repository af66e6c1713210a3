// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type scorecmd struct {
	batchArgs
}

func (cmd *scorecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data and metrics at http://`[addr]:port`")
	profileDir := flags.String("profile-dir", "", "write CPU and heap profiles to `dir` every minute")
	configFile := flags.String("config", "", "TOML run configuration `file`")
	studyA := flags.String("a", "", "first study `name`")
	studyB := flags.String("b", "", "second study `name` (default: same as -a)")
	mapped := flags.Bool("mapped", false, "score study -a against the configured SNP map")
	chromosomes := flags.String("chromosomes", "", "comma-separated `chromosomes` to score when no genes are given (default: autosomes)")
	regionsFile := flags.String("regions", "", "only score genes whose window overlaps a region in this BED `file`")
	harmonize := flags.Bool("harmonize", false, "remove variants with non-matching alleles before scoring")
	harmonizeRef := flags.Bool("harmonize-ref", false, "also require a reference panel record with matching alleles")
	jointlyRank := flags.Bool("jointly-rank", false, "rank-normalize p-values of shared variants before scoring")
	previous := flags.String("previous", "", "load earlier scores from `file` before scoring")
	output := flags.String("o", "-", "write scores to `file`")
	cfg := DefaultConfig()
	configFlags(flags, &cfg)
	cmd.batchArgs.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	if *configFile != "" {
		// flags given on the command line override the file
		var filecfg Config
		filecfg, err = LoadConfig(*configFile)
		if err != nil {
			return 1
		}
		fileflags := flag.NewFlagSet("", flag.ContinueOnError)
		configFlags(fileflags, &filecfg)
		flags.Visit(func(f *flag.Flag) {
			if fileflags.Lookup(f.Name) != nil {
				fileflags.Set(f.Name, f.Value.String())
			}
		})
		cfg = filecfg
	}
	if err = cfg.Validate(); err != nil {
		return 2
	}
	if cfg.Annotation == "" || cfg.RefPanel == "" {
		err = errors.New("annotation and reference panel are required")
		return 2
	}
	if *studyA == "" {
		err = errors.New("study name (-a) is required")
		return 2
	}
	if *studyB == "" {
		*studyB = *studyA
	}
	if *mapped && cfg.Map == nil {
		err = errors.New("-mapped requires a [map] section in the config file")
		return 2
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	if *pprof != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
		go func() {
			log.Println(http.ListenAndServe(*pprof, mux))
		}()
	}
	if *profileDir != "" {
		stop := make(chan struct{})
		defer close(stop)
		go writeProfilesPeriodically(*profileDir, time.Minute, stop)
	}

	var anno *Annotation
	repo := NewStudyRepository()
	var snpmap *SNPMap
	var g errgroup.Group
	g.Go(func() error {
		var err error
		anno, err = LoadAnnotation(cfg.Annotation)
		return err
	})
	for _, sf := range cfg.Studies {
		sf := sf
		g.Go(func() error { return repo.LoadStudy(sf) })
	}
	if *mapped {
		g.Go(func() error {
			var err error
			snpmap, err = LoadSNPMap(*cfg.Map)
			return err
		})
	}
	if err = g.Wait(); err != nil {
		return 1
	}

	panel := SQLitePanel{Prefix: cfg.RefPanel}
	hopts := HarmonizeOptions{}
	if *harmonizeRef {
		hopts.Panel = panel
	}
	if *mapped {
		var st *Study
		st, err = repo.Get(*studyA)
		if err != nil {
			return 1
		}
		if *harmonize || *harmonizeRef {
			if _, err = HarmonizeMapping(st, snpmap, hopts); err != nil {
				return 1
			}
		}
	} else {
		if *harmonize || *harmonizeRef {
			var a, b *Study
			if a, err = repo.Get(*studyA); err != nil {
				return 1
			}
			if b, err = repo.Get(*studyB); err != nil {
				return 1
			}
			if _, err = HarmonizeStudies(a, b, hopts); err != nil {
				return 1
			}
		}
		if *jointlyRank {
			if err = repo.JointlyRank(*studyA, *studyB); err != nil {
				return 1
			}
		}
	}

	scorer, err := NewScorer(cfg, anno, panel, repo)
	if err != nil {
		return 1
	}
	scorer.Metrics = metrics
	if *previous != "" {
		if err = scorer.Scores.Load(*previous); err != nil {
			return 1
		}
	}

	genes := flags.Args()
	if len(genes) == 0 {
		var chrs []string
		if *chromosomes != "" {
			chrs = strings.Split(*chromosomes, ",")
		}
		genes = scorer.genesOn(chrs)
	}
	if *regionsFile != "" {
		var rs *regionSet
		rs, err = loadBED(*regionsFile)
		if err != nil {
			return 1
		}
		genes = rs.FilterGenes(anno, genes, cfg.Window)
		log.Printf("%d genes overlap %d regions", len(genes), rs.Len())
	}
	genes = cmd.batchArgs.Slice(genes)

	var res *Results
	if *mapped {
		res, err = scorer.ScoreMappedGenes(genes, snpmap, *studyA)
	} else {
		res, err = scorer.Score(genes, *studyA, *studyB)
	}
	if err != nil {
		return 1
	}
	for _, f := range res.Failed {
		log.WithFields(log.Fields{
			"gene":   f.Symbol,
			"status": f.Status,
			"p":      f.P,
		}).Warn("failed")
	}
	if *output == "-" {
		err = scorer.Scores.Write(stdout)
	} else {
		err = scorer.Scores.Save(*output)
	}
	if err != nil {
		return 1
	}
	return 0
}

// configFlags registers the flags that override Config fields,
// using the current values of cfg as defaults.
func configFlags(flags *flag.FlagSet, cfg *Config) {
	flags.StringVar(&cfg.Annotation, "annotation", cfg.Annotation, "gene annotation `file`")
	flags.StringVar(&cfg.RefPanel, "refpanel", cfg.RefPanel, "reference panel `prefix`")
	flags.StringVar(&cfg.Statistic, "statistic", cfg.Statistic, "joint statistic (sum or ratio)")
	flags.IntVar(&cfg.Window, "window", cfg.Window, "gene window extension in `bp`")
	flags.Float64Var(&cfg.VarCutoff, "varcutoff", cfg.VarCutoff, "fraction of LD variance to keep")
	flags.Float64Var(&cfg.MAF, "maf", cfg.MAF, "minimum reference minor allele frequency")
	flags.BoolVar(&cfg.LeftTail, "left-tail", cfg.LeftTail, "test the lower tail")
	flags.Float64Var(&cfg.PCorr, "pcorr", cfg.PCorr, "correlation between the two studies' signals")
	flags.Float64Var(&cfg.Accuracy, "accuracy", cfg.Accuracy, "tail probability accuracy")
	flags.StringVar(&cfg.Mode, "mode", cfg.Mode, "tail solver mode (auto or plain)")
	flags.IntVar(&cfg.Limit, "limit", cfg.Limit, "tail solver integration term limit")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of gene batches to score concurrently")
	flags.StringVar(&cfg.Backend, "backend", cfg.Backend, "linear algebra backend")
	flags.BoolVar(&cfg.AutoRescore, "autorescore", cfg.AutoRescore, "rescore failed genes at -rescore-accuracy")
	flags.Float64Var(&cfg.RescoreAccuracy, "rescore-accuracy", cfg.RescoreAccuracy, "accuracy for rescoring")
}
