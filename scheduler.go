// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/cmatKhan/PascalX/davies"
	log "github.com/sirupsen/logrus"
)

// No-data reasons.
const (
	ReasonNoVariants      = "No SNPs"
	ReasonZeroDenominator = "NaN for denom"
)

// GeneScore is a successfully scored gene.
type GeneScore struct {
	GeneID    string
	Symbol    string
	P         float64
	NVariants int
	Sign      float64 // sign of the joint statistic
}

// GeneFailure is a gene whose tail probability could not be computed
// reliably. Rescoring with other solver settings may succeed.
type GeneFailure struct {
	GeneID    string
	Symbol    string
	P         float64
	Status    davies.Status
	Err       string
	NVariants int
	Statistic float64
}

// GeneNoData is a gene that cannot be scored with the loaded data.
type GeneNoData struct {
	GeneID string
	Symbol string
	Reason string
}

// Results holds the outcome of a scoring run.
type Results struct {
	Scored []GeneScore
	Failed []GeneFailure
	NoData []GeneNoData
}

func (res *Results) merge(other *Results) {
	res.Scored = append(res.Scored, other.Scored...)
	res.Failed = append(res.Failed, other.Failed...)
	res.NoData = append(res.NoData, other.NoData...)
}

// Len returns the number of genes in all categories.
func (res *Results) Len() int {
	return len(res.Scored) + len(res.Failed) + len(res.NoData)
}

// pairing supplies per-variant inputs of a scoring run.
type pairing interface {
	alleleMode() AlleleMode
	alleles() map[string]Alleles
	// permissible returns the variant filter for g, or false if g
	// has no candidate variants at all.
	permissible(g GeneRecord) (func(string) bool, bool)
	// signals returns the first and second signal vectors for ids.
	signals(g GeneRecord, ids []string) (w, z []float64)
}

type studyPairing struct {
	a, b   *Study
	shared map[string]bool
	mode   AlleleMode
}

func newStudyPairing(a, b *Study) *studyPairing {
	sp := &studyPairing{a: a, b: b, shared: sharedVariants(a, b)}
	if a.HasAlleles() {
		sp.mode = WithAlleles
	}
	return sp
}

func (sp *studyPairing) alleleMode() AlleleMode       { return sp.mode }
func (sp *studyPairing) alleles() map[string]Alleles { return sp.a.Alleles }

func (sp *studyPairing) permissible(GeneRecord) (func(string) bool, bool) {
	return func(id string) bool { return sp.shared[id] }, len(sp.shared) > 0
}

func (sp *studyPairing) signals(_ GeneRecord, ids []string) ([]float64, []float64) {
	w := signals(ids, func(id string) float64 { return sp.a.P[id] }, func(id string) float64 { return sp.a.Effect[id] })
	z := signals(ids, func(id string) float64 { return sp.b.P[id] }, func(id string) float64 { return sp.b.Effect[id] })
	return w, z
}

// mappedPairing takes the first signal from a SNP map and the second
// from a study.
type mappedPairing struct {
	m  *SNPMap
	st *Study
}

func (mp *mappedPairing) alleleMode() AlleleMode       { return WithoutAlleles }
func (mp *mappedPairing) alleles() map[string]Alleles { return nil }

func (mp *mappedPairing) entries(g GeneRecord) (map[string]MapEntry, bool) {
	if e, ok := mp.m.Entries(g.ID); ok {
		return e, true
	}
	return mp.m.Entries(g.Symbol)
}

func (mp *mappedPairing) permissible(g GeneRecord) (func(string) bool, bool) {
	entries, ok := mp.entries(g)
	if !ok {
		return nil, false
	}
	return func(id string) bool {
		_, inMap := entries[id]
		_, inStudy := mp.st.P[id]
		return inMap && inStudy
	}, true
}

func (mp *mappedPairing) signals(g GeneRecord, ids []string) ([]float64, []float64) {
	entries, _ := mp.entries(g)
	w := signals(ids, func(id string) float64 { return entries[id].P }, func(id string) float64 { return entries[id].Effect })
	z := signals(ids, func(id string) float64 { return mp.st.P[id] }, func(id string) float64 { return mp.st.Effect[id] })
	return w, z
}

// Scorer computes cross-trait gene scores.
type Scorer struct {
	Annotation *Annotation
	Panel      ReferencePanel
	Studies    *StudyRepository
	Scores     *ScoreTable
	Metrics    *Metrics // optional

	workers         int
	window          int
	maf             float64
	autoRescore     bool
	rescoreAccuracy float64
	backend         linalgBackend
	engine          tailEngine
}

// NewScorer returns a scorer using the given configuration and data.
func NewScorer(cfg Config, annotation *Annotation, panel ReferencePanel, studies *StudyRepository) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stat, err := ParseStatistic(cfg.Statistic)
	if err != nil {
		return nil, err
	}
	mode, err := davies.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	backend := selectBackend(cfg.Backend)
	return &Scorer{
		Annotation:      annotation,
		Panel:           panel,
		Studies:         studies,
		Scores:          NewScoreTable(),
		workers:         cfg.Workers,
		window:          cfg.Window,
		maf:             cfg.MAF,
		autoRescore:     cfg.AutoRescore,
		rescoreAccuracy: cfg.RescoreAccuracy,
		backend:         backend,
		engine: tailEngine{
			stat:      stat,
			backend:   backend,
			varcutoff: cfg.VarCutoff,
			pcorr:     cfg.PCorr,
			leftTail:  cfg.LeftTail,
			accuracy:  cfg.Accuracy,
			mode:      mode,
			limit:     cfg.Limit,
		},
	}, nil
}

// Score scores the named genes (symbols or ids) with study a as the
// first and study b as the second study. Names missing from the
// annotation are skipped with a warning.
func (sc *Scorer) Score(genes []string, a, b string) (*Results, error) {
	sta, err := sc.Studies.Get(a)
	if err != nil {
		return nil, err
	}
	stb, err := sc.Studies.Get(b)
	if err != nil {
		return nil, err
	}
	return sc.run(sc.resolve(genes), newStudyPairing(sta, stb))
}

// ScoreChromosomes scores every annotated gene on chrs (default
// Autosomes).
func (sc *Scorer) ScoreChromosomes(chrs []string, a, b string) (*Results, error) {
	return sc.Score(sc.genesOn(chrs), a, b)
}

// ScoreMapped scores the autosomal genes using the SNP map for the
// first signal and study a for the second. Genes without map entries
// are reported as having no data.
func (sc *Scorer) ScoreMapped(m *SNPMap, a string) (*Results, error) {
	return sc.ScoreMappedGenes(sc.genesOn(nil), m, a)
}

// ScoreMappedGenes is ScoreMapped restricted to the named genes.
func (sc *Scorer) ScoreMappedGenes(genes []string, m *SNPMap, a string) (*Results, error) {
	st, err := sc.Studies.Get(a)
	if err != nil {
		return nil, err
	}
	return sc.run(sc.resolve(genes), &mappedPairing{m: m, st: st})
}

func (sc *Scorer) genesOn(chrs []string) []string {
	if len(chrs) == 0 {
		chrs = Autosomes
	}
	var ids []string
	for _, chr := range chrs {
		for _, g := range sc.Annotation.OnChromosome(chr) {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

func (sc *Scorer) resolve(names []string) []GeneRecord {
	var genes []GeneRecord
	for _, name := range names {
		g, ok := sc.Annotation.Lookup(name)
		if !ok {
			log.Warnf("%s not in annotation, ignoring", name)
			continue
		}
		genes = append(genes, g)
	}
	sort.SliceStable(genes, func(i, j int) bool {
		return genes[i].Chromosome < genes[j].Chromosome
	})
	return genes
}

func isSexChromosome(chr string) bool {
	switch strings.TrimPrefix(chr, "chr") {
	case "X", "Y":
		return true
	}
	return false
}

// run splits genes into contiguous batches, scores each batch on its
// own goroutine with its own reference handles, and merges the
// results in batch order. On error, no scores are stored.
func (sc *Scorer) run(genes []GeneRecord, p pairing) (*Results, error) {
	batches := splitContiguous(len(genes), sc.workers)
	concurrency := sc.workers
	if n := runtime.NumCPU(); concurrency > n {
		concurrency = n
	}
	events := make(chan progressEvent, 64)
	reporter := &progressReporter{total: len(genes), metrics: sc.Metrics}
	reporterDone := make(chan struct{})
	go reporter.run(events, reporterDone)

	builder := &correlationBuilder{
		window:  sc.window,
		maf:     sc.maf,
		mode:    p.alleleMode(),
		alleles: p.alleles(),
		backend: sc.backend,
	}
	log.WithFields(log.Fields{
		"genes":     len(genes),
		"batches":   len(batches),
		"statistic": sc.engine.stat.Name(),
		"alleles":   builder.mode,
	}).Info("scoring")

	out := make([]*Results, len(batches))
	t := throttle{Max: concurrency}
	for i, rng := range batches {
		i, batch := i, genes[rng[0]:rng[1]]
		t.Go(func() error {
			var err error
			out[i], err = sc.scoreBatch(i, batch, p, builder, &sc.engine, events)
			return err
		})
	}
	err := t.Wait()
	close(events)
	<-reporterDone
	if err != nil {
		return nil, err
	}

	res := &Results{}
	for _, batch := range out {
		res.merge(batch)
	}
	if sc.autoRescore && len(res.Failed) > 0 {
		if err := sc.rescore(res, p, builder); err != nil {
			return nil, err
		}
	}
	for _, gs := range res.Scored {
		key := gs.Symbol
		if key == "" {
			key = gs.GeneID
		}
		sc.Scores.Upsert(key, gs.P)
	}
	log.Printf("%d genes scored", len(res.Scored))
	if len(res.Failed) > 0 {
		log.Printf("%d genes failed (try to rescore with other solver settings)", len(res.Failed))
	}
	if len(res.NoData) > 0 {
		log.Printf("%d genes can not be scored (check annotation)", len(res.NoData))
	}
	return res, nil
}

// rescore retries failed genes once at the relaxed accuracy, moving
// successes to res.Scored.
func (sc *Scorer) rescore(res *Results, p pairing, builder *correlationBuilder) error {
	var retry []GeneRecord
	for _, f := range res.Failed {
		if g, ok := sc.Annotation.Lookup(f.GeneID); ok {
			retry = append(retry, g)
		}
	}
	log.Printf("rescoring %d failed genes at accuracy %g", len(retry), sc.rescoreAccuracy)
	events := make(chan progressEvent, 64)
	done := make(chan struct{})
	go (&progressReporter{total: len(retry)}).run(events, done)
	again, err := sc.scoreBatch(0, retry, p, builder, sc.engine.withAccuracy(sc.rescoreAccuracy), events)
	close(events)
	<-done
	if err != nil {
		return err
	}
	res.Scored = append(res.Scored, again.Scored...)
	res.Failed = again.Failed
	res.NoData = append(res.NoData, again.NoData...)
	return nil
}

// scoreBatch scores genes in order. A chromosome handle is opened on
// first use and kept until a gene on another chromosome comes up.
func (sc *Scorer) scoreBatch(batch int, genes []GeneRecord, p pairing, builder *correlationBuilder, engine *tailEngine, events chan<- progressEvent) (*Results, error) {
	res := &Results{}
	var handle ChromosomePanel
	var handleChr string
	defer func() {
		if handle != nil {
			handle.Close()
		}
	}()
	for _, g := range genes {
		if isSexChromosome(g.Chromosome) {
			events <- progressEvent{batch: batch, outcome: outcomeSkipped}
			continue
		}
		if handle == nil || handleChr != g.Chromosome {
			if handle != nil {
				handle.Close()
				handle = nil
			}
			var err error
			handle, err = sc.Panel.Open(g.Chromosome)
			if err != nil {
				return nil, fmt.Errorf("gene %s: %w", g.Symbol, err)
			}
			handleChr = g.Chromosome
		}
		oc, err := sc.scoreGene(g, handle, p, builder, engine, res)
		if err != nil {
			return nil, fmt.Errorf("gene %s: %w", g.Symbol, err)
		}
		events <- progressEvent{batch: batch, outcome: oc}
	}
	return res, nil
}

func (sc *Scorer) scoreGene(g GeneRecord, handle ChromosomePanel, p pairing, builder *correlationBuilder, engine *tailEngine, res *Results) (outcome, error) {
	noData := func(reason string) (outcome, error) {
		res.NoData = append(res.NoData, GeneNoData{GeneID: g.ID, Symbol: g.Symbol, Reason: reason})
		return outcomeNoData, nil
	}
	permissible, ok := p.permissible(g)
	if !ok {
		return noData(ReasonNoVariants)
	}
	ld, err := builder.build(g, permissible, handle)
	if err != nil {
		return 0, err
	}
	if len(ld.ids) == 0 {
		return noData(ReasonNoVariants)
	}
	w, z := p.signals(g, ld.ids)
	s, err := engine.stat.Combine(w, z)
	if errors.Is(err, errZeroDenominator) {
		return noData(ReasonZeroDenominator)
	} else if err != nil {
		return 0, err
	}
	tr, err := engine.tail(s, ld.corr, len(ld.ids))
	if err != nil || !tr.ok() {
		f := GeneFailure{
			GeneID:    g.ID,
			Symbol:    g.Symbol,
			P:         tr.P,
			Status:    tr.Status,
			NVariants: len(ld.ids),
			Statistic: s,
		}
		if err != nil {
			f.Err = err.Error()
		}
		log.WithFields(log.Fields{
			"gene":   g.Symbol,
			"status": tr.Status,
			"p":      tr.P,
			"terms":  tr.Terms,
		}).Debug("tail probability failed")
		res.Failed = append(res.Failed, f)
		return outcomeFailed, nil
	}
	res.Scored = append(res.Scored, GeneScore{
		GeneID:    g.ID,
		Symbol:    g.Symbol,
		P:         tr.P,
		NVariants: len(ld.ids),
		Sign:      sign(s),
	})
	return outcomeScored, nil
}
