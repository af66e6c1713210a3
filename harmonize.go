// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// Autosomes lists chromosomes 1..22.
var Autosomes = func() []string {
	var chrs []string
	for i := 1; i <= 22; i++ {
		chrs = append(chrs, fmt.Sprint(i))
	}
	return chrs
}()

var errNoAlleles = errors.New("allele information missing")

// HarmonizeOptions controls reference panel matching. With a nil
// Panel, variants are only matched between the two inputs.
type HarmonizeOptions struct {
	Panel       ReferencePanel
	Chromosomes []string // default Autosomes
}

// HarmonizeReport summarizes one harmonization.
type HarmonizeReport struct {
	Common           int // variants present in both inputs
	Mismatched       int // removed because allele pairs differ
	RefMismatched    int // removed because no reference record matches
	Removed          int // total variant ids removed
	MismatchFraction float64
	RefFraction      float64
}

func (rep *HarmonizeReport) finish(refChecked bool) {
	if rep.Common > 0 {
		rep.MismatchFraction = float64(rep.Mismatched) / float64(rep.Common)
		rep.RefFraction = float64(rep.RefMismatched) / float64(rep.Common)
	}
	log.Printf("%d common variants", rep.Common)
	log.Printf("%.2f%% non-matching alleles -> %d variants removed", rep.MismatchFraction*100, rep.Mismatched)
	if refChecked {
		log.Printf("%.2f%% non-matching with reference panel -> %d variants removed", rep.RefFraction*100, rep.RefMismatched)
	}
	if round2(rep.MismatchFraction) > 0.5 {
		log.Warn("too many non-matching alleles; check whether the A1/A2 columns of one study are swapped")
	}
	if round2(rep.RefFraction) > 0.5 {
		log.Warn("too many alleles not matching the reference panel; check whether the A1/A2 columns of both studies are swapped")
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// HarmonizeStudies removes from both studies every variant that is
// missing from either study, whose (A1, A2) pairs differ between the
// studies, or (with opts.Panel) that has no reference record with
// matching (Alt, Ref). Swapped allele pairs are removed, not flipped.
// Nothing is modified if an error is returned.
func HarmonizeStudies(a, b *Study, opts HarmonizeOptions) (HarmonizeReport, error) {
	var rep HarmonizeReport
	if !a.HasAlleles() || !b.HasAlleles() {
		return rep, fmt.Errorf("harmonize %s/%s: %w", a.Name, b.Name, errNoAlleles)
	}
	var todel []string
	matched := map[string]Alleles{}
	for id, aa := range a.Alleles {
		ba, ok := b.Alleles[id]
		if !ok {
			todel = append(todel, id)
			continue
		}
		rep.Common++
		if aa != ba {
			rep.Mismatched++
			todel = append(todel, id)
			continue
		}
		matched[id] = aa
	}
	for id := range b.Alleles {
		if _, ok := a.Alleles[id]; !ok {
			todel = append(todel, id)
		}
	}
	// variants lacking allele records are not comparable
	for _, st := range []*Study{a, b} {
		for id := range st.P {
			if _, ok := st.Alleles[id]; !ok {
				todel = append(todel, id)
			}
		}
	}
	if opts.Panel != nil {
		found, err := matchReference(opts, matched)
		if err != nil {
			return HarmonizeReport{}, fmt.Errorf("harmonize %s/%s: %w", a.Name, b.Name, err)
		}
		for id := range matched {
			if !found[id] {
				rep.RefMismatched++
				todel = append(todel, id)
			}
		}
	}
	removed := map[string]bool{}
	for _, id := range todel {
		removed[id] = true
		a.remove(id)
		b.remove(id)
	}
	rep.Removed = len(removed)
	rep.finish(opts.Panel != nil)
	return rep, nil
}

// HarmonizeMapping is HarmonizeStudies for a study against a SNP map:
// study variants absent from the map are removed from the study, and
// mismatching variants are removed from both.
func HarmonizeMapping(st *Study, m *SNPMap, opts HarmonizeOptions) (HarmonizeReport, error) {
	var rep HarmonizeReport
	if !st.HasAlleles() || !m.withAlleles || m.Len() == 0 {
		return rep, fmt.Errorf("harmonize %s/%s: %w", st.Name, m.Name, errNoAlleles)
	}
	var todel []string
	matched := map[string]Alleles{}
	for id, sa := range st.Alleles {
		genes, ok := m.variants[id]
		if !ok {
			todel = append(todel, id)
			continue
		}
		rep.Common++
		if m.genes[genes[0]][id].Alleles != sa {
			rep.Mismatched++
			todel = append(todel, id)
			continue
		}
		matched[id] = sa
	}
	for id := range st.P {
		if _, ok := st.Alleles[id]; !ok {
			todel = append(todel, id)
		}
	}
	if opts.Panel != nil {
		found, err := matchReference(opts, matched)
		if err != nil {
			return HarmonizeReport{}, fmt.Errorf("harmonize %s/%s: %w", st.Name, m.Name, err)
		}
		for id := range matched {
			if !found[id] {
				rep.RefMismatched++
				todel = append(todel, id)
			}
		}
	}
	removed := map[string]bool{}
	for _, id := range todel {
		removed[id] = true
		st.remove(id)
		if _, ok := m.variants[id]; ok {
			m.removeVariant(id)
		}
	}
	rep.Removed = len(removed)
	rep.finish(opts.Panel != nil)
	return rep, nil
}

// matchReference returns the subset of candidate ids having a
// reference record with (Alt, Ref) equal to the candidate alleles on
// any of opts.Chromosomes.
func matchReference(opts HarmonizeOptions, candidates map[string]Alleles) (map[string]bool, error) {
	chrs := opts.Chromosomes
	if len(chrs) == 0 {
		chrs = Autosomes
	}
	found := map[string]bool{}
	for _, chr := range chrs {
		err := func() error {
			handle, err := opts.Panel.Open(chr)
			if err != nil {
				return err
			}
			defer handle.Close()
			onChr, err := handle.VariantIDs()
			if err != nil {
				return err
			}
			var ids []string
			for id := range candidates {
				if onChr[id] && !found[id] {
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				return nil
			}
			rvs, err := handle.ByVariantIDs(ids)
			if err != nil {
				return err
			}
			for i, rv := range rvs {
				if rv != nil && (Alleles{rv.Alt, rv.Ref}) == candidates[ids[i]] {
					found[ids[i]] = true
				}
			}
			return nil
		}()
		if err != nil {
			return nil, fmt.Errorf("chromosome %s: %w", chr, err)
		}
	}
	return found, nil
}
