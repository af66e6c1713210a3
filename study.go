// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Alleles is an (alternate, reference) allele pair.
type Alleles struct {
	A1 string
	A2 string
}

// Study holds the summary statistics of one GWAS. P, Effect and (if
// non-nil) Alleles share the same key set once loaded.
type Study struct {
	Name    string
	P       map[string]float64
	Effect  map[string]float64
	Alleles map[string]Alleles
}

func newStudy(name string, withAlleles bool) *Study {
	st := &Study{
		Name:   name,
		P:      map[string]float64{},
		Effect: map[string]float64{},
	}
	if withAlleles {
		st.Alleles = map[string]Alleles{}
	}
	return st
}

// HasAlleles reports whether allele information was loaded.
func (st *Study) HasAlleles() bool {
	return len(st.Alleles) > 0
}

// Len returns the number of variants.
func (st *Study) Len() int {
	return len(st.P)
}

func (st *Study) remove(id string) {
	delete(st.P, id)
	delete(st.Effect, id)
	if st.Alleles != nil {
		delete(st.Alleles, id)
	}
}

// rank replaces the p-values of ids with their QQ-normalized ranks
// (i+1)/(n+1), smallest p first.
func (st *Study) rank(ids []string) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	sort.SliceStable(sorted, func(i, j int) bool {
		return st.P[sorted[i]] < st.P[sorted[j]]
	})
	n := float64(len(sorted))
	for i, id := range sorted {
		st.P[id] = (float64(i) + 1) / (n + 1)
	}
}

// StudyRepository owns loaded studies. A scorer reads studies from the
// repository it was constructed with; scorers working on unrelated
// studies concurrently should use separate repositories.
type StudyRepository struct {
	mtx     sync.RWMutex
	studies map[string]*Study
}

// NewStudyRepository returns an empty repository.
func NewStudyRepository() *StudyRepository {
	return &StudyRepository{studies: map[string]*Study{}}
}

// Add stores st under st.Name, replacing any study with that name.
func (repo *StudyRepository) Add(st *Study) {
	repo.mtx.Lock()
	defer repo.mtx.Unlock()
	if _, ok := repo.studies[st.Name]; ok {
		log.Warnf("replacing previously loaded study %q", st.Name)
	}
	repo.studies[st.Name] = st
}

// Get returns the named study.
func (repo *StudyRepository) Get(name string) (*Study, error) {
	repo.mtx.RLock()
	defer repo.mtx.RUnlock()
	st, ok := repo.studies[name]
	if !ok {
		return nil, fmt.Errorf("study %q not loaded", name)
	}
	return st, nil
}

// Unload removes the named study.
func (repo *StudyRepository) Unload(name string) error {
	repo.mtx.Lock()
	defer repo.mtx.Unlock()
	if _, ok := repo.studies[name]; !ok {
		return fmt.Errorf("study %q not loaded", name)
	}
	delete(repo.studies, name)
	return nil
}

// Names returns the names of loaded studies, sorted.
func (repo *StudyRepository) Names() []string {
	repo.mtx.RLock()
	defer repo.mtx.RUnlock()
	var names []string
	for name := range repo.studies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JointlyRank restricts both studies to their shared variants and
// replaces each study's p-values with QQ-normalized ranks.
func (repo *StudyRepository) JointlyRank(a, b string) error {
	sta, err := repo.Get(a)
	if err != nil {
		return err
	}
	stb, err := repo.Get(b)
	if err != nil {
		return err
	}
	shared := sharedVariants(sta, stb)
	for _, st := range []*Study{sta, stb} {
		for id := range st.P {
			if !shared[id] {
				st.remove(id)
			}
		}
	}
	ids := make([]string, 0, len(shared))
	for id := range shared {
		ids = append(ids, id)
	}
	sta.rank(ids)
	stb.rank(ids)
	log.Infof("%d shared variants (min p: %.2e)", len(ids), 1/(float64(len(ids))+1))
	return nil
}

// sharedVariants returns the ids present in both studies.
func sharedVariants(a, b *Study) map[string]bool {
	if len(b.P) < len(a.P) {
		a, b = b, a
	}
	shared := make(map[string]bool, len(a.P))
	for id := range a.P {
		if _, ok := b.P[id]; ok {
			shared[id] = true
		}
	}
	return shared
}
