// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

type outcome int

const (
	outcomeScored outcome = iota
	outcomeFailed
	outcomeNoData
	outcomeSkipped
)

func (o outcome) String() string {
	switch o {
	case outcomeScored:
		return "scored"
	case outcomeFailed:
		return "failed"
	case outcomeNoData:
		return "nodata"
	default:
		return "skipped"
	}
}

type progressEvent struct {
	batch   int
	outcome outcome
}

// Metrics are the prometheus collectors updated while scoring.
type Metrics struct {
	Genes   *prometheus.CounterVec
	Batches prometheus.Gauge
}

// NewMetrics returns collectors registered with reg (if not nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Genes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pascalx",
			Name:      "genes_total",
			Help:      "Genes processed, by outcome.",
		}, []string{"outcome"}),
		Batches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pascalx",
			Name:      "batches_running",
			Help:      "Gene batches that have reported progress in the current run.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Genes, m.Batches)
	}
	return m
}

// progressReporter consumes the events of all batches of one run. It
// is the only reader of the channel, so batches never share counters.
type progressReporter struct {
	total    int
	interval time.Duration
	metrics  *Metrics

	counts  [4]int
	batches map[int]bool
}

func (pr *progressReporter) run(events <-chan progressEvent, done chan<- struct{}) {
	defer close(done)
	interval := pr.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pr.batches = map[int]bool{}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				pr.finish()
				return
			}
			pr.counts[ev.outcome]++
			if pr.metrics != nil {
				pr.metrics.Genes.WithLabelValues(ev.outcome.String()).Inc()
				if !pr.batches[ev.batch] {
					pr.metrics.Batches.Inc()
				}
			}
			pr.batches[ev.batch] = true
		case <-ticker.C:
			pr.log()
		}
	}
}

func (pr *progressReporter) done() int {
	n := 0
	for _, c := range pr.counts {
		n += c
	}
	return n
}

func (pr *progressReporter) log() {
	log.WithFields(log.Fields{
		"scored": pr.counts[outcomeScored],
		"failed": pr.counts[outcomeFailed],
		"nodata": pr.counts[outcomeNoData],
	}).Infof("progress %d/%d genes", pr.done(), pr.total)
}

func (pr *progressReporter) finish() {
	if pr.metrics != nil {
		pr.metrics.Batches.Sub(float64(len(pr.batches)))
	}
	pr.log()
}
