// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PropagatorTiming is one propagator's wall time within a tick.
type PropagatorTiming struct {
	Name string `json:"name"`
	Us   uint64 `json:"us"`
}

// StepMetrics reports the cost breakdown of one tick.
type StepMetrics struct {
	TotalUs             uint64             `json:"total-us"`
	CommandProcessingUs uint64             `json:"command-processing-us"`
	PropagatorUs        []PropagatorTiming `json:"propagator-us"`
	SnapshotPublishUs   uint64             `json:"snapshot-publish-us"`
	MemoryBytes         int                `json:"memory-bytes"`

	SparseRetiredRanges  uint64 `json:"sparse-retired-ranges"`
	SparsePendingRetired uint64 `json:"sparse-pending-retired"`
	SparseReuseHits      uint64 `json:"sparse-reuse-hits"`
	SparseReuseMisses    uint64 `json:"sparse-reuse-misses"`
}

var (
	metricTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murk_ticks_total",
		Help: "Completed tick attempts by result.",
	}, []string{"result"})

	metricTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "murk_tick_duration_seconds",
		Help:    "Wall time of successful ticks.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	metricIngressRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murk_ingress_rejections_total",
		Help: "Rejected commands by reason.",
	}, []string{"reason"})

	metricArenaMemory = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "murk_arena_memory_bytes",
		Help: "Total arena backing memory.",
	})
)
