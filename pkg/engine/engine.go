// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine implements the deterministic per-tick state machine: it
// drains the ingress queue, routes reads through the precompiled overlay,
// runs the propagator pipeline with atomic rollback, and publishes
// snapshots. LockstepWorld and BatchedEngine wrap the engine for direct
// callers; the realtime package owns one on a dedicated goroutine.
package engine

import (
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/tachyon-beep/murk/pkg/arena"
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

// TickResult is the outcome of a successful tick.
type TickResult struct {
	// Receipts cover every command drained for this tick, expired ones
	// included, each carrying its original submission batch index.
	Receipts []schema.Receipt
	// Metrics is the tick's cost breakdown.
	Metrics StepMetrics
}

// TickEngine owns all simulation state and executes ticks synchronously.
//
// The engine is single-threaded by construction: no locks protect its
// state, and realtime mode gives it a dedicated goroutine instead.
type TickEngine struct {
	arena       *arena.PingPongArena
	propagators []propagator.Propagator
	plan        *propagator.Plan
	ingress     *IngressQueue
	space       space.Space
	dt          float64
	seed        uint64

	currentTick  schema.TickID
	paramVersion schema.ParameterVersion

	consecutiveRollbacks uint32
	tickDisabled         bool
	maxRollbacks         uint32

	scratch     *arena.ScratchRegion
	baseFields  []schema.FieldID
	baseCache   *baseFieldCache
	stagedCache *stagedFieldCache

	lastMetrics StepMetrics
}

// New validates the configuration, compiles the read-resolution plan,
// builds the arena (static table included) and precomputes the base field
// set. The config is not retained.
func New(config WorldConfig) (*TickEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.normalized()

	defined := config.DefinedFieldSet()
	plan, err := propagator.ValidatePipeline(config.Propagators, &defined, config.Dt)
	if err != nil {
		return nil, err
	}

	cellCount := config.Space.CellCount()

	// Static table from config data.
	var staticFields []arena.StaticField
	for i, def := range config.Fields {
		if def.Mutability == schema.Static {
			staticFields = append(staticFields, arena.StaticField{
				ID:       schema.FieldID(i),
				TotalLen: cellCount * int(def.Type.Components()),
			})
		}
	}
	statics := arena.NewStaticTable(staticFields)
	for id, data := range config.StaticData {
		dst, ok := statics.WriteField(id)
		if !ok {
			return nil, fmt.Errorf("%w: static data supplied for non-static field %d", ErrInvalidConfig, id)
		}
		copy(dst, data)
	}

	arenaCfg := arena.DefaultConfig(cellCount)
	if config.Arena != nil {
		arenaCfg = *config.Arena
		arenaCfg.CellCount = cellCount
	}
	arn, err := arena.New(arenaCfg, config.Fields, statics)
	if err != nil {
		return nil, err
	}

	maxScratch := 0
	for _, prop := range config.Propagators {
		if b := prop.ScratchBytes(); b > maxScratch {
			maxScratch = b
		}
	}

	return &TickEngine{
		arena:        arn,
		propagators:  config.Propagators,
		plan:         plan,
		ingress:      NewIngressQueue(config.MaxIngressQueue),
		space:        config.Space,
		dt:           config.Dt,
		seed:         config.Seed,
		maxRollbacks: DefaultMaxConsecutiveRollbacks,
		scratch:      arena.NewScratchRegion(maxScratch),
		baseFields:   plan.BaseFields(),
		baseCache:    newBaseFieldCache(),
		stagedCache:  newStagedFieldCache(),
	}, nil
}

// SubmitCommands enqueues a batch for the next tick, returning one
// receipt per command.
func (e *TickEngine) SubmitCommands(commands []schema.Command) []schema.Receipt {
	receipts := e.ingress.Submit(commands, e.tickDisabled)
	for _, r := range receipts {
		if !r.Accepted {
			metricIngressRejections.WithLabelValues(r.Reason.String()).Inc()
		}
	}
	return receipts
}

// ExecuteTick runs one full tick: drain, overlay-route, execute, publish.
// On propagator failure the staging buffer is abandoned (atomic rollback)
// and the returned *TickError carries the receipts with rollback reasons.
func (e *TickEngine) ExecuteTick() (*TickResult, error) {
	tickStart := time.Now()

	// 1. Gate.
	if e.tickDisabled {
		metricTicksTotal.WithLabelValues("disabled").Inc()
		return nil, tickErr(ErrTickDisabled, nil)
	}

	nextTick := e.currentTick + 1

	// 2. Copy the base field set out of the published snapshot. Must
	// precede BeginTick: the snapshot view is invalidated by staging
	// mutation.
	e.baseCache.populate(e.arena.Snapshot(), e.baseFields)

	// 3. Begin the tick. On failure, pending commands stay queued — the
	// tick simply did not proceed.
	guard, err := e.arena.BeginTick()
	if err != nil {
		metricTicksTotal.WithLabelValues("error").Inc()
		return nil, tickErr(fmt.Errorf("%w: %w", ErrAllocationFailed, err), nil)
	}

	// 4. Drain ingress and apply recognized payloads to the writer.
	cmdStart := time.Now()
	drain := e.ingress.Drain(nextTick)
	receipts := drain.ExpiredReceipts
	acceptedStart := len(receipts)
	for _, dc := range drain.Commands {
		receipts = append(receipts, schema.Receipt{
			Accepted:     true,
			CommandIndex: dc.CommandIndex,
		})
	}
	for i, dc := range drain.Commands {
		receipt := &receipts[acceptedStart+i]
		switch payload := dc.Command.Payload.(type) {
		case schema.SetFieldPayload:
			if rank, ok := e.space.CanonicalRank(payload.Coord); ok {
				if buf, ok := guard.Writer.Write(payload.Field); ok && rank < len(buf) {
					buf[rank] = payload.Value
				}
			}
		default:
			receipt.Accepted = false
			receipt.Reason = schema.ReasonUnsupportedCommand
			metricIngressRejections.WithLabelValues(receipt.Reason.String()).Inc()
		}
	}
	commandUs := uint64(time.Since(cmdStart).Microseconds())

	// 5. Run the pipeline.
	propagatorUs := make([]PropagatorTiming, 0, len(e.propagators))
	for i, prop := range e.propagators {
		propStart := time.Now()

		// 5a. Refill the staged cache for this propagator's staged routes.
		e.stagedCache.clear()
		routes := e.plan.RoutesFor(i)
		for field, src := range routes {
			if !src.Staged {
				continue
			}
			if data, ok := guard.Writer.Read(field); ok {
				e.stagedCache.insert(field, data)
			}
		}

		// 5b. Overlay reader dispatching per plan.
		overlay := &overlayReader{routes: routes, base: e.baseCache, staged: e.stagedCache}

		// 5c. Seed incremental writes from the previous generation.
		for _, field := range e.plan.IncrementalFieldsFor(i) {
			prev, ok := e.baseCache.Read(field)
			if !ok {
				continue
			}
			if buf, ok := guard.Writer.Write(field); ok {
				copy(buf, prev)
			}
		}

		// 5d. Step with fresh scratch.
		e.scratch.Reset()
		ctx := propagator.NewStepContext(
			overlay, e.baseCache, guard.Writer, e.scratch, e.space, nextTick, e.dt)
		if stepErr := prop.Step(ctx); stepErr != nil {
			// 5e. Rollback: the guard is simply not published; the next
			// BeginTick resets the staging buffer.
			return nil, e.handleRollback(prop.Name(), stepErr, receipts, acceptedStart)
		}

		propagatorUs = append(propagatorUs, PropagatorTiming{
			Name: prop.Name(),
			Us:   uint64(time.Since(propStart).Microseconds()),
		})
	}

	// 6. Publish.
	publishStart := time.Now()
	if err := e.arena.Publish(nextTick, e.paramVersion); err != nil {
		metricTicksTotal.WithLabelValues("error").Inc()
		return nil, tickErr(fmt.Errorf("%w: %w", ErrAllocationFailed, err), nil)
	}
	publishUs := uint64(time.Since(publishStart).Microseconds())

	// 7. Advance and clear the rollback streak.
	e.currentTick = nextTick
	e.consecutiveRollbacks = 0

	// 8. Finalize still-accepted receipts with the applied tick.
	for i := acceptedStart; i < len(receipts); i++ {
		if receipts[i].Accepted {
			applied := nextTick
			receipts[i].AppliedTick = &applied
		}
	}

	// 9. Metrics.
	retired, pending, hits, misses := e.arena.SparseCounters()
	metrics := StepMetrics{
		TotalUs:              uint64(time.Since(tickStart).Microseconds()),
		CommandProcessingUs:  commandUs,
		PropagatorUs:         propagatorUs,
		SnapshotPublishUs:    publishUs,
		MemoryBytes:          e.arena.MemoryBytes(),
		SparseRetiredRanges:  retired,
		SparsePendingRetired: pending,
		SparseReuseHits:      hits,
		SparseReuseMisses:    misses,
	}
	e.arena.ResetSparseReuseCounters()
	e.lastMetrics = metrics

	metricTicksTotal.WithLabelValues("ok").Inc()
	metricTickDuration.Observe(time.Since(tickStart).Seconds())
	metricArenaMemory.Set(float64(metrics.MemoryBytes))

	return &TickResult{Receipts: receipts, Metrics: metrics}, nil
}

// handleRollback accounts a propagator failure: bumps the rollback
// streak (disabling ticking at the threshold), marks still-accepted
// receipts with ReasonTickRollback — receipts already rejected (e.g.
// unsupported payloads) keep their original reason — and wraps everything
// in a TickError.
func (e *TickEngine) handleRollback(propName string, reason error, receipts []schema.Receipt, acceptedStart int) error {
	e.consecutiveRollbacks++
	if e.consecutiveRollbacks >= e.maxRollbacks {
		e.tickDisabled = true
		cclog.Warnf("[ENGINE]> ticking disabled after %d consecutive rollbacks (last: %s)",
			e.consecutiveRollbacks, propName)
	}

	for i := acceptedStart; i < len(receipts); i++ {
		if receipts[i].Accepted {
			receipts[i].AppliedTick = nil
			receipts[i].Reason = schema.ReasonTickRollback
		}
	}

	metricTicksTotal.WithLabelValues("rollback").Inc()
	cclog.Debugf("[ENGINE]> tick %d rolled back: propagator %q: %v",
		e.currentTick+1, propName, reason)

	return tickErr(propagatorFailed(propName, reason), receipts)
}

// Reset restores the engine to its initial state: arena reset, ingress
// cleared, counters zeroed. Idempotent.
func (e *TickEngine) Reset() error {
	if err := e.arena.Reset(); err != nil {
		return err
	}
	e.ingress.Clear()
	e.currentTick = 0
	e.paramVersion = 0
	e.tickDisabled = false
	e.consecutiveRollbacks = 0
	e.lastMetrics = StepMetrics{}
	return nil
}

// Snapshot is a borrowed view of the published generation, valid until
// the next ExecuteTick or Reset.
func (e *TickEngine) Snapshot() *arena.Snapshot { return e.arena.Snapshot() }

// OwnedSnapshot clones the published generation for cross-goroutine use.
func (e *TickEngine) OwnedSnapshot() *arena.OwnedSnapshot { return e.arena.OwnedSnapshot() }

// CurrentTick is the last published tick.
func (e *TickEngine) CurrentTick() schema.TickID { return e.currentTick }

// IsTickDisabled reports whether the rollback threshold was reached.
func (e *TickEngine) IsTickDisabled() bool { return e.tickDisabled }

// ConsecutiveRollbacks is the current rollback streak.
func (e *TickEngine) ConsecutiveRollbacks() uint32 { return e.consecutiveRollbacks }

// SetMaxConsecutiveRollbacks overrides the disable threshold.
func (e *TickEngine) SetMaxConsecutiveRollbacks(n uint32) { e.maxRollbacks = n }

// LastMetrics is the most recent successful tick's metrics.
func (e *TickEngine) LastMetrics() StepMetrics { return e.lastMetrics }

// Space is the world topology.
func (e *TickEngine) Space() space.Space { return e.space }

// Seed is the world seed recorded at construction.
func (e *TickEngine) Seed() uint64 { return e.seed }

// Dt is the configured timestep.
func (e *TickEngine) Dt() float64 { return e.dt }

// PendingIngress is the number of queued commands.
func (e *TickEngine) PendingIngress() int { return e.ingress.Len() }
