// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package realtime

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/tachyon-beep/murk/pkg/arena"
	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/obs"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

var (
	// ErrShutdown: the runtime has shut down.
	ErrShutdown = errors.New("[REALTIME]> world has shut down")

	// ErrChannelFull: the command channel is at capacity (back-pressure).
	ErrChannelFull = errors.New("[REALTIME]> command channel full")

	// ErrCanceled: the observation was canceled (epoch held too long or
	// shutdown in progress).
	ErrCanceled = errors.New("[REALTIME]> observation canceled")

	// ErrNoSnapshot: no tick has published yet.
	ErrNoSnapshot = errors.New("[REALTIME]> no snapshot published yet")

	// ErrEngineRecovery: the engine could not be recovered for reset.
	ErrEngineRecovery = errors.New("[REALTIME]> engine recovery failed")
)

// Shutdown phase budgets. Drain is short because the tick goroutine's
// pacing sleep is interruptible; quiesce waits for workers to unpin.
const (
	drainBudget   = 33 * time.Millisecond
	quiesceBudget = 200 * time.Millisecond
	joinBudget    = 10 * time.Millisecond
)

// ShutdownReport accounts the shutdown state machine's phases.
type ShutdownReport struct {
	TotalMs       uint64
	DrainMs       uint64
	QuiesceMs     uint64
	TickJoined    bool
	WorkersJoined int
}

type shutdownState int

const (
	stateRunning shutdownState = iota
	stateDraining
	stateQuiescing
	stateDropped
)

// ingressBatch is one submitted command batch plus its reply channel.
type ingressBatch struct {
	commands []schema.Command
	reply    chan []schema.Receipt
}

// obsTask is one observation request dispatched to the egress pool.
type obsTask struct {
	// plan is set for plain observations.
	plan *obs.Plan
	// spec + centers are set for agent-relative observations.
	spec    *obs.Spec
	centers []schema.Coord

	reply chan obsResult
}

type obsResult struct {
	metadata []obs.Metadata
	output   []float32
	mask     []uint8
	err      error
}

// World is the realtime-async deployment: one tick goroutine exclusively
// owning the engine, N egress workers with read-only snapshot access, and
// bounded channels toward both.
type World struct {
	ring         *SnapshotRing
	epoch        *EpochCounter
	workerEpochs []*WorkerEpoch

	cmdCh  chan ingressBatch
	obsCh  chan obsTask
	closed chan struct{}

	shutdownFlag *atomic.Bool
	tickStopped  *atomic.Bool
	wake         chan struct{}

	engineResult chan *engine.TickEngine
	workerDone   []chan struct{}

	state     atomic.Int32
	recovered *engine.TickEngine

	config     AsyncConfig
	backoff    engine.BackoffConfig
	tickRateHz float64
	seed       uint64
	space      space.Space
}

// NewWorld builds the engine, spawns the tick goroutine and the egress
// pool, and starts ticking immediately.
func NewWorld(config engine.WorldConfig, asyncConfig AsyncConfig) (*World, error) {
	tickRate := config.TickRateHz
	if tickRate == 0 {
		tickRate = DefaultTickRateHz
	}
	if math.IsNaN(tickRate) || math.IsInf(tickRate, 0) || tickRate <= 0 {
		return nil, fmt.Errorf("%w: invalid tick rate %g", engine.ErrInvalidConfig, tickRate)
	}
	asyncConfig = asyncConfig.normalized()

	// Share the space between the engine and the egress side.
	shared := &sharedSpace{inner: config.Space}
	config.Space = shared

	eng, err := engine.New(config)
	if err != nil {
		return nil, err
	}

	w := &World{
		config:     asyncConfig,
		backoff:    config.Backoff,
		tickRateHz: tickRate,
		seed:       config.Seed,
		space:      shared,
	}
	if w.backoff == (engine.BackoffConfig{}) {
		w.backoff = engine.DefaultBackoff()
	}
	ringSize := config.RingBufferSize
	if ringSize == 0 {
		ringSize = engine.DefaultRingBufferSize
	}
	w.start(eng, ringSize)
	return w, nil
}

// start spins up shared state, the tick goroutine and the worker pool.
// Used by NewWorld and Reset.
func (w *World) start(eng *engine.TickEngine, ringSize int) {
	workerCount := w.config.resolvedWorkerCount()

	w.ring = NewSnapshotRing(ringSize)
	w.epoch = &EpochCounter{}
	w.workerEpochs = make([]*WorkerEpoch, workerCount)
	for i := range w.workerEpochs {
		w.workerEpochs[i] = &WorkerEpoch{}
	}

	w.cmdCh = make(chan ingressBatch, w.config.CommandChannelCap)
	w.obsCh = make(chan obsTask, workerCount*4)
	w.closed = make(chan struct{})
	w.shutdownFlag = &atomic.Bool{}
	w.tickStopped = &atomic.Bool{}
	w.wake = make(chan struct{}, 1)
	w.engineResult = make(chan *engine.TickEngine, 1)

	go w.tickLoop(eng)

	w.workerDone = make([]chan struct{}, workerCount)
	for i := 0; i < workerCount; i++ {
		done := make(chan struct{})
		w.workerDone[i] = done
		go w.workerLoop(i, done)
	}

	w.state.Store(int32(stateRunning))
	w.recovered = nil
}

// ─── Tick goroutine ──────────────────────────────────────────────────────────

// tickLoop is the engine's exclusive owner. Each iteration drains the
// command channel, executes one tick, publishes to the ring, cancels
// stalled workers and sleeps out the remainder of the tick budget. The
// engine is sent back through engineResult on exit so Reset can recover
// it.
func (w *World) tickLoop(eng *engine.TickEngine) {
	period := time.Duration(float64(time.Second) / w.tickRateHz)
	backoffMs := w.backoff.InitialMs

	for !w.shutdownFlag.Load() {
		start := time.Now()

		// Drain commands opportunistically (non-blocking).
	drain:
		for {
			select {
			case batch := <-w.cmdCh:
				batch.reply <- eng.SubmitCommands(batch.commands)
			default:
				break drain
			}
		}

		// Execute one tick.
		if _, err := eng.ExecuteTick(); err != nil {
			cclog.Debugf("[REALTIME]> tick failed, backing off %dms: %v", backoffMs, err)
			w.sleepInterruptible(time.Duration(backoffMs) * time.Millisecond)
			next := float64(backoffMs) * w.backoff.Multiplier
			if next > float64(w.backoff.MaxMs) {
				backoffMs = w.backoff.MaxMs
			} else {
				backoffMs = uint64(next)
			}
		} else {
			backoffMs = w.backoff.InitialMs
			w.ring.Push(eng.OwnedSnapshot())
			w.epoch.Advance()
		}

		// Cancel workers holding an epoch beyond the budget.
		now := time.Now()
		holdLimit := time.Duration(w.config.MaxEpochHoldMs) * time.Millisecond
		for _, we := range w.workerEpochs {
			if we.HeldFor(now) > holdLimit {
				we.RequestCancel()
			}
		}

		// Sleep out the tick budget. The wake channel substitutes for an
		// uninterruptible sleep so shutdown responds within one round
		// trip regardless of tick rate.
		if remaining := period - time.Since(start); remaining > 0 {
			w.sleepInterruptible(remaining)
		}
	}

	w.tickStopped.Store(true)
	w.engineResult <- eng
}

// sleepInterruptible sleeps for d, waking early when Shutdown signals.
func (w *World) sleepInterruptible(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.wake:
	}
}

// ─── Egress workers ──────────────────────────────────────────────────────────

func (w *World) workerLoop(idx int, done chan struct{}) {
	defer close(done)
	we := w.workerEpochs[idx]
	for {
		select {
		case <-w.closed:
			return
		case task := <-w.obsCh:
			task.reply <- w.executeObs(we, task)
		}
	}
}

// executeObs pins the worker's epoch, reads the latest snapshot and runs
// the plan. The pin is published before the ring read so the tick
// goroutine can account the hold.
func (w *World) executeObs(we *WorkerEpoch, task obsTask) obsResult {
	we.Pin(w.epoch.Current())
	defer we.Unpin()

	if we.CancelRequested() {
		we.ClearCancel()
		return obsResult{err: ErrCanceled}
	}

	snap := w.ring.Latest()
	if snap == nil {
		return obsResult{err: ErrNoSnapshot}
	}

	if task.plan != nil {
		output := make([]float32, task.plan.OutputLen())
		mask := make([]uint8, task.plan.MaskLen())
		meta, err := task.plan.Execute(snap, output, mask)
		if err != nil {
			return obsResult{err: err}
		}
		meta.AgeTicks = w.epoch.Current() - snapshotEpoch(we)
		return obsResult{metadata: []obs.Metadata{*meta}, output: output, mask: mask}
	}

	// Agent-relative task: compile the template per center and gather.
	perOut, perMask, err := agentSlotSizes(task.spec, w.space, task.centers)
	if err != nil {
		return obsResult{err: err}
	}
	output := make([]float32, len(task.centers)*perOut)
	mask := make([]uint8, len(task.centers)*perMask)
	metas, err := obs.ExecuteAgents(task.spec, w.space, task.centers, snap, output, mask)
	if err != nil {
		return obsResult{err: err}
	}
	return obsResult{metadata: metas, output: output, mask: mask}
}

// snapshotEpoch returns the worker's pinned epoch (the publish the read
// is anchored to).
func snapshotEpoch(we *WorkerEpoch) uint64 {
	if e, ok := we.Pinned(); ok {
		return e
	}
	return 0
}

// agentSlotSizes computes the per-agent output layout from the template
// bound to the first center (identical for every center by construction).
func agentSlotSizes(spec *obs.Spec, sp space.Space, centers []schema.Coord) (int, int, error) {
	if len(centers) == 0 {
		return 0, 0, fmt.Errorf("%w: no agent centers", obs.ErrInvalidSpec)
	}
	plan, err := obs.CompileAgentTemplate(spec, sp, centers[0])
	if err != nil {
		return 0, 0, err
	}
	return plan.OutputLen(), plan.MaskLen(), nil
}

// ─── Caller surface ──────────────────────────────────────────────────────────

// SubmitCommands sends a batch to the tick goroutine and blocks for the
// receipts (bounded by one tick period plus processing). Back-pressure
// surfaces as ErrChannelFull without blocking.
func (w *World) SubmitCommands(commands []schema.Command) ([]schema.Receipt, error) {
	if w.state.Load() == int32(stateDropped) {
		return nil, ErrShutdown
	}
	batch := ingressBatch{commands: commands, reply: make(chan []schema.Receipt, 1)}
	select {
	case w.cmdCh <- batch:
	default:
		return nil, ErrChannelFull
	}
	select {
	case receipts := <-batch.reply:
		return receipts, nil
	case <-w.closed:
		return nil, ErrShutdown
	}
}

// Observe dispatches a compiled plan to an egress worker and copies the
// result into the caller's buffers.
func (w *World) Observe(plan *obs.Plan, output []float32, mask []uint8) (*obs.Metadata, error) {
	result, err := w.dispatchObs(obsTask{plan: plan, reply: make(chan obsResult, 1)})
	if err != nil {
		return nil, err
	}
	if len(result.output) > len(output) || len(result.mask) > len(mask) {
		return nil, fmt.Errorf("%w: buffers (%d,%d) too small for (%d,%d)",
			obs.ErrExecutionFailed, len(output), len(mask), len(result.output), len(result.mask))
	}
	copy(output, result.output)
	copy(mask, result.mask)
	return &result.metadata[0], nil
}

// ObserveAgents executes the spec's agent templates for each center and
// copies per-agent slots into the caller's buffers.
func (w *World) ObserveAgents(spec *obs.Spec, centers []schema.Coord, output []float32, mask []uint8) ([]obs.Metadata, error) {
	result, err := w.dispatchObs(obsTask{
		spec:    spec,
		centers: append([]schema.Coord(nil), centers...),
		reply:   make(chan obsResult, 1),
	})
	if err != nil {
		return nil, err
	}
	if len(result.output) > len(output) || len(result.mask) > len(mask) {
		return nil, fmt.Errorf("%w: buffers (%d,%d) too small for (%d,%d)",
			obs.ErrExecutionFailed, len(output), len(mask), len(result.output), len(result.mask))
	}
	copy(output, result.output)
	copy(mask, result.mask)
	return result.metadata, nil
}

func (w *World) dispatchObs(task obsTask) (obsResult, error) {
	if w.state.Load() == int32(stateDropped) {
		return obsResult{}, ErrShutdown
	}
	select {
	case w.obsCh <- task:
	case <-w.closed:
		return obsResult{}, ErrShutdown
	}
	select {
	case result := <-task.reply:
		if result.err != nil {
			return obsResult{}, result.err
		}
		return result, nil
	case <-w.closed:
		return obsResult{}, ErrShutdown
	}
}

// LatestSnapshot reads the ring directly, bypassing the worker pool.
func (w *World) LatestSnapshot() *arena.OwnedSnapshot { return w.ring.Latest() }

// CurrentEpoch reads the epoch counter lock-free.
func (w *World) CurrentEpoch() uint64 { return w.epoch.Current() }

// Space is the shared topology.
func (w *World) Space() space.Space { return w.space }

// ─── Shutdown state machine ──────────────────────────────────────────────────

// Shutdown runs Running → Draining → Quiescing → Dropped with per-phase
// wall-clock budgets and returns the phase accounting. Idempotent: a
// second call reports zero durations and zero workers joined, with
// TickJoined set. Close is an alias that discards the report.
func (w *World) Shutdown() ShutdownReport {
	if w.state.Load() == int32(stateDropped) {
		return ShutdownReport{TickJoined: true}
	}
	start := time.Now()

	// Phase 1: Running → Draining. Raise the flag and wake the tick
	// goroutine out of its pacing sleep; it acknowledges via tickStopped.
	w.state.Store(int32(stateDraining))
	w.shutdownFlag.Store(true)
	select {
	case w.wake <- struct{}{}:
	default:
	}

	drainDeadline := time.Now().Add(drainBudget)
	for !w.tickStopped.Load() && time.Now().Before(drainDeadline) {
		time.Sleep(100 * time.Microsecond)
	}
	drainMs := uint64(time.Since(start).Milliseconds())

	// Phase 2: Draining → Quiescing. Cancel all workers, signal channel
	// disconnection, wait for pins to clear.
	w.state.Store(int32(stateQuiescing))
	for _, we := range w.workerEpochs {
		we.RequestCancel()
	}
	close(w.closed)

	quiesceDeadline := time.Now().Add(quiesceBudget)
	for time.Now().Before(quiesceDeadline) {
		allUnpinned := true
		for _, we := range w.workerEpochs {
			if _, pinned := we.Pinned(); pinned {
				allUnpinned = false
				break
			}
		}
		if allUnpinned {
			break
		}
		time.Sleep(100 * time.Microsecond)
	}
	quiesceMs := uint64(time.Since(start).Milliseconds()) - drainMs

	// Phase 3: Quiescing → Dropped. Join the tick goroutine (recovering
	// the engine for Reset) and the workers.
	w.state.Store(int32(stateDropped))

	tickJoined := false
	select {
	case eng := <-w.engineResult:
		w.recovered = eng
		tickJoined = true
	case <-time.After(joinBudget + drainBudget):
	}

	workersJoined := 0
	for _, done := range w.workerDone {
		select {
		case <-done:
			workersJoined++
		case <-time.After(joinBudget):
		}
	}

	return ShutdownReport{
		TotalMs:       uint64(time.Since(start).Milliseconds()),
		DrainMs:       drainMs,
		QuiesceMs:     quiesceMs,
		TickJoined:    tickJoined,
		WorkersJoined: workersJoined,
	}
}

// Close shuts the world down, discarding the report. Safe to defer.
func (w *World) Close() { w.Shutdown() }

// Reset stops all goroutines, resets the recovered engine and restarts
// the runtime with fresh ring, epochs, channels and workers. On engine
// reset failure the engine is restored for a retry.
func (w *World) Reset() error {
	if w.state.Load() != int32(stateDropped) {
		w.Shutdown()
	}
	eng := w.recovered
	if eng == nil {
		return ErrEngineRecovery
	}
	w.recovered = nil

	if err := eng.Reset(); err != nil {
		w.recovered = eng
		return err
	}

	w.start(eng, w.ring.Capacity())
	return nil
}
