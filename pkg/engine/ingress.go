// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"sort"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// queuedCommand is a command plus its index in the submitter's batch.
type queuedCommand struct {
	cmd        schema.Command
	batchIndex int
}

// DrainedCommand is one command released by Drain for execution, carrying
// the original submission batch index so receipts can be emitted both in
// original order and in reordered execution order.
type DrainedCommand struct {
	Command      schema.Command
	CommandIndex int
}

// DrainResult is what Drain hands the tick engine.
type DrainResult struct {
	// ExpiredReceipts are rejections for commands whose expiry passed.
	ExpiredReceipts []schema.Receipt
	// Commands are the surviving commands in execution order:
	// (priority class ascending, arrival sequence ascending).
	Commands []DrainedCommand
}

// IngressQueue is the bounded FIFO feeding the tick engine. Accepted
// commands get a stable arrival sequence; Drain releases them ordered by
// priority class with arrival order breaking ties.
type IngressQueue struct {
	capacity       int
	items          []queuedCommand
	arrivalCounter uint64
}

// NewIngressQueue creates a queue holding at most capacity commands.
func NewIngressQueue(capacity int) *IngressQueue {
	return &IngressQueue{capacity: capacity}
}

// Submit enqueues a batch, returning one receipt per input command in
// batch order. Rejections (queue full, tick disabled) never enter the
// queue.
func (q *IngressQueue) Submit(commands []schema.Command, tickDisabled bool) []schema.Receipt {
	receipts := make([]schema.Receipt, 0, len(commands))
	for i, cmd := range commands {
		switch {
		case tickDisabled:
			receipts = append(receipts, schema.Receipt{
				Accepted: false, Reason: schema.ReasonTickDisabled, CommandIndex: i,
			})
		case len(q.items) >= q.capacity:
			receipts = append(receipts, schema.Receipt{
				Accepted: false, Reason: schema.ReasonQueueFull, CommandIndex: i,
			})
		default:
			q.arrivalCounter++
			cmd.ArrivalSeq = q.arrivalCounter
			q.items = append(q.items, queuedCommand{cmd: cmd, batchIndex: i})
			receipts = append(receipts, schema.Receipt{Accepted: true, CommandIndex: i})
		}
	}
	return receipts
}

// Drain removes every queued command: expired ones (expires-after older
// than currentTick) come back as expired receipts, the rest in execution
// order. The queue is empty afterwards.
func (q *IngressQueue) Drain(currentTick schema.TickID) DrainResult {
	var result DrainResult
	var live []queuedCommand

	for _, item := range q.items {
		if item.cmd.ExpiresAfterTick < currentTick {
			result.ExpiredReceipts = append(result.ExpiredReceipts, schema.Receipt{
				Accepted:     false,
				Reason:       schema.ReasonExpired,
				CommandIndex: item.batchIndex,
			})
			continue
		}
		live = append(live, item)
	}

	sort.SliceStable(live, func(i, j int) bool {
		if live[i].cmd.PriorityClass != live[j].cmd.PriorityClass {
			return live[i].cmd.PriorityClass < live[j].cmd.PriorityClass
		}
		return live[i].cmd.ArrivalSeq < live[j].cmd.ArrivalSeq
	})

	result.Commands = make([]DrainedCommand, 0, len(live))
	for _, item := range live {
		result.Commands = append(result.Commands, DrainedCommand{
			Command:      item.cmd,
			CommandIndex: item.batchIndex,
		})
	}

	q.items = q.items[:0]
	return result
}

// Clear discards all pending commands.
func (q *IngressQueue) Clear() { q.items = q.items[:0] }

// Len is the number of pending commands.
func (q *IngressQueue) Len() int { return len(q.items) }

// Capacity is the configured maximum.
func (q *IngressQueue) Capacity() int { return q.capacity }
