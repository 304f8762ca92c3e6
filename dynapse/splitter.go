// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
	"log"

	"github.com/emer/dynapse/tick"
)

// Splitter splits an ordered sequence of tick events into batches, in a
// single forward pass.  Use it like a bufio.Scanner:
//
//	sp := NewSplitter(evs, trials, &cfg, limit, end)
//	for sp.Next() {
//		bt := sp.Batch()
//	}
//
// A Splitter cannot be rewound.  Batch events are sub-slices of the input.
//
// Without trial markers (or with MaxTrials == 0), events are accumulated
// in groups sharing the same tick, and a batch is closed before the group
// that would exceed MaxEvents or the duration limit.  With MaxTrials and
// markers, whole trials are accumulated instead, and a batch is closed
// before the trial that would exceed any of the limits.  The first group
// or trial of a batch is always taken, so limits only apply going forward.
// MaxEvents is the hardware limit and always wins: a same-tick group or a
// single trial with more events than that is split.
//
// Without a duration limit, batches tile the period from tick 0.  With one,
// no batch lasts longer than the limit (except for a single trial whose own
// events span more), and a batch whose first event lies beyond the limit
// starts at that event, or at its trial start, leaving an idle gap after
// the previous batch.
type Splitter struct {

	// error logged when MaxTrials is set but the input has no trial markers
	Conflict error

	evs       []tick.Event
	trials    []int64
	maxEvents int
	maxTrials int
	limit     int64
	endTick   int64

	pos   int
	trial int
	start int64
	index int
	cur   Batch
	warn  int
}

// NewSplitter returns a splitter over evs, which must be ordered by tick
// then channel.  trials are the ascending trial start ticks (nil if none),
// limit is the maximum batch duration in ticks (0 = none, see
// BatchConfig.LimitTicks), and endTick is the end of the evolve period,
// to which the last batch is extended within the limit.
func NewSplitter(evs []tick.Event, trials []int64, cfg *BatchConfig, limit, endTick int64) *Splitter {
	sp := &Splitter{evs: evs, maxEvents: cfg.MaxEvents, limit: limit, endTick: endTick, warn: -1}
	if sp.maxEvents <= 0 || sp.maxEvents > MaxEventsBatch {
		sp.maxEvents = MaxEventsBatch
	}
	if cfg.MaxTrials > 0 {
		if len(trials) == 0 {
			sp.Conflict = fmt.Errorf("%w: MaxTrials = %d but input has no trial markers, splitting by events", ErrBatchConfigConflict, cfg.MaxTrials)
			log.Println(sp.Conflict)
		} else {
			sp.trials = trials
			sp.maxTrials = cfg.MaxTrials
		}
	}
	return sp
}

// Next advances to the next batch, returning false when all events
// have been consumed.
func (sp *Splitter) Next() bool {
	if sp.pos >= len(sp.evs) {
		return false
	}
	if sp.maxTrials > 0 {
		sp.nextTrials()
	} else {
		tk := sp.evs[sp.pos].Tick
		sp.skipIdle(tk, tk)
		ed := sp.groups(sp.pos, len(sp.evs))
		sp.emit(ed, sp.nextTick(ed), 0)
	}
	return true
}

// Batch returns the current batch, valid after Next returned true.
func (sp *Splitter) Batch() *Batch {
	return &sp.cur
}

// Index returns the number of batches produced so far.
func (sp *Splitter) Index() int { return sp.index }

// groupEnd returns the index just past the same-tick group starting at i.
func (sp *Splitter) groupEnd(i int) int {
	tk := sp.evs[i].Tick
	for i++; i < len(sp.evs) && sp.evs[i].Tick == tk; i++ {
	}
	return i
}

// inLimit returns true if an event at tick tk fits a batch
// starting at sp.start.
func (sp *Splitter) inLimit(tk int64) bool {
	return sp.limit <= 0 || tk-sp.start < sp.limit
}

// skipIdle moves the batch start forward to st when the next event, at
// tick ev, is beyond the duration limit, or to ev if that is not enough.
func (sp *Splitter) skipIdle(st, ev int64) {
	if sp.inLimit(ev) {
		return
	}
	sp.start = max(sp.start, st)
	if !sp.inLimit(ev) {
		sp.start = ev
	}
}

// groups accumulates same-tick groups from st, up to index lim,
// returning the index just past the batch.
func (sp *Splitter) groups(st, lim int) int {
	ed := min(sp.groupEnd(st), lim)
	if ed-st > sp.maxEvents {
		return st + sp.maxEvents
	}
	for ed < lim {
		ne := min(sp.groupEnd(ed), lim)
		if ne-st > sp.maxEvents || !sp.inLimit(sp.evs[ed].Tick) {
			break
		}
		ed = ne
	}
	return ed
}

// nextTick returns the tick that bounds a batch ending at index ed:
// the next event, or the end of the period.
func (sp *Splitter) nextTick(ed int) int64 {
	if ed < len(sp.evs) {
		return sp.evs[ed].Tick
	}
	return sp.endTick
}

// trialEnd returns the index just past the events of trial ti,
// scanning forward from index from.  Events before the first
// marker belong to the first trial.
func (sp *Splitter) trialEnd(ti, from int) int {
	if ti+1 >= len(sp.trials) {
		return len(sp.evs)
	}
	nt := sp.trials[ti+1]
	for from < len(sp.evs) && sp.evs[from].Tick < nt {
		from++
	}
	return from
}

// trialStop returns the tick at which trial ti ends.
func (sp *Splitter) trialStop(ti int) int64 {
	if ti+1 >= len(sp.trials) {
		return sp.endTick
	}
	return sp.trials[ti+1]
}

// nextTrials forms a batch of whole trials starting at sp.trial.
func (sp *Splitter) nextTrials() {
	st := sp.pos
	for sp.trial+1 < len(sp.trials) && sp.evs[st].Tick >= sp.trials[sp.trial+1] {
		sp.trial++
	}
	ti := sp.trial
	sp.skipIdle(min(sp.trials[ti], sp.evs[st].Tick), sp.evs[st].Tick)
	ed := sp.trialEnd(ti, st)
	if ed-st > sp.maxEvents {
		if sp.warn != ti {
			log.Printf("dynapse.Splitter: trial %d has %d events, more than MaxEvents %d: splitting the trial\n", ti, ed-st, sp.maxEvents)
			sp.warn = ti
		}
		te := ed
		ed = sp.groups(st, te)
		nxt := sp.nextTick(ed)
		if ed == te && ed < len(sp.evs) {
			sp.trial++
			nxt = sp.trialStop(ti)
		}
		sp.emit(ed, nxt, 1)
		return
	}
	nt := 1
	for ti+1 < len(sp.trials) && nt < sp.maxTrials && ed < len(sp.evs) {
		ne := sp.trialEnd(ti+1, ed)
		if ne-st > sp.maxEvents {
			break
		}
		stop := sp.trialStop(ti + 1)
		if ti+2 >= len(sp.trials) {
			// last trial: only its events need to fit
			stop = sp.evs[ne-1].Tick + 1
		}
		if sp.limit > 0 && stop-sp.start > sp.limit {
			break
		}
		ed = ne
		ti++
		nt++
	}
	sp.trial = ti + 1
	nxt := sp.trialStop(ti)
	if ed >= len(sp.evs) {
		nxt = sp.endTick
	}
	sp.emit(ed, nxt, nt)
}

// emit sets the current batch to events [sp.pos, ed), bounded by the
// tick nxt and the duration limit, and advances.
func (sp *Splitter) emit(ed int, nxt int64, ntrials int) {
	last := sp.evs[ed-1].Tick
	end := nxt
	if sp.limit > 0 {
		end = min(end, sp.start+sp.limit)
	}
	end = max(end, last+1)
	if ed < len(sp.evs) && sp.evs[ed].Tick == last {
		// same-tick group split by MaxEvents: next batch starts on its tick
		end = last
	}
	if sp.limit > 0 && end-sp.start > sp.limit {
		log.Printf("dynapse.Splitter: batch %d lasts %d ticks, more than the limit of %d: trials are not split by duration\n", sp.index, end-sp.start, sp.limit)
	}
	sp.cur = Batch{Index: sp.index, StartTick: sp.start, Ticks: end - sp.start, Events: sp.evs[sp.pos:ed], Trials: ntrials}
	sp.index++
	sp.pos = ed
	sp.start = end
}
