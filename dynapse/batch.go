// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
	"math"

	"github.com/emer/dynapse/tick"
)

// BatchConfig has the limits used to split an input spike train into
// batches played back on the device one at a time.  All active limits
// apply together.
type BatchConfig struct {

	// maximum number of input events per batch.  Values outside of
	// [1, MaxEventsBatch] are set to MaxEventsBatch: the hardware limit
	// cannot be disabled.
	MaxEvents int `def:"65535" min:"1" max:"65535"`

	// maximum duration of one batch in seconds.  0 = no limit.
	// Ignored if MaxTimesteps is set.
	MaxDuration float64 `def:"0" min:"0"`

	// maximum number of layer timesteps (Dt) per batch.  0 = no limit.
	MaxTimesteps int `def:"0" min:"0"`

	// maximum number of trials per batch.  0 = no limit.
	// Only applies to inputs with trial markers: trials are never split
	// across batches unless a single trial exceeds MaxEvents.
	MaxTrials int `def:"0" min:"0"`
}

func (bc *BatchConfig) Defaults() {
	bc.MaxEvents = MaxEventsBatch
	bc.MaxDuration = 0
	bc.MaxTimesteps = 0
	bc.MaxTrials = 0
}

// Update clamps the limits to their valid ranges.
func (bc *BatchConfig) Update() {
	if bc.MaxEvents <= 0 || bc.MaxEvents > MaxEventsBatch {
		bc.MaxEvents = MaxEventsBatch
	}
	bc.MaxDuration = max(bc.MaxDuration, 0)
	bc.MaxTimesteps = max(bc.MaxTimesteps, 0)
	bc.MaxTrials = max(bc.MaxTrials, 0)
}

// Validate returns an error for limits outside of their valid ranges.
func (bc *BatchConfig) Validate() error {
	if bc.MaxEvents < 1 || bc.MaxEvents > MaxEventsBatch {
		return fmt.Errorf("dynapse.BatchConfig: MaxEvents %d not in [1, %d]", bc.MaxEvents, MaxEventsBatch)
	}
	if bc.MaxDuration < 0 || bc.MaxTimesteps < 0 || bc.MaxTrials < 0 {
		return fmt.Errorf("dynapse.BatchConfig: negative limit: MaxDuration %g, MaxTimesteps %d, MaxTrials %d", bc.MaxDuration, bc.MaxTimesteps, bc.MaxTrials)
	}
	return nil
}

// LimitTicks returns the maximum duration of a batch in ticks for
// timestep dt, or 0 if there is no duration limit.  MaxTimesteps takes
// precedence over MaxDuration.
func (bc *BatchConfig) LimitTicks(tp *tick.Params, dt float64) int64 {
	switch {
	case bc.MaxTimesteps > 0:
		return int64(bc.MaxTimesteps) * tp.DtTicks(dt)
	case bc.MaxDuration > 0:
		return max(tp.Ticks(bc.MaxDuration), 1)
	}
	return 0
}

func (bc *BatchConfig) String() string {
	return fmt.Sprintf("MaxEvents: %d, MaxDuration: %g, MaxTimesteps: %d, MaxTrials: %d", bc.MaxEvents, bc.MaxDuration, bc.MaxTimesteps, bc.MaxTrials)
}

// Batch is one hardware playback unit: a contiguous slice of the
// ordered input events, covering ticks [StartTick, StartTick+Ticks).
// Batches of one evolve call tile its timeline without gaps.
// Ticks are relative to the evolve time origin.
type Batch struct {

	// index of the batch within its evolve call
	Index int

	// first tick of the batch
	StartTick int64

	// duration of the batch in ticks
	Ticks int64

	// input events, channels are layer input indexes
	Events []tick.Event

	// number of trials in the batch, 0 if not split by trials
	Trials int
}

// EndTick returns the tick just past the batch.
func (bt *Batch) EndTick() int64 { return bt.StartTick + bt.Ticks }

// Len returns the number of events.
func (bt *Batch) Len() int { return len(bt.Events) }

func (bt *Batch) String() string {
	return fmt.Sprintf("Batch %d: ticks [%d, %d), %d events, %d trials", bt.Index, bt.StartTick, bt.EndTick(), len(bt.Events), bt.Trials)
}

// Records encodes the batch in the device wire format, mapping layer
// input channels to virtual addresses through vaddrs.  The first record
// holds the offset from the batch start, and each following record the
// interval from the previous event, which must not exceed tp.MaxISI.
func (bt *Batch) Records(tp *tick.Params, vaddrs []VirtualAddress) ([]Record, error) {
	recs := make([]Record, len(bt.Events))
	prev := bt.StartTick
	for i, ev := range bt.Events {
		if ev.Chan < 0 || ev.Chan >= len(vaddrs) {
			return nil, fmt.Errorf("%w: batch %d event %d channel %d, layer has %d inputs", ErrOutOfRange, bt.Index, i, ev.Chan, len(vaddrs))
		}
		dt := ev.Tick - prev
		switch {
		case dt < 0:
			return nil, fmt.Errorf("%w: batch %d event %d at tick %d before tick %d", ErrOutOfRange, bt.Index, i, ev.Tick, prev)
		case i > 0 && dt > tp.MaxISI:
			return nil, fmt.Errorf("%w: batch %d: %d ticks before event %d (max %d)", ErrInterEventGapTooLarge, bt.Index, dt, i, tp.MaxISI)
		case dt > math.MaxUint32:
			return nil, fmt.Errorf("%w: batch %d: first event offset %d ticks", ErrInterEventGapTooLarge, bt.Index, dt)
		}
		recs[i] = Record{Tick: uint32(dt), Chan: uint16(vaddrs[ev.Chan])}
		prev = ev.Tick
	}
	return recs, nil
}
