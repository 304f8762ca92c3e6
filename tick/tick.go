// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package tick converts between continuous time and the integer clock ticks
of the event-driven hardware.

All timing on the device is expressed in ticks of a fixed clock
(90 MHz on the reference board, i.e., 100ns/9 per tick).  Input events are
played back with an inter-spike-interval register that is 16 bits wide, so
two consecutive events can never be more than 65535 ticks apart: such
inputs are rejected, not corrected.
*/
package tick

import (
	"fmt"
	"math"
	"slices"

	"cogentcore.org/core/base/errors"
	"github.com/emer/dynapse/spikes"
	"github.com/sarchlab/akita/v4/sim"
)

var (
	// ErrTimestepTooSmall is returned when a timestep is shorter than one tick.
	ErrTimestepTooSmall = errors.New("tick: timestep smaller than hardware tick")

	// ErrInterEventGapTooLarge is returned when consecutive events are
	// further apart than MaxISI ticks.
	ErrInterEventGapTooLarge = errors.New("tick: inter-event gap too large")

	// ErrOutOfRange is returned for events before the time origin.
	ErrOutOfRange = errors.New("tick: event before time origin")

	// ErrUnordered is returned for events that are not in time order.
	ErrUnordered = errors.New("tick: events not in time order")
)

// Event is a spike event quantized to hardware ticks.
type Event struct {

	// tick count relative to the time origin
	Tick int64

	// channel the event occurred on
	Chan int
}

// Less orders events by tick, ties broken by channel ascending.
func (ev Event) Less(o Event) bool {
	if ev.Tick != o.Tick {
		return ev.Tick < o.Tick
	}
	return ev.Chan < o.Chan
}

// Params are the hardware clock parameters.
type Params struct {

	// clock frequency of the event sequencer. One tick = 1 / Freq.
	Freq sim.Freq `def:"90e6"`

	// maximum number of ticks between two consecutive input events,
	// set by the width of the ISI register.
	MaxISI int64 `def:"65535"`

	// duration of one tick in seconds, computed from Freq.
	TickDur float64 `edit:"-"`
}

func (tp *Params) Defaults() {
	tp.Freq = 90 * sim.MHz
	tp.MaxISI = 65535
	tp.Update()
}

// Update recomputes derived values.
func (tp *Params) Update() {
	if tp.Freq <= 0 {
		tp.Freq = 90 * sim.MHz
	}
	tp.TickDur = 1 / float64(tp.Freq)
}

// Ticks returns the nearest tick count for time t in seconds.
func (tp *Params) Ticks(t float64) int64 {
	return int64(math.Round(t / tp.TickDur))
}

// Time returns the time in seconds of given tick count.
func (tp *Params) Time(ticks int64) float64 {
	return float64(ticks) * tp.TickDur
}

// CheckDt returns ErrTimestepTooSmall if dt is less than one tick.
func (tp *Params) CheckDt(dt float64) error {
	// relative tolerance so that dt == TickDur passes despite rounding
	if !(dt >= tp.TickDur*(1-1e-9)) {
		return fmt.Errorf("%w: dt %g s < tick %g s", ErrTimestepTooSmall, dt, tp.TickDur)
	}
	return nil
}

// DtTicks returns the number of ticks in one timestep of length dt,
// which is at least 1.
func (tp *Params) DtTicks(dt float64) int64 {
	return max(tp.Ticks(dt), 1)
}

// Quantize converts events, which must be ordered by time then channel,
// into tick events relative to origin.  Fails if any event is before the
// origin or if two consecutive events are more than MaxISI ticks apart.
func (tp *Params) Quantize(evs []spikes.Event, origin float64) ([]Event, error) {
	qe := make([]Event, len(evs))
	for i := range evs {
		ev := &evs[i]
		tk := tp.Ticks(ev.Time - origin)
		if tk < 0 {
			return nil, fmt.Errorf("%w: event %d at t=%g s, origin %g s", ErrOutOfRange, i, ev.Time, origin)
		}
		qe[i] = Event{Tick: tk, Chan: ev.Chan}
		if i == 0 {
			continue
		}
		pv := qe[i-1]
		if tk < pv.Tick {
			return nil, fmt.Errorf("%w: event %d (t=%g s, ch %d) precedes event %d", ErrUnordered, i, ev.Time, ev.Chan, i-1)
		}
		if gap := tk - pv.Tick; gap > tp.MaxISI {
			return nil, fmt.Errorf("%w: %d ticks between events %d and %d (max %d)", ErrInterEventGapTooLarge, gap, i-1, i, tp.MaxISI)
		}
	}
	// events closer than one tick can land on the same tick out of channel order
	cmp := func(a, b Event) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	}
	if !slices.IsSortedFunc(qe, cmp) {
		slices.SortStableFunc(qe, cmp)
	}
	return qe, nil
}

// QuantizeTimes converts times (e.g., trial start markers) to ticks
// relative to origin, clamping times before the origin to 0.
func (tp *Params) QuantizeTimes(ts []float64, origin float64) []int64 {
	tks := make([]int64, len(ts))
	for i, t := range ts {
		tks[i] = max(tp.Ticks(t-origin), 0)
	}
	return tks
}
