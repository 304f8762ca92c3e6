// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
	"time"
)

// dynapse.Time contains the hardware timing state of a layer.
// The device keeps evolving between batches and between evolve calls,
// so the time origin of each evolve is the hardware elapsed time,
// not wall-clock time.
type Time struct {

	// accumulated number of device ticks since the last Reset, counting
	// played batches and the idle time between and after them.
	Ticks int64

	// idle ticks since the last Reset, included in Ticks.
	IdleTicks int64

	// number of completed evolve calls since the last Reset.
	Evolves int

	// total number of batches played since the last Reset,
	// including those of failed evolve calls.
	BatchesTot int
}

// Reset resets the counters all back to zero
func (tm *Time) Reset() {
	tm.Ticks = 0
	tm.IdleTicks = 0
	tm.Evolves = 0
	tm.BatchesTot = 0
}

// BatchInc advances the hardware time by a played batch.
func (tm *Time) BatchInc(ticks int64) {
	tm.Ticks += ticks
	tm.BatchesTot++
}

// Idle advances the hardware time by ticks during which nothing is played.
func (tm *Time) Idle(ticks int64) {
	if ticks <= 0 {
		return
	}
	tm.Ticks += ticks
	tm.IdleTicks += ticks
}

func (tm *Time) String() string {
	return fmt.Sprintf("Ticks: %d\tIdle: %d\tEvolves: %d\tBatches: %d", tm.Ticks, tm.IdleTicks, tm.Evolves, tm.BatchesTot)
}

// EvolveStats are the statistics of the last evolve call.
type EvolveStats struct {

	// number of batches played
	Batches int

	// number of input events
	EventsIn int

	// number of recorded output events
	EventsOut int

	// duration of the evolve period in ticks
	Ticks int64

	// device ticks reported by the sink over all batches
	DeviceTicks uint64

	// number of configuration writes pushed to the device
	ConfigWrites int

	// true if the connections were recompiled
	Compiled bool

	// wall-clock time of the call
	Wall time.Duration
}

func (es *EvolveStats) String() string {
	return fmt.Sprintf("Batches: %d\tIn: %d\tOut: %d\tTicks: %d\tDeviceTicks: %d\tConfigWrites: %d\tCompiled: %v\tWall: %v", es.Batches, es.EventsIn, es.EventsOut, es.Ticks, es.DeviceTicks, es.ConfigWrites, es.Compiled, es.Wall)
}
