// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"context"
	"fmt"

	"github.com/emer/dynapse/tick"
)

// Record is one event in the device wire format.
// For input batches, Tick of the first record is the offset from the
// batch start and every following Tick is the interval from the
// previous record, which must fit the ISI register.
// For recorded output, Tick is the offset from the batch start and
// Chan is the NeuronAddress that fired.
type Record struct {
	Tick uint32
	Chan uint16
}

// SynWrite sets or clears one CAM slot on a target neuron.
type SynWrite struct {
	Tgt  NeuronAddress
	Slot int
	Src  ConnSource
	Type SynapseTypes

	// clear the slot instead of setting it
	Clear bool
}

func (sw SynWrite) String() string {
	if sw.Clear {
		return fmt.Sprintf("cam %v[%d] clear", sw.Tgt, sw.Slot)
	}
	return fmt.Sprintf("cam %v[%d] = %v %v", sw.Tgt, sw.Slot, sw.Src, sw.Type)
}

// RouteWrite sets or clears one SRAM routing entry of a source neuron,
// which sends its spikes to the cores in CoreMask on Chip.
type RouteWrite struct {
	Src      NeuronAddress
	Entry    int
	Chip     int
	CoreMask uint8

	// clear the entry instead of setting it
	Clear bool
}

// CoreWrite sets the parameters of one synapse type on one core.
type CoreWrite struct {

	// global core index
	Core   int
	Type   SynapseTypes
	Params TypeParams
}

// ConfigWrites is the list of device configuration writes needed to
// bring the hardware from its previously written state to a new
// connection table.  Writes are applied in order: cores, routes, synapses.
type ConfigWrites struct {
	Cores  []CoreWrite
	Routes []RouteWrite
	Syns   []SynWrite
}

// Len returns the total number of writes.
func (cw *ConfigWrites) Len() int {
	if cw == nil {
		return 0
	}
	return len(cw.Cores) + len(cw.Routes) + len(cw.Syns)
}

// Empty returns true if there is nothing to write.
func (cw *ConfigWrites) Empty() bool { return cw.Len() == 0 }

func (cw *ConfigWrites) String() string {
	return fmt.Sprintf("ConfigWrites: %d core, %d route, %d synapse", len(cw.Cores), len(cw.Routes), len(cw.Syns))
}

// Sink is the device side that accepts configuration and input batches.
// Both calls block until the device has acknowledged: Play returns only
// after playback of the batch has completed, with the number of device
// ticks it took.
type Sink interface {
	Configure(ctx context.Context, cw *ConfigWrites) error
	Play(ctx context.Context, bt *Batch, recs []Record) (uint64, error)
}

// Source returns the output events recorded during the most
// recently played batch.
type Source interface {
	Recorded(ctx context.Context) ([]Record, error)
}

// Device is a Sink and Source on the same hardware.
type Device interface {
	Sink
	Source
}

// BatchObserver is notified after each batch has been played, with the
// output events (ticks relative to the evolve origin, channels as layer
// neuron indexes).
type BatchObserver interface {
	BatchDone(ly *Layer, bt *Batch, out []tick.Event)
}
