// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package emu is an in-memory emulator of the neuromorphic device, which
implements both dynapse.Sink and dynapse.ConnSource.

It keeps the CAM, SRAM and core parameter state written by Configure, and
plays input batches through a simple event-driven integrate-and-fire
model on an akita serial engine: each input or recurrent spike adds the
signed Gain of its synapse type to the potential of every neuron with a
CAM slot listening to it, and a neuron fires and resets when its potential
reaches Threshold.  Spikes of physical neurons only reach the cores listed
in their SRAM routes.  The potential of a neuron is reset after LeakTicks
without input.

The emulator is meant for tests and examples: it checks the wire format
and hardware limits of everything it is sent, and can be made to fail.
*/
package emu

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/emer/dynapse/dynapse"
	"github.com/sarchlab/akita/v4/sim"
)

// Stats counts what the device has been sent since the last Reset.
type Stats struct {
	Configs     int
	SynWrites   int
	RouteWrites int
	CoreWrites  int
	Plays       int
	EventsIn    int
	EventsOut   int
	Ticks       uint64
}

func (st *Stats) String() string {
	return fmt.Sprintf("Configs: %d\tSyn: %d\tRoute: %d\tCore: %d\tPlays: %d\tIn: %d\tOut: %d\tTicks: %d", st.Configs, st.SynWrites, st.RouteWrites, st.CoreWrites, st.Plays, st.EventsIn, st.EventsOut, st.Ticks)
}

type camSlot struct {
	Used bool
	Src  dynapse.ConnSource
	Type dynapse.SynapseTypes
}

type route struct {
	Used     bool
	Chip     int
	CoreMask uint8
}

// fan is the total input weight from one source onto one target.
type fan struct {
	Tgt dynapse.NeuronAddress
	Wt  float32
}

// Device is the device emulator.
type Device struct {

	// clock frequency of the device
	Freq sim.Freq `def:"90e6"`

	// potential at which a neuron fires
	Threshold float32 `def:"1"`

	// delay in ticks of recurrent spikes
	Delay int64 `def:"90"`

	// ticks without input after which the potential is reset
	LeakTicks int64 `def:"90000"`

	// width limit of the ISI register in ticks
	MaxISI uint32 `def:"65535"`

	// Play fails on this play count (0 = first play), -1 = never
	FailAt int `def:"-1"`

	// Configure fails
	FailConfig bool

	// counts of everything sent to the device
	Stats Stats

	cams   map[dynapse.NeuronAddress]*[dynapse.MaxFanIn]camSlot
	routes map[dynapse.NeuronAddress]*[dynapse.NumSramEntries]route
	cores  [dynapse.NumCores][dynapse.SynapseTypesN]dynapse.TypeParams
	fanout map[dynapse.ConnSource][]fan
	vm     map[dynapse.NeuronAddress]float32
	lastIn map[dynapse.NeuronAddress]int64
	now    int64
	last   []dynapse.Record
	mu     sync.Mutex
}

// New returns a new device emulator with default parameters.
func New() *Device {
	dv := &Device{}
	dv.Defaults()
	dv.Reset()
	return dv
}

func (dv *Device) Defaults() {
	dv.Freq = 90 * sim.MHz
	dv.Threshold = 1
	dv.Delay = 90
	dv.MaxISI = 65535
	dv.LeakTicks = 90000
	dv.FailAt = -1
}

// Reset clears all device state and statistics, as after power up.
func (dv *Device) Reset() {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	dv.Stats = Stats{}
	dv.cams = make(map[dynapse.NeuronAddress]*[dynapse.MaxFanIn]camSlot)
	dv.routes = make(map[dynapse.NeuronAddress]*[dynapse.NumSramEntries]route)
	dv.cores = [dynapse.NumCores][dynapse.SynapseTypesN]dynapse.TypeParams{}
	dv.fanout = nil
	dv.vm = make(map[dynapse.NeuronAddress]float32)
	dv.lastIn = make(map[dynapse.NeuronAddress]int64)
	dv.now = 0
	dv.last = nil
}

// Configure applies the configuration writes.
func (dv *Device) Configure(ctx context.Context, cw *dynapse.ConfigWrites) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dv.mu.Lock()
	defer dv.mu.Unlock()
	if dv.FailConfig {
		return fmt.Errorf("emu: configuration write rejected")
	}
	for _, wr := range cw.Cores {
		if wr.Core < 0 || wr.Core >= dynapse.NumCores {
			return fmt.Errorf("emu: core %d out of range", wr.Core)
		}
		dv.cores[wr.Core][wr.Type] = wr.Params
	}
	for _, wr := range cw.Routes {
		if !wr.Src.Valid() || wr.Entry < 0 || wr.Entry >= dynapse.NumSramEntries {
			return fmt.Errorf("emu: invalid route write %+v", wr)
		}
		rt := dv.routes[wr.Src]
		if rt == nil {
			rt = &[dynapse.NumSramEntries]route{}
			dv.routes[wr.Src] = rt
		}
		if wr.Clear {
			rt[wr.Entry] = route{}
		} else {
			rt[wr.Entry] = route{Used: true, Chip: wr.Chip, CoreMask: wr.CoreMask}
		}
	}
	for _, wr := range cw.Syns {
		if !wr.Tgt.Valid() || wr.Slot < 0 || wr.Slot >= dynapse.MaxFanIn {
			return fmt.Errorf("emu: invalid synapse write %v", wr)
		}
		cm := dv.cams[wr.Tgt]
		if cm == nil {
			cm = &[dynapse.MaxFanIn]camSlot{}
			dv.cams[wr.Tgt] = cm
		}
		if wr.Clear {
			cm[wr.Slot] = camSlot{}
		} else {
			cm[wr.Slot] = camSlot{Used: true, Src: wr.Src, Type: wr.Type}
		}
	}
	dv.Stats.Configs++
	dv.Stats.CoreWrites += len(cw.Cores)
	dv.Stats.RouteWrites += len(cw.Routes)
	dv.Stats.SynWrites += len(cw.Syns)
	dv.fanout = nil
	return nil
}

// routed returns true if spikes of src reach the core of tgt.
func (dv *Device) routed(src, tgt dynapse.NeuronAddress) bool {
	rt := dv.routes[src]
	if rt == nil {
		return false
	}
	for _, en := range rt {
		if en.Used && en.Chip == tgt.Chip() && en.CoreMask&(1<<tgt.Core()) != 0 {
			return true
		}
	}
	return false
}

// buildFanout indexes the CAM state by source.
func (dv *Device) buildFanout() {
	wts := make(map[dynapse.ConnSource]map[dynapse.NeuronAddress]float32)
	for tgt, cm := range dv.cams {
		for _, sl := range cm {
			if !sl.Used {
				continue
			}
			if !sl.Src.Virtual && !dv.routed(dynapse.NeuronAddress(sl.Src.Addr), tgt) {
				continue
			}
			tw := wts[sl.Src]
			if tw == nil {
				tw = make(map[dynapse.NeuronAddress]float32)
				wts[sl.Src] = tw
			}
			tw[tgt] += float32(sl.Type.Sign()) * dv.cores[tgt.CoreIndex()][sl.Type].Gain
		}
	}
	dv.fanout = make(map[dynapse.ConnSource][]fan, len(wts))
	for src, tw := range wts {
		fs := make([]fan, 0, len(tw))
		for tgt, w := range tw {
			fs = append(fs, fan{Tgt: tgt, Wt: w})
		}
		slices.SortFunc(fs, func(a, b fan) int { return int(a.Tgt - b.Tgt) })
		dv.fanout[src] = fs
	}
}

// spikeEvent delivers all spikes arriving at one tick.
type spikeEvent struct {
	*sim.EventBase
	tick int64
}

// player plays one batch on the engine.
type player struct {
	dv      *Device
	engine  sim.Engine
	pending map[int64][]dynapse.ConnSource
	end     int64
	out     []dynapse.Record
}

func (pl *player) schedule(tk int64, src dynapse.ConnSource) {
	if _, has := pl.pending[tk]; !has {
		t := sim.VTimeInSec(float64(tk) / float64(pl.dv.Freq))
		pl.engine.Schedule(&spikeEvent{EventBase: sim.NewEventBase(t, pl), tick: tk})
	}
	pl.pending[tk] = append(pl.pending[tk], src)
}

// Handle integrates the spikes of one tick.
func (pl *player) Handle(e sim.Event) error {
	se := e.(*spikeEvent)
	srcs := pl.pending[se.tick]
	delete(pl.pending, se.tick)
	dv := pl.dv
	now := dv.now + se.tick
	inp := make(map[dynapse.NeuronAddress]float32)
	for _, src := range srcs {
		for _, fn := range dv.fanout[src] {
			inp[fn.Tgt] += fn.Wt
		}
	}
	tgts := make([]dynapse.NeuronAddress, 0, len(inp))
	for tgt := range inp {
		tgts = append(tgts, tgt)
	}
	slices.Sort(tgts)
	for _, tgt := range tgts {
		vm := dv.vm[tgt]
		if now-dv.lastIn[tgt] >= dv.LeakTicks {
			vm = 0
		}
		vm += inp[tgt]
		dv.lastIn[tgt] = now
		if vm < dv.Threshold {
			dv.vm[tgt] = vm
			continue
		}
		dv.vm[tgt] = 0
		pl.out = append(pl.out, dynapse.Record{Tick: uint32(se.tick), Chan: uint16(tgt)})
		if nt := se.tick + dv.Delay; nt < pl.end {
			pl.schedule(nt, dynapse.NeuronSource(tgt))
		}
	}
	return nil
}

// Play decodes the input records of the batch, checking the wire
// format, and runs the batch to its end.
func (dv *Device) Play(ctx context.Context, bt *dynapse.Batch, recs []dynapse.Record) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dv.mu.Lock()
	defer dv.mu.Unlock()
	if dv.FailAt >= 0 && dv.Stats.Plays == dv.FailAt {
		return 0, fmt.Errorf("emu: playback of batch %d failed", bt.Index)
	}
	if len(recs) > dynapse.MaxEventsBatch {
		return 0, fmt.Errorf("emu: batch %d has %d events, max %d", bt.Index, len(recs), dynapse.MaxEventsBatch)
	}
	if dv.fanout == nil {
		dv.buildFanout()
	}
	pl := &player{dv: dv, engine: sim.NewSerialEngine(), pending: make(map[int64][]dynapse.ConnSource), end: bt.Ticks}
	tk := int64(0)
	for i, rc := range recs {
		if i > 0 && rc.Tick > dv.MaxISI {
			return 0, fmt.Errorf("emu: batch %d record %d: ISI %d overflows the register", bt.Index, i, rc.Tick)
		}
		va := dynapse.VirtualAddress(rc.Chan)
		if !va.Valid() {
			return 0, fmt.Errorf("emu: batch %d record %d: virtual address %d out of range", bt.Index, i, rc.Chan)
		}
		tk += int64(rc.Tick)
		pl.schedule(tk, dynapse.VirtualSource(va))
	}
	if err := pl.engine.Run(); err != nil {
		return 0, err
	}
	slices.SortFunc(pl.out, func(a, b dynapse.Record) int {
		if a.Tick != b.Tick {
			return int(a.Tick) - int(b.Tick)
		}
		return int(a.Chan) - int(b.Chan)
	})
	dv.last = pl.out
	dv.now += bt.Ticks
	dv.Stats.Plays++
	dv.Stats.EventsIn += len(recs)
	dv.Stats.EventsOut += len(pl.out)
	dv.Stats.Ticks += uint64(bt.Ticks)
	return uint64(bt.Ticks), nil
}

// Recorded returns the output of the last played batch.
func (dv *Device) Recorded(ctx context.Context) ([]dynapse.Record, error) {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	return dv.last, nil
}

// Synapses returns the number of written CAM slots.
func (dv *Device) Synapses() int {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	n := 0
	for _, cm := range dv.cams {
		for _, sl := range cm {
			if sl.Used {
				n++
			}
		}
	}
	return n
}

// Routes returns the number of written SRAM entries.
func (dv *Device) Routes() int {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	n := 0
	for _, rt := range dv.routes {
		for _, en := range rt {
			if en.Used {
				n++
			}
		}
	}
	return n
}

// CoreParams returns the parameters written for a global core index.
func (dv *Device) CoreParams(core int) [dynapse.SynapseTypesN]dynapse.TypeParams {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	return dv.cores[core]
}
