// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

//go:generate core generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emer/dynapse/spikes"
	"github.com/emer/dynapse/tick"
)

// States are the states of a layer evolve session.
type States int32 //enums:enum

const (
	// Idle is the state between evolve calls.
	Idle States = iota

	// Compiling validates the weights, input and timing, and computes
	// the device configuration.
	Compiling

	// Batching plays the input batches on the device one at a time.
	Batching

	// Draining collects the recorded output.
	Draining
)

// Layer is a recurrent spiking layer running on the device.  It owns the
// device configuration it has written and the hardware elapsed time, and
// runs one Evolve at a time.  Input channel i is played on virtual
// address VirtAddrs[i] and layer neuron k is the physical neuron
// NeurAddrs[k]: addresses are allocated externally.
type Layer struct {

	// name of the layer, for reporting
	Name string

	// global timestep in seconds: must be at least one hardware tick.
	Dt float64 `def:"0.001"`

	// limits for splitting the input into device batches
	Batch BatchConfig `display:"inline"`

	// hardware clock parameters
	Tick tick.Params `display:"inline"`

	// synapse type parameters, applied to every core hosting layer neurons
	CoreParams CoreParams

	// placement policy for input-receiving neurons
	Placement Placement

	// virtual address of each input channel
	VirtAddrs []VirtualAddress

	// physical address of each layer neuron
	NeurAddrs []NeuronAddress

	// device accepting configuration and input batches
	Sink Sink `display:"-"`

	// device recording output events
	Source Source `display:"-"`

	// optional observer notified after each batch
	Observer BatchObserver `display:"-"`

	// log every batch
	Debug bool

	// hardware timing state
	Time Time `edit:"-"`

	// statistics of the last evolve call
	Stats EvolveStats `edit:"-"`

	wtsIn  *Weights
	wtsRec *Weights
	dirty  bool
	built  bool
	conns  *ConnTable
	comp   Compiler
	state  atomic.Int32
	mu     sync.Mutex
}

// NewLayer returns a new layer with default parameters, using dev as
// both sink and source.  Call Build before Evolve.
func NewLayer(name string, vaddrs []VirtualAddress, naddrs []NeuronAddress, dev Device) *Layer {
	ly := &Layer{Name: name, VirtAddrs: vaddrs, NeurAddrs: naddrs}
	ly.Defaults()
	if dev != nil {
		ly.Sink = dev
		ly.Source = dev
	}
	return ly
}

func (ly *Layer) Defaults() {
	ly.Dt = 0.001
	ly.Batch.Defaults()
	ly.Tick.Defaults()
	ly.CoreParams.Defaults()
	ly.Placement.Defaults()
}

// UpdateParams updates all params given any changes that might have
// been made to individual values.
func (ly *Layer) UpdateParams() {
	ly.Batch.Update()
	ly.Tick.Update()
}

// SizeIn returns the number of input channels.
func (ly *Layer) SizeIn() int { return len(ly.VirtAddrs) }

// Size returns the number of layer neurons.
func (ly *Layer) Size() int { return len(ly.NeurAddrs) }

// T returns the hardware elapsed time in seconds, which is the
// time origin of the next Evolve.
func (ly *Layer) T() float64 { return ly.Tick.Time(ly.Time.Ticks) }

// State returns the current session state.
func (ly *Layer) State() States { return States(ly.state.Load()) }

func (ly *Layer) setState(st States) {
	ly.state.Store(int32(st))
	if ly.Debug {
		log.Printf("dynapse.Layer %q: %v\n", ly.Name, st)
	}
}

// Build checks the addresses and allocates zero weights for any
// weights not matching the layer shape.
func (ly *Layer) Build() error {
	ly.mu.Lock()
	defer ly.mu.Unlock()
	ly.UpdateParams()
	if err := checkAddrs(ly.VirtAddrs, ly.NeurAddrs); err != nil {
		return fmt.Errorf("dynapse.Layer %q: Build: %w", ly.Name, err)
	}
	if ly.Sink == nil || ly.Source == nil {
		return fmt.Errorf("dynapse.Layer %q: Build: no device sink or source", ly.Name)
	}
	nin, n := ly.SizeIn(), ly.Size()
	if r, c := ly.wtsIn.Shape(); r != nin || c != n {
		ly.wtsIn = NewWeights(nin, n)
	}
	if r, c := ly.wtsRec.Shape(); r != n || c != n {
		ly.wtsRec = NewWeights(n, n)
	}
	ly.dirty = true
	ly.built = true
	return nil
}

// SetWeightsIn sets the (SizeIn x Size) input weights.
// The connections are recompiled on the next Evolve.
func (ly *Layer) SetWeightsIn(wt *Weights) error {
	if r, c := wt.Shape(); r != ly.SizeIn() || c != ly.Size() {
		return fmt.Errorf("%w: layer %q input weights shape is %dx%d, expected %dx%d", ErrInvalidWeights, ly.Name, r, c, ly.SizeIn(), ly.Size())
	}
	ly.mu.Lock()
	defer ly.mu.Unlock()
	if ly.wtsIn.Equal(wt) {
		return nil
	}
	ly.wtsIn = wt.Clone()
	ly.dirty = true
	return nil
}

// SetWeightsRec sets the (Size x Size) recurrent weights.
// The connections are recompiled on the next Evolve.
func (ly *Layer) SetWeightsRec(wt *Weights) error {
	if r, c := wt.Shape(); r != ly.Size() || c != ly.Size() {
		return fmt.Errorf("%w: layer %q recurrent weights shape is %dx%d, expected %dx%d", ErrInvalidWeights, ly.Name, r, c, ly.Size(), ly.Size())
	}
	ly.mu.Lock()
	defer ly.mu.Unlock()
	if ly.wtsRec.Equal(wt) {
		return nil
	}
	ly.wtsRec = wt.Clone()
	ly.dirty = true
	return nil
}

// WeightsIn returns the input weights.  Use SetWeightsIn to change them.
func (ly *Layer) WeightsIn() *Weights { return ly.wtsIn }

// WeightsRec returns the recurrent weights.  Use SetWeightsRec to change them.
func (ly *Layer) WeightsRec() *Weights { return ly.wtsRec }

// Conns returns the connection table last written to the device,
// nil before the first Evolve.
func (ly *Layer) Conns() *ConnTable { return ly.conns }

// Reset resets the hardware elapsed time and statistics.
// The device configuration is kept.
func (ly *Layer) Reset() {
	ly.mu.Lock()
	defer ly.mu.Unlock()
	ly.Time.Reset()
	ly.Stats = EvolveStats{}
}

// ResetAll is Reset plus forgetting the written device configuration,
// so that the next Evolve writes the full configuration again,
// e.g., after the device has been power cycled.
func (ly *Layer) ResetAll() {
	ly.mu.Lock()
	defer ly.mu.Unlock()
	ly.Time.Reset()
	ly.Stats = EvolveStats{}
	ly.comp.Reset()
	ly.conns = nil
	ly.dirty = true
}

// EvolveSteps evolves the layer for nsteps timesteps of Dt.
func (ly *Layer) EvolveSteps(ctx context.Context, in *spikes.Train, nsteps int) (*spikes.Train, error) {
	return ly.Evolve(ctx, in, float64(nsteps)*ly.Dt)
}

// Evolve plays the input train on the device and returns the recorded
// output.  Input and output times are in layer time, starting at T():
// input events must be in [T(), T()+duration).  If duration <= 0 it is
// set to cover the input through its last timestep.  The connections
// are recompiled and written first if the weights have changed.
// A completed Evolve advances T() by the whole duration, including the
// idle ticks that the batch duration limits leave unplayed.
//
// All validation happens before anything is written to the device.
// A failure aborts the call and no output is returned.  Device failures
// are returned as *DeviceError: batches played before the failure are
// counted in the hardware time, as their effects cannot be undone.
// Cancellation of ctx is checked between batches.
// Evolve returns ErrBusy if another Evolve is running on the layer.
func (ly *Layer) Evolve(ctx context.Context, in *spikes.Train, duration float64) (*spikes.Train, error) {
	if !ly.mu.TryLock() {
		return nil, ErrBusy
	}
	defer ly.mu.Unlock()
	defer ly.setState(Idle)
	if !ly.built {
		return nil, fmt.Errorf("dynapse.Layer %q: %w", ly.Name, ErrNotBuilt)
	}
	st := time.Now()
	ly.Stats = EvolveStats{}

	ly.setState(Compiling)
	evs, trials, endTick, err := ly.quantize(in, duration)
	if err != nil {
		return nil, fmt.Errorf("dynapse.Layer %q: %w", ly.Name, err)
	}
	cw, err := ly.compile()
	if err != nil {
		return nil, fmt.Errorf("dynapse.Layer %q: %w", ly.Name, err)
	}
	if err := ly.configure(ctx, cw); err != nil {
		return nil, fmt.Errorf("dynapse.Layer %q: %w", ly.Name, err)
	}

	ly.setState(Batching)
	t0 := ly.Time.Ticks
	out, err := ly.playBatches(ctx, evs, trials, endTick)
	if err != nil {
		return nil, fmt.Errorf("dynapse.Layer %q: %w", ly.Name, err)
	}

	ly.setState(Draining)
	res := ly.drain(out, t0)
	ly.Time.Evolves++
	ly.Stats.Wall = time.Since(st)
	if ly.Debug {
		log.Printf("dynapse.Layer %q: evolve done: %v\n", ly.Name, &ly.Stats)
	}
	return res, nil
}

// quantize validates the timestep and input, and returns the input
// events and trial markers in ticks relative to T(), with the end tick
// of the evolve period.
func (ly *Layer) quantize(in *spikes.Train, duration float64) ([]tick.Event, []int64, int64, error) {
	if err := ly.Tick.CheckDt(ly.Dt); err != nil {
		return nil, nil, 0, err
	}
	if err := ly.Batch.Validate(); err != nil {
		return nil, nil, 0, err
	}
	origin := ly.T()
	if in == nil {
		in = &spikes.Train{NChans: ly.SizeIn()}
	}
	if !in.IsSorted() {
		in = in.Clone()
		in.Sort()
	}
	if duration <= 0 && in.Len() > 0 {
		duration = in.End() - origin + ly.Dt
	}
	for i, ev := range in.Events {
		if ev.Chan < 0 || ev.Chan >= ly.SizeIn() {
			return nil, nil, 0, fmt.Errorf("%w: input event %d channel %d, layer has %d inputs", ErrOutOfRange, i, ev.Chan, ly.SizeIn())
		}
		if ev.Time >= origin+duration {
			return nil, nil, 0, fmt.Errorf("%w: input event %d at t=%g s is past the evolve period [%g, %g)", ErrOutOfRange, i, ev.Time, origin, origin+duration)
		}
	}
	evs, err := ly.Tick.Quantize(in.Events, origin)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(evs) > 0 && evs[0].Tick > math.MaxUint32 {
		return nil, nil, 0, fmt.Errorf("%w: first input event is %d ticks after t=%g s", ErrInterEventGapTooLarge, evs[0].Tick, origin)
	}
	var trials []int64
	if in.HasTrials() {
		trials = ly.Tick.QuantizeTimes(in.Trials, origin)
	}
	endTick := ly.Tick.Ticks(duration)
	if len(evs) > 0 {
		endTick = max(endTick, evs[len(evs)-1].Tick+1)
	}
	ly.Stats.EventsIn = len(evs)
	ly.Stats.Ticks = endTick
	return evs, trials, endTick, nil
}

// compile recompiles the connections if the weights have changed,
// and returns the device writes needed, nil if none.
func (ly *Layer) compile() (*ConfigWrites, error) {
	if err := ly.CoreParams.Validate(); err != nil {
		return nil, err
	}
	ct := ly.conns
	if ly.dirty || ct == nil {
		var err error
		ct, err = ly.comp.Compile(ly.wtsIn, ly.wtsRec, ly.VirtAddrs, ly.NeurAddrs, &ly.Placement)
		if err != nil {
			return nil, err
		}
		ly.Stats.Compiled = true
		if ly.Debug {
			log.Print(ct.SizeReport())
		}
	}
	cw, err := ly.comp.Diff(ct, &ly.CoreParams)
	if err != nil {
		return nil, err
	}
	ly.conns = ct
	return cw, nil
}

// configure writes the configuration to the device and commits it.
func (ly *Layer) configure(ctx context.Context, cw *ConfigWrites) error {
	if cw.Empty() {
		ly.dirty = false
		return nil
	}
	if err := ly.Sink.Configure(ctx, cw); err != nil {
		// partial writes leave the device state unknown
		ly.comp.Reset()
		ly.conns = nil
		ly.dirty = true
		return &DeviceError{Batch: -1, Err: err}
	}
	ly.comp.Commit(cw)
	ly.dirty = false
	ly.Stats.ConfigWrites = cw.Len()
	if ly.Debug {
		log.Printf("dynapse.Layer %q: %v\n", ly.Name, cw)
	}
	return nil
}

// playBatches splits the input and plays it one batch at a time,
// returning the output events in ticks relative to the evolve origin,
// with layer neuron indexes as channels.
func (ly *Layer) playBatches(ctx context.Context, evs []tick.Event, trials []int64, endTick int64) ([]tick.Event, error) {
	nidx := make(map[NeuronAddress]int, ly.Size())
	for i, na := range ly.NeurAddrs {
		nidx[na] = i
	}
	sp := NewSplitter(evs, trials, &ly.Batch, ly.Batch.LimitTicks(&ly.Tick, ly.Dt), endTick)
	var out []tick.Event
	var done int64 // ticks elapsed since the evolve origin
	for sp.Next() {
		bt := sp.Batch()
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evolve canceled before batch %d (%d completed, %d ticks elapsed): %w", bt.Index, ly.Stats.Batches, done, err)
		}
		recs, err := bt.Records(&ly.Tick, ly.VirtAddrs)
		if err != nil {
			return nil, err
		}
		ly.Time.Idle(bt.StartTick - done)
		done = bt.StartTick
		dticks, err := ly.Sink.Play(ctx, bt, recs)
		if err != nil {
			return nil, &DeviceError{Batch: bt.Index, Completed: ly.Stats.Batches, Ticks: done, Err: err}
		}
		// playback completed: the hardware has evolved regardless of recording
		ly.Time.BatchInc(bt.Ticks)
		done = bt.EndTick()
		ly.Stats.Batches++
		ly.Stats.DeviceTicks += dticks
		orecs, err := ly.Source.Recorded(ctx)
		if err != nil {
			return nil, &DeviceError{Batch: bt.Index, Completed: ly.Stats.Batches, Ticks: done, Err: err}
		}
		bout := ly.mapOutput(bt, orecs, nidx)
		ly.Stats.EventsOut += len(bout)
		out = append(out, bout...)
		if ly.Debug {
			log.Printf("dynapse.Layer %q: %v: %d out\n", ly.Name, bt, len(bout))
		}
		if ly.Observer != nil {
			ly.Observer.BatchDone(ly, bt, bout)
		}
	}
	// the rest of the period elapses whatever the batch limits
	ly.Time.Idle(endTick - done)
	return out, nil
}

// mapOutput converts recorded records of batch bt into tick events
// relative to the evolve origin on layer neuron indexes.
func (ly *Layer) mapOutput(bt *Batch, recs []Record, nidx map[NeuronAddress]int) []tick.Event {
	bout := make([]tick.Event, 0, len(recs))
	nskip := 0
	for _, rc := range recs {
		ni, ok := nidx[NeuronAddress(rc.Chan)]
		if !ok {
			nskip++
			continue
		}
		bout = append(bout, tick.Event{Tick: bt.StartTick + int64(rc.Tick), Chan: ni})
	}
	if nskip > 0 {
		log.Printf("dynapse.Layer %q: batch %d: %d output events from neurons outside the layer ignored\n", ly.Name, bt.Index, nskip)
	}
	slices.SortFunc(bout, func(a, b tick.Event) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return bout
}

// drain converts the output events into a spike train in layer time,
// with t0 the hardware tick count at the start of the evolve.
func (ly *Layer) drain(out []tick.Event, t0 int64) *spikes.Train {
	origin := ly.Tick.Time(t0)
	res := &spikes.Train{Name: ly.Name, NChans: ly.Size()}
	res.Events = make([]spikes.Event, len(out))
	for i, ev := range out {
		res.Events[i] = spikes.Event{Time: origin + ly.Tick.Time(ev.Tick), Chan: ev.Chan}
	}
	res.Sort()
	return res
}

// paramsFmt strips the JSON quoting from a compact params encoding.
var paramsFmt = strings.NewReplacer(`"`, ``, `,`, `, `, `:`, `: `)

// writeParams writes one line with the compact JSON fields of v.
func writeParams(b *strings.Builder, name string, v any) {
	js, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(b, "%s: %v\n", name, err)
		return
	}
	fmt.Fprintf(b, "%s: %s\n", name, paramsFmt.Replace(string(js)))
}

// AllParams returns a listing of all parameters in the Layer,
// one line per parameter group.
func (ly *Layer) AllParams() string {
	var b strings.Builder
	fmt.Fprintf(&b, "/////////////////////////////////////////////////\nLayer: %s\nDt: %g\n", ly.Name, ly.Dt)
	writeParams(&b, "Batch", &ly.Batch)
	writeParams(&b, "Tick", &ly.Tick)
	writeParams(&b, "CoreParams", &ly.CoreParams)
	writeParams(&b, "Placement", &ly.Placement)
	return b.String()
}

func (ly *Layer) String() string {
	return fmt.Sprintf("Layer %q: %d inputs, %d neurons, t=%g s, %v", ly.Name, ly.SizeIn(), ly.Size(), ly.T(), ly.State())
}
