// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package spikes provides sparse spike trains in continuous time: ordered
sequences of (time, channel) events, optionally partitioned into trials
by an ordered list of trial start times.

Events are totally ordered by time, with ties broken by channel ascending.
*/
package spikes

import (
	"fmt"
	"slices"
	"strings"
)

// Event is one spike at a given time (in seconds) on a given channel.
type Event struct {
	Time float64
	Chan int
}

// Less orders by time, ties broken by channel ascending.
func (ev Event) Less(o Event) bool {
	if ev.Time != o.Time {
		return ev.Time < o.Time
	}
	return ev.Chan < o.Chan
}

func compareEvents(a, b Event) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

// Train is a sparse spike train over NChans channels.
type Train struct {

	// optional name, for reporting
	Name string

	// events, in time then channel order (see Sort)
	Events []Event

	// number of channels. Events must have 0 <= Chan < NChans.
	NChans int

	// optional trial start times in ascending order.
	// Trial i spans [Trials[i], Trials[i+1]).
	Trials []float64
}

// NewTrain returns a new train from parallel time and channel slices,
// sorted into canonical order.
func NewTrain(times []float64, chans []int, nchans int) *Train {
	tr := &Train{NChans: nchans}
	n := min(len(times), len(chans))
	tr.Events = make([]Event, n)
	for i := 0; i < n; i++ {
		tr.Events[i] = Event{Time: times[i], Chan: chans[i]}
	}
	tr.Sort()
	return tr
}

// Len returns the number of events.
func (tr *Train) Len() int {
	if tr == nil {
		return 0
	}
	return len(tr.Events)
}

// Sort sorts the events into canonical order.
// The sort is stable so exact duplicates keep their relative order.
func (tr *Train) Sort() {
	slices.SortStableFunc(tr.Events, compareEvents)
}

// IsSorted returns true if events are in canonical order.
func (tr *Train) IsSorted() bool {
	return slices.IsSortedFunc(tr.Events, compareEvents)
}

// Validate checks channel range, non-negative times and trial ordering.
func (tr *Train) Validate() error {
	for i := range tr.Events {
		ev := &tr.Events[i]
		if ev.Time < 0 {
			return fmt.Errorf("spikes.Train %q: event %d has negative time %g", tr.Name, i, ev.Time)
		}
		if ev.Chan < 0 || (tr.NChans > 0 && ev.Chan >= tr.NChans) {
			return fmt.Errorf("spikes.Train %q: event %d channel %d out of range [0,%d)", tr.Name, i, ev.Chan, tr.NChans)
		}
	}
	if !slices.IsSorted(tr.Trials) {
		return fmt.Errorf("spikes.Train %q: trial start times are not ascending", tr.Name)
	}
	return nil
}

// HasTrials returns true if the train carries trial markers.
func (tr *Train) HasTrials() bool {
	return tr != nil && len(tr.Trials) > 0
}

// Start returns the time of the first event, 0 if empty.
func (tr *Train) Start() float64 {
	if tr.Len() == 0 {
		return 0
	}
	return tr.Events[0].Time
}

// End returns the time of the last event, 0 if empty.
func (tr *Train) End() float64 {
	if tr.Len() == 0 {
		return 0
	}
	return tr.Events[len(tr.Events)-1].Time
}

// Clone returns a deep copy.
func (tr *Train) Clone() *Train {
	cp := &Train{Name: tr.Name, NChans: tr.NChans}
	cp.Events = slices.Clone(tr.Events)
	cp.Trials = slices.Clone(tr.Trials)
	return cp
}

// Append adds the events and trial markers of o, which must all
// come at or after the end of this train.
func (tr *Train) Append(o *Train) error {
	if o.Len() > 0 && tr.Len() > 0 && o.Events[0].Less(tr.Events[len(tr.Events)-1]) {
		return fmt.Errorf("spikes.Train %q: appended train %q starts at %g before end %g", tr.Name, o.Name, o.Start(), tr.End())
	}
	tr.Events = append(tr.Events, o.Events...)
	tr.Trials = append(tr.Trials, o.Trials...)
	tr.NChans = max(tr.NChans, o.NChans)
	return nil
}

// Merge interleaves the events and trial markers of o into this train,
// keeping both in order.  Unlike Append, o can overlap this train.
func (tr *Train) Merge(o *Train) {
	tr.Events = append(tr.Events, o.Events...)
	slices.SortStableFunc(tr.Events, compareEvents)
	tr.Trials = append(tr.Trials, o.Trials...)
	slices.Sort(tr.Trials)
	tr.Trials = slices.Compact(tr.Trials)
	tr.NChans = max(tr.NChans, o.NChans)
}

// Clip returns the events in [t0, t1), with trial markers in the same range.
func (tr *Train) Clip(t0, t1 float64) *Train {
	cp := &Train{Name: tr.Name, NChans: tr.NChans}
	for _, ev := range tr.Events {
		if ev.Time >= t0 && ev.Time < t1 {
			cp.Events = append(cp.Events, ev)
		}
	}
	for _, t := range tr.Trials {
		if t >= t0 && t < t1 {
			cp.Trials = append(cp.Trials, t)
		}
	}
	return cp
}

// Delay shifts all event and trial times by dt.
func (tr *Train) Delay(dt float64) {
	for i := range tr.Events {
		tr.Events[i].Time += dt
	}
	for i := range tr.Trials {
		tr.Trials[i] += dt
	}
}

// Counts returns the number of events on each channel.
func (tr *Train) Counts() []int {
	nc := tr.NChans
	for _, ev := range tr.Events {
		nc = max(nc, ev.Chan+1)
	}
	cnt := make([]int, nc)
	for _, ev := range tr.Events {
		cnt[ev.Chan]++
	}
	return cnt
}

func (tr *Train) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Train %q: %d events, %d chans", tr.Name, tr.Len(), tr.NChans)
	if tr.Len() > 0 {
		fmt.Fprintf(&b, ", t=[%g, %g]", tr.Start(), tr.End())
	}
	if len(tr.Trials) > 0 {
		fmt.Fprintf(&b, ", %d trials", len(tr.Trials))
	}
	return b.String()
}
