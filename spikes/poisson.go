// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spikes

import (
	"math"

	"cogentcore.org/lab/base/randx"
)

// Poisson generates a Poisson spike train with given per-channel rates
// (in Hz) over [t0, t0+dur), discretized at timestep dt: each channel
// fires in a step with probability rate * dt.  Event times are the
// start of each step.  rnd is optional (nil uses the global source).
func Poisson(rates []float64, t0, dur, dt float64, rnd randx.Rand) *Train {
	tr := &Train{Name: "Poisson", NChans: len(rates)}
	nsteps := int(math.Round(dur / dt))
	for st := 0; st < nsteps; st++ {
		t := t0 + float64(st)*dt
		for ch, r := range rates {
			if r <= 0 {
				continue
			}
			var fire bool
			if rnd != nil {
				fire = randx.BoolP(r*dt, rnd)
			} else {
				fire = randx.BoolP(r * dt)
			}
			if fire {
				tr.Events = append(tr.Events, Event{Time: t, Chan: ch})
			}
		}
	}
	return tr
}

// Regular generates a train with one spike every period seconds on
// channel ch over [t0, t0+dur), starting at t0.  A regular channel keeps
// the gap between consecutive input events under the device limit when
// the other channels are sparse.
func Regular(ch, nchans int, t0, dur, period float64) *Train {
	tr := &Train{Name: "Regular", NChans: max(nchans, ch+1)}
	if period <= 0 {
		return tr
	}
	n := int(math.Ceil(dur/period - 1e-6))
	tr.Events = make([]Event, n)
	for i := range n {
		tr.Events[i] = Event{Time: t0 + float64(i)*period, Chan: ch}
	}
	return tr
}

// SetTrials sets trial markers every trialDur seconds from t0 over dur.
func (tr *Train) SetTrials(t0, dur, trialDur float64) {
	tr.Trials = tr.Trials[:0]
	n := int(math.Round(dur / trialDur))
	for i := 0; i < n; i++ {
		tr.Trials = append(tr.Trials, t0+float64(i)*trialDur)
	}
}
