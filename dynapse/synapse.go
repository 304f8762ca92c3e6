// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
)

// SynapseTypes are the four synapse circuits available on every neuron.
// The dynamics of each type (time constant, strength) are configured
// per core, not per synapse: all synapses of a given type on a core
// share the same parameters.
type SynapseTypes int32 //enums:enum

// The synapse types
const (
	// FastExc is the fast excitatory (AMPA-like) synapse.
	FastExc SynapseTypes = iota

	// SlowExc is the slow excitatory (NMDA-like) synapse.
	SlowExc

	// FastInh is the fast inhibitory (GABA-A-like) synapse.
	FastInh

	// SlowInh is the slow inhibitory (GABA-B-like) synapse.
	// It is configured on every core but not generated by the
	// default layer wiring.
	SlowInh
)

// Inhibitory returns true for the inhibitory synapse types.
func (st SynapseTypes) Inhibitory() bool {
	return st == FastInh || st == SlowInh
}

// Sign returns +1 for excitatory and -1 for inhibitory types.
func (st SynapseTypes) Sign() int {
	if st.Inhibitory() {
		return -1
	}
	return 1
}

// TypeParams are the per-core parameters for one synapse type.
type TypeParams struct {

	// decay time constant of the synaptic current, in seconds.
	Tau float32 `def:"0.005,0.05"`

	// amplitude of the current injected by one synaptic event,
	// as a fraction of the maximal bias current.
	Gain float32 `def:"0.5" min:"0" max:"1"`
}

// CoreParams holds the synapse type parameters for one core.
type CoreParams struct {
	Types [SynapseTypesN]TypeParams
}

func (cp *CoreParams) Defaults() {
	cp.Types[FastExc] = TypeParams{Tau: 0.005, Gain: 0.5}
	cp.Types[SlowExc] = TypeParams{Tau: 0.05, Gain: 0.5}
	cp.Types[FastInh] = TypeParams{Tau: 0.005, Gain: 0.5}
	cp.Types[SlowInh] = TypeParams{Tau: 0.05, Gain: 0.5}
}

// Validate checks that all parameters are within the range the
// bias generator can produce.
func (cp *CoreParams) Validate() error {
	for ti := range cp.Types {
		tp := &cp.Types[ti]
		if tp.Tau <= 0 {
			return fmt.Errorf("CoreParams %v: Tau must be > 0, is %g", SynapseTypes(ti), tp.Tau)
		}
		if tp.Gain < 0 || tp.Gain > 1 {
			return fmt.Errorf("CoreParams %v: Gain must be in [0,1], is %g", SynapseTypes(ti), tp.Gain)
		}
	}
	return nil
}

// ConnTypeFor returns the synapse type used for a weight of given sign
// between a source and target class.
// External input and input-receiving sources use the fast synapses;
// recurrent sources onto recurrent targets use slow excitation and
// fast inhibition.
func ConnTypeFor(fromRecurrent bool, w int) SynapseTypes {
	if w < 0 {
		return FastInh
	}
	if fromRecurrent {
		return SlowExc
	}
	return FastExc
}
