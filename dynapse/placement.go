// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
	"slices"
)

// Placement is the policy for where external input may arrive:
// neurons receiving input from virtual neurons must all be on the
// InputCores of the InputChip, and all other neurons must be elsewhere.
type Placement struct {

	// chip hosting all input-receiving neurons.
	InputChip int `def:"0" min:"0" max:"3"`

	// cores (within InputChip) reserved for input-receiving neurons.
	InputCores []int `def:"[0]"`
}

func (pl *Placement) Defaults() {
	pl.InputChip = 0
	pl.InputCores = []int{0}
}

// Validate checks chip and core ranges.
func (pl *Placement) Validate() error {
	if pl.InputChip < 0 || pl.InputChip >= NumChips {
		return fmt.Errorf("%w: input chip %d out of range", ErrPlacement, pl.InputChip)
	}
	if len(pl.InputCores) == 0 {
		return fmt.Errorf("%w: no input cores specified", ErrPlacement)
	}
	for _, c := range pl.InputCores {
		if c < 0 || c >= NumCoresPerChip {
			return fmt.Errorf("%w: input core %d out of range", ErrPlacement, c)
		}
	}
	return nil
}

// IsInputCore returns true if the neuron is on one of the input cores.
func (pl *Placement) IsInputCore(na NeuronAddress) bool {
	return na.Chip() == pl.InputChip && slices.Contains(pl.InputCores, na.Core())
}

// NeuronClasses records which layer neurons receive external input.
type NeuronClasses struct {

	// true for neurons with any nonzero input weight
	Input []bool

	// true for neurons with any nonzero recurrent weight
	Recurrent []bool
}

// IsRecurrentSource returns true if sending neuron si is a recurrent-only
// neuron, which selects slow excitation for its recurrent synapses.
func (nc *NeuronClasses) IsRecurrentSource(si int) bool {
	return !nc.Input[si]
}

// ClassifyTargets partitions the layer neurons into input-receiving and
// recurrent-only, and checks the partition against the placement:
// a neuron may not receive both external and recurrent synapses,
// input-receiving neurons must all be on the InputCores of the InputChip,
// and neurons receiving recurrent synapses may not be on input cores.
func (pl *Placement) ClassifyTargets(in, rec *Weights, naddrs []NeuronAddress) (*NeuronClasses, error) {
	if err := pl.Validate(); err != nil {
		return nil, err
	}
	n := len(naddrs)
	nc := &NeuronClasses{Input: make([]bool, n), Recurrent: make([]bool, n)}
	inChip := -1
	for k := 0; k < n; k++ {
		nc.Input[k] = in.ColNonZero(k)
		nc.Recurrent[k] = rec.ColNonZero(k)
		na := naddrs[k]
		switch {
		case nc.Input[k] && nc.Recurrent[k]:
			return nil, fmt.Errorf("%w: neuron %d (%v) receives both external and recurrent synapses", ErrPlacement, k, na)
		case nc.Input[k]:
			if inChip >= 0 && na.Chip() != inChip {
				return nil, fmt.Errorf("%w: input-receiving neurons span chips %d and %d (neuron %d, %v)", ErrPlacement, inChip, na.Chip(), k, na)
			}
			inChip = na.Chip()
			if !pl.IsInputCore(na) {
				return nil, fmt.Errorf("%w: input-receiving neuron %d (%v) is not on input cores %v of chip %d", ErrPlacement, k, na, pl.InputCores, pl.InputChip)
			}
		case nc.Recurrent[k]:
			if pl.IsInputCore(na) {
				return nil, fmt.Errorf("%w: recurrent neuron %d (%v) is on an input core", ErrPlacement, k, na)
			}
		}
	}
	return nc, nil
}
