// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import "fmt"

// Fixed hardware dimensions of the board.  These are properties of the
// silicon and are not configurable.
const (
	// NumChips is the number of chips on the board.
	NumChips = 4

	// NumCoresPerChip is the number of cores on each chip.
	NumCoresPerChip = 4

	// NumNeuronsPerCore is the number of neurons on each core.
	NumNeuronsPerCore = 256

	// NumCores is the total number of cores across all chips.
	NumCores = NumChips * NumCoresPerChip

	// NumNeuronsPerChip is the number of neurons on each chip.
	NumNeuronsPerChip = NumCoresPerChip * NumNeuronsPerCore

	// NumNeurons is the total number of physical neuron addresses.
	NumNeurons = NumChips * NumNeuronsPerChip

	// NumVirtualNeurons is the number of virtual (input channel) addresses.
	NumVirtualNeurons = 1024

	// MaxFanIn is the number of CAM synapse slots on each neuron.
	MaxFanIn = 64

	// MaxEventsBatch is the largest number of events the FPGA can hold
	// for a single playback.
	MaxEventsBatch = 65535

	// NumSramEntries is the number of SRAM routing entries per neuron,
	// each addressing one destination chip with a core mask.
	NumSramEntries = 4
)

// NeuronAddress is the logical id of a physical neuron, encoding
// chip, core and in-core position via fixed multipliers.
type NeuronAddress int32

// Valid returns true if the address is within the physical range.
func (na NeuronAddress) Valid() bool {
	return na >= 0 && na < NumNeurons
}

// Chip returns the chip id of the neuron.
func (na NeuronAddress) Chip() int { return int(na) / NumNeuronsPerChip }

// Core returns the core id of the neuron within its chip.
func (na NeuronAddress) Core() int { return (int(na) / NumNeuronsPerCore) % NumCoresPerChip }

// InCore returns the position of the neuron within its core.
func (na NeuronAddress) InCore() int { return int(na) % NumNeuronsPerCore }

// CoreIndex returns the global core index (chip * NumCoresPerChip + core).
func (na NeuronAddress) CoreIndex() int { return int(na) / NumNeuronsPerCore }

func (na NeuronAddress) String() string {
	return fmt.Sprintf("n%d(c%d.%d.%d)", int32(na), na.Chip(), na.Core(), na.InCore())
}

// NeuronAddressOf returns the logical address for given chip, core and in-core id.
func NeuronAddressOf(chip, core, id int) NeuronAddress {
	return NeuronAddress(chip*NumNeuronsPerChip + core*NumNeuronsPerCore + id)
}

// VirtualAddress is the id of a virtual neuron, which represents one
// external input channel.  Virtual addresses are a separate address space
// from NeuronAddress, with the same chip / core structure.  By convention
// virtual neurons live on chip 0, which is not enforced here.
type VirtualAddress int32

// Valid returns true if the address is within the virtual range.
func (va VirtualAddress) Valid() bool {
	return va >= 0 && va < NumVirtualNeurons
}

// Chip returns the chip id of the virtual neuron.
func (va VirtualAddress) Chip() int { return int(va) / NumNeuronsPerChip }

// Core returns the core id of the virtual neuron within its chip.
func (va VirtualAddress) Core() int { return (int(va) / NumNeuronsPerCore) % NumCoresPerChip }

// InCore returns the position of the virtual neuron within its core.
func (va VirtualAddress) InCore() int { return int(va) % NumNeuronsPerCore }

func (va VirtualAddress) String() string {
	return fmt.Sprintf("v%d", int32(va))
}

// ConnSource is the sending side of a connection, which is either a
// virtual neuron (external input) or a physical neuron.
type ConnSource struct {
	Addr int32

	// true if Addr is a VirtualAddress, else a NeuronAddress
	Virtual bool
}

// VirtualSource returns a ConnSource for given virtual address.
func VirtualSource(va VirtualAddress) ConnSource { return ConnSource{Addr: int32(va), Virtual: true} }

// NeuronSource returns a ConnSource for given physical address.
func NeuronSource(na NeuronAddress) ConnSource { return ConnSource{Addr: int32(na)} }

// Less orders virtual sources before physical ones, then by address.
func (sr ConnSource) Less(o ConnSource) bool {
	if sr.Virtual != o.Virtual {
		return sr.Virtual
	}
	return sr.Addr < o.Addr
}

func (sr ConnSource) String() string {
	if sr.Virtual {
		return VirtualAddress(sr.Addr).String()
	}
	return NeuronAddress(sr.Addr).String()
}
