// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"

	"cogentcore.org/core/base/errors"
	"github.com/emer/dynapse/tick"
)

var (
	// ErrInvalidWeights is returned for weight matrices with the wrong
	// shape or a column whose absolute sum exceeds MaxFanIn.
	ErrInvalidWeights = errors.New("dynapse: invalid weight configuration")

	// ErrPlacement is returned when the neuron placement cannot implement
	// the weights: a neuron receiving both external and recurrent input,
	// input-receiving neurons spread over more than one chip or outside
	// the input cores, or recurrent neurons on the input cores.
	ErrPlacement = errors.New("dynapse: placement violation")

	// ErrTimestepTooSmall is returned when dt is below the hardware tick.
	ErrTimestepTooSmall = tick.ErrTimestepTooSmall

	// ErrInterEventGapTooLarge is returned when two consecutive input
	// events are further apart than the ISI register can hold.
	ErrInterEventGapTooLarge = tick.ErrInterEventGapTooLarge

	// ErrOutOfRange is returned for input events before the layer time origin.
	ErrOutOfRange = tick.ErrOutOfRange

	// ErrDeviceWrite wraps failures reported by the device sink or source.
	ErrDeviceWrite = errors.New("dynapse: device write failure")

	// ErrBatchConfigConflict flags a batch configuration that cannot be
	// honored as given, e.g., MaxTrials without trial markers.
	// It is never returned from Evolve: batching falls back to event /
	// duration based splitting and the condition is logged.
	ErrBatchConfigConflict = errors.New("dynapse: batch configuration conflict")

	// ErrBusy is returned when Evolve is called while another Evolve
	// is running on the same layer.
	ErrBusy = errors.New("dynapse: layer is busy")

	// ErrNotBuilt is returned when Evolve is called before Build.
	ErrNotBuilt = errors.New("dynapse: layer not built")
)

// DeviceError reports a device failure during the batch loop,
// along with the progress made before the failure.  The effects of
// completed batches persist on the hardware and cannot be undone.
type DeviceError struct {

	// index of the batch that failed, or -1 if configuration failed
	Batch int

	// number of batches fully played before the failure
	Completed int

	// hardware ticks elapsed over the completed batches
	Ticks int64

	// error from the device
	Err error
}

func (de *DeviceError) Error() string {
	if de.Batch < 0 {
		return fmt.Sprintf("%v: configuration: %v", ErrDeviceWrite, de.Err)
	}
	return fmt.Sprintf("%v: batch %d (%d completed, %d ticks elapsed): %v", ErrDeviceWrite, de.Batch, de.Completed, de.Ticks, de.Err)
}

func (de *DeviceError) Unwrap() []error {
	return []error{ErrDeviceWrite, de.Err}
}
