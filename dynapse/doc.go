// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package dynapse runs recurrent spiking layers on an event-driven
neuromorphic device with 4 chips of 4 cores of 256 neurons, fed by 1024
virtual input neurons.

There are two main parts:

  - The Compiler turns the integer input and recurrent weight matrices of
    a Layer into a ConnTable of discrete physical synapses, one per unit of
    weight magnitude, with at most MaxFanIn (64) synapses onto any neuron.
    The synapse type of each connection is fixed by where it comes from:
    external input and input-receiving neurons use fast excitation,
    recurrent neurons use slow excitation, and all inhibition is fast.
    Only the CAM slots, SRAM routes and core parameters that differ from
    what was last written are sent to the device.

  - The Splitter cuts the input spike train, quantized to device ticks by
    package tick, into Batches small enough to be played back by the
    device, respecting the event, duration and trial limits in BatchConfig
    without reordering any events.

Layer.Evolve ties these together as a session going through the
Compiling, Batching and Draining states: everything is validated before
the device is touched, then the batches are played one at a time on the
Sink, with the output collected from the Source.  The hardware keeps
evolving between batches and between calls, so each Evolve starts at the
accumulated hardware time, Layer.T().

The device itself is only seen through the Sink and Source interfaces:
see package emu for an in-memory emulator.
*/
package dynapse
