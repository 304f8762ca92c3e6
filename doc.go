// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package dynapse is the top level of the repository for running recurrent
spiking layers on DynapSE-style neuromorphic hardware from Go.

This top-level of the repository has no functional code. Everything is
organized into the following sub-packages:

* dynapse: the connection compiler, batch splitter and Layer evolve
session, with the device Sink and Source interfaces.

* tick: quantization of spike times to hardware clock ticks, with the
inter-event gap limits of the device.

* spikes: spike trains in seconds, with trial markers and a Poisson
generator.

* emu: an in-memory device emulator for tests and examples.

* recorder: an SQLite log of evolve sessions and played batches.

* examples: runnable programs, starting with examples/evolve.
*/
package dynapse
