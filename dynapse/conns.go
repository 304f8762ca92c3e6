// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
	"io"
	"strings"
	"unsafe"

	"cogentcore.org/core/base/indent"
	"cogentcore.org/core/math32/minmax"
	"github.com/c2h5oh/datasize"
)

// Connection is one physical synapse: one CAM slot on the target neuron
// listening to the source address with the given synapse type.
type Connection struct {
	Src  ConnSource
	Tgt  NeuronAddress
	Type SynapseTypes
}

func (cn Connection) String() string {
	return fmt.Sprintf("%v -> %v [%v]", cn.Src, cn.Tgt, cn.Type)
}

// connKey identifies a (source, type) pair on a given target.
type connKey struct {
	Src  ConnSource
	Type SynapseTypes
}

// ConnTable is the multiset of physical synapses implementing a layer's
// weights.  The multiplicity of a (source, target, type) entry encodes
// the weight magnitude.  Connections are ordered by receiving neuron (in
// layer order), then by source (virtual inputs first, each side in
// weight row order), and are
// indexed receiver-side: RConIndexSt[ri] is the start of the RConN[ri]
// connections onto layer neuron ri.
type ConnTable struct {

	// physical address of each layer neuron
	NeurAddrs []NeuronAddress

	// all connections, in receiver order
	Conns []Connection

	// number of connections onto each layer neuron
	RConN []int32 `display:"-"`

	// starting index into Conns for each layer neuron
	RConIndexSt []int32 `display:"-"`

	// average and maximum fan-in over the layer neurons
	FanInAvgMax minmax.AvgMax32 `edit:"-" display:"inline"`
}

// NewConnTable returns an empty table for neurons at given addresses.
func NewConnTable(naddrs []NeuronAddress) *ConnTable {
	n := len(naddrs)
	ct := &ConnTable{NeurAddrs: naddrs}
	ct.RConN = make([]int32, n)
	ct.RConIndexSt = make([]int32, n)
	return ct
}

// addRecv appends n synapses from src of type typ onto layer neuron ri.
// Neurons must be added in layer order.
func (ct *ConnTable) addRecv(ri int, src ConnSource, typ SynapseTypes, n int) {
	tgt := ct.NeurAddrs[ri]
	for i := 0; i < n; i++ {
		ct.Conns = append(ct.Conns, Connection{Src: src, Tgt: tgt, Type: typ})
	}
	ct.RConN[ri] += int32(n)
}

// finalize sets start indexes for neurons without connections and
// computes the fan-in statistics.
func (ct *ConnTable) finalize() {
	idx := int32(0)
	ct.FanInAvgMax.Init()
	for ri := range ct.RConN {
		ct.RConIndexSt[ri] = idx
		idx += ct.RConN[ri]
		ct.FanInAvgMax.UpdateValue(float32(ct.RConN[ri]), int32(ri))
	}
	ct.FanInAvgMax.CalcAvg()
	if int(idx) != len(ct.Conns) {
		panic(fmt.Sprintf("ConnTable programmer error: total recv cons %v != number of cons %v", idx, len(ct.Conns)))
	}
}

// NumNeurons returns the number of layer neurons.
func (ct *ConnTable) NumNeurons() int { return len(ct.NeurAddrs) }

// Len returns the total number of synapses.
func (ct *ConnTable) Len() int { return len(ct.Conns) }

// RecvConns returns the connections onto layer neuron ri.
func (ct *ConnTable) RecvConns(ri int) []Connection {
	st := ct.RConIndexSt[ri]
	return ct.Conns[st : st+ct.RConN[ri]]
}

// FanIn returns the number of synapses onto layer neuron ri.
func (ct *ConnTable) FanIn(ri int) int { return int(ct.RConN[ri]) }

// Count returns the multiplicity of (src, type) onto layer neuron ri.
func (ct *ConnTable) Count(src ConnSource, ri int, typ SynapseTypes) int {
	n := 0
	for _, cn := range ct.RecvConns(ri) {
		if cn.Src == src && cn.Type == typ {
			n++
		}
	}
	return n
}

// recvCounts returns the multiplicity of each (source, type) onto ri.
func (ct *ConnTable) recvCounts(ri int) map[connKey]int {
	cnt := make(map[connKey]int)
	for _, cn := range ct.RecvConns(ri) {
		cnt[connKey{cn.Src, cn.Type}]++
	}
	return cnt
}

// TypeCounts returns the number of synapses of each type.
func (ct *ConnTable) TypeCounts() [SynapseTypesN]int {
	var tc [SynapseTypesN]int
	for _, cn := range ct.Conns {
		tc[cn.Type]++
	}
	return tc
}

// Equal returns true if both tables hold the same connections
// onto the same addresses.
func (ct *ConnTable) Equal(o *ConnTable) bool {
	if ct == nil || o == nil {
		return ct == o
	}
	if len(ct.Conns) != len(o.Conns) || len(ct.NeurAddrs) != len(o.NeurAddrs) {
		return false
	}
	for i, na := range ct.NeurAddrs {
		if o.NeurAddrs[i] != na {
			return false
		}
	}
	for i, cn := range ct.Conns {
		if o.Conns[i] != cn {
			return false
		}
	}
	return true
}

// WriteJSON writes the table receiver-side in a JSON text format,
// with virtual sources written as v<addr> and neurons as n<addr>(chip.core.id).
func (ct *ConnTable) WriteJSON(w io.Writer, depth int) {
	nr := ct.NumNeurons()
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("{\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte(fmt.Sprintf("\"NSyns\": %d,\n", ct.Len())))
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"Rs\": [\n"))
	depth++
	for ri := 0; ri < nr; ri++ {
		cons := ct.RecvConns(ri)
		nc := len(cons)
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("{\n"))
		depth++
		w.Write(indent.TabBytes(depth))
		w.Write([]byte(fmt.Sprintf("\"Ri\": %d,\n", ri)))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte(fmt.Sprintf("\"Addr\": %d,\n", ct.NeurAddrs[ri])))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte(fmt.Sprintf("\"N\": %d,\n", nc)))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("\"Src\": [ "))
		for ci, cn := range cons {
			w.Write([]byte(fmt.Sprintf("%q", cn.Src.String())))
			if ci < nc-1 {
				w.Write([]byte(", "))
			} else {
				w.Write([]byte(" "))
			}
		}
		w.Write([]byte("],\n"))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("\"Type\": [ "))
		for ci, cn := range cons {
			w.Write([]byte(fmt.Sprintf("%q", cn.Type.String())))
			if ci < nc-1 {
				w.Write([]byte(", "))
			} else {
				w.Write([]byte(" "))
			}
		}
		w.Write([]byte("]\n"))
		depth--
		w.Write(indent.TabBytes(depth))
		if ri == nr-1 {
			w.Write([]byte("}\n"))
		} else {
			w.Write([]byte("},\n"))
		}
	}
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("]\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("}\n"))
}

// SizeReport returns a string reporting the synapse counts per type,
// fan-in statistics and memory usage of the table.
func (ct *ConnTable) SizeReport() string {
	var b strings.Builder
	tc := ct.TypeCounts()
	mem := len(ct.Conns)*int(unsafe.Sizeof(Connection{})) + len(ct.RConN)*8
	fmt.Fprintf(&b, "ConnTable: Neurons: %d\t Syns: %d\t Mem: %v\n", ct.NumNeurons(), ct.Len(), (datasize.ByteSize)(mem).HumanReadable())
	for ti, n := range tc {
		fmt.Fprintf(&b, "\t%8s: %d\n", SynapseTypes(ti), n)
	}
	fmt.Fprintf(&b, "\tFanIn: Avg: %g\t Max: %g (neuron %d)\n", ct.FanInAvgMax.Avg, ct.FanInAvgMax.Max, ct.FanInAvgMax.MaxIndex)
	return b.String()
}
