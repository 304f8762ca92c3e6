// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
	"slices"
)

// camSlot is the state of one CAM synapse slot on a neuron.
type camSlot struct {
	Used bool
	Src  ConnSource
	Type SynapseTypes
}

// sramEntry is the state of one SRAM routing entry of a neuron.
type sramEntry struct {
	Used     bool
	Chip     int
	CoreMask uint8
}

// Compiler translates weight matrices into a ConnTable and computes the
// device writes needed to realize it.  It keeps the state last written
// to the device, so that compiling an unchanged table produces no writes.
// That state belongs to the one Layer owning the device and is only
// cleared by Reset.
type Compiler struct {

	// total number of writes committed since the last Reset
	NWrites int

	cams   map[NeuronAddress]*[MaxFanIn]camSlot
	srams  map[NeuronAddress]*[NumSramEntries]sramEntry
	cores  map[int]*[SynapseTypesN]TypeParams
	coreOn map[int]*[SynapseTypesN]bool
}

// Reset forgets all written device state, so that the next Diff
// writes the full configuration.
func (cm *Compiler) Reset() {
	cm.NWrites = 0
	cm.cams = make(map[NeuronAddress]*[MaxFanIn]camSlot)
	cm.srams = make(map[NeuronAddress]*[NumSramEntries]sramEntry)
	cm.cores = make(map[int]*[SynapseTypesN]TypeParams)
	cm.coreOn = make(map[int]*[SynapseTypesN]bool)
}

func (cm *Compiler) init() {
	if cm.cams == nil {
		cm.Reset()
	}
}

// checkAddrs checks that all addresses are in range and unique.
func checkAddrs(vaddrs []VirtualAddress, naddrs []NeuronAddress) error {
	vseen := make(map[VirtualAddress]bool, len(vaddrs))
	for i, va := range vaddrs {
		if !va.Valid() {
			return fmt.Errorf("%w: input %d virtual address %d out of range", ErrPlacement, i, va)
		}
		if vseen[va] {
			return fmt.Errorf("%w: input %d virtual address %d assigned twice", ErrPlacement, i, va)
		}
		vseen[va] = true
	}
	nseen := make(map[NeuronAddress]bool, len(naddrs))
	for i, na := range naddrs {
		if !na.Valid() {
			return fmt.Errorf("%w: neuron %d address %d out of range", ErrPlacement, i, na)
		}
		if nseen[na] {
			return fmt.Errorf("%w: neuron %d address %d assigned twice", ErrPlacement, i, na)
		}
		nseen[na] = true
	}
	return nil
}

// Compile validates the weights and placement and returns the
// connection table.  in is (len(vaddrs) x len(naddrs)) and rec is
// (len(naddrs) x len(naddrs)).  Each nonzero weight w becomes |w|
// synapses: fast excitatory / inhibitory from virtual and
// input-receiving sources, slow excitatory / fast inhibitory between
// recurrent neurons.  No device state is changed.
func (cm *Compiler) Compile(in, rec *Weights, vaddrs []VirtualAddress, naddrs []NeuronAddress, pl *Placement) (*ConnTable, error) {
	nin := len(vaddrs)
	n := len(naddrs)
	if err := checkAddrs(vaddrs, naddrs); err != nil {
		return nil, err
	}
	if err := ValidateWeights(in, rec, nin, n); err != nil {
		return nil, err
	}
	cls, err := pl.ClassifyTargets(in, rec, naddrs)
	if err != nil {
		return nil, err
	}
	ct := NewConnTable(naddrs)
	for ri := 0; ri < n; ri++ {
		for si := 0; si < nin; si++ {
			w := in.Value(si, ri)
			if w == 0 {
				continue
			}
			ct.addRecv(ri, VirtualSource(vaddrs[si]), ConnTypeFor(false, w), abs(w))
		}
		for si := 0; si < n; si++ {
			w := rec.Value(si, ri)
			if w == 0 {
				continue
			}
			ct.addRecv(ri, NeuronSource(naddrs[si]), ConnTypeFor(cls.IsRecurrentSource(si), w), abs(w))
		}
	}
	ct.finalize()
	return ct, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// layerCores returns the sorted global core indexes hosting the table's neurons.
func (ct *ConnTable) layerCores() []int {
	var cores []int
	for _, na := range ct.NeurAddrs {
		ci := na.CoreIndex()
		if !slices.Contains(cores, ci) {
			cores = append(cores, ci)
		}
	}
	slices.Sort(cores)
	return cores
}

// routes returns the SRAM entries needed for each physical source:
// one entry per destination chip, with the mask of destination cores.
func (ct *ConnTable) routes() (map[NeuronAddress][]sramEntry, error) {
	masks := make(map[NeuronAddress]map[int]uint8)
	for _, cn := range ct.Conns {
		if cn.Src.Virtual {
			continue
		}
		sa := NeuronAddress(cn.Src.Addr)
		cm, ok := masks[sa]
		if !ok {
			cm = make(map[int]uint8)
			masks[sa] = cm
		}
		cm[cn.Tgt.Chip()] |= 1 << cn.Tgt.Core()
	}
	rts := make(map[NeuronAddress][]sramEntry, len(masks))
	for sa, cm := range masks {
		if len(cm) > NumSramEntries {
			return nil, fmt.Errorf("%w: neuron %v projects to %d chips, max %d", ErrPlacement, sa, len(cm), NumSramEntries)
		}
		ents := make([]sramEntry, 0, len(cm))
		for chip, mask := range cm {
			ents = append(ents, sramEntry{Used: true, Chip: chip, CoreMask: mask})
		}
		slices.SortFunc(ents, func(a, b sramEntry) int { return a.Chip - b.Chip })
		rts[sa] = ents
	}
	return rts, nil
}

// Diff returns the writes needed to bring the device from the state
// last committed to the given table, with core parameters cp applied to
// every core hosting layer neurons.  CAM slots that already hold a
// wanted synapse are kept; surplus slots are reused or cleared.
// Diff does not change the compiler state: call Commit after the device
// has accepted the writes.
func (cm *Compiler) Diff(ct *ConnTable, cp *CoreParams) (*ConfigWrites, error) {
	cm.init()
	cw := &ConfigWrites{}

	for _, ci := range ct.layerCores() {
		wp := cm.cores[ci]
		on := cm.coreOn[ci]
		for ti := SynapseTypes(0); ti < SynapseTypesN; ti++ {
			if on != nil && on[ti] && wp[ti] == cp.Types[ti] {
				continue
			}
			cw.Cores = append(cw.Cores, CoreWrite{Core: ci, Type: ti, Params: cp.Types[ti]})
		}
	}

	rts, err := ct.routes()
	if err != nil {
		return nil, err
	}
	srcs := make([]NeuronAddress, 0, len(rts)+len(cm.srams))
	for sa := range rts {
		srcs = append(srcs, sa)
	}
	for sa := range cm.srams {
		if _, has := rts[sa]; !has {
			srcs = append(srcs, sa)
		}
	}
	slices.Sort(srcs)
	for _, sa := range srcs {
		want := rts[sa]
		var have [NumSramEntries]sramEntry
		if cur := cm.srams[sa]; cur != nil {
			have = *cur
		}
		for ei := 0; ei < NumSramEntries; ei++ {
			var wn sramEntry
			if ei < len(want) {
				wn = want[ei]
			}
			if wn == have[ei] {
				continue
			}
			if !wn.Used {
				cw.Routes = append(cw.Routes, RouteWrite{Src: sa, Entry: ei, Clear: true})
				continue
			}
			cw.Routes = append(cw.Routes, RouteWrite{Src: sa, Entry: ei, Chip: wn.Chip, CoreMask: wn.CoreMask})
		}
	}

	ris := make(map[NeuronAddress]int, ct.NumNeurons())
	tgts := make([]NeuronAddress, 0, ct.NumNeurons()+len(cm.cams))
	for ri, na := range ct.NeurAddrs {
		ris[na] = ri
		tgts = append(tgts, na)
	}
	for na := range cm.cams {
		if _, has := ris[na]; !has {
			tgts = append(tgts, na)
		}
	}
	slices.Sort(tgts)
	for _, na := range tgts {
		cw.Syns = append(cw.Syns, cm.diffCam(ct, na, ris)...)
	}
	return cw, nil
}

// diffCam returns the CAM writes for target na.
func (cm *Compiler) diffCam(ct *ConnTable, na NeuronAddress, ris map[NeuronAddress]int) []SynWrite {
	var want map[connKey]int
	var order []connKey
	if ri, has := ris[na]; has {
		want = ct.recvCounts(ri)
		for _, cn := range ct.RecvConns(ri) {
			ky := connKey{cn.Src, cn.Type}
			if len(order) == 0 || order[len(order)-1] != ky {
				order = append(order, ky)
			}
		}
	}
	var have [MaxFanIn]camSlot
	if cur := cm.cams[na]; cur != nil {
		have = *cur
	}
	var free, freed []int
	for si := range have {
		sl := &have[si]
		if !sl.Used {
			free = append(free, si)
			continue
		}
		ky := connKey{sl.Src, sl.Type}
		if want[ky] > 0 {
			want[ky]--
			continue
		}
		freed = append(freed, si)
	}
	avail := append(free, freed...)
	slices.Sort(avail)
	var sws []SynWrite
	ai := 0
	for _, ky := range order {
		for ; want[ky] > 0; want[ky]-- {
			sws = append(sws, SynWrite{Tgt: na, Slot: avail[ai], Src: ky.Src, Type: ky.Type})
			ai++
		}
	}
	for _, si := range avail[ai:] {
		if have[si].Used {
			sws = append(sws, SynWrite{Tgt: na, Slot: si, Clear: true})
		}
	}
	slices.SortFunc(sws, func(a, b SynWrite) int { return a.Slot - b.Slot })
	return sws
}

// Commit records the writes as applied to the device.
func (cm *Compiler) Commit(cw *ConfigWrites) {
	cm.init()
	for _, wr := range cw.Cores {
		if cm.cores[wr.Core] == nil {
			cm.cores[wr.Core] = &[SynapseTypesN]TypeParams{}
			cm.coreOn[wr.Core] = &[SynapseTypesN]bool{}
		}
		cm.cores[wr.Core][wr.Type] = wr.Params
		cm.coreOn[wr.Core][wr.Type] = true
	}
	for _, wr := range cw.Routes {
		st := cm.srams[wr.Src]
		if st == nil {
			st = &[NumSramEntries]sramEntry{}
			cm.srams[wr.Src] = st
		}
		if wr.Clear {
			st[wr.Entry] = sramEntry{}
		} else {
			st[wr.Entry] = sramEntry{Used: true, Chip: wr.Chip, CoreMask: wr.CoreMask}
		}
		if *st == ([NumSramEntries]sramEntry{}) {
			delete(cm.srams, wr.Src)
		}
	}
	for _, wr := range cw.Syns {
		st := cm.cams[wr.Tgt]
		if st == nil {
			st = &[MaxFanIn]camSlot{}
			cm.cams[wr.Tgt] = st
		}
		if wr.Clear {
			st[wr.Slot] = camSlot{}
		} else {
			st[wr.Slot] = camSlot{Used: true, Src: wr.Src, Type: wr.Type}
		}
		if *st == ([MaxFanIn]camSlot{}) {
			delete(cm.cams, wr.Tgt)
		}
	}
	cm.NWrites += cw.Len()
}

// WrittenSyns returns the number of CAM slots currently written.
func (cm *Compiler) WrittenSyns() int {
	n := 0
	for _, st := range cm.cams {
		for si := range st {
			if st[si].Used {
				n++
			}
		}
	}
	return n
}
