// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"bytes"
	"strings"
	"testing"

	"cogentcore.org/core/base/errors"
)

// testWeights returns a 2 input, 9 neuron network: inputs project to
// neurons 0-2, which drive the recurrent neurons 3-8.
func testWeights(t *testing.T) (in, rec *Weights) {
	in, err := WeightsFromRows([][]int{
		{2, 0, 1, 0, 0, 0, 0, 0, 0},
		{0, 1, -1, 0, 0, 0, 0, 0, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec = NewWeights(9, 9)
	rec.Set(0, 3, 1)
	rec.Set(1, 4, 2)
	rec.Set(2, 5, 1)
	rec.Set(3, 4, 1)
	rec.Set(4, 5, -1)
	rec.Set(5, 6, 2)
	rec.Set(6, 7, 1)
	rec.Set(7, 8, 1)
	rec.Set(8, 3, -2)
	return in, rec
}

// testAddrs returns addresses with neurons 0-2 on the input core 0
// of chip 0 and neurons 3-8 on core 1.
func testAddrs() ([]VirtualAddress, []NeuronAddress) {
	vaddrs := []VirtualAddress{0, 1}
	naddrs := make([]NeuronAddress, 9)
	for i := 0; i < 3; i++ {
		naddrs[i] = NeuronAddressOf(0, 0, i)
	}
	for i := 3; i < 9; i++ {
		naddrs[i] = NeuronAddressOf(0, 1, i-3)
	}
	return vaddrs, naddrs
}

func testCompile(t *testing.T, cm *Compiler, in, rec *Weights) *ConnTable {
	vaddrs, naddrs := testAddrs()
	pl := &Placement{}
	pl.Defaults()
	ct, err := cm.Compile(in, rec, vaddrs, naddrs, pl)
	if err != nil {
		t.Fatal(err)
	}
	return ct
}

func TestCompileFanIn(t *testing.T) {
	in, rec := testWeights(t)
	cm := &Compiler{}
	ct := testCompile(t, cm, in, rec)
	if ct.Len() != 17 {
		t.Errorf("number of synapses got: %v, trg: %v", ct.Len(), 17)
	}
	for k := 0; k < 9; k++ {
		trg := in.ColAbsSum(k) + rec.ColAbsSum(k)
		if ct.FanIn(k) != trg {
			t.Errorf("fan-in of neuron %d got: %v, trg: %v", k, ct.FanIn(k), trg)
		}
		if ct.FanIn(k) > MaxFanIn {
			t.Errorf("fan-in of neuron %d exceeds %d: %v", k, MaxFanIn, ct.FanIn(k))
		}
		for _, cn := range ct.RecvConns(k) {
			if cn.Tgt != ct.NeurAddrs[k] {
				t.Errorf("connection %v in receiving list of neuron %d", cn, k)
			}
		}
	}
	tc := ct.TypeCounts()
	trg := [SynapseTypesN]int{8, 5, 4, 0}
	if tc != trg {
		t.Errorf("type counts got: %v, trg: %v", tc, trg)
	}
	if ct.FanInAvgMax.Max != 3 {
		t.Errorf("max fan-in got: %v, trg: %v", ct.FanInAvgMax.Max, 3)
	}
}

func TestCompileTypes(t *testing.T) {
	in, rec := testWeights(t)
	cm := &Compiler{}
	ct := testCompile(t, cm, in, rec)
	_, naddrs := testAddrs()
	v0 := VirtualSource(0)
	v1 := VirtualSource(1)
	n := func(i int) ConnSource { return NeuronSource(naddrs[i]) }
	tests := []struct {
		src  ConnSource
		ri   int
		typ  SynapseTypes
		cnt  int
		desc string
	}{
		{v0, 0, FastExc, 2, "external excitatory"},
		{v1, 2, FastInh, 1, "external inhibitory"},
		{n(0), 3, FastExc, 1, "input-receiving to recurrent"},
		{n(1), 4, FastExc, 2, "input-receiving to recurrent"},
		{n(3), 4, SlowExc, 1, "recurrent excitatory"},
		{n(4), 5, FastInh, 1, "recurrent inhibitory"},
		{n(8), 3, FastInh, 2, "recurrent inhibitory"},
		{n(5), 6, SlowExc, 2, "recurrent excitatory"},
		{n(5), 6, FastExc, 0, "no fast path between recurrent"},
	}
	for _, tt := range tests {
		cnt := ct.Count(tt.src, tt.ri, tt.typ)
		if cnt != tt.cnt {
			t.Errorf("%s: %v -> %d %v got: %v, trg: %v", tt.desc, tt.src, tt.ri, tt.typ, cnt, tt.cnt)
		}
	}
}

func TestCompilePlacement(t *testing.T) {
	in, rec := testWeights(t)
	pl := &Placement{}
	pl.Defaults()
	cm := &Compiler{}

	vaddrs, naddrs := testAddrs()
	naddrs[2] = NeuronAddressOf(1, 0, 2)
	_, err := cm.Compile(in, rec, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrPlacement) {
		t.Errorf("input neurons spanning two chips: got: %v, trg: %v", err, ErrPlacement)
	}

	vaddrs, naddrs = testAddrs()
	naddrs[1] = NeuronAddressOf(0, 2, 1)
	_, err = cm.Compile(in, rec, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrPlacement) {
		t.Errorf("input neuron off the input cores: got: %v, trg: %v", err, ErrPlacement)
	}

	vaddrs, naddrs = testAddrs()
	naddrs[5] = NeuronAddressOf(0, 0, 5)
	_, err = cm.Compile(in, rec, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrPlacement) {
		t.Errorf("recurrent neuron on an input core: got: %v, trg: %v", err, ErrPlacement)
	}

	vaddrs, naddrs = testAddrs()
	mixed := rec.Clone()
	mixed.Set(4, 0, 1)
	_, err = cm.Compile(in, mixed, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrPlacement) {
		t.Errorf("neuron with external and recurrent input: got: %v, trg: %v", err, ErrPlacement)
	}

	vaddrs, naddrs = testAddrs()
	naddrs[7] = naddrs[6]
	_, err = cm.Compile(in, rec, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrPlacement) {
		t.Errorf("duplicate address: got: %v, trg: %v", err, ErrPlacement)
	}

	pl.InputCores = []int{0, 1}
	vaddrs, naddrs = testAddrs()
	_, err = cm.Compile(in, rec, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrPlacement) {
		t.Errorf("recurrent neurons on input core 1: got: %v, trg: %v", err, ErrPlacement)
	}
	if cm.NWrites != 0 {
		t.Errorf("failed compiles must not write: got: %v, trg: %v", cm.NWrites, 0)
	}
}

func TestCompileInvalidWeights(t *testing.T) {
	in, rec := testWeights(t)
	vaddrs, naddrs := testAddrs()
	pl := &Placement{}
	pl.Defaults()
	cm := &Compiler{}

	big := rec.Clone()
	big.Set(3, 6, 63)
	_, err := cm.Compile(in, big, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("column sum 65: got: %v, trg: %v", err, ErrInvalidWeights)
	}
	big.Set(3, 6, 62)
	if _, err := cm.Compile(in, big, vaddrs, naddrs, pl); err != nil {
		t.Errorf("column sum 64 should be valid: %v", err)
	}

	_, err = cm.Compile(in, NewWeights(9, 8), vaddrs, naddrs, pl)
	if !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("recurrent shape: got: %v, trg: %v", err, ErrInvalidWeights)
	}
	_, err = cm.Compile(NewWeights(3, 9), rec, vaddrs, naddrs, pl)
	if !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("input shape: got: %v, trg: %v", err, ErrInvalidWeights)
	}
	if _, err := WeightsFromRows([][]int{{1, 2}, {3}}); !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("ragged rows: got: %v, trg: %v", err, ErrInvalidWeights)
	}
}

func TestValidateWeightsAllColumns(t *testing.T) {
	n := 100
	in := NewWeights(1, n)
	rec := NewWeights(n, n)
	for _, c := range []int{3, 50, 97} {
		in.Set(0, c, 40)
		rec.Set(0, c, -30)
	}
	err := ValidateWeights(in, rec, 1, n)
	if !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("got: %v, trg: %v", err, ErrInvalidWeights)
	}
	msg := err.Error()
	i3 := strings.Index(msg, "column 3 ")
	i50 := strings.Index(msg, "column 50 ")
	i97 := strings.Index(msg, "column 97 ")
	if i3 < 0 || i50 < 0 || i97 < 0 || !(i3 < i50 && i50 < i97) {
		t.Errorf("all bad columns should be reported in order: %s", msg)
	}
}

func TestDiffIdempotent(t *testing.T) {
	in, rec := testWeights(t)
	cm := &Compiler{}
	ct := testCompile(t, cm, in, rec)
	cp := &CoreParams{}
	cp.Defaults()

	cw, err := cm.Diff(ct, cp)
	if err != nil {
		t.Fatal(err)
	}
	if len(cw.Syns) != 17 {
		t.Errorf("synapse writes got: %v, trg: %v", len(cw.Syns), 17)
	}
	if len(cw.Routes) != 9 {
		t.Errorf("route writes got: %v, trg: %v", len(cw.Routes), 9)
	}
	if len(cw.Cores) != 2*int(SynapseTypesN) {
		t.Errorf("core writes got: %v, trg: %v", len(cw.Cores), 2*SynapseTypesN)
	}
	for _, rw := range cw.Routes {
		if rw.Chip != 0 || rw.CoreMask != 0b10 || rw.Entry != 0 {
			t.Errorf("route %+v should be entry 0 to chip 0 core 1", rw)
		}
	}
	cm.Commit(cw)
	if cm.WrittenSyns() != 17 {
		t.Errorf("written synapses got: %v, trg: %v", cm.WrittenSyns(), 17)
	}

	ct2 := testCompile(t, cm, in, rec)
	if !ct2.Equal(ct) {
		t.Errorf("recompiling the same weights should give the same table")
	}
	cw2, err := cm.Diff(ct2, cp)
	if err != nil {
		t.Fatal(err)
	}
	if !cw2.Empty() {
		t.Errorf("second diff should be empty, got: %v", cw2)
	}

	cm.Reset()
	cw3, _ := cm.Diff(ct2, cp)
	if cw3.Len() != cw.Len() {
		t.Errorf("diff after Reset got: %v, trg: %v", cw3.Len(), cw.Len())
	}
}

func TestDiffChanges(t *testing.T) {
	in, rec := testWeights(t)
	cm := &Compiler{}
	cp := &CoreParams{}
	cp.Defaults()
	ct := testCompile(t, cm, in, rec)
	cw, _ := cm.Diff(ct, cp)
	cm.Commit(cw)
	_, naddrs := testAddrs()

	rec.Set(1, 4, 3)
	ct = testCompile(t, cm, in, rec)
	cw, err := cm.Diff(ct, cp)
	if err != nil {
		t.Fatal(err)
	}
	if cw.Len() != 1 || len(cw.Syns) != 1 {
		t.Fatalf("increasing one weight by 1 got: %v, trg: 1 synapse write", cw)
	}
	sw := cw.Syns[0]
	if sw.Clear || sw.Tgt != naddrs[4] || sw.Src != NeuronSource(naddrs[1]) || sw.Type != FastExc || sw.Slot != 3 {
		t.Errorf("synapse write got: %v", sw)
	}
	cm.Commit(cw)

	rec.Set(5, 6, 0)
	ct = testCompile(t, cm, in, rec)
	cw, _ = cm.Diff(ct, cp)
	if len(cw.Syns) != 2 || len(cw.Routes) != 1 || len(cw.Cores) != 0 {
		t.Fatalf("removing a weight of 2 got: %v, trg: 2 synapse, 1 route", cw)
	}
	for _, sw := range cw.Syns {
		if !sw.Clear || sw.Tgt != naddrs[6] {
			t.Errorf("expected clear on %v, got: %v", naddrs[6], sw)
		}
	}
	if rw := cw.Routes[0]; !rw.Clear || rw.Src != naddrs[5] {
		t.Errorf("expected route clear for %v, got: %+v", naddrs[5], rw)
	}
	cm.Commit(cw)
	if cm.WrittenSyns() != 16 {
		t.Errorf("written synapses got: %v, trg: %v", cm.WrittenSyns(), 16)
	}

	cp.Types[SlowExc].Tau = 0.1
	cw, _ = cm.Diff(ct, cp)
	if len(cw.Cores) != 2 || cw.Len() != 2 {
		t.Errorf("changing one type param got: %v, trg: 2 core writes", cw)
	}
}

func TestDiffSwapSource(t *testing.T) {
	in, rec := testWeights(t)
	cm := &Compiler{}
	cp := &CoreParams{}
	cp.Defaults()
	ct := testCompile(t, cm, in, rec)
	cw, _ := cm.Diff(ct, cp)
	cm.Commit(cw)

	// replace 8 -> 3 inhibition by 7 -> 3 inhibition: slots are reused in place
	rec.Set(8, 3, 0)
	rec.Set(7, 3, -2)
	ct = testCompile(t, cm, in, rec)
	cw, _ = cm.Diff(ct, cp)
	nclear := 0
	for _, sw := range cw.Syns {
		if sw.Clear {
			nclear++
		}
	}
	if len(cw.Syns) != 2 || nclear != 0 {
		t.Errorf("swapping a source got: %v synapse writes (%d clears), trg: 2 (0)", len(cw.Syns), nclear)
	}
	cm.Commit(cw)
	cw, _ = cm.Diff(ct, cp)
	if !cw.Empty() {
		t.Errorf("diff after commit should be empty, got: %v", cw)
	}
}

func TestConnTableWriteJSON(t *testing.T) {
	in, rec := testWeights(t)
	ct := testCompile(t, &Compiler{}, in, rec)
	var b bytes.Buffer
	ct.WriteJSON(&b, 0)
	js := b.String()
	if !strings.Contains(js, `"NSyns": 17,`) {
		t.Errorf("WriteJSON missing synapse count:\n%s", js)
	}
	if !strings.Contains(js, `"Src": [ "v0", "v0" ]`) {
		t.Errorf("WriteJSON missing sources of neuron 0:\n%s", js)
	}
	if strings.Count(js, `"Ri":`) != 9 {
		t.Errorf("WriteJSON should list 9 neurons:\n%s", js)
	}
	sr := ct.SizeReport()
	if !strings.Contains(sr, "Syns: 17") {
		t.Errorf("SizeReport: %s", sr)
	}
}
