// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"math/rand/v2"
	"slices"
	"testing"

	"cogentcore.org/core/base/errors"
	"github.com/emer/dynapse/tick"
)

// tickEvents returns events at given ticks, with channels counting up
// within each tick.
func tickEvents(ticks ...int64) []tick.Event {
	evs := make([]tick.Event, len(ticks))
	for i, tk := range ticks {
		ch := 0
		if i > 0 && ticks[i-1] == tk {
			ch = evs[i-1].Chan + 1
		}
		evs[i] = tick.Event{Tick: tk, Chan: ch}
	}
	return evs
}

// splitAll runs the splitter to the end, copying the batches.
func splitAll(sp *Splitter) []Batch {
	var bts []Batch
	for sp.Next() {
		bts = append(bts, *sp.Batch())
	}
	return bts
}

func batchSizes(bts []Batch) []int {
	sz := make([]int, len(bts))
	for i := range bts {
		sz[i] = bts[i].Len()
	}
	return sz
}

// checkBatches checks batch indexes and order: batches tile the period
// from tick 0 without a duration limit, and with one they never overlap
// and last at most lim ticks.
func checkBatches(t *testing.T, bts []Batch, lim int64) {
	t.Helper()
	for i := range bts {
		bt := &bts[i]
		if bt.Index != i {
			t.Errorf("batch %d has index %d", i, bt.Index)
		}
		if lim > 0 && bt.Ticks > lim {
			t.Errorf("batch %d lasts %d ticks, limit %d", i, bt.Ticks, lim)
		}
		pend := int64(0)
		if i > 0 {
			pend = bts[i-1].EndTick()
		}
		switch {
		case lim <= 0 && bt.StartTick != pend:
			t.Errorf("batch %d starts at %d, previous ends at %d", i, bt.StartTick, pend)
		case bt.StartTick < pend:
			t.Errorf("batch %d starts at %d, before the previous end %d", i, bt.StartTick, pend)
		}
	}
}

func TestSplitMaxEvents(t *testing.T) {
	evs := tickEvents(0, 10, 20, 30, 40, 50, 60)
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxEvents = 3
	bts := splitAll(NewSplitter(evs, nil, cfg, 0, 100))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{3, 3, 1}) {
		t.Errorf("batch sizes got: %v, trg: %v", sz, []int{3, 3, 1})
	}
	checkBatches(t, bts, 0)
	ends := []int64{30, 60, 100}
	for i, bt := range bts {
		if bt.EndTick() != ends[i] {
			t.Errorf("batch %d end got: %v, trg: %v", i, bt.EndTick(), ends[i])
		}
		if bt.Trials != 0 {
			t.Errorf("batch %d trials got: %v, trg: 0", i, bt.Trials)
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	cfg := &BatchConfig{}
	cfg.Defaults()
	sp := NewSplitter(nil, nil, cfg, 10, 100)
	if sp.Next() {
		t.Errorf("empty input should give no batches")
	}
	if sp.Index() != 0 {
		t.Errorf("batch count got: %v, trg: 0", sp.Index())
	}
}

func TestSplitSameTick(t *testing.T) {
	evs := tickEvents(0, 0, 1, 1, 1, 2)
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxEvents = 3
	bts := splitAll(NewSplitter(evs, nil, cfg, 0, 3))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{2, 3, 1}) {
		t.Errorf("batch sizes got: %v, trg: %v", sz, []int{2, 3, 1})
	}
	checkBatches(t, bts, 0)

	// a group larger than MaxEvents is split
	evs = tickEvents(5, 5, 5, 5, 5)
	cfg.MaxEvents = 2
	bts = splitAll(NewSplitter(evs, nil, cfg, 0, 10))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{2, 2, 1}) {
		t.Errorf("split group batch sizes got: %v, trg: %v", sz, []int{2, 2, 1})
	}
	checkBatches(t, bts, 0)
	if bts[0].EndTick() != 5 || bts[1].StartTick != 5 || bts[2].EndTick() != 10 {
		t.Errorf("split group batches: %v", bts)
	}
}

func TestSplitDuration(t *testing.T) {
	evs := tickEvents(0, 50, 99, 100, 250, 260)
	cfg := &BatchConfig{}
	cfg.Defaults()
	bts := splitAll(NewSplitter(evs, nil, cfg, 100, 1000))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{3, 1, 2}) {
		t.Errorf("batch sizes got: %v, trg: %v", sz, []int{3, 1, 2})
	}
	checkBatches(t, bts, 100)
	for i, bt := range bts {
		if bt.Ticks > 100 {
			t.Errorf("batch %d lasts %d ticks > 100", i, bt.Ticks)
		}
	}
	if bts[2].StartTick != 200 || bts[2].EndTick() != 300 {
		t.Errorf("last batch got: [%d, %d), trg: [200, 300)", bts[2].StartTick, bts[2].EndTick())
	}
}

func TestSplitFirstEventBeyondLimit(t *testing.T) {
	evs := tickEvents(100, 200)
	cfg := &BatchConfig{}
	cfg.Defaults()
	bts := splitAll(NewSplitter(evs, nil, cfg, 10, 300))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{1, 1}) {
		t.Fatalf("batch sizes got: %v, trg: %v", sz, []int{1, 1})
	}
	checkBatches(t, bts, 10)
	if bts[0].StartTick != 100 || bts[0].EndTick() != 110 || bts[1].StartTick != 200 || bts[1].EndTick() != 210 {
		t.Errorf("batches got: [%d, %d), [%d, %d), trg: [100, 110), [200, 210)", bts[0].StartTick, bts[0].EndTick(), bts[1].StartTick, bts[1].EndTick())
	}
}

func TestSplitIdleGap(t *testing.T) {
	evs := tickEvents(0, 50000, 50500, 50999, 51000)
	cfg := &BatchConfig{}
	cfg.Defaults()
	bts := splitAll(NewSplitter(evs, nil, cfg, 1000, 60000))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{1, 3, 1}) {
		t.Fatalf("batch sizes got: %v, trg: %v", sz, []int{1, 3, 1})
	}
	checkBatches(t, bts, 1000)
	starts := []int64{0, 50000, 51000}
	for i, bt := range bts {
		if bt.StartTick != starts[i] || bt.Ticks != 1000 {
			t.Errorf("batch %d got: [%d, %d), trg: [%d, %d)", i, bt.StartTick, bt.EndTick(), starts[i], starts[i]+1000)
		}
	}
}

func TestSplitTimesteps(t *testing.T) {
	tp := &tick.Params{}
	tp.Defaults()
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxDuration = 1
	cfg.MaxTimesteps = 2
	dt := 0.001
	lim := cfg.LimitTicks(tp, dt)
	if lim != 2*90000 {
		t.Errorf("timestep limit got: %v, trg: %v", lim, 2*90000)
	}
	cfg.MaxTimesteps = 0
	if lim := cfg.LimitTicks(tp, dt); lim != 90000000 {
		t.Errorf("duration limit got: %v, trg: %v", lim, 90000000)
	}
	cfg.MaxDuration = 0
	if lim := cfg.LimitTicks(tp, dt); lim != 0 {
		t.Errorf("no limit got: %v, trg: 0", lim)
	}
}

func TestBatchConfigUpdate(t *testing.T) {
	cfg := &BatchConfig{MaxEvents: 0, MaxTrials: -1}
	cfg.Update()
	if cfg.MaxEvents != MaxEventsBatch || cfg.MaxTrials != 0 {
		t.Errorf("Update got: %v", cfg)
	}
	cfg.MaxEvents = 100000
	cfg.Update()
	if cfg.MaxEvents != MaxEventsBatch {
		t.Errorf("MaxEvents over the hardware limit got: %v, trg: %v", cfg.MaxEvents, MaxEventsBatch)
	}
	if err := cfg.Validate(); err != nil {
		t.Error(err)
	}
	cfg.MaxEvents = 70000
	if err := cfg.Validate(); err == nil {
		t.Errorf("MaxEvents 70000 should not validate")
	}
}

func TestSplitTrials(t *testing.T) {
	evs := tickEvents(10, 20, 110, 120, 130, 310)
	trials := []int64{0, 100, 200, 300}
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxTrials = 2
	bts := splitAll(NewSplitter(evs, trials, cfg, 0, 400))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{5, 1}) {
		t.Errorf("batch sizes got: %v, trg: %v", sz, []int{5, 1})
	}
	checkBatches(t, bts, 0)
	if bts[0].Trials != 2 || bts[0].EndTick() != 200 {
		t.Errorf("first batch got: %v, trg: 2 trials ending at 200", &bts[0])
	}

	cfg.MaxTrials = 10
	cfg.MaxEvents = 4
	bts = splitAll(NewSplitter(evs, trials, cfg, 0, 400))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{2, 4}) {
		t.Errorf("batch sizes got: %v, trg: %v", sz, []int{2, 4})
	}
	checkBatches(t, bts, 0)
	if bts[0].EndTick() != 100 {
		t.Errorf("first batch should end at the trial boundary 100, got: %v", bts[0].EndTick())
	}
}

func TestSplitTrialsDuration(t *testing.T) {
	evs := tickEvents(10, 110, 210)
	trials := []int64{0, 100, 200}
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxTrials = 5
	bts := splitAll(NewSplitter(evs, trials, cfg, 150, 300))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{1, 2}) {
		t.Fatalf("batch sizes got: %v, trg: %v", sz, []int{1, 2})
	}
	checkBatches(t, bts, 150)
	if bts[0].Ticks != 100 || bts[0].Trials != 1 {
		t.Errorf("first batch got: %v, trg: trial 0 only", &bts[0])
	}
	// the last trial only needs its events to fit
	if bts[1].StartTick != 100 || bts[1].Ticks != 150 || bts[1].Trials != 2 {
		t.Errorf("second batch got: %v, trg: trials 1 and 2 in [100, 250)", &bts[1])
	}
}

func TestSplitLastTrialFits(t *testing.T) {
	evs := tickEvents(10, 110)
	trials := []int64{0, 100}
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxTrials = 2
	bts := splitAll(NewSplitter(evs, trials, cfg, 150, 1000))
	if len(bts) != 1 || bts[0].Trials != 2 {
		t.Fatalf("batches got: %v, trg: one batch of 2 trials", bts)
	}
	checkBatches(t, bts, 150)
	if bts[0].EndTick() != 150 {
		t.Errorf("batch end got: %v, trg: %v", bts[0].EndTick(), 150)
	}
}

func TestSplitTrialsIdleGap(t *testing.T) {
	evs := tickEvents(10, 20, 5020, 5030)
	trials := []int64{0, 5000}
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxTrials = 2
	bts := splitAll(NewSplitter(evs, trials, cfg, 100, 6000))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{2, 2}) {
		t.Fatalf("batch sizes got: %v, trg: %v", sz, []int{2, 2})
	}
	checkBatches(t, bts, 100)
	if bts[1].StartTick != 5000 || bts[1].Ticks != 100 {
		t.Errorf("second batch got: %v, trg: starting at the trial start 5000", &bts[1])
	}
}

func TestSplitOversizedTrial(t *testing.T) {
	evs := tickEvents(1, 2, 3, 4, 5, 150)
	trials := []int64{0, 100}
	cfg := &BatchConfig{}
	cfg.Defaults()
	cfg.MaxTrials = 1
	cfg.MaxEvents = 2
	bts := splitAll(NewSplitter(evs, trials, cfg, 0, 200))
	if sz := batchSizes(bts); !slices.Equal(sz, []int{2, 2, 1, 1}) {
		t.Errorf("batch sizes got: %v, trg: %v", sz, []int{2, 2, 1, 1})
	}
	checkBatches(t, bts, 0)
	if bts[2].EndTick() != 100 || bts[3].EndTick() != 200 {
		t.Errorf("batches got: %v", bts)
	}
}

func TestSplitTrialsWithoutMarkers(t *testing.T) {
	evs := tickEvents(0, 1, 2, 3, 4)
	cfg := &BatchConfig{MaxEvents: 2, MaxTrials: 3}
	sp := NewSplitter(evs, nil, cfg, 0, 10)
	if !errors.Is(sp.Conflict, ErrBatchConfigConflict) {
		t.Errorf("conflict got: %v, trg: %v", sp.Conflict, ErrBatchConfigConflict)
	}
	bts := splitAll(sp)
	if sz := batchSizes(bts); !slices.Equal(sz, []int{2, 2, 1}) {
		t.Errorf("batch sizes got: %v, trg: %v", sz, []int{2, 2, 1})
	}
}

// TestSplitLossless checks on random inputs that the batches partition
// the input in order and respect all limits.
func TestSplitLossless(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	for itr := 0; itr < 50; itr++ {
		n := 1 + rnd.IntN(300)
		evs := make([]tick.Event, n)
		tk := int64(rnd.IntN(50))
		for i := range evs {
			if i > 0 && rnd.IntN(3) > 0 {
				tk += int64(rnd.IntN(30))
			}
			evs[i] = tick.Event{Tick: tk, Chan: rnd.IntN(8)}
		}
		slices.SortFunc(evs, func(a, b tick.Event) int {
			if a.Less(b) {
				return -1
			} else if b.Less(a) {
				return 1
			}
			return 0
		})
		groupSize := make(map[int64]int)
		for _, ev := range evs {
			groupSize[ev.Tick]++
		}
		cfg := &BatchConfig{MaxEvents: []int{1, 3, 7, 50, MaxEventsBatch}[rnd.IntN(5)]}
		lim := []int64{0, 5, 40, 1000}[rnd.IntN(4)]
		endTick := evs[n-1].Tick + 1 + int64(rnd.IntN(100))
		bts := splitAll(NewSplitter(evs, nil, cfg, lim, endTick))
		checkBatches(t, bts, lim)

		var cat []tick.Event
		for bi, bt := range bts {
			if bt.Len() == 0 {
				t.Errorf("itr %d: batch %d is empty", itr, bi)
				continue
			}
			cat = append(cat, bt.Events...)
			if bt.Len() > cfg.MaxEvents {
				t.Errorf("itr %d: batch %d has %d events > %d", itr, bi, bt.Len(), cfg.MaxEvents)
			}
			for _, ev := range bt.Events {
				if ev.Tick < bt.StartTick || ev.Tick > bt.EndTick() {
					t.Errorf("itr %d: batch %d [%d, %d) has event at %d", itr, bi, bt.StartTick, bt.EndTick(), ev.Tick)
				}
				if lim > 0 && ev.Tick-bt.StartTick >= lim {
					t.Errorf("itr %d: batch %d starting at %d has event at %d beyond limit %d", itr, bi, bt.StartTick, ev.Tick, lim)
				}
			}
			last := bt.Events[bt.Len()-1].Tick
			if last == bt.EndTick() || (bi+1 < len(bts) && bts[bi+1].Events[0].Tick == last) {
				if groupSize[last] <= cfg.MaxEvents {
					t.Errorf("itr %d: batch %d splits the %d events at tick %d", itr, bi, groupSize[last], last)
				}
			}
		}
		if !slices.Equal(cat, evs) {
			t.Errorf("itr %d: concatenated batches differ from input: %d vs %d events", itr, len(cat), len(evs))
		}
	}
}

func TestSplitTrialsNeverSplit(t *testing.T) {
	rnd := rand.New(rand.NewPCG(3, 4))
	for itr := 0; itr < 30; itr++ {
		ntr := 1 + rnd.IntN(20)
		trials := make([]int64, ntr)
		var evs []tick.Event
		trialOf := make(map[int]int)
		st := int64(0)
		for ti := 0; ti < ntr; ti++ {
			trials[ti] = st
			ne := rnd.IntN(6)
			for i := 0; i < ne; i++ {
				trialOf[len(evs)] = ti
				evs = append(evs, tick.Event{Tick: st + int64(i*3), Chan: 0})
			}
			st += 20
		}
		if len(evs) == 0 {
			continue
		}
		cfg := &BatchConfig{MaxEvents: 8, MaxTrials: 1 + rnd.IntN(4)}
		bts := splitAll(NewSplitter(evs, trials, cfg, 0, st))
		checkBatches(t, bts, 0)
		pos := 0
		batchOf := make(map[int]int)
		for bi, bt := range bts {
			if bt.Trials > cfg.MaxTrials {
				t.Errorf("itr %d: batch %d has %d trials > %d", itr, bi, bt.Trials, cfg.MaxTrials)
			}
			for range bt.Events {
				ti := trialOf[pos]
				if b, has := batchOf[ti]; has && b != bi {
					t.Errorf("itr %d: trial %d split over batches %d and %d", itr, ti, b, bi)
				}
				batchOf[ti] = bi
				pos++
			}
		}
		if pos != len(evs) {
			t.Errorf("itr %d: batches have %d events, trg: %d", itr, pos, len(evs))
		}
	}
}

func TestBatchRecords(t *testing.T) {
	tp := &tick.Params{}
	tp.Defaults()
	vaddrs := []VirtualAddress{7, 300}
	bt := &Batch{StartTick: 100, Ticks: 70000, Events: []tick.Event{{Tick: 105, Chan: 1}, {Tick: 105, Chan: 0}, {Tick: 1000, Chan: 1}}}
	recs, err := bt.Records(tp, vaddrs)
	if err != nil {
		t.Fatal(err)
	}
	trg := []Record{{5, 300}, {0, 7}, {895, 300}}
	if !slices.Equal(recs, trg) {
		t.Errorf("records got: %v, trg: %v", recs, trg)
	}
	bt.Events = append(bt.Events, tick.Event{Tick: 1000 + 65536, Chan: 0})
	if _, err := bt.Records(tp, vaddrs); !errors.Is(err, ErrInterEventGapTooLarge) {
		t.Errorf("gap of 65536 got: %v, trg: %v", err, ErrInterEventGapTooLarge)
	}
	bt.Events = []tick.Event{{Tick: 200, Chan: 2}}
	if _, err := bt.Records(tp, vaddrs); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("channel out of range got: %v, trg: %v", err, ErrOutOfRange)
	}
}
