// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynapse

import (
	"fmt"
	"runtime"

	"cogentcore.org/core/base/errors"
	"github.com/sourcegraph/conc/pool"
)

// Weights is a dense matrix of signed integer weights, stored row-major.
// Rows index the sending side and Cols the receiving neurons:
// the input weights are (NIn x N) and the recurrent weights (N x N).
// Each unit of weight magnitude is one physical synapse.
type Weights struct {
	Rows   int
	Cols   int
	Values []int32
}

// NewWeights returns a zero weight matrix of given shape.
func NewWeights(rows, cols int) *Weights {
	return &Weights{Rows: rows, Cols: cols, Values: make([]int32, rows*cols)}
}

// WeightsFromRows returns a weight matrix with given rows,
// which must all have the same length.
func WeightsFromRows(rows [][]int) (*Weights, error) {
	nr := len(rows)
	nc := 0
	if nr > 0 {
		nc = len(rows[0])
	}
	wt := NewWeights(nr, nc)
	for ri, rw := range rows {
		if len(rw) != nc {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrInvalidWeights, ri, len(rw), nc)
		}
		for ci, v := range rw {
			wt.Set(ri, ci, v)
		}
	}
	return wt, nil
}

// Index returns the flat index of given row and column.
func (wt *Weights) Index(r, c int) int { return r*wt.Cols + c }

// Value returns the weight at given row and column.
func (wt *Weights) Value(r, c int) int { return int(wt.Values[r*wt.Cols+c]) }

// Set sets the weight at given row and column.
func (wt *Weights) Set(r, c int, v int) { wt.Values[r*wt.Cols+c] = int32(v) }

// Shape returns rows, cols; a nil matrix is 0 x 0.
func (wt *Weights) Shape() (rows, cols int) {
	if wt == nil {
		return 0, 0
	}
	return wt.Rows, wt.Cols
}

// ColAbsSum returns the sum of absolute weights in column c,
// which is the number of synapses the column needs.
func (wt *Weights) ColAbsSum(c int) int {
	if wt == nil {
		return 0
	}
	sum := 0
	for r := 0; r < wt.Rows; r++ {
		v := wt.Value(r, c)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum
}

// ColNonZero returns true if any weight in column c is nonzero.
func (wt *Weights) ColNonZero(c int) bool {
	if wt == nil {
		return false
	}
	for r := 0; r < wt.Rows; r++ {
		if wt.Value(r, c) != 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (wt *Weights) Clone() *Weights {
	if wt == nil {
		return nil
	}
	cp := NewWeights(wt.Rows, wt.Cols)
	copy(cp.Values, wt.Values)
	return cp
}

// Equal returns true if both matrices have the same shape and values.
func (wt *Weights) Equal(o *Weights) bool {
	if wt == nil || o == nil {
		return wt == o
	}
	if wt.Rows != o.Rows || wt.Cols != o.Cols {
		return false
	}
	for i, v := range wt.Values {
		if o.Values[i] != v {
			return false
		}
	}
	return true
}

// ValidateWeights checks the shapes of the input (nin x n) and
// recurrent (n x n) weights, and that every receiving column needs at
// most MaxFanIn synapses in total.  Columns are checked concurrently
// in chunks; all violations are reported, in column order.
func ValidateWeights(in, rec *Weights, nin, n int) error {
	if r, c := in.Shape(); r != nin || c != n {
		return fmt.Errorf("%w: input weights shape is %dx%d, expected %dx%d", ErrInvalidWeights, r, c, nin, n)
	}
	if r, c := rec.Shape(); r != n || c != n {
		return fmt.Errorf("%w: recurrent weights shape is %dx%d, expected %dx%d", ErrInvalidWeights, r, c, n, n)
	}
	if n == 0 {
		return nil
	}
	nthr := min(runtime.GOMAXPROCS(0), n)
	chunk := (n + nthr - 1) / nthr
	nchunks := (n + chunk - 1) / chunk
	errs := make([]error, nchunks)
	p := pool.New().WithMaxGoroutines(nthr)
	for ch := 0; ch < nchunks; ch++ {
		st := ch * chunk
		ed := min(st+chunk, n)
		p.Go(func() {
			var cerrs []error
			for c := st; c < ed; c++ {
				ni := in.ColAbsSum(c)
				nr := rec.ColAbsSum(c)
				if ni+nr > MaxFanIn {
					cerrs = append(cerrs, fmt.Errorf("%w: column %d needs %d input + %d recurrent = %d synapses, max %d", ErrInvalidWeights, c, ni, nr, ni+nr, MaxFanIn))
				}
			}
			errs[ch] = errors.Join(cerrs...)
		})
	}
	p.Wait()
	return errors.Join(errs...)
}
