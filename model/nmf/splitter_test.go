// Copyright 2024 fragfeat Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nmf

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewSplitter(t *testing.T) {
	splitter, err := NewSplitter(SplitterMask, 5, 0.2, 0, false, false)
	assert.NoError(t, err)
	assert.IsType(t, &BinMaskingSplitter{}, splitter)
	splitter, err = NewSplitter(SplitterSample, 5, 0.2, 0, false, false)
	assert.NoError(t, err)
	assert.IsType(t, &ScanSamplingSplitter{}, splitter)
	_, err = NewSplitter("bogus", 5, 0.2, 0, false, false)
	assert.True(t, errors.IsNotValid(err))
}

func TestBinMaskingSplitter_Split(t *testing.T) {
	m := mat.NewDense(100, 100, nil)
	for i := 0; i < 100; i++ {
		for j := 0; j < 100; j++ {
			m.Set(i, j, float64(i+j))
		}
	}
	splitter, err := NewSplitter(SplitterMask, 5, 0.2, 42, false, false)
	assert.NoError(t, err)
	splits := splitter.Split([]*mat.Dense{m})
	assert.Len(t, splits, 5)
	for _, split := range splits {
		assert.Len(t, split.Test, 1)
		assert.Len(t, split.Train, 1)
		// masked fraction converges to the requested fraction
		assert.InDelta(t, 0.2, float64(split.Test[0].Count())/10000, 0.02)
		// train and test partition the entries
		assert.Equal(t, 10000, split.Test[0].Count()+split.Train[0].Count())
	}
	// masks differ between splits
	assert.NotEqual(t, splits[0].Test[0].Entries, splits[1].Test[0].Entries)
}

func TestBinMaskingSplitter_Deterministic(t *testing.T) {
	m := mat.NewDense(20, 20, nil)
	splitter, _ := NewSplitter(SplitterMask, 3, 0.2, 7, false, false)
	first := splitter.Split([]*mat.Dense{m})
	second := splitter.Split([]*mat.Dense{m})
	for n := range first {
		assert.Equal(t, first[n].Test[0].Entries, second[n].Test[0].Entries)
	}
}

func TestBinMaskingSplitter_MaskSignal(t *testing.T) {
	// left half zero, right half signal
	m := mat.NewDense(50, 50, nil)
	for i := 0; i < 50; i++ {
		for j := 25; j < 50; j++ {
			m.Set(i, j, 1)
		}
	}
	splitter, _ := NewSplitter(SplitterMask, 1, 0.5, 1, true, false)
	split := splitter.Split([]*mat.Dense{m})[0]
	for idx, masked := range split.Test[0].Entries {
		if masked {
			assert.Greater(t, m.At(idx/50, idx%50), 0.0)
		}
	}

	// balanced masking hides as many zero entries as signal entries
	balanced, _ := NewSplitter(SplitterMask, 1, 0.5, 1, true, true)
	split = balanced.Split([]*mat.Dense{m})[0]
	maskedZeros, maskedSignal := 0, 0
	for idx, masked := range split.Test[0].Entries {
		if masked {
			if m.At(idx/50, idx%50) == 0 {
				maskedZeros++
			} else {
				maskedSignal++
			}
		}
	}
	assert.Greater(t, maskedSignal, 0)
	assert.Equal(t, maskedSignal, maskedZeros)
}

func TestBinMaskingSplitter_MaskTrainMatrix(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	splitter, _ := NewSplitter(SplitterMask, 1, 0.2, 0, false, false)
	test := &Mask{Entries: []bool{true, false, false, false, true, false}}
	masked := splitter.MaskTrainMatrix(m, test)
	assert.Equal(t, 0.0, masked.At(0, 0))
	assert.Equal(t, 0.0, masked.At(1, 1))
	assert.Equal(t, 2.0, masked.At(0, 1))
	assert.Equal(t, 6.0, masked.At(1, 2))
}

func TestBinMaskingSplitter_ReconstructionError(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	splitter, _ := NewSplitter(SplitterMask, 1, 0.5, 0, false, false)
	mask := &Mask{Entries: []bool{true, false, false, true}}
	// perfect reconstruction scores zero
	assert.Zero(t, splitter.ReconstructionError(m, mat.DenseCopyOf(m), mask, nil))
	// error is averaged over masked entries only
	off := mat.NewDense(2, 2, []float64{0, 2, 3, 2})
	assert.Equal(t, 2.5, splitter.ReconstructionError(m, off, mask, nil))
	// empty mask scores zero instead of dividing by zero
	empty := &Mask{Entries: []bool{false, false, false, false}}
	assert.Zero(t, splitter.ReconstructionError(m, off, empty, nil))
}

func TestScanSamplingSplitter_Split(t *testing.T) {
	m := mat.NewDense(1000, 5, nil)
	splitter, err := NewSplitter(SplitterSample, 4, 0.3, 11, false, false)
	assert.NoError(t, err)
	splits := splitter.Split([]*mat.Dense{m})
	assert.Len(t, splits, 4)
	for _, split := range splits {
		assert.InDelta(t, 0.3, float64(split.Test[0].Count())/1000, 0.05)
		assert.Equal(t, 1000, split.Test[0].Count()+split.Train[0].Count())
	}
}

func TestScanSamplingSplitter_MaskTrainMatrix(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{1, 1, 2, 2, 3, 3, 4, 4})
	splitter, _ := NewSplitter(SplitterSample, 1, 0.5, 0, false, false)
	test := &Mask{Rows: []bool{false, true, false, true}}
	masked := splitter.MaskTrainMatrix(m, test)
	rows, cols := masked.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 1.0, masked.At(0, 0))
	assert.Equal(t, 3.0, masked.At(1, 0))
}

func TestScanSamplingSplitter_ReconstructionError(t *testing.T) {
	m := rankTwoMatrix(20, 10)
	splitter, _ := NewSplitter(SplitterSample, 1, 0.5, 0, false, false)
	test := &Mask{Rows: make([]bool, 20)}
	for i := 0; i < 20; i += 2 {
		test.Rows[i] = true
	}
	train := test.Invert()
	fit := Fit(selectRows(m, train.Rows, true), testFitOptions())
	err := splitter.ReconstructionError(m, nil, test, fit)
	// held-out scans share the training basis, so the transform fits them well
	assert.Less(t, err, 0.01*mat.Norm(m, 2))

	// degenerate basis falls back to the zero reconstruction error
	degenerate := Fit(mat.NewDense(10, 10, nil), testFitOptions())
	fallback := splitter.ReconstructionError(m, nil, test, degenerate)
	held := selectRows(m, test.Rows, true)
	rows, cols := held.Dims()
	assert.Equal(t, meanSquaredError(held, mat.NewDense(rows, cols, nil)), fallback)

	// no held-out rows scores zero
	none := &Mask{Rows: make([]bool, 20)}
	assert.Zero(t, splitter.ReconstructionError(m, nil, none, fit))
}
