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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fragfeat/nmftune/base"
)

// Splitter types accepted by NewSplitter and the mask wrapper.
const (
	SplitterMask   = "mask"   // hide random entries
	SplitterSample = "sample" // hide whole scans
)

// Mask marks the held-out portion of one matrix for one split. Exactly one
// of Entries (row-major, rows*cols) or Rows (length rows) is set.
type Mask struct {
	Entries []bool
	Rows    []bool
}

// Count returns the number of held-out entries or rows.
func (mask *Mask) Count() int {
	count := 0
	for _, b := range mask.Entries {
		if b {
			count++
		}
	}
	for _, b := range mask.Rows {
		if b {
			count++
		}
	}
	return count
}

// Invert returns the complement mask.
func (mask *Mask) Invert() *Mask {
	inverted := &Mask{}
	if mask.Entries != nil {
		inverted.Entries = make([]bool, len(mask.Entries))
		for i, b := range mask.Entries {
			inverted.Entries[i] = !b
		}
	}
	if mask.Rows != nil {
		inverted.Rows = make([]bool, len(mask.Rows))
		for i, b := range mask.Rows {
			inverted.Rows[i] = !b
		}
	}
	return inverted
}

// Split is one train/test partition: a pair of masks per input matrix.
type Split struct {
	Train []*Mask
	Test  []*Mask
}

// Splitter produces repeated train/test partitions of a matrix set and owns
// the reconstruction-error semantics of its masking scheme.
type Splitter interface {
	// NSplits returns the number of partitions one Split call produces.
	NSplits() int
	// Split generates NSplits independent partitions. The generator is
	// reseeded on every call, so consecutive calls yield identical masks.
	Split(ms []*mat.Dense) []Split
	// MaskTrainMatrix hides the test portion of a training copy.
	MaskTrainMatrix(m *mat.Dense, test *Mask) *mat.Dense
	// ReconstructionError scores a reconstruction on the held-out portion.
	ReconstructionError(m, reconstructed *mat.Dense, mask *Mask, fit *FitResult) float64
}

// NewSplitter creates a splitter by type name.
func NewSplitter(splitterType string, nSplits int, maskFraction float64, seed int64, maskSignal, balanceMaskSignal bool) (Splitter, error) {
	switch splitterType {
	case SplitterMask:
		return &BinMaskingSplitter{
			nSplits:           nSplits,
			maskFraction:      maskFraction,
			seed:              seed,
			maskSignal:        maskSignal,
			balanceMaskSignal: balanceMaskSignal,
		}, nil
	case SplitterSample:
		return &ScanSamplingSplitter{
			nSplits:      nSplits,
			maskFraction: maskFraction,
			seed:         seed,
		}, nil
	default:
		return nil, errors.NotValidf("splitter type %q", splitterType)
	}
}

// BinMaskingSplitter hides a random fraction of matrix entries per split.
// With maskSignal only nonzero entries are candidates; balanceMaskSignal
// additionally hides an equal count of zero entries so the held-out set
// stays roughly half signal.
type BinMaskingSplitter struct {
	nSplits           int
	maskFraction      float64
	seed              int64
	maskSignal        bool
	balanceMaskSignal bool
}

func (s *BinMaskingSplitter) NSplits() int {
	return s.nSplits
}

func (s *BinMaskingSplitter) Split(ms []*mat.Dense) []Split {
	rng := base.NewRandomGenerator(s.seed)
	splits := make([]Split, s.nSplits)
	for n := 0; n < s.nSplits; n++ {
		split := Split{
			Train: make([]*Mask, len(ms)),
			Test:  make([]*Mask, len(ms)),
		}
		for i, m := range ms {
			rows, cols := m.Dims()
			var entries []bool
			if !s.maskSignal {
				entries = rng.BernoulliVector(rows*cols, s.maskFraction)
			} else {
				entries = make([]bool, rows*cols)
				nMasked := 0
				for idx := 0; idx < rows*cols; idx++ {
					if m.At(idx/cols, idx%cols) > 0 && rng.Float64() < s.maskFraction {
						entries[idx] = true
						nMasked++
					}
				}
				if s.balanceMaskSignal && nMasked > 0 {
					signal := mapset.NewSet[int]()
					for idx := 0; idx < rows*cols; idx++ {
						if m.At(idx/cols, idx%cols) > 0 {
							signal.Add(idx)
						}
					}
					for _, idx := range rng.Sample(0, rows*cols, nMasked, signal) {
						entries[idx] = true
					}
				}
			}
			test := &Mask{Entries: entries}
			split.Test[i] = test
			split.Train[i] = test.Invert()
		}
		splits[n] = split
	}
	return splits
}

// MaskTrainMatrix zeroes held-out entries in place.
func (s *BinMaskingSplitter) MaskTrainMatrix(m *mat.Dense, test *Mask) *mat.Dense {
	_, cols := m.Dims()
	for idx, masked := range test.Entries {
		if masked {
			m.Set(idx/cols, idx%cols, 0)
		}
	}
	return m
}

// ReconstructionError is the mean squared error restricted to masked entries.
func (s *BinMaskingSplitter) ReconstructionError(m, reconstructed *mat.Dense, mask *Mask, _ *FitResult) float64 {
	_, cols := m.Dims()
	sum, count := 0.0, 0
	for idx, masked := range mask.Entries {
		if masked {
			diff := m.At(idx/cols, idx%cols) - reconstructed.At(idx/cols, idx%cols)
			sum += diff * diff
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// ScanSamplingSplitter hides whole scans (rows) per split. Held-out scans are
// excluded from training rather than zeroed, and scored by transforming them
// through the fitted basis.
type ScanSamplingSplitter struct {
	nSplits      int
	maskFraction float64
	seed         int64
}

func (s *ScanSamplingSplitter) NSplits() int {
	return s.nSplits
}

func (s *ScanSamplingSplitter) Split(ms []*mat.Dense) []Split {
	rng := base.NewRandomGenerator(s.seed)
	splits := make([]Split, s.nSplits)
	for n := 0; n < s.nSplits; n++ {
		split := Split{
			Train: make([]*Mask, len(ms)),
			Test:  make([]*Mask, len(ms)),
		}
		for i, m := range ms {
			rows, _ := m.Dims()
			test := &Mask{Rows: rng.BernoulliVector(rows, s.maskFraction)}
			split.Test[i] = test
			split.Train[i] = test.Invert()
		}
		splits[n] = split
	}
	return splits
}

// MaskTrainMatrix returns the subset of scans that were not held out.
func (s *ScanSamplingSplitter) MaskTrainMatrix(m *mat.Dense, test *Mask) *mat.Dense {
	return selectRows(m, test.Rows, false)
}

// ReconstructionError transforms the held-out scans through the fitted basis
// and scores their reconstruction. A degenerate basis or all-zero held-out
// scans fall back to the error against a zero reconstruction.
func (s *ScanSamplingSplitter) ReconstructionError(m, _ *mat.Dense, mask *Mask, fit *FitResult) float64 {
	held := selectRows(m, mask.Rows, true)
	rows, cols := held.Dims()
	if rows == 0 || cols == 0 {
		return 0
	}
	if fit == nil || fit.Degenerate() || mat.Sum(held) == 0 {
		return meanSquaredError(held, mat.NewDense(rows, cols, nil))
	}
	weights := Transform(held, fit.H, fit.Opts)
	var reconstructed mat.Dense
	reconstructed.Mul(weights, fit.H)
	return meanSquaredError(held, &reconstructed)
}

func selectRows(m *mat.Dense, rowMask []bool, keep bool) *mat.Dense {
	_, cols := m.Dims()
	selected := make([]int, 0, len(rowMask))
	for i, masked := range rowMask {
		if masked == keep {
			selected = append(selected, i)
		}
	}
	if len(selected) == 0 || cols == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(selected), cols, nil)
	for to, from := range selected {
		for j := 0; j < cols; j++ {
			out.Set(to, j, m.At(from, j))
		}
	}
	return out
}

func meanSquaredError(a, b *mat.Dense) float64 {
	rows, cols := a.Dims()
	if rows == 0 || cols == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			diff := a.At(i, j) - b.At(i, j)
			sum += diff * diff
		}
	}
	return sum / float64(rows*cols)
}
