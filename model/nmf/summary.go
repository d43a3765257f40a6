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
	"math"

	"gonum.org/v1/gonum/mat"
)

// Structural summary metric names. These form a fixed registry shared by the
// wrapper, the search drivers and the selector; every fit produces a value
// for every name.
const (
	MetricScore                 = "score"
	MetricWeightOrthogonality   = "weight_orthogonality"
	MetricSampleOrthogonality   = "sample_orthogonality"
	MetricNonzeroComponentFrac  = "nonzero_component_fraction"
	MetricMeanWeightSparsity    = "mean_weight_sparsity"
	MetricMeanSampleSparsity    = "mean_sample_sparsity"
	MetricFractionWindow        = "fraction_window_component"
	MetricNegLogTrainTestErrors = "neglog_ratio_train_test_reconstruction_error"
)

// nonzero components are detected against this share of the largest entry
const componentSpanThreshold = 0.01

// SummaryMetrics lists the metrics computed by Summary, in report order.
func SummaryMetrics() []string {
	return []string{
		MetricWeightOrthogonality,
		MetricSampleOrthogonality,
		MetricNonzeroComponentFrac,
		MetricMeanWeightSparsity,
		MetricMeanSampleSparsity,
		MetricFractionWindow,
	}
}

// TrackedMetrics lists every named sub-score attached to a fold record:
// the summary metrics plus the wrapper-level train/test error ratio.
func TrackedMetrics() []string {
	return append(SummaryMetrics(), MetricNegLogTrainTestErrors)
}

// PruneAtZeroMetrics lists the structural metrics whose collapse to exactly
// zero marks a degenerate parameter space for pruning.
func PruneAtZeroMetrics() []string {
	return SummaryMetrics()
}

// Summary computes the structural summary of a factorization. Sparsity is
// reported negated (-1 is maximally sparse) so its ideal sits at the -1.0
// optimization target; orthogonality metrics report deviation of the
// normalized Gram matrix from identity, ideal 0.
func Summary(w, h *mat.Dense) map[string]float64 {
	rows, k := w.Dims()
	_, cols := h.Dims()
	if rows == 0 || cols == 0 || k == 0 {
		zeros := make(map[string]float64, len(SummaryMetrics()))
		for _, metric := range SummaryMetrics() {
			zeros[metric] = 0
		}
		return zeros
	}

	nonzero := make([]bool, k)
	nNonzero := 0
	for p := 0; p < k; p++ {
		if columnMax(w, p, rows) > 0 && rowMax(h, p, cols) > 0 {
			nonzero[p] = true
			nNonzero++
		}
	}

	weightSparsity, sampleSparsity := 0.0, 0.0
	span := 0.0
	for p := 0; p < k; p++ {
		weightSparsity += hoyerSparsity(colVector(w, p, rows))
		sampleSparsity += hoyerSparsity(rowVector(h, p, cols))
		if nonzero[p] {
			span += componentSpan(w, p, rows)
		}
	}
	weightSparsity /= float64(k)
	sampleSparsity /= float64(k)
	if nNonzero > 0 {
		span /= float64(nNonzero)
	}

	return map[string]float64{
		MetricWeightOrthogonality:  gramDeviation(w, true),
		MetricSampleOrthogonality:  gramDeviation(h, false),
		MetricNonzeroComponentFrac: float64(nNonzero) / float64(k),
		MetricMeanWeightSparsity:   -weightSparsity,
		MetricMeanSampleSparsity:   -sampleSparsity,
		MetricFractionWindow:       span,
	}
}

// gramDeviation normalizes the factor's component vectors to unit length and
// measures the Frobenius distance of their Gram matrix from identity, scaled
// by the component count. Columns of W are components; rows of H are.
func gramDeviation(m *mat.Dense, byColumn bool) float64 {
	var vectors [][]float64
	if byColumn {
		rows, k := m.Dims()
		for p := 0; p < k; p++ {
			vectors = append(vectors, colVector(m, p, rows))
		}
	} else {
		k, cols := m.Dims()
		for p := 0; p < k; p++ {
			vectors = append(vectors, rowVector(m, p, cols))
		}
	}
	k := len(vectors)
	for p := range vectors {
		vectors[p] = unitScale(vectors[p], vectorNorm(vectors[p]))
	}
	deviation := 0.0
	for p := 0; p < k; p++ {
		for q := 0; q < k; q++ {
			dot := 0.0
			for i := range vectors[p] {
				dot += vectors[p][i] * vectors[q][i]
			}
			target := 0.0
			if p == q && vectorNorm(vectors[p]) > 0 {
				target = 1.0
			}
			deviation += (dot - target) * (dot - target)
		}
	}
	return math.Sqrt(deviation) / float64(k)
}

// hoyerSparsity measures sparsity of a vector in [0, 1], 1 being a single
// spike and 0 a flat vector. All-zero vectors report 0 so fully degenerate
// factors surface through the prune-at-zero checks.
func hoyerSparsity(x []float64) float64 {
	n := float64(len(x))
	if n <= 1 {
		return 0
	}
	l1, l2 := 0.0, 0.0
	for _, v := range x {
		l1 += math.Abs(v)
		l2 += v * v
	}
	if l2 == 0 {
		return 0
	}
	return (math.Sqrt(n) - l1/math.Sqrt(l2)) / (math.Sqrt(n) - 1)
}

// componentSpan is the fraction of scans where the component carries weight
// above a relative threshold.
func componentSpan(w *mat.Dense, p, rows int) float64 {
	max := columnMax(w, p, rows)
	if max == 0 {
		return 0
	}
	count := 0
	for i := 0; i < rows; i++ {
		if w.At(i, p) > componentSpanThreshold*max {
			count++
		}
	}
	return float64(count) / float64(rows)
}

func columnMax(m *mat.Dense, col, rows int) float64 {
	max := 0.0
	for i := 0; i < rows; i++ {
		if m.At(i, col) > max {
			max = m.At(i, col)
		}
	}
	return max
}

func rowMax(m *mat.Dense, row, cols int) float64 {
	max := 0.0
	for j := 0; j < cols; j++ {
		if m.At(row, j) > max {
			max = m.At(row, j)
		}
	}
	return max
}

func rowVector(m *mat.Dense, row, cols int) []float64 {
	v := make([]float64, cols)
	for j := 0; j < cols; j++ {
		v[j] = m.At(row, j)
	}
	return v
}
