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

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSummary_CompleteRegistry(t *testing.T) {
	w := mat.NewDense(4, 2, []float64{1, 0, 2, 1, 0, 3, 1, 1})
	h := mat.NewDense(2, 5, []float64{1, 2, 0, 1, 0, 0, 1, 3, 0, 1})
	summary := Summary(w, h)
	assert.Len(t, summary, len(SummaryMetrics()))
	for _, metric := range SummaryMetrics() {
		assert.Contains(t, summary, metric)
	}
	assert.Len(t, TrackedMetrics(), len(SummaryMetrics())+1)
}

func TestSummary_OrthogonalFactors(t *testing.T) {
	// spike components: orthogonal, maximally sparse, spanning one scan each
	w := mat.NewDense(4, 2, []float64{
		3, 0,
		0, 0,
		0, 5,
		0, 0,
	})
	h := mat.NewDense(2, 4, []float64{
		2, 0, 0, 0,
		0, 0, 4, 0,
	})
	summary := Summary(w, h)
	assert.InDelta(t, 0, summary[MetricWeightOrthogonality], 1e-12)
	assert.InDelta(t, 0, summary[MetricSampleOrthogonality], 1e-12)
	assert.InDelta(t, -1, summary[MetricMeanWeightSparsity], 1e-12)
	assert.InDelta(t, -1, summary[MetricMeanSampleSparsity], 1e-12)
	assert.Equal(t, 1.0, summary[MetricNonzeroComponentFrac])
	assert.Equal(t, 0.25, summary[MetricFractionWindow])
}

func TestSummary_FlatComponent(t *testing.T) {
	// one flat component: zero sparsity and full window span
	w := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	h := mat.NewDense(1, 3, []float64{2, 2, 2})
	summary := Summary(w, h)
	assert.InDelta(t, 0, summary[MetricMeanWeightSparsity], 1e-12)
	assert.InDelta(t, 0, summary[MetricMeanSampleSparsity], 1e-12)
	assert.Equal(t, 1.0, summary[MetricFractionWindow])
}

func TestSummary_ZeroFactors(t *testing.T) {
	w := mat.NewDense(4, 2, nil)
	h := mat.NewDense(2, 5, nil)
	summary := Summary(w, h)
	for _, metric := range PruneAtZeroMetrics() {
		assert.Zero(t, summary[metric], metric)
	}
}

func TestSummary_PartiallyZeroComponents(t *testing.T) {
	w := mat.NewDense(4, 2, []float64{
		1, 0,
		2, 0,
		1, 0,
		3, 0,
	})
	h := mat.NewDense(2, 3, []float64{1, 1, 1, 0, 0, 0})
	summary := Summary(w, h)
	assert.Equal(t, 0.5, summary[MetricNonzeroComponentFrac])
}

func TestHoyerSparsity(t *testing.T) {
	assert.InDelta(t, 1, hoyerSparsity([]float64{0, 7, 0, 0}), 1e-12)
	assert.InDelta(t, 0, hoyerSparsity([]float64{3, 3, 3, 3}), 1e-12)
	assert.Zero(t, hoyerSparsity([]float64{0, 0, 0}))
	assert.Zero(t, hoyerSparsity([]float64{5}))
	middle := hoyerSparsity([]float64{5, 1, 0, 0})
	assert.Greater(t, middle, 0.0)
	assert.Less(t, middle, 1.0)
}

func TestGramDeviation_ScaleInvariant(t *testing.T) {
	w := mat.NewDense(3, 2, []float64{1, 1, 2, 0, 0, 2})
	scaled := mat.NewDense(3, 2, nil)
	scaled.Scale(10, w)
	assert.InDelta(t, gramDeviation(w, true), gramDeviation(scaled, true), 1e-12)
}
