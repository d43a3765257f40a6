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

	"github.com/juju/errors"
	"github.com/samber/lo"

	"github.com/fragfeat/nmftune/model"
)

const (
	// harmonicEpsilon keeps the harmonic mean finite when a normalized
	// score hits exactly zero.
	harmonicEpsilon = 1e-9
	// prunedScoreFloor replaces the score of a degenerate candidate so it
	// cannot win any metric after normalization.
	prunedScoreFloor = -10.0
)

// PickParamsHarmonicMean selects the candidate whose metrics are jointly
// closest to their targets. Each objective metric's mean test column is
// re-scored against its target, min-max normalized across candidates, and
// the candidates are ranked by the harmonic mean of their normalized scores.
// The harmonic mean rewards balance: a candidate has to do well on every
// objective, not just on average.
func PickParamsHarmonicMean(results *CVResults, opt *model.OptimizationParameters,
	objectives []string, pruneBadSpaces bool) (model.Params, int, error) {
	n := results.NumCandidates()
	if n == 0 {
		return nil, -1, errors.NotFoundf("candidates to select from")
	}
	if len(objectives) == 0 {
		objectives = TrackedMetrics()
	}

	normalized := make([][]float64, len(objectives))
	for m, metric := range objectives {
		column := results.Columns[MeanColumn(metric)]
		if column == nil {
			return nil, -1, errors.NotFoundf("metric column %q", MeanColumn(metric))
		}
		scores := make([]float64, n)
		for i, raw := range column {
			switch {
			case math.IsNaN(raw):
				scores[i] = prunedScoreFloor
			case pruneBadSpaces && raw == 0 && lo.Contains(PruneAtZeroMetrics(), metric):
				scores[i] = prunedScoreFloor
			default:
				scores[i] = opt.Score(metric, raw)
			}
		}
		normalized[m] = minMaxNormalize(scores)
	}

	best, bestValue := -1, math.Inf(-1)
	for i := 0; i < n; i++ {
		value := harmonicMean(normalized, i)
		if value > bestValue {
			best, bestValue = i, value
		}
	}
	return results.Params[best], best, nil
}

// minMaxNormalize rescales scores to [0, 1]. A constant column maps to all
// ones so it cannot dominate the harmonic mean either way.
func minMaxNormalize(scores []float64) []float64 {
	minValue, maxValue := math.Inf(1), math.Inf(-1)
	for _, v := range scores {
		minValue = math.Min(minValue, v)
		maxValue = math.Max(maxValue, v)
	}
	normalized := make([]float64, len(scores))
	if maxValue == minValue {
		for i := range normalized {
			normalized[i] = 1
		}
		return normalized
	}
	for i, v := range scores {
		normalized[i] = (v - minValue) / (maxValue - minValue)
	}
	return normalized
}

func harmonicMean(normalized [][]float64, candidate int) float64 {
	sum := 0.0
	for _, column := range normalized {
		sum += 1 / (column[candidate] + harmonicEpsilon)
	}
	return float64(len(normalized)) / sum
}
