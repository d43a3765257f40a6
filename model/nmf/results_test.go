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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fragfeat/nmftune/model"
)

func scoredRecord(score float64) TrialRecord {
	record := TrialRecord{
		TestScores:  map[string]float64{MetricScore: score},
		TrainScores: map[string]float64{MetricScore: score + 0.1},
	}
	for _, metric := range TrackedMetrics() {
		record.TestScores[metric] = score / 2
		record.TrainScores[metric] = score / 2
	}
	return record
}

func TestNewCVResults(t *testing.T) {
	params := []model.Params{
		{model.AlphaW: 0.1},
		{model.AlphaW: 0.2},
	}
	records := [][]TrialRecord{
		{scoredRecord(-1), scoredRecord(-3)},
		{scoredRecord(-0.5), scoredRecord(-0.7)},
	}
	results, err := NewCVResults(params, records, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, results.NumCandidates())
	assert.Equal(t, 4, results.NumRecords())

	assert.Equal(t, []float64{-1, -0.5}, results.Columns[SplitColumn(0, MetricScore)])
	assert.Equal(t, []float64{-3, -0.7}, results.Columns[SplitColumn(1, MetricScore)])
	assert.Equal(t, []float64{-2, -0.6}, results.Columns[MeanColumn(MetricScore)])
	assert.InDelta(t, 1.0, results.Columns[StdColumn(MetricScore)][0], 1e-12)
	assert.InDelta(t, -1.9, results.Columns[TrainMeanColumn(MetricScore)][0], 1e-12)

	// second candidate scores higher and ranks first
	assert.Equal(t, []float64{2, 1}, results.Columns[RankColumn])
	assert.Equal(t, 1, results.BestIndex())
	assert.Equal(t, -0.6, results.BestScore())
	assert.Equal(t, params[1], results.BestParams())
}

func TestNewCVResults_Misaligned(t *testing.T) {
	params := []model.Params{{model.AlphaW: 0.1}}
	_, err := NewCVResults(params, [][]TrialRecord{{scoredRecord(-1)}}, 2)
	assert.Error(t, err)
	_, err = NewCVResults(params, nil, 2)
	assert.Error(t, err)
}

func TestNewCVResults_FailedCandidate(t *testing.T) {
	params := []model.Params{
		{model.AlphaW: 0.1},
		{model.AlphaW: 0.2},
	}
	records := [][]TrialRecord{
		{{FitError: "boom"}, {FitError: "boom"}},
		{scoredRecord(-2), scoredRecord(-2)},
	}
	results, err := NewCVResults(params, records, 2)
	assert.NoError(t, err)
	// the failed row stays, with NaN scores, ranked last
	assert.True(t, math.IsNaN(results.Columns[MeanColumn(MetricScore)][0]))
	assert.Equal(t, []float64{2, 1}, results.Columns[RankColumn])
	assert.Equal(t, 1, results.BestIndex())
}

func TestNewCVResults_AllFailed(t *testing.T) {
	params := []model.Params{{model.AlphaW: 0.1}}
	records := [][]TrialRecord{{{FitError: "boom"}, {FitError: "boom"}}}
	results, err := NewCVResults(params, records, 2)
	assert.NoError(t, err)
	// NaN rows still receive a rank, so a best index exists
	assert.Equal(t, 0, results.BestIndex())
	assert.True(t, math.IsNaN(results.BestScore()))
}

func TestRankDescending(t *testing.T) {
	ranks := rankDescending([]float64{0.1, math.NaN(), 0.5, -0.2})
	assert.Equal(t, []float64{2, 4, 1, 3}, ranks)
}
