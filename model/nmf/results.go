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
	"fmt"
	"math"
	"sort"

	"github.com/fragfeat/nmftune/model"
)

// CVResults is the column-oriented cross-validation result table. One row per
// candidate parameter set, one split column per (split, metric) pair plus the
// aggregated mean and standard deviation columns and the score ranking.
type CVResults struct {
	Params  []model.Params       `json:"params"`
	Columns map[string][]float64 `json:"columns"`
	NSplits int                  `json:"n_splits"`
}

// SplitColumn names the per-split test column of a metric.
func SplitColumn(split int, metric string) string {
	return fmt.Sprintf("split%d_test_%s", split, metric)
}

// MeanColumn names the across-split mean test column of a metric.
func MeanColumn(metric string) string {
	return "mean_test_" + metric
}

// StdColumn names the across-split standard deviation column of a metric.
func StdColumn(metric string) string {
	return "std_test_" + metric
}

// TrainMeanColumn names the across-split mean train column of a metric.
func TrainMeanColumn(metric string) string {
	return "mean_train_" + metric
}

// RankColumn orders candidates by mean test score, best first.
const RankColumn = "rank_test_score"

// NewCVResults aggregates per-candidate trial records into the result table.
// Each candidate must carry exactly nSplits records. Candidates whose fit
// failed keep their row with NaN score columns so ranks stay aligned with the
// candidate list.
func NewCVResults(params []model.Params, records [][]TrialRecord, nSplits int) (*CVResults, error) {
	if len(params) != len(records) {
		return nil, fmt.Errorf("result table misaligned: %d candidates but %d record groups", len(params), len(records))
	}
	results := &CVResults{
		Params:  params,
		Columns: make(map[string][]float64),
		NSplits: nSplits,
	}
	metrics := append([]string{MetricScore}, TrackedMetrics()...)
	for row, group := range records {
		if len(group) != nSplits {
			return nil, fmt.Errorf("candidate %d produced %d records, want %d", row, len(group), nSplits)
		}
		for _, metric := range metrics {
			testValues := make([]float64, nSplits)
			trainValues := make([]float64, nSplits)
			for s, record := range group {
				testValues[s] = recordValue(record.TestScores, metric)
				trainValues[s] = recordValue(record.TrainScores, metric)
				results.appendColumn(SplitColumn(s, metric), row, testValues[s])
			}
			results.appendColumn(MeanColumn(metric), row, nanMean(testValues))
			results.appendColumn(StdColumn(metric), row, nanStd(testValues))
			results.appendColumn(TrainMeanColumn(metric), row, nanMean(trainValues))
		}
		fitTime, scoreTime := 0.0, 0.0
		for _, record := range group {
			fitTime += record.FitTime.Seconds()
			scoreTime += record.ScoreTime.Seconds()
		}
		results.appendColumn("mean_fit_time", row, fitTime/float64(nSplits))
		results.appendColumn("mean_score_time", row, scoreTime/float64(nSplits))
	}
	results.Columns[RankColumn] = rankDescending(results.Columns[MeanColumn(MetricScore)])
	return results, nil
}

func (r *CVResults) appendColumn(name string, row int, value float64) {
	column := r.Columns[name]
	for len(column) < row {
		column = append(column, math.NaN())
	}
	r.Columns[name] = append(column, value)
}

// NumCandidates returns the number of rows in the table.
func (r *CVResults) NumCandidates() int {
	return len(r.Params)
}

// NumRecords returns the number of scored (candidate, split) cells backing
// the score columns. Used by the drivers' consistency checks.
func (r *CVResults) NumRecords() int {
	return len(r.Params) * r.NSplits
}

// BestIndex returns the row with rank 1, or -1 for an empty table. Failed
// rows rank after every scored row, so the best row is NaN only when every
// candidate failed.
func (r *CVResults) BestIndex() int {
	for i, rank := range r.Columns[RankColumn] {
		if rank == 1 {
			return i
		}
	}
	return -1
}

// BestParams returns the parameter set of the best-ranked candidate.
func (r *CVResults) BestParams() model.Params {
	if i := r.BestIndex(); i >= 0 {
		return r.Params[i]
	}
	return nil
}

// BestScore returns the mean test score of the best-ranked candidate.
func (r *CVResults) BestScore() float64 {
	if i := r.BestIndex(); i >= 0 {
		return r.Columns[MeanColumn(MetricScore)][i]
	}
	return math.NaN()
}

func recordValue(scores map[string]float64, metric string) float64 {
	if scores == nil {
		return math.NaN()
	}
	if value, ok := scores[metric]; ok {
		return value
	}
	return math.NaN()
}

// rankDescending assigns dense 1-based ranks by value, highest first.
// NaN rows rank after every finite row.
func rankDescending(values []float64) []float64 {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := values[order[a]], values[order[b]]
		if math.IsNaN(vb) {
			return !math.IsNaN(va)
		}
		if math.IsNaN(va) {
			return false
		}
		return va > vb
	})
	ranks := make([]float64, len(values))
	for rank, idx := range order {
		ranks[idx] = float64(rank + 1)
	}
	return ranks
}

// nanStd is the population standard deviation over the finite entries.
func nanStd(values []float64) float64 {
	mean := nanMean(values)
	if math.IsNaN(mean) {
		return math.NaN()
	}
	sum, count := 0.0, 0
	for _, v := range values {
		if !math.IsNaN(v) {
			d := v - mean
			sum += d * d
			count++
		}
	}
	return math.Sqrt(sum / float64(count))
}
