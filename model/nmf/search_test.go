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

	"github.com/fragfeat/nmftune/model"
)

// mockEstimator scores a candidate by its alpha_W value, so the best
// candidate is known without fitting anything.
type mockEstimator struct {
	nSplits     int
	brokenCount bool
	failAbove   float64
	params      model.Params
}

func (m *mockEstimator) Clone() Estimator {
	return &mockEstimator{nSplits: m.nSplits, brokenCount: m.brokenCount, failAbove: m.failAbove}
}

func (m *mockEstimator) SetParams(params model.Params) {
	m.params = params
}

func (m *mockEstimator) GetParams() model.Params {
	return m.params
}

func (m *mockEstimator) NSplits() int {
	return m.nSplits
}

func (m *mockEstimator) FitAndScore(_ []*mat.Dense, params model.Params) []TrialRecord {
	m.SetParams(params)
	n := m.nSplits
	if m.brokenCount {
		n--
	}
	alpha := params.GetFloat64(model.AlphaW, 0)
	records := make([]TrialRecord, n)
	for i := range records {
		if m.failAbove > 0 && alpha > m.failAbove {
			records[i] = TrialRecord{FitError: "mock failure"}
		} else {
			records[i] = scoredRecord(alpha)
		}
	}
	return records
}

func searchTestSpace() model.ParamSpace {
	return model.ParamSpace{
		model.AlphaW: {Low: 0, High: 1},
	}
}

func TestRandomizedSearchCV(t *testing.T) {
	estimator := &mockEstimator{nSplits: 2}
	ms := []*mat.Dense{mat.NewDense(5, 5, nil), mat.NewDense(5, 5, nil)}
	results, err := RandomizedSearchCV(estimator, ms, searchTestSpace(), 12, 3, 0)
	assert.NoError(t, err)
	assert.Equal(t, 12, results.NumCandidates())
	assert.Equal(t, 12*2, results.NumRecords())

	// the candidate with the largest alpha scores best
	best := results.BestParams().GetFloat64(model.AlphaW, -1)
	for _, params := range results.Params {
		assert.GreaterOrEqual(t, best, params.GetFloat64(model.AlphaW, -1))
	}
}

func TestRandomizedSearchCV_Deterministic(t *testing.T) {
	estimator := &mockEstimator{nSplits: 2}
	ms := []*mat.Dense{mat.NewDense(5, 5, nil)}
	a, err := RandomizedSearchCV(estimator, ms, searchTestSpace(), 5, 1, 42)
	assert.NoError(t, err)
	b, err := RandomizedSearchCV(estimator, ms, searchTestSpace(), 5, 1, 42)
	assert.NoError(t, err)
	assert.Equal(t, a.Params, b.Params)
	assert.Equal(t, a.Columns[MeanColumn(MetricScore)], b.Columns[MeanColumn(MetricScore)])
}

func TestRandomizedSearchCV_CorruptedRecordCount(t *testing.T) {
	estimator := &mockEstimator{nSplits: 2, brokenCount: true}
	ms := []*mat.Dense{mat.NewDense(5, 5, nil)}
	_, err := RandomizedSearchCV(estimator, ms, searchTestSpace(), 4, 2, 0)
	assert.Error(t, err)
}

func TestRandomizedSearchCV_InvalidBudget(t *testing.T) {
	estimator := &mockEstimator{nSplits: 2}
	_, err := RandomizedSearchCV(estimator, nil, searchTestSpace(), 0, 1, 0)
	assert.Error(t, err)
}

func TestRandomizedSearchCV_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skip fitting in short mode")
	}
	ms := []*mat.Dense{rankTwoMatrix(15, 10)}
	results, err := RandomizedSearchCV(testWrapper(), ms, model.ParamSpace{
		model.AlphaW: {Low: 1e-6, High: 0.1, Log: true},
		model.Solver: {Values: []string{SolverMU, SolverCD}},
	}, 4, 2, 0)
	assert.NoError(t, err)
	assert.Equal(t, 4, results.NumCandidates())
	assert.NotNil(t, results.BestParams())
	assert.LessOrEqual(t, results.BestScore(), 0.0)
}
