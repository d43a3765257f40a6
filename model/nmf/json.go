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
	"encoding/json"
	"math"
	"time"

	"github.com/fragfeat/nmftune/model"
)

// Failed folds leave NaN scores in records and result columns, which
// encoding/json refuses to emit. Both types round-trip NaN and infinities
// through JSON null instead.

type trialRecordJSON struct {
	TestScores    map[string]*float64 `json:"test_scores,omitempty"`
	TrainScores   map[string]*float64 `json:"train_scores,omitempty"`
	NTestSamples  int                 `json:"n_test_samples"`
	NTrainSamples int                 `json:"n_train_samples"`
	FitTime       time.Duration       `json:"fit_time"`
	ScoreTime     time.Duration       `json:"score_time"`
	FitError      string              `json:"fit_error,omitempty"`
}

func (r TrialRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(trialRecordJSON{
		TestScores:    sanitizeScores(r.TestScores),
		TrainScores:   sanitizeScores(r.TrainScores),
		NTestSamples:  r.NTestSamples,
		NTrainSamples: r.NTrainSamples,
		FitTime:       r.FitTime,
		ScoreTime:     r.ScoreTime,
		FitError:      r.FitError,
	})
}

func (r *TrialRecord) UnmarshalJSON(data []byte) error {
	var decoded trialRecordJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = TrialRecord{
		TestScores:    restoreScores(decoded.TestScores),
		TrainScores:   restoreScores(decoded.TrainScores),
		NTestSamples:  decoded.NTestSamples,
		NTrainSamples: decoded.NTrainSamples,
		FitTime:       decoded.FitTime,
		ScoreTime:     decoded.ScoreTime,
		FitError:      decoded.FitError,
	}
	return nil
}

type cvResultsJSON struct {
	Params  []model.Params        `json:"params"`
	Columns map[string][]*float64 `json:"columns"`
	NSplits int                   `json:"n_splits"`
}

func (r *CVResults) MarshalJSON() ([]byte, error) {
	columns := make(map[string][]*float64, len(r.Columns))
	for name, values := range r.Columns {
		column := make([]*float64, len(values))
		for i, v := range values {
			if value := v; !math.IsNaN(v) && !math.IsInf(v, 0) {
				column[i] = &value
			}
		}
		columns[name] = column
	}
	return json.Marshal(cvResultsJSON{Params: r.Params, Columns: columns, NSplits: r.NSplits})
}

func (r *CVResults) UnmarshalJSON(data []byte) error {
	var decoded cvResultsJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	columns := make(map[string][]float64, len(decoded.Columns))
	for name, values := range decoded.Columns {
		column := make([]float64, len(values))
		for i, v := range values {
			if v == nil {
				column[i] = math.NaN()
			} else {
				column[i] = *v
			}
		}
		columns[name] = column
	}
	*r = CVResults{Params: decoded.Params, Columns: columns, NSplits: decoded.NSplits}
	return nil
}

func sanitizeScores(scores map[string]float64) map[string]*float64 {
	if scores == nil {
		return nil
	}
	sanitized := make(map[string]*float64, len(scores))
	for name, v := range scores {
		if value := v; !math.IsNaN(v) && !math.IsInf(v, 0) {
			sanitized[name] = &value
		} else {
			sanitized[name] = nil
		}
	}
	return sanitized
}

func restoreScores(scores map[string]*float64) map[string]float64 {
	if scores == nil {
		return nil
	}
	restored := make(map[string]float64, len(scores))
	for name, v := range scores {
		if v == nil {
			restored[name] = math.NaN()
		} else {
			restored[name] = *v
		}
	}
	return restored
}
