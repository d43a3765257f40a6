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
	"time"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fragfeat/nmftune/model"
)

// Wrapper-level hyper-parameter names, exposed next to the factorization
// options through GetParams/SetParams.
const (
	ParamSplitterType      model.ParamName = "splitter_type"
	ParamNSplits           model.ParamName = "n_splits"
	ParamMaskFraction      model.ParamName = "mask_fraction"
	ParamMaskSignal        model.ParamName = "mask_signal"
	ParamBalanceMaskSignal model.ParamName = "balance_mask_signal"
)

// TrialRecord is the scored outcome of one cross-validation split for one
// candidate parameter set. A failed fit still yields a record with FitError
// set and no scores, so aggregation alignment survives partial failure.
type TrialRecord struct {
	TestScores    map[string]float64 `json:"test_scores,omitempty"`
	TrainScores   map[string]float64 `json:"train_scores,omitempty"`
	NTestSamples  int                `json:"n_test_samples"`
	NTrainSamples int                `json:"n_train_samples"`
	FitTime       time.Duration      `json:"fit_time"`
	ScoreTime     time.Duration      `json:"score_time"`
	FitError      string             `json:"fit_error,omitempty"`
}

// Estimator is the contract the search drivers place on a tunable model.
type Estimator interface {
	// Clone returns an unfitted copy carrying the same configuration.
	Clone() Estimator
	// SetParams applies one candidate hyperparameter set.
	SetParams(params model.Params)
	// GetParams exposes the current hyperparameter set.
	GetParams() model.Params
	// NSplits returns the number of cross-validation splits per fit.
	NSplits() int
	// FitAndScore applies params, fits on the matrix set and returns exactly
	// NSplits records. Fit failure is reported inside the records.
	FitAndScore(ms []*mat.Dense, params model.Params) []TrialRecord
}

// MaskWrapper fits NMF on masked training data across all splits and
// matrices, collecting reconstruction errors and structural summaries.
type MaskWrapper struct {
	SplitterType      string
	NumSplits         int
	MaskFraction      float64
	MaskSignal        bool
	BalanceMaskSignal bool
	FitOpts           FitOptions

	// fitted state, all lists aligned at NumSplits x len(ms) entries
	models                    []*FitResult
	testReconstructionErrors  []float64
	trainReconstructionErrors []float64
	testSamples               []int
	trainSamples              []int
	metrics                   map[string][]float64
}

// NewMaskWrapper creates a wrapper with the given splitter configuration and
// factorization options.
func NewMaskWrapper(splitterType string, nSplits int, maskFraction float64, maskSignal, balanceMaskSignal bool, opts FitOptions) *MaskWrapper {
	return &MaskWrapper{
		SplitterType:      splitterType,
		NumSplits:         nSplits,
		MaskFraction:      maskFraction,
		MaskSignal:        maskSignal,
		BalanceMaskSignal: balanceMaskSignal,
		FitOpts:           opts,
	}
}

// Clone returns an unfitted wrapper with the same configuration.
func (w *MaskWrapper) Clone() Estimator {
	return NewMaskWrapper(w.SplitterType, w.NumSplits, w.MaskFraction, w.MaskSignal, w.BalanceMaskSignal, w.FitOpts)
}

// NSplits returns the number of cross-validation splits per fit.
func (w *MaskWrapper) NSplits() int {
	return w.NumSplits
}

// Models returns the fitted factorization of every (split, matrix) pair.
func (w *MaskWrapper) Models() []*FitResult {
	return w.models
}

// Metric returns one aligned metric list of the last fit.
func (w *MaskWrapper) Metric(name string) []float64 {
	return w.metrics[name]
}

// TestReconstructionErrors returns the held-out errors of the last fit.
func (w *MaskWrapper) TestReconstructionErrors() []float64 {
	return w.testReconstructionErrors
}

// TrainReconstructionErrors returns the training errors of the last fit.
func (w *MaskWrapper) TrainReconstructionErrors() []float64 {
	return w.trainReconstructionErrors
}

// GetParams exposes the factorization options as first-class hyperparameters
// next to the wrapper's own fields.
func (w *MaskWrapper) GetParams() model.Params {
	params := w.FitOpts.ToParams()
	params[ParamSplitterType] = w.SplitterType
	params[ParamNSplits] = w.NumSplits
	params[ParamMaskFraction] = w.MaskFraction
	params[ParamMaskSignal] = w.MaskSignal
	params[ParamBalanceMaskSignal] = w.BalanceMaskSignal
	return params
}

// SetParams applies wrapper fields and factorization options from a candidate set.
func (w *MaskWrapper) SetParams(params model.Params) {
	w.SplitterType = params.GetString(ParamSplitterType, w.SplitterType)
	w.NumSplits = params.GetInt(ParamNSplits, w.NumSplits)
	w.MaskFraction = params.GetFloat64(ParamMaskFraction, w.MaskFraction)
	w.MaskSignal = params.GetBool(ParamMaskSignal, w.MaskSignal)
	w.BalanceMaskSignal = params.GetBool(ParamBalanceMaskSignal, w.BalanceMaskSignal)
	w.FitOpts = w.FitOpts.FromParams(params)
}

// Fit runs the masked cross-validation loop: NumSplits splitter iterations
// times one fit per input matrix. Every branch appends to every metric list
// exactly once per iteration, including degenerate fits, so all lists end at
// NumSplits x len(ms) entries. An unknown splitter type fails before any
// state is touched.
func (w *MaskWrapper) Fit(ms []*mat.Dense) error {
	splitter, err := NewSplitter(w.SplitterType, w.NumSplits, w.MaskFraction, w.FitOpts.Seed, w.MaskSignal, w.BalanceMaskSignal)
	if err != nil {
		return errors.Trace(err)
	}

	w.models = nil
	w.testReconstructionErrors = nil
	w.trainReconstructionErrors = nil
	w.testSamples = nil
	w.trainSamples = nil
	w.metrics = make(map[string][]float64)

	for _, split := range splitter.Split(ms) {
		for i, m := range ms {
			train, test := split.Train[i], split.Test[i]
			mTrain := splitter.MaskTrainMatrix(mat.DenseCopyOf(m), test)
			fit := Fit(mTrain, w.FitOpts)
			reconstructed := fit.Reconstruct()

			mse := splitter.ReconstructionError(m, reconstructed, test, fit)
			mseTrain := splitter.ReconstructionError(m, reconstructed, train, fit)
			summary := Summary(fit.W, fit.H)

			w.models = append(w.models, fit)
			w.testReconstructionErrors = append(w.testReconstructionErrors, mse)
			w.trainReconstructionErrors = append(w.trainReconstructionErrors, mseTrain)
			w.testSamples = append(w.testSamples, test.Count())
			w.trainSamples = append(w.trainSamples, train.Count())
			for _, metric := range SummaryMetrics() {
				w.metrics[metric] = append(w.metrics[metric], summary[metric])
			}
			w.metrics[MetricNegLogTrainTestErrors] = append(w.metrics[MetricNegLogTrainTestErrors],
				-math.Log2(mseTrain/mse))
		}
	}
	return nil
}

// Score is the legacy single-objective score: the negated mean held-out
// reconstruction error. The search drivers use the per-metric records instead.
func (w *MaskWrapper) Score() float64 {
	return -nanMean(w.testReconstructionErrors)
}

// FitAndScore applies one candidate parameter set, fits, and folds the
// per-(split, matrix) lists into exactly NumSplits records by averaging
// across matrices within each split.
func (w *MaskWrapper) FitAndScore(ms []*mat.Dense, params model.Params) []TrialRecord {
	start := time.Now()
	w.SetParams(params)
	err := w.Fit(ms)
	fitTime := time.Since(start)
	if err != nil {
		records := make([]TrialRecord, w.NumSplits)
		for i := range records {
			records[i] = TrialRecord{FitTime: fitTime, FitError: err.Error()}
		}
		return records
	}

	scoreStart := time.Now()
	nMatrices := len(ms)
	records := make([]TrialRecord, w.NumSplits)
	for s := 0; s < w.NumSplits; s++ {
		begin, end := s*nMatrices, (s+1)*nMatrices
		record := TrialRecord{
			TestScores:  map[string]float64{MetricScore: -nanMean(w.testReconstructionErrors[begin:end])},
			TrainScores: map[string]float64{MetricScore: -nanMean(w.trainReconstructionErrors[begin:end])},
			FitTime:     fitTime,
		}
		for _, metric := range TrackedMetrics() {
			value := nanMean(w.metrics[metric][begin:end])
			record.TestScores[metric] = value
			record.TrainScores[metric] = value
		}
		for i := begin; i < end; i++ {
			record.NTestSamples += w.testSamples[i]
			record.NTrainSamples += w.trainSamples[i]
		}
		records[s] = record
	}
	scoreTime := time.Since(scoreStart)
	for i := range records {
		records[i].ScoreTime = scoreTime
	}
	return records
}

// nanMean averages the finite entries of a slice, tolerating NaN gaps left
// by degenerate folds. An all-NaN or empty slice yields NaN.
func nanMean(values []float64) float64 {
	sum, count := 0.0, 0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}
