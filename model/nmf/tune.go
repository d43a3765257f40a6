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
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fragfeat/nmftune/base/log"
	"github.com/fragfeat/nmftune/config"
	"github.com/fragfeat/nmftune/model"
)

// Search method names accepted by Tune.
const (
	MethodRandomized = "randomized"
	MethodTPE        = "tpe"
)

// ResultSchemaVersion is bumped whenever the persisted result layout changes.
const ResultSchemaVersion = 1

// TuneResult is the persisted outcome of one tuning run.
type TuneResult struct {
	SchemaVersion int           `json:"schema_version"`
	CreatedAt     time.Time     `json:"created_at"`
	Method        string        `json:"method"`
	BestParams    model.Params  `json:"best_params"`
	BestIndex     int           `json:"best_index"`
	Results       *CVResults    `json:"results"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Tune runs one full tuning pass: build the estimator from the configuration,
// drive the requested search over the input matrices, and pick the final
// parameter set by harmonic-mean consensus over the objective metrics.
// Log output is redirected into outputDir for the duration of the run and the
// result is written there as versioned JSON.
func Tune(method string, conf *config.Config, ms []*mat.Dense, outputDir string) (*TuneResult, error) {
	if len(ms) == 0 {
		return nil, errors.NotValidf("empty matrix set")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Trace(err)
	}
	stamp := time.Now().Format("20060102_150405")
	restore, err := log.RedirectToFile(filepath.Join(outputDir, "tuning_"+stamp+".log"))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer restore()

	estimator := estimatorFromConfig(conf)
	space := spaceFromConfig(conf.Tuning.SearchSpace)
	opt := model.NewOptimizationParametersFromConfig(conf)
	start := time.Now()

	var results *CVResults
	switch method {
	case MethodRandomized:
		results, err = RandomizedSearchCV(estimator, ms, space,
			conf.Tuning.NIter, conf.Tuning.NJobs, conf.RandomSeed)
	case MethodTPE:
		results, err = TPESearchCV(estimator, ms, space, opt,
			conf.Tuning.ObjectiveParams, conf.Tuning.PruneBadSpaces,
			conf.Tuning.NIter, conf.Tuning.NJobs, conf.RandomSeed)
	default:
		err = errors.NotValidf("search method %q", method)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	bestParams, bestIndex, err := PickParamsHarmonicMean(results, opt,
		conf.Tuning.ObjectiveParams, conf.Tuning.PruneBadSpaces)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := &TuneResult{
		SchemaVersion: ResultSchemaVersion,
		CreatedAt:     time.Now(),
		Method:        method,
		BestParams:    bestParams,
		BestIndex:     bestIndex,
		Results:       results,
		Elapsed:       time.Since(start),
	}
	resultPath := filepath.Join(outputDir, "tuning_result_"+stamp+".json")
	if err := SaveResult(result, resultPath); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("tuning complete",
		zap.String("method", method),
		zap.String("best_params", bestParams.ToString()),
		zap.Duration("elapsed", result.Elapsed),
		zap.String("result_path", resultPath))
	return result, nil
}

// SaveResult writes a tuning result as indented JSON.
func SaveResult(result *TuneResult, path string) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.WriteFile(path, encoded, 0o644))
}

// LoadResult reads a previously saved tuning result, rejecting newer schemas.
func LoadResult(path string) (*TuneResult, error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var result TuneResult
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, errors.Trace(err)
	}
	if result.SchemaVersion > ResultSchemaVersion {
		return nil, errors.NotSupportedf("result schema version %d", result.SchemaVersion)
	}
	return &result, nil
}

func estimatorFromConfig(conf *config.Config) *MaskWrapper {
	opts := DefaultFitOptions()
	opts.NComponents = conf.Tuning.NComponents
	opts.AlphaW = conf.NMF.AlphaW
	opts.AlphaH = conf.NMF.AlphaH
	opts.L1Ratio = conf.NMF.L1Ratio
	opts.MaxIter = conf.NMF.MaxIter
	opts.Solver = conf.NMF.Solver
	opts.Seed = conf.RandomSeed
	return NewMaskWrapper(conf.Tuning.SplitterType, conf.Tuning.NSplits,
		conf.Tuning.TestFraction, conf.Tuning.MaskSignal, conf.Tuning.BalanceMaskSignal, opts)
}

func spaceFromConfig(searchSpace map[string]config.ParamSpace) model.ParamSpace {
	space := make(model.ParamSpace, len(searchSpace))
	for name, dim := range searchSpace {
		space[model.CanonicalParamName(name)] = model.ParamRange{
			Values: dim.Values,
			Low:    dim.Low,
			High:   dim.High,
			Log:    dim.Scale == "log",
		}
	}
	return space
}
