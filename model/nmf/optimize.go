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
	"fmt"
	"os"
	"path/filepath"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/rdb.v2"
	"github.com/c-bata/goptuna/tpe"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fragfeat/nmftune/base/log"
	"github.com/fragfeat/nmftune/base/parallel"
	"github.com/fragfeat/nmftune/model"
)

const (
	trialAttrRecords  = "records"
	trialAttrFitError = "fit_error"
)

// TPESearchCV drives the search with goptuna's tree-structured Parzen
// estimator instead of uniform sampling. Trials run through a sqlite-backed
// study in a temporary directory so concurrent workers share one sampler
// history. Trials whose fit failed are pruned; the search aborts unless every
// requested trial contributed a full set of fold records.
//
// goptuna studies are single-objective, so each trial's study value is the
// mean of the target-centered scores of the requested objective metrics; the
// full per-metric records travel as trial attributes and feed the result
// table unchanged.
func TPESearchCV(estimator Estimator, ms []*mat.Dense, space model.ParamSpace,
	opt *model.OptimizationParameters, objectives []string, pruneBadSpaces bool,
	nTrials, nJobs int, seed int64) (*CVResults, error) {
	if nTrials <= 0 {
		return nil, errors.NotValidf("number of trials %d", nTrials)
	}
	if nJobs <= 0 {
		nJobs = 1
	}
	if len(objectives) == 0 {
		objectives = []string{MetricScore}
	}

	tempDir, err := os.MkdirTemp("", "nmftune-study-*")
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Logger().Warn("failed to remove study directory", zap.Error(err))
		}
	}()
	db, err := gorm.Open(sqlite.Open(filepath.Join(tempDir, "study.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = rdb.RunAutoMigrate(db); err != nil {
		return nil, errors.Trace(err)
	}

	study, err := goptuna.CreateStudy("nmf-tuning",
		goptuna.StudyOptionStorage(rdb.NewStorage(db)),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(seed))),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize))
	if err != nil {
		return nil, errors.Trace(err)
	}

	objective := func(trial goptuna.Trial) (float64, error) {
		params, err := suggestParams(trial, space)
		if err != nil {
			return 0, errors.Trace(err)
		}
		records := estimator.Clone().FitAndScore(ms, params)
		for _, record := range records {
			if record.FitError != "" {
				if err := trial.SetUserAttr(trialAttrFitError, record.FitError); err != nil {
					return 0, errors.Trace(err)
				}
				return 0, goptuna.ErrTrialPruned
			}
		}
		encoded, err := json.Marshal(records)
		if err != nil {
			return 0, errors.Trace(err)
		}
		if err := trial.SetUserAttr(trialAttrRecords, string(encoded)); err != nil {
			return 0, errors.Trace(err)
		}
		return objectiveValue(records, opt, objectives, pruneBadSpaces), nil
	}

	batches := parallel.Split(lo.Range(nTrials), nJobs)
	log.Logger().Info("start TPE search",
		zap.Int("n_trials", nTrials),
		zap.Int("n_jobs", nJobs),
		zap.Int("n_matrices", len(ms)),
		zap.Any("objectives", objectives))
	err = parallel.Parallel(len(batches), nJobs, func(workerId, jobId int) error {
		if len(batches[jobId]) == 0 {
			return nil
		}
		return study.Optimize(objective, len(batches[jobId]))
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	trials, err := study.GetTrials()
	if err != nil {
		return nil, errors.Trace(err)
	}

	var candidates []model.Params
	var recordGroups [][]TrialRecord
	pruned := 0
	for _, trial := range trials {
		if trial.State != goptuna.TrialStateComplete {
			pruned++
			continue
		}
		var records []TrialRecord
		if err := json.Unmarshal([]byte(trial.UserAttrs[trialAttrRecords]), &records); err != nil {
			return nil, errors.Trace(err)
		}
		candidates = append(candidates, trialParams(trial))
		recordGroups = append(recordGroups, records)
	}
	results, err := NewCVResults(candidates, recordGroups, estimator.NSplits())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if required := nTrials * estimator.NSplits(); results.NumRecords() < required {
		return nil, fmt.Errorf("TPE search completed %d records, want at least %d",
			results.NumRecords(), required)
	}
	log.Logger().Info("TPE search complete",
		zap.Int("n_completed", len(candidates)),
		zap.Int("n_pruned", pruned),
		zap.Float64("best_score", results.BestScore()),
		zap.String("best_params", results.BestParams().ToString()))
	return results, nil
}

// suggestParams draws one candidate from the search space through the trial's
// sampler. Categorical dimensions suggest from their value list, log-scaled
// dimensions from a log-uniform range and the rest from a uniform range.
func suggestParams(trial goptuna.Trial, space model.ParamSpace) (model.Params, error) {
	params := make(model.Params, len(space))
	for _, name := range space.Names() {
		dim := space[name]
		switch {
		case dim.Categorical():
			value, err := trial.SuggestCategorical(string(name), dim.Values)
			if err != nil {
				return nil, errors.Trace(err)
			}
			params[name] = value
		case dim.Log:
			value, err := trial.SuggestLogFloat(string(name), dim.Low, dim.High)
			if err != nil {
				return nil, errors.Trace(err)
			}
			params[name] = value
		default:
			value, err := trial.SuggestFloat(string(name), dim.Low, dim.High)
			if err != nil {
				return nil, errors.Trace(err)
			}
			params[name] = value
		}
	}
	return params, nil
}

// objectiveValue scalarizes one trial: mean across splits per metric, scored
// against the optimization targets, then averaged over the objective metrics.
// With pruning enabled, a metric that collapsed to exactly zero is replaced by
// the pruned floor before scoring.
func objectiveValue(records []TrialRecord, opt *model.OptimizationParameters, objectives []string, pruneBadSpaces bool) float64 {
	total := 0.0
	for _, metric := range objectives {
		values := make([]float64, len(records))
		for i, record := range records {
			values[i] = recordValue(record.TestScores, metric)
		}
		raw := nanMean(values)
		if pruneBadSpaces && raw == 0 && lo.Contains(PruneAtZeroMetrics(), metric) {
			raw = prunedScoreFloor
		}
		total += opt.Score(metric, raw)
	}
	return total / float64(len(objectives))
}

func trialParams(trial goptuna.FrozenTrial) model.Params {
	params := make(model.Params, len(trial.Params))
	for name, value := range trial.Params {
		params[model.ParamName(name)] = value
	}
	return params
}
