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

	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fragfeat/nmftune/base"
	"github.com/fragfeat/nmftune/base/log"
	"github.com/fragfeat/nmftune/base/parallel"
	"github.com/fragfeat/nmftune/model"
)

// RandomizedSearchCV samples candidate parameter sets uniformly from the
// search space and scores each with masked cross-validation. Candidates run
// in parallel on cloned estimators so no fitted state is shared.
func RandomizedSearchCV(estimator Estimator, ms []*mat.Dense, space model.ParamSpace,
	nCandidates, nJobs int, seed int64) (*CVResults, error) {
	if nCandidates <= 0 {
		return nil, errors.NotValidf("number of candidates %d", nCandidates)
	}
	if nJobs <= 0 {
		nJobs = 1
	}

	rng := base.NewRandomGenerator(seed)
	candidates := make([]model.Params, nCandidates)
	for i := range candidates {
		candidates[i] = space.Sample(rng)
	}

	log.Logger().Info("start randomized search",
		zap.Int("n_candidates", nCandidates),
		zap.Int("n_jobs", nJobs),
		zap.Int("n_matrices", len(ms)),
		zap.Any("search_space", space.Names()))

	records := make([][]TrialRecord, nCandidates)
	completed := atomic.NewInt64(0)
	err := parallel.Parallel(nCandidates, nJobs, func(workerId, jobId int) error {
		worker := estimator.Clone()
		records[jobId] = worker.FitAndScore(ms, candidates[jobId])
		log.Logger().Debug("scored candidate",
			zap.Int64("completed", completed.Inc()),
			zap.Int("n_candidates", nCandidates),
			zap.Int("worker", workerId),
			zap.String("params", candidates[jobId].ToString()))
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	results, err := NewCVResults(candidates, records, estimator.NSplits())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if expected := nCandidates * estimator.NSplits(); results.NumRecords() != expected {
		return nil, fmt.Errorf("randomized search produced %d records, want %d", results.NumRecords(), expected)
	}
	log.Logger().Info("randomized search complete",
		zap.Float64("best_score", results.BestScore()),
		zap.String("best_params", results.BestParams().ToString()))
	return results, nil
}
