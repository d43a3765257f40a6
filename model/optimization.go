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

package model

import (
	"math"

	"github.com/fragfeat/nmftune/config"
)

// Error norms for target-centered scoring.
const (
	ErrorNormL1 = "l1"
	ErrorNormL2 = "l2"
)

// OptimizationParameters holds the ideal value of every scored metric and
// turns raw metric values into closer-to-target-is-better scores. Targets are
// immutable after construction.
type OptimizationParameters struct {
	errorNorm string
	targets   map[string]float64
}

// NewOptimizationParameters computes metric targets from scan-window geometry.
// componentsInWindow is the expected number of components per window,
// nComponents the total component count, scanWidth the window width in scans
// and componentSigma the component spread in scan units.
func NewOptimizationParameters(errorNorm string, componentsInWindow, nComponents, scanWidth, componentSigma float64) *OptimizationParameters {
	return &OptimizationParameters{
		errorNorm: errorNorm,
		targets: map[string]float64{
			"weight_orthogonality":       0.0,
			"sample_orthogonality":       0.0,
			"nonzero_component_fraction": componentsInWindow / nComponents,
			"mean_weight_sparsity":       -1.0,
			"mean_sample_sparsity":       -1.0,
			"fraction_window_component":  componentsInWindow * 4 * componentSigma / scanWidth,
		},
	}
}

// NewOptimizationParametersFromConfig reads geometry from the tuning configuration.
func NewOptimizationParametersFromConfig(conf *config.Config) *OptimizationParameters {
	return NewOptimizationParameters(
		conf.Tuning.ErrorNorm,
		conf.Tuning.ComponentsInWindow,
		float64(conf.Tuning.NComponents),
		conf.ScanFilter.ScanWidth,
		conf.Tuning.ComponentSigma,
	)
}

// Target returns the ideal value for a metric. The second return is false for
// metrics without a target.
func (op *OptimizationParameters) Target(metric string) (float64, bool) {
	target, ok := op.targets[metric]
	return target, ok
}

// Score converts a raw metric value into a negated distance from its target,
// so values closer to the target score higher. Metrics without a target pass
// through unchanged.
func (op *OptimizationParameters) Score(metric string, value float64) float64 {
	target, ok := op.targets[metric]
	if !ok {
		return value
	}
	if op.errorNorm == ErrorNormL2 {
		return -(value - target) * (value - target)
	}
	return -math.Abs(value - target)
}
