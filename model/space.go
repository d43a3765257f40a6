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

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/fragfeat/nmftune/base"
)

// ParamRange declares how one hyperparameter is sampled. A non-empty Values
// list makes the parameter categorical; otherwise it is continuous on
// [Low, High], uniform on a linear or log scale.
type ParamRange struct {
	Values []string
	Low    float64
	High   float64
	Log    bool
}

// Categorical reports whether the parameter is drawn from an explicit value list.
func (r ParamRange) Categorical() bool {
	return len(r.Values) > 0
}

// Sample draws one value from the range.
func (r ParamRange) Sample(rng base.RandomGenerator) interface{} {
	if r.Categorical() {
		return r.Values[rng.Intn(len(r.Values))]
	}
	if r.Log {
		return math.Exp(rng.Float64()*(math.Log(r.High)-math.Log(r.Low)) + math.Log(r.Low))
	}
	return rng.Float64()*(r.High-r.Low) + r.Low
}

// ParamSpace declares the search space for a set of hyperparameters.
type ParamSpace map[ParamName]ParamRange

// Names returns the parameter names in deterministic order.
func (space ParamSpace) Names() []ParamName {
	names := maps.Keys(space)
	slices.Sort(names)
	return names
}

// Sample draws one candidate parameter set from the space. Parameters are
// visited in sorted name order so a seeded generator yields the same
// candidate sequence on every run.
func (space ParamSpace) Sample(rng base.RandomGenerator) Params {
	params := Params{}
	for _, name := range space.Names() {
		params[name] = space[name].Sample(rng)
	}
	return params
}
