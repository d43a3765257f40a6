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
	"encoding/json"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/fragfeat/nmftune/base/log"
)

/* ParamName */

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	NComponents ParamName = "n_components" // number of components
	AlphaW      ParamName = "alpha_W"      // regularization strength on the weight matrix
	AlphaH      ParamName = "alpha_H"      // regularization strength on the component matrix
	L1Ratio     ParamName = "l1_ratio"     // ratio of L1 vs L2 regularization
	MaxIter     ParamName = "max_iter"     // iteration cap for a single fit
	Solver      ParamName = "solver"       // factorization solver
	Init        ParamName = "init"         // initialization strategy
	RandomState ParamName = "random_state" // random state (seed)
)

// CanonicalParamName restores the canonical casing of a predefined parameter
// name. Configuration loaders lowercase TOML keys, which would otherwise miss
// the mixed-case names. Unknown names pass through unchanged.
func CanonicalParamName(name string) ParamName {
	switch strings.ToLower(name) {
	case "alpha_w":
		return AlphaW
	case "alpha_h":
		return AlphaH
	default:
		return ParamName(name)
	}
}

// Params stores hyper-parameters for a model. It is a map between strings
// (names) and interface{}s (values). For example, hyper-parameters for the
// factorization routine are given by:
//
//	model.Params{
//		model.NComponents: 20,
//		model.AlphaW:      0.00001,
//		model.AlphaH:      0.0375,
//		model.L1Ratio:     0.75,
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets an integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			return int(val)
		default:
			log.Logger().Error("type mismatch in Params.GetInt",
				zap.String("name", string(name)), zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetInt64 gets an int64 parameter by name. Returns _default if not exists or type doesn't match.
// The type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		case float64:
			return int64(val)
		default:
			log.Logger().Error("type mismatch in Params.GetInt64",
				zap.String("name", string(name)), zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetBool gets a bool parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		default:
			log.Logger().Error("type mismatch in Params.GetBool",
				zap.String("name", string(name)), zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetFloat64 gets a float64 parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetFloat64(name ParamName, _default float64) float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		default:
			log.Logger().Error("type mismatch in Params.GetFloat64",
				zap.String("name", string(name)), zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetString gets a string parameter. Returns _default if not exists or type doesn't match.
func (parameters Params) GetString(name ParamName, _default string) string {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case string:
			return val
		default:
			log.Logger().Error("type mismatch in Params.GetString",
				zap.String("name", string(name)), zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// Overwrite returns a new Params with the receiver's entries overwritten by params.
func (parameters Params) Overwrite(params Params) Params {
	merged := make(Params)
	for k, v := range parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

func (parameters Params) ToString() string {
	b, err := json.Marshal(parameters)
	if err != nil {
		log.Logger().Fatal("failed to marshal params", zap.Error(err))
	}
	return string(b)
}
