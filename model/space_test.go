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
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/fragfeat/nmftune/base"
)

func testSpace() ParamSpace {
	return ParamSpace{
		AlphaW:  {Low: 1e-6, High: 0.1, Log: true},
		L1Ratio: {Low: 0, High: 1},
		Solver:  {Values: []string{"mu", "cd"}},
	}
}

func TestParamSpace_Names(t *testing.T) {
	names := testSpace().Names()
	assert.Equal(t, []ParamName{AlphaW, L1Ratio, Solver}, names)
}

func TestParamSpace_Sample(t *testing.T) {
	space := testSpace()
	rng := base.NewRandomGenerator(0)
	for i := 0; i < 100; i++ {
		params := space.Sample(rng)
		assert.Len(t, params, 3)
		alpha := params.GetFloat64(AlphaW, -1)
		assert.GreaterOrEqual(t, alpha, 1e-6)
		assert.LessOrEqual(t, alpha, 0.1)
		ratio := params.GetFloat64(L1Ratio, -1)
		assert.GreaterOrEqual(t, ratio, 0.0)
		assert.LessOrEqual(t, ratio, 1.0)
		assert.True(t, lo.Contains([]string{"mu", "cd"}, params.GetString(Solver, "")))
	}
}

func TestParamSpace_SampleDeterministic(t *testing.T) {
	space := testSpace()
	a := space.Sample(base.NewRandomGenerator(42))
	b := space.Sample(base.NewRandomGenerator(42))
	assert.Equal(t, a, b)
}

func TestParamRange_Categorical(t *testing.T) {
	assert.True(t, ParamRange{Values: []string{"mu"}}.Categorical())
	assert.False(t, ParamRange{Low: 0, High: 1}.Categorical())
}
