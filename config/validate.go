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

package config

import (
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

func validatePositive(name string, val int) error {
	if val <= 0 {
		return errors.NotValidf("value %d of `%s`, must be positive", val, name)
	}
	return nil
}

func validateRange(name string, val, low, high float64) error {
	if val < low || val > high {
		return errors.NotValidf("value %v of `%s`, must be in [%v, %v]", val, name, low, high)
	}
	return nil
}

func validateIn(name, val string, expectedValues []string) error {
	if !lo.Contains(expectedValues, val) {
		return errors.NotValidf("value %s of `%s`, must be one of [%s]",
			val, name, strings.Join(expectedValues, ","))
	}
	return nil
}
