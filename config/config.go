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
	"github.com/spf13/viper"
)

// Config is the configuration for a tuning run.
type Config struct {
	RandomSeed int64            `mapstructure:"random_seed"`
	NMF        NMFConfig        `mapstructure:"nmf"`
	ScanFilter ScanFilterConfig `mapstructure:"scan_filter"`
	Tuning     TuningConfig     `mapstructure:"tuning"`
}

// NMFConfig holds regularization defaults for the factorization routine.
type NMFConfig struct {
	AlphaW  float64 `mapstructure:"alpha_w"`  // L1/L2 regularization strength on weights
	AlphaH  float64 `mapstructure:"alpha_h"`  // L1/L2 regularization strength on components
	L1Ratio float64 `mapstructure:"l1_ratio"` // ratio of L1 vs L2 regularization
	MaxIter int     `mapstructure:"max_iter"` // iteration cap for a single fit
	Solver  string  `mapstructure:"solver"`   // factorization solver ("mu" or "cd")
}

// ScanFilterConfig describes scan-window geometry.
type ScanFilterConfig struct {
	ScanWidth float64 `mapstructure:"scan_width"` // width of one scan window in scans
}

// ParamSpace declares the sampling directive for one hyperparameter. A
// non-empty Values list makes the parameter categorical; otherwise it is
// continuous on [Low, High] with linear or log scale.
type ParamSpace struct {
	Values []string `mapstructure:"values"`
	Low    float64  `mapstructure:"low"`
	High   float64  `mapstructure:"high"`
	Scale  string   `mapstructure:"scale"`
}

// Categorical reports whether the parameter is sampled from an explicit value list.
func (s ParamSpace) Categorical() bool {
	return len(s.Values) > 0
}

// TuningConfig holds cross-validation and search settings.
type TuningConfig struct {
	SplitterType       string  `mapstructure:"splitter_type"` // "mask" or "sample"
	TestFraction       float64 `mapstructure:"test_fraction"` // fraction of entries/scans held out per split
	NSplits            int     `mapstructure:"n_splits"`
	NComponents        int     `mapstructure:"n_components"`
	ComponentsInWindow float64 `mapstructure:"components_in_window"`
	ComponentSigma     float64 `mapstructure:"component_sigma"` // component spread in scan units
	NIter              int     `mapstructure:"n_iter"`          // candidate/trial budget
	NJobs              int     `mapstructure:"n_jobs"`
	ErrorNorm          string  `mapstructure:"error_norm"` // "l1" or "l2" target scoring
	MaskSignal         bool    `mapstructure:"mask_signal"`
	BalanceMaskSignal  bool    `mapstructure:"balance_mask_signal"`
	PruneBadSpaces     bool    `mapstructure:"prune_bad_parameter_spaces"`

	ObjectiveParams []string              `mapstructure:"objective_params"`
	SearchSpace     map[string]ParamSpace `mapstructure:"search_space"`
}

func setDefault() {
	viper.SetDefault("random_seed", 42)
	// [nmf]
	viper.SetDefault("nmf.alpha_w", 0.00001)
	viper.SetDefault("nmf.alpha_h", 0.0375)
	viper.SetDefault("nmf.l1_ratio", 0.75)
	viper.SetDefault("nmf.max_iter", 500)
	viper.SetDefault("nmf.solver", "mu")
	// [scan_filter]
	viper.SetDefault("scan_filter.scan_width", 150.0)
	// [tuning]
	viper.SetDefault("tuning.splitter_type", "mask")
	viper.SetDefault("tuning.test_fraction", 0.2)
	viper.SetDefault("tuning.n_splits", 5)
	viper.SetDefault("tuning.n_components", 20)
	viper.SetDefault("tuning.components_in_window", 8.0)
	viper.SetDefault("tuning.component_sigma", 3.0)
	viper.SetDefault("tuning.n_iter", 50)
	viper.SetDefault("tuning.n_jobs", 4)
	viper.SetDefault("tuning.error_norm", "l1")
	viper.SetDefault("tuning.mask_signal", true)
	viper.SetDefault("tuning.balance_mask_signal", true)
	viper.SetDefault("tuning.prune_bad_parameter_spaces", false)
	viper.SetDefault("tuning.objective_params", []string{
		"score",
		"weight_orthogonality",
		"nonzero_component_fraction",
	})
}

// LoadConfig loads configuration from a TOML file. Defaults are filled for
// every key the file leaves out.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	viper.SetConfigType("toml")
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks cross-field consistency of the loaded configuration.
func (config *Config) Validate() error {
	if err := validateIn("tuning.splitter_type", config.Tuning.SplitterType, []string{"mask", "sample"}); err != nil {
		return errors.Trace(err)
	}
	if err := validateIn("tuning.error_norm", config.Tuning.ErrorNorm, []string{"l1", "l2"}); err != nil {
		return errors.Trace(err)
	}
	if err := validateIn("nmf.solver", config.NMF.Solver, []string{"mu", "cd"}); err != nil {
		return errors.Trace(err)
	}
	if err := validateRange("tuning.test_fraction", config.Tuning.TestFraction, 0, 1); err != nil {
		return errors.Trace(err)
	}
	if err := validatePositive("tuning.n_splits", config.Tuning.NSplits); err != nil {
		return errors.Trace(err)
	}
	if err := validatePositive("tuning.n_components", config.Tuning.NComponents); err != nil {
		return errors.Trace(err)
	}
	if err := validatePositive("tuning.n_iter", config.Tuning.NIter); err != nil {
		return errors.Trace(err)
	}
	if err := validatePositive("tuning.n_jobs", config.Tuning.NJobs); err != nil {
		return errors.Trace(err)
	}
	if len(config.Tuning.ObjectiveParams) == 0 {
		return errors.NotValidf("empty `tuning.objective_params`")
	}
	for name, space := range config.Tuning.SearchSpace {
		if space.Categorical() {
			continue
		}
		if space.Low >= space.High {
			return errors.NotValidf("bounds [%v, %v] of `tuning.search_space.%s`", space.Low, space.High, name)
		}
		if err := validateIn("tuning.search_space."+name+".scale", scaleOrDefault(space.Scale), []string{"linear", "log"}); err != nil {
			return errors.Trace(err)
		}
		if space.Scale == "log" && space.Low <= 0 {
			return errors.NotValidf("log scale lower bound %v of `tuning.search_space.%s`", space.Low, name)
		}
	}
	return nil
}

func scaleOrDefault(scale string) string {
	if scale == "" {
		return "linear"
	}
	return strings.ToLower(scale)
}
