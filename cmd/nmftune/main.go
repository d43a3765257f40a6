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
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fragfeat/nmftune/base/log"
	"github.com/fragfeat/nmftune/config"
	"github.com/fragfeat/nmftune/model/nmf"
)

const version = "0.1.0"

var tuneCommand = &cobra.Command{
	Use:   "nmftune [matrix.csv ...]",
	Short: "Hyperparameter tuning for NMF on scan-window matrices.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version)
			return
		}
		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)

		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}

		ms := make([]*mat.Dense, 0, len(args))
		for _, path := range args {
			m, err := loadMatrix(path)
			if err != nil {
				log.Logger().Fatal("failed to load matrix",
					zap.String("path", path), zap.Error(err))
			}
			rows, cols := m.Dims()
			log.Logger().Info("loaded matrix", zap.String("path", path),
				zap.Int("rows", rows), zap.Int("cols", cols))
			ms = append(ms, m)
		}

		method, _ := cmd.PersistentFlags().GetString("method")
		outputDir, _ := cmd.PersistentFlags().GetString("output")
		result, err := nmf.Tune(method, conf, ms, outputDir)
		if err != nil {
			log.Logger().Fatal("tuning failed", zap.Error(err))
		}
		fmt.Println(result.BestParams.ToString())
	},
}

func init() {
	log.AddFlags(tuneCommand.PersistentFlags())
	tuneCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	tuneCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	tuneCommand.PersistentFlags().StringP("output", "o", "output", "output directory")
	tuneCommand.PersistentFlags().StringP("method", "m", nmf.MethodTPE, "search method (randomized or tpe)")
	tuneCommand.PersistentFlags().BoolP("version", "v", false, "nmftune version")
}

// loadMatrix reads one scan-window intensity matrix from CSV, one scan per
// row. Negative intensities are rejected since the factorization requires
// non-negative input.
func loadMatrix(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.NotValidf("empty matrix in %s", path)
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, errors.NotValidf("row %d of %s has %d columns, want %d",
				i, path, len(row), len(rows[0]))
		}
		for j, field := range row {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if value < 0 {
				return nil, errors.NotValidf("negative intensity at (%d, %d) in %s", i, j, path)
			}
			m.Set(i, j, value)
		}
	}
	return m, nil
}

func main() {
	if err := tuneCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
