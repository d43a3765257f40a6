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

package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(flagSet)
	assert.NoError(t, flagSet.Set("log-path", path))

	SetLogger(flagSet, true)
	Logger().Info("test message")
	assert.NoError(t, Logger().Sync())

	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "test message")
}

func TestRedirectToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirect.log")
	previous := Logger()
	restore, err := RedirectToFile(path)
	assert.NoError(t, err)
	Logger().Info("redirected message")
	restore()

	// the previous logger is back after restore
	assert.Equal(t, previous, Logger())
	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "redirected message")
	// the restored logger no longer writes to the file
	Logger().Info("after restore")
	content, _ = os.ReadFile(path)
	assert.False(t, strings.Contains(string(content), "after restore"))
}

func TestRedirectToFile_BadPath(t *testing.T) {
	_, err := RedirectToFile(filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}
