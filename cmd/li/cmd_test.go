// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/li/pkg/config"
	"github.com/teradata-labs/li/pkg/lierr"
)

// The starter configuration must survive the full load path or init
// hands users a broken file.
func TestSampleConfigValidates(t *testing.T) {
	cfg, err := config.Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "Demo", cfg.Production.Name)
	assert.Len(t, cfg.Items, 3)
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "production.yaml")

	require.NoError(t, runInit(initCmd, []string{path}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig, string(data))

	err = runInit(initCmd, []string{path})
	assert.ErrorIs(t, err, lierr.ErrConfiguration)
}

func TestValidateReportsSchemaFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("production: {}\nitems: []\n"), 0o644))

	err := runValidate(validateCmd, []string{path})
	assert.ErrorIs(t, err, lierr.ErrConfiguration)
}
