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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/li/pkg/lierr"
)

var sampleYAML = heredoc.Doc(`
	production:
	  name: Demo
	  startup_delay: 0.1
	  drain_timeout: 5
	wal:
	  dir: ./wal
	  durability: async
	store:
	  driver: sqlite
	  dsn: ./messages.db
	admin:
	  port: 9090
	items:
	  - name: HL7.In
	    class_name: li.hosts.hl7.mllp.service
	    pool_size: 2
	    adapter_settings:
	      Port: 2575
	    host_settings:
	      TargetConfigNames: Router
	  - name: Router
	    class_name: li.hosts.router.process
	  - name: PAS
	    class_name: li.hosts.hl7.mllp.operation
	    adapter_settings:
	      IPAddress: 10.0.0.5
	      Port: 6661
	rules:
	  - name: adt
	    priority: 1
	    condition: '{MSH-9.1} = "ADT"'
	    action: send
	    targets: [PAS]
	connections:
	  - from: HL7.In
	    to: Router
	  - from: Router
	    to: PAS
`)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Demo", cfg.Production.Name)
	assert.Equal(t, 100*time.Millisecond, cfg.StartupDelay())
	assert.Equal(t, 5*time.Second, cfg.DrainTimeout())
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout()) // default
	assert.Equal(t, "./wal", cfg.WAL.Dir)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Admin.Port)

	require.Len(t, cfg.Items, 3)
	item, ok := cfg.Item("HL7.In")
	require.True(t, ok)
	assert.Equal(t, 2, item.PoolSize)
	assert.True(t, item.IsEnabled())
	assert.Equal(t, []string{"Router"}, TargetNames(item.HostSettings))

	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, []string{"PAS"}, cfg.Rules[0].Targets)
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"production": {"name": "J"},
		"items": [{"name": "A", "class_name": "li.hosts.router.process"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "J", cfg.Production.Name)
}

func TestSchemaRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"missing production name": `{"production": {}, "items": [{"name": "A", "class_name": "c"}]}`,
		"empty items":             `{"production": {"name": "P"}, "items": []}`,
		"bad action":              `{"production": {"name": "P"}, "items": [{"name": "A", "class_name": "c"}], "rules": [{"name": "r", "action": "explode"}]}`,
		"bad durability":          `{"production": {"name": "P"}, "wal": {"durability": "eventually"}, "items": [{"name": "A", "class_name": "c"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, lierr.ErrConfiguration)
		})
	}
}

func TestValidateCrossReferences(t *testing.T) {
	cases := map[string]string{
		"duplicate item": heredoc.Doc(`
			production: {name: P}
			items:
			  - {name: A, class_name: c}
			  - {name: A, class_name: c}
		`),
		"connection to unknown item": heredoc.Doc(`
			production: {name: P}
			items:
			  - {name: A, class_name: c}
			connections:
			  - {from: A, to: Ghost}
		`),
		"rule targets unknown item": heredoc.Doc(`
			production: {name: P}
			items:
			  - {name: A, class_name: c}
			rules:
			  - {name: r, action: send, targets: [Ghost]}
		`),
		"host targets unknown item": heredoc.Doc(`
			production: {name: P}
			items:
			  - name: A
			    class_name: c
			    host_settings:
			      TargetConfigNames: Ghost
		`),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, lierr.ErrConfiguration)
		})
	}
}

func TestWorkspacePath(t *testing.T) {
	t.Setenv("WORKSPACES_ROOT", "/srv/workspaces")
	assert.Equal(t, "/srv/workspaces/inbox", WorkspacePath("inbox"))
	assert.Equal(t, "/abs/inbox", WorkspacePath("/abs/inbox"))

	t.Setenv("WORKSPACES_ROOT", "")
	assert.Equal(t, "inbox", WorkspacePath("inbox"))
}
