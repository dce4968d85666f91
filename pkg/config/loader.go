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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/li/pkg/lierr"
)

// Load reads, schema-checks, and validates a configuration file. YAML
// and JSON are both accepted; JSON is a YAML subset, so one decoder
// covers both.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lierr.Configf("read config %s: %v", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, lierr.Configf("decode config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkSchema runs the JSON schema over the decoded document. The YAML
// is re-marshalled to JSON first because the schema library only
// speaks JSON.
func checkSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return lierr.Configf("decode config: %v", err)
	}
	jsonDoc, err := json.Marshal(normalise(doc))
	if err != nil {
		return lierr.Configf("config not representable as JSON: %v", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(productionSchema),
		gojsonschema.NewBytesLoader(jsonDoc))
	if err != nil {
		return lierr.Configf("schema check: %v", err)
	}
	if !result.Valid() {
		var faults []string
		for _, desc := range result.Errors() {
			faults = append(faults, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return lierr.Configf("config schema violations: %s", strings.Join(faults, "; "))
	}
	return nil
}

// normalise rewrites yaml's map[any]any nodes into map[string]any so
// the document marshals to JSON.
func normalise(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := map[string]any{}
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalise(val)
		}
		return out
	case map[string]any:
		for k, val := range t {
			t[k] = normalise(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalise(val)
		}
		return t
	default:
		return v
	}
}
