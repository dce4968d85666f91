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

// Package config defines the production configuration records and
// their loader. Files are YAML or JSON; both decode into the same
// structures and are checked structurally and against a JSON schema.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teradata-labs/li/pkg/lierr"
)

// Item configures one Host: its implementation class, worker pool, and
// the two settings maps.
type Item struct {
	Name            string         `yaml:"name" json:"name"`
	ClassName       string         `yaml:"class_name" json:"class_name"`
	PoolSize        int            `yaml:"pool_size" json:"pool_size"`
	Enabled         *bool          `yaml:"enabled" json:"enabled"`
	AdapterSettings map[string]any `yaml:"adapter_settings" json:"adapter_settings"`
	HostSettings    map[string]any `yaml:"host_settings" json:"host_settings"`
}

// IsEnabled applies the default: items are enabled unless switched off.
func (i Item) IsEnabled() bool {
	return i.Enabled == nil || *i.Enabled
}

// Connection is a directed edge between two Items.
type Connection struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
	Kind string `yaml:"kind" json:"kind"` // standard, error, async
}

// RoutingRule configures one rule of a routing Process.
type RoutingRule struct {
	Name      string   `yaml:"name" json:"name"`
	Priority  int      `yaml:"priority" json:"priority"`
	Condition string   `yaml:"condition" json:"condition"`
	Action    string   `yaml:"action" json:"action"`
	Targets   []string `yaml:"targets" json:"targets"`
	Transform string   `yaml:"transform" json:"transform"`
	Disabled  bool     `yaml:"disabled" json:"disabled"`
}

// ProductionSettings tune the engine's lifecycle timing.
type ProductionSettings struct {
	Name               string  `yaml:"name" json:"name"`
	StartupDelay       float64 `yaml:"startup_delay" json:"startup_delay"`             // seconds between host starts
	MonitoringInterval float64 `yaml:"monitoring_interval" json:"monitoring_interval"` // seconds between supervision sweeps
	DrainTimeout       float64 `yaml:"drain_timeout" json:"drain_timeout"`             // seconds to wait for queues on shutdown
	ShutdownTimeout    float64 `yaml:"shutdown_timeout" json:"shutdown_timeout"`       // seconds to wait for host stops
	StartDisabledItems bool    `yaml:"start_disabled_items" json:"start_disabled_items"`
}

// WALSettings configure the write-ahead log. An empty Dir disables it.
type WALSettings struct {
	Dir          string  `yaml:"dir" json:"dir"`
	Durability   string  `yaml:"durability" json:"durability"` // fsync, async, none
	MaxFileSize  int64   `yaml:"max_file_size" json:"max_file_size"`
	MaxRetries   int     `yaml:"max_retries" json:"max_retries"`
	EntryTTL     float64 `yaml:"entry_ttl" json:"entry_ttl"` // seconds
	SyncInterval float64 `yaml:"sync_interval" json:"sync_interval"`
}

// StoreSettings configure the audit message store. An empty Driver
// disables persistence; "memory", "sqlite", and "postgres" are known.
type StoreSettings struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// AdminSettings configure the observability listener. Port 0 disables
// it.
type AdminSettings struct {
	Port int    `yaml:"port" json:"port"`
	Host string `yaml:"host" json:"host"`
}

// LogSettings configure the process logger.
type LogSettings struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text, json
}

// Config is one production configuration file.
type Config struct {
	Production  ProductionSettings `yaml:"production" json:"production"`
	WAL         WALSettings        `yaml:"wal" json:"wal"`
	Store       StoreSettings      `yaml:"store" json:"store"`
	Admin       AdminSettings      `yaml:"admin" json:"admin"`
	Log         LogSettings        `yaml:"log" json:"log"`
	Items       []Item             `yaml:"items" json:"items"`
	Connections []Connection       `yaml:"connections" json:"connections"`
	Rules       []RoutingRule      `yaml:"rules" json:"rules"`
}

// StartupDelay returns the configured inter-start delay.
func (c *Config) StartupDelay() time.Duration {
	return secs(c.Production.StartupDelay, 0)
}

// MonitoringInterval returns the supervision sweep period.
func (c *Config) MonitoringInterval() time.Duration {
	return secs(c.Production.MonitoringInterval, 5*time.Second)
}

// DrainTimeout returns the queue drain budget on shutdown.
func (c *Config) DrainTimeout() time.Duration {
	return secs(c.Production.DrainTimeout, 10*time.Second)
}

// ShutdownTimeout returns the host stop budget on shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return secs(c.Production.ShutdownTimeout, 30*time.Second)
}

func secs(v float64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

// Item returns the named item config.
func (c *Config) Item(name string) (Item, bool) {
	for _, it := range c.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Validate performs the structural checks that the JSON schema cannot
// express: unique names, resolvable references, sane pool sizes.
func (c *Config) Validate() error {
	if c.Production.Name == "" {
		return lierr.Configf("production.name is required")
	}
	if len(c.Items) == 0 {
		return lierr.Configf("production %s has no items", c.Production.Name)
	}

	names := map[string]bool{}
	for _, it := range c.Items {
		if it.Name == "" {
			return lierr.Configf("item without a name")
		}
		if names[it.Name] {
			return lierr.Configf("duplicate item name %q", it.Name)
		}
		names[it.Name] = true
		if it.ClassName == "" {
			return lierr.Configf("item %s: class_name is required", it.Name)
		}
		if it.PoolSize < 0 {
			return lierr.Configf("item %s: pool_size must be >= 1", it.Name)
		}
	}

	for _, conn := range c.Connections {
		if !names[conn.From] {
			return lierr.Configf("connection references unknown item %q", conn.From)
		}
		if !names[conn.To] {
			return lierr.Configf("connection references unknown item %q", conn.To)
		}
		switch conn.Kind {
		case "", "standard", "error", "async":
		default:
			return lierr.Configf("connection %s->%s: unknown kind %q", conn.From, conn.To, conn.Kind)
		}
	}

	ruleNames := map[string]bool{}
	for _, r := range c.Rules {
		if r.Name == "" {
			return lierr.Configf("routing rule without a name")
		}
		if ruleNames[r.Name] {
			return lierr.Configf("duplicate rule name %q", r.Name)
		}
		ruleNames[r.Name] = true
		switch r.Action {
		case "send", "transform", "delete":
		default:
			return lierr.Configf("rule %s: unknown action %q", r.Name, r.Action)
		}
		if r.Action != "delete" && len(r.Targets) == 0 {
			return lierr.Configf("rule %s: action %s needs targets", r.Name, r.Action)
		}
		for _, tgt := range r.Targets {
			if !names[tgt] {
				return lierr.Configf("rule %s targets unknown item %q", r.Name, tgt)
			}
		}
	}

	// TargetConfigNames must resolve within the production.
	for _, it := range c.Items {
		for _, tgt := range TargetNames(it.HostSettings) {
			if !names[tgt] {
				return lierr.Configf("item %s targets unknown item %q", it.Name, tgt)
			}
		}
	}
	return nil
}

// TargetNames parses the comma-separated TargetConfigNames host
// setting.
func TargetNames(hostSettings map[string]any) []string {
	raw, ok := hostSettings["TargetConfigNames"]
	if !ok {
		for k, v := range hostSettings {
			if strings.EqualFold(k, "TargetConfigNames") {
				raw = v
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil
	}
	s, isStr := raw.(string)
	if !isStr {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WorkspacePath resolves a possibly relative item path against
// WORKSPACES_ROOT. Absolute paths pass through.
func WorkspacePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	root := os.Getenv("WORKSPACES_ROOT")
	if root == "" {
		return p
	}
	return filepath.Join(root, p)
}
