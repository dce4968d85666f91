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

package production

import (
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/adapter"
	"github.com/teradata-labs/li/pkg/classreg"
	"github.com/teradata-labs/li/pkg/config"
	"github.com/teradata-labs/li/pkg/host"
	"github.com/teradata-labs/li/pkg/metrics"
	"github.com/teradata-labs/li/pkg/rules"
	"github.com/teradata-labs/li/pkg/store"
	"github.com/teradata-labs/li/pkg/wal"
)

// BuildContext carries the shared infrastructure a HostBuilder wires
// its Host into.
type BuildContext struct {
	Config   *config.Config
	Item     config.Item
	Logger   *zap.Logger
	Metrics  *metrics.Registry
	WAL      *wal.WAL
	Store    store.MessageStore
	Registry *host.ServiceRegistry
}

// HostBuilder constructs one Host from its item configuration.
type HostBuilder func(bc BuildContext) (host.Host, error)

// RegisterBuiltins installs the engine's Host constructors under their
// protected class names.
func RegisterBuiltins(r *classreg.Registry) error {
	builtins := map[string]HostBuilder{
		"li.hosts.hl7.mllp.service":    buildMLLPService,
		"li.hosts.hl7.http.service":    buildHL7HTTPService,
		"li.hosts.http.service":        buildHTTPService,
		"li.hosts.file.service":        buildFileService,
		"li.hosts.router.process":      buildRouterProcess,
		"li.hosts.passthrough.process": buildPassthroughProcess,
		"li.hosts.hl7.mllp.operation":  buildMLLPOperation,
		"li.hosts.http.operation":      buildHTTPOperation,
		"li.hosts.file.operation":      buildFileOperation,
	}
	for name, b := range builtins {
		if err := r.RegisterBuiltin(name, b); err != nil {
			return err
		}
	}
	return nil
}

// hostConfig translates an Item's host_settings into a host.Config.
func hostConfig(bc BuildContext) host.Config {
	hs := adapter.Settings(bc.Item.HostSettings)
	return host.Config{
		Name:             bc.Item.Name,
		PoolSize:         bc.Item.PoolSize,
		QueueType:        hs.String("QueueType", ""),
		QueueSize:        hs.Int("QueueSize", 1000),
		OverflowStrategy: hs.String("OverflowStrategy", ""),
		Timeout:          hs.Duration("Timeout", 30*time.Second),
		Targets:          config.TargetNames(bc.Item.HostSettings),
		RetryDelay:       hs.Duration("RetryDelay", time.Second),
		RestartPolicy:    hs.String("RestartPolicy", "on_failure"),
		MaxRestarts:      hs.Int("MaxRestarts", 3),
		RestartDelay:     hs.Duration("RestartDelay", 5*time.Second),
		Logger:           bc.Logger,
		Metrics:          bc.Metrics,
		WAL:              bc.WAL,
		Store:            bc.Store,
		Registry:         bc.Registry,
	}
}

func adapterSettings(bc BuildContext) adapter.Settings {
	return adapter.Settings(bc.Item.AdapterSettings)
}

// fileSettings resolves the file adapter's directories against
// WORKSPACES_ROOT without mutating the shared config map.
func fileSettings(bc BuildContext) adapter.Settings {
	src := adapter.Settings(bc.Item.AdapterSettings)
	out := adapter.Settings{}
	for k, v := range src {
		out[k] = v
	}
	for _, key := range []string{"FilePath", "WorkPath", "ArchivePath"} {
		if p := src.String(key, ""); p != "" {
			out[key] = config.WorkspacePath(p)
		}
	}
	return out
}

func buildMLLPService(bc BuildContext) (host.Host, error) {
	in := adapter.NewInboundMLLP(bc.Item.Name, adapterSettings(bc), bc.Logger)
	return host.NewBusinessService(hostConfig(bc), in, true), nil
}

func buildHL7HTTPService(bc BuildContext) (host.Host, error) {
	in := adapter.NewInboundHTTP(bc.Item.Name, adapterSettings(bc), bc.Logger)
	return host.NewBusinessService(hostConfig(bc), in, true), nil
}

func buildHTTPService(bc BuildContext) (host.Host, error) {
	in := adapter.NewInboundHTTP(bc.Item.Name, adapterSettings(bc), bc.Logger)
	return host.NewBusinessService(hostConfig(bc), in, false), nil
}

func buildFileService(bc BuildContext) (host.Host, error) {
	in := adapter.NewInboundFile(bc.Item.Name, fileSettings(bc), bc.Logger)
	return host.NewBusinessService(hostConfig(bc), in, false), nil
}

// buildRouterProcess compiles the production's routing rules into the
// process's engine. TargetConfigNames become the default targets of
// the synthetic fallback rule.
func buildRouterProcess(bc BuildContext) (host.Host, error) {
	hc := hostConfig(bc)
	hs := adapter.Settings(bc.Item.HostSettings)

	var ruleList []rules.Rule
	for _, rc := range bc.Config.Rules {
		ruleList = append(ruleList, rules.Rule{
			Name:       rc.Name,
			Priority:   rc.Priority,
			Condition:  rc.Condition,
			Action:     rules.Action(rc.Action),
			Targets:    rc.Targets,
			Transform:  rc.Transform,
			Validation: rules.Validation(hs.String("Validation", "none")),
			Disabled:   rc.Disabled,
		})
	}
	engine, err := rules.NewEngine(rules.EngineConfig{
		Rules:          ruleList,
		DefaultTargets: hc.Targets,
		Logger:         bc.Logger,
	})
	if err != nil {
		return nil, err
	}
	// Rule fan-out goes through the engine's decisions, not the host
	// default, so the base fan-out list stays empty.
	hc.Targets = nil
	return host.NewBusinessProcess(hc, engine), nil
}

func buildPassthroughProcess(bc BuildContext) (host.Host, error) {
	return host.NewBusinessProcess(hostConfig(bc), nil), nil
}

func buildMLLPOperation(bc BuildContext) (host.Host, error) {
	out := adapter.NewOutboundMLLP(bc.Item.Name, adapterSettings(bc), bc.Logger)
	hs := adapter.Settings(bc.Item.HostSettings)
	return host.NewBusinessOperation(hostConfig(bc), out, hs.String("ReplyCodeActions", ""), true)
}

func buildHTTPOperation(bc BuildContext) (host.Host, error) {
	out := adapter.NewOutboundHTTP(bc.Item.Name, adapterSettings(bc), bc.Logger)
	return host.NewBusinessOperation(hostConfig(bc), out, "", false)
}

func buildFileOperation(bc BuildContext) (host.Host, error) {
	out := adapter.NewOutboundFile(bc.Item.Name, fileSettings(bc), bc.Logger)
	return host.NewBusinessOperation(hostConfig(bc), out, "", false)
}
