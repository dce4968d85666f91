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

// Package classreg maps dotted implementation names to constructors.
// Built-in names live under the protected li.hosts.*, li.adapters.*,
// and li.rules.* namespaces; extensions register under custom.*.
// Aliases let legacy configuration names resolve onto built-ins.
package classreg

import (
	"fmt"
	"strings"
	"sync"

	"github.com/teradata-labs/li/pkg/lierr"
)

var protectedPrefixes = []string{"li.hosts.", "li.adapters.", "li.rules."}

const customPrefix = "custom."

// Registry is a concurrency-safe name→constructor map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]any
	aliases map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]any),
		aliases: make(map[string]string),
	}
}

// RegisterBuiltin installs a constructor under a protected li.* name.
// It is for engine wiring at startup; configuration-driven extension
// code goes through Register instead.
func (r *Registry) RegisterBuiltin(name string, factory any) error {
	if !isProtected(name) {
		return fmt.Errorf("%w: %q is not a protected namespace", lierr.ErrNamespaceViolation, name)
	}
	return r.put(name, factory)
}

// Register installs an extension constructor. Names must live under
// custom.*; protected names are rejected with NamespaceViolation.
func (r *Registry) Register(name string, factory any) error {
	if isProtected(name) {
		return fmt.Errorf("%w: %q is reserved for built-ins", lierr.ErrNamespaceViolation, name)
	}
	if !strings.HasPrefix(name, customPrefix) {
		return fmt.Errorf("%w: extension names must start with %q, got %q",
			lierr.ErrNamespaceViolation, customPrefix, name)
	}
	return r.put(name, factory)
}

// Alias makes alias resolve to target. The alias name itself must not
// shadow a protected name.
func (r *Registry) Alias(alias, target string) error {
	if isProtected(alias) {
		return fmt.Errorf("%w: alias %q would shadow a protected name", lierr.ErrNamespaceViolation, alias)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[alias]; exists {
		return lierr.Configf("alias %q collides with a registered name", alias)
	}
	if _, ok := r.entries[target]; !ok {
		if _, ok := r.aliases[target]; !ok {
			return lierr.Configf("alias target %q is not registered", target)
		}
	}
	r.aliases[alias] = target
	return nil
}

// Lookup resolves a name, following aliases, and returns the
// registered constructor.
func (r *Registry) Lookup(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	for {
		if f, ok := r.entries[name]; ok {
			return f, nil
		}
		target, ok := r.aliases[name]
		if !ok || seen[name] {
			return nil, lierr.Configf("unknown implementation %q", name)
		}
		seen[name] = true
		name = target
	}
}

// Names returns every directly registered name, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}

func (r *Registry) put(name string, factory any) error {
	if factory == nil {
		return lierr.Configf("implementation %q: nil constructor", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return lierr.Configf("implementation %q already registered", name)
	}
	r.entries[name] = factory
	return nil
}

func isProtected(name string) bool {
	for _, p := range protectedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// As resolves name and asserts the constructor to T, failing with
// TypeMismatch when the registered value has another type.
func As[T any](r *Registry, name string) (T, error) {
	var zero T
	v, err := r.Lookup(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T, want %T", lierr.ErrTypeMismatch, name, v, zero)
	}
	return t, nil
}
