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

// Package adapter implements the transport endpoints a Host owns: MLLP,
// HTTP, and file, each in an inbound and an outbound variant. Inbound
// adapters hand received bytes to the Host and write back the reply;
// outbound adapters deliver bytes to a peer and return its response.
package adapter

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State of an adapter's lifecycle.
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Handler receives inbound bytes and returns the reply to write back
// to the peer. A nil reply writes nothing.
type Handler func(ctx context.Context, raw []byte) ([]byte, error)

// Adapter is the lifecycle contract shared by all transports.
type Adapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() State
	Metrics() Metrics
}

// Inbound adapters push received messages into their Host.
type Inbound interface {
	Adapter
	SetHandler(h Handler)
}

// Outbound adapters deliver a payload and return the peer's reply.
type Outbound interface {
	Adapter
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// Settings is the adapter configuration map. Key lookup is case
// insensitive, matching how production configs spell adapter settings
// inconsistently across sites.
type Settings map[string]any

// Get returns the raw value for key, folding case.
func (s Settings) Get(key string) (any, bool) {
	if v, ok := s[key]; ok {
		return v, true
	}
	for k, v := range s {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// String returns a string setting or def.
func (s Settings) String(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return def
}

// Int returns an integer setting or def.
func (s Settings) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// Bool returns a boolean setting or def.
func (s Settings) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	case int:
		return t != 0
	}
	return def
}

// Duration reads a setting expressed in seconds (int or float) or as a
// Go duration string.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second
	case int64:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
		if n, err := strconv.Atoi(t); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// StringMap returns a nested map setting (for custom headers).
func (s Settings) StringMap(key string) map[string]string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	out := map[string]string{}
	switch t := v.(type) {
	case map[string]string:
		return t
	case map[string]any:
		for k, val := range t {
			if sv, ok := val.(string); ok {
				out[k] = sv
			}
		}
	case map[any]any:
		for k, val := range t {
			ks, kok := k.(string)
			vs, vok := val.(string)
			if kok && vok {
				out[ks] = vs
			}
		}
	}
	return out
}

// Metrics is a point-in-time snapshot of adapter counters.
type Metrics struct {
	BytesReceived     int64
	BytesSent         int64
	ConnectionsTotal  int64
	ConnectionsActive int64
	ErrorsTotal       int64
	LastActivityAt    time.Time
	StartedAt         time.Time
}

// base carries the state machine and counters every adapter embeds.
type base struct {
	name   string
	logger *zap.Logger

	mu    sync.Mutex
	state State

	bytesReceived     atomic.Int64
	bytesSent         atomic.Int64
	connectionsTotal  atomic.Int64
	connectionsActive atomic.Int64
	errorsTotal       atomic.Int64
	lastActivity      atomic.Int64 // unix nanos
	startedAt         atomic.Int64
}

func newBase(name string, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		name:   name,
		logger: logger.With(zap.String("adapter", name)),
		state:  StateCreated,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
	if s == StateRunning {
		b.startedAt.Store(time.Now().UnixNano())
	}
}

func (b *base) touch() { b.lastActivity.Store(time.Now().UnixNano()) }

func (b *base) Metrics() Metrics {
	m := Metrics{
		BytesReceived:     b.bytesReceived.Load(),
		BytesSent:         b.bytesSent.Load(),
		ConnectionsTotal:  b.connectionsTotal.Load(),
		ConnectionsActive: b.connectionsActive.Load(),
		ErrorsTotal:       b.errorsTotal.Load(),
	}
	if ns := b.lastActivity.Load(); ns > 0 {
		m.LastActivityAt = time.Unix(0, ns)
	}
	if ns := b.startedAt.Load(); ns > 0 {
		m.StartedAt = time.Unix(0, ns)
	}
	return m
}
