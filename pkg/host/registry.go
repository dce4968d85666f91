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

package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
)

// Pattern selects the inter-Host messaging style.
type Pattern string

const (
	PatternAsync Pattern = "async"
	PatternSync  Pattern = "sync"
)

// Envelope wraps a message travelling between Hosts. It always goes
// through the target's queue, so pause and overflow policy apply the
// same as for external traffic.
type Envelope struct {
	Pattern       Pattern
	CorrelationID string
	Source        string
	Target        string
	Message       message.Message
}

// ServiceRegistry is the in-process address book: Host name to Host,
// plus the pending-response table for sync request/reply.
type ServiceRegistry struct {
	logger *zap.Logger

	mu      sync.RWMutex
	hosts   map[string]Host
	pending map[string]chan message.Message
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry(logger *zap.Logger) *ServiceRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceRegistry{
		logger:  logger,
		hosts:   map[string]Host{},
		pending: map[string]chan message.Message{},
	}
}

// Register adds a Host under its name. Duplicate names are rejected.
func (r *ServiceRegistry) Register(h Host) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hosts[h.Name()]; exists {
		return lierr.Configf("registry: host %q already registered", h.Name())
	}
	r.hosts[h.Name()] = h
	return nil
}

// Unregister removes a Host by name.
func (r *ServiceRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hosts, name)
}

// Lookup returns the Host registered under name.
func (r *ServiceRegistry) Lookup(name string) (Host, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[name]
	return h, ok
}

// Names returns all registered Host names, sorted.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hosts))
	for n := range r.hosts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Hosts returns all registered Hosts in name order.
func (r *ServiceRegistry) Hosts() []Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hosts))
	for n := range r.hosts {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Host, 0, len(names))
	for _, n := range names {
		out = append(out, r.hosts[n])
	}
	return out
}

// await registers a one-shot waiter under the correlation id.
func (r *ServiceRegistry) await(correlationID string) <-chan message.Message {
	ch := make(chan message.Message, 1)
	r.mu.Lock()
	r.pending[correlationID] = ch
	r.mu.Unlock()
	return ch
}

// cancelWait drops the waiter; a late response is then discarded.
func (r *ServiceRegistry) cancelWait(correlationID string) {
	r.mu.Lock()
	delete(r.pending, correlationID)
	r.mu.Unlock()
}

// SendResponse fulfils the waiter registered under the correlation id.
// A response with no waiter is dropped with a warning.
func (r *ServiceRegistry) SendResponse(correlationID string, result message.Message) {
	r.mu.Lock()
	ch, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
	}
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("response has no waiter, dropping",
			zap.String("correlation_id", correlationID))
		return
	}
	ch <- result
}

// PendingCount reports the number of outstanding sync requests.
func (r *ServiceRegistry) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// SendRequestAsync fires a message at the target Host and returns its
// correlation id without waiting for processing.
func (h *BaseHost) SendRequestAsync(target string, m message.Message) (string, error) {
	if h.cfg.Registry == nil {
		return "", lierr.Configf("host %s: no service registry", h.cfg.Name)
	}
	t, ok := h.cfg.Registry.Lookup(target)
	if !ok {
		return "", fmt.Errorf("host %s: target %q: %w", h.cfg.Name, target, lierr.ErrNoMatch)
	}
	env := Envelope{
		Pattern:       PatternAsync,
		CorrelationID: m.Envelope.CorrelationID,
		Source:        h.cfg.Name,
		Target:        target,
		Message:       m,
	}
	if !t.SubmitEnvelope(env) {
		return "", fmt.Errorf("host %s: target %q: %w", h.cfg.Name, target, lierr.ErrQueueFull)
	}
	return env.CorrelationID, nil
}

// SendRequestSync sends a message to the target Host and waits for the
// processed result up to timeout. The request is keyed by a fresh
// correlation id so concurrent requests over one conversation do not
// collide.
func (h *BaseHost) SendRequestSync(ctx context.Context, target string, m message.Message, timeout time.Duration) (message.Message, error) {
	if h.cfg.Registry == nil {
		return message.Message{}, lierr.Configf("host %s: no service registry", h.cfg.Name)
	}
	t, ok := h.cfg.Registry.Lookup(target)
	if !ok {
		return message.Message{}, fmt.Errorf("host %s: target %q: %w", h.cfg.Name, target, lierr.ErrNoMatch)
	}

	requestID := uuid.NewString()
	ch := h.cfg.Registry.await(requestID)
	env := Envelope{
		Pattern:       PatternSync,
		CorrelationID: requestID,
		Source:        h.cfg.Name,
		Target:        target,
		Message:       m,
	}
	if !t.SubmitEnvelope(env) {
		h.cfg.Registry.cancelWait(requestID)
		return message.Message{}, fmt.Errorf("host %s: target %q: %w", h.cfg.Name, target, lierr.ErrQueueFull)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-ch:
		return result, nil
	case <-timer.C:
		h.cfg.Registry.cancelWait(requestID)
		return message.Message{}, fmt.Errorf("host %s: sync request to %q: %w", h.cfg.Name, target, lierr.ErrTimeout)
	case <-ctx.Done():
		h.cfg.Registry.cancelWait(requestID)
		return message.Message{}, fmt.Errorf("host %s: sync request to %q: %w", h.cfg.Name, target, lierr.ErrTimeout)
	}
}
