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

// Package health holds named checks and aggregates them into the
// liveness, readiness, and full probes the engine serves.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of one check or of the aggregate.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Result is the outcome of one check run.
type Result struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	Duration  time.Duration  `json:"duration"`
}

// CheckFunc probes one component.
type CheckFunc func(ctx context.Context) Result

// Healthy is a convenience Result constructor.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded is a convenience Result constructor.
func Degraded(message string, details map[string]any) Result {
	return Result{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy is a convenience Result constructor.
func Unhealthy(message string, details map[string]any) Result {
	return Result{Status: StatusUnhealthy, Message: message, Details: details}
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
	timeout  time.Duration
}

// Registry holds named checks. Registration order is reporting order.
type Registry struct {
	mu     sync.RWMutex
	checks []check
	logger *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register adds or replaces a check. Critical checks gate readiness; a
// zero timeout defaults to 5s.
func (r *Registry) Register(name string, fn CheckFunc, critical bool, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.checks {
		if r.checks[i].name == name {
			r.checks[i] = check{name, fn, critical, timeout}
			return
		}
	}
	r.checks = append(r.checks, check{name, fn, critical, timeout})
}

// Unregister removes a check by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.checks {
		if r.checks[i].name == name {
			r.checks = append(r.checks[:i], r.checks[i+1:]...)
			return
		}
	}
}

// Report is the aggregate of one probe run.
type Report struct {
	Status  Status            `json:"status"`
	Checks  map[string]Result `json:"checks,omitempty"`
	RunAt   time.Time         `json:"run_at"`
	Elapsed time.Duration     `json:"elapsed"`
}

// Liveness reports healthy whenever the process is responsive.
func (r *Registry) Liveness(context.Context) Report {
	return Report{Status: StatusHealthy, RunAt: time.Now().UTC()}
}

// Readiness runs only the critical checks.
func (r *Registry) Readiness(ctx context.Context) Report {
	return r.run(ctx, true)
}

// Full runs every check.
func (r *Registry) Full(ctx context.Context) Report {
	return r.run(ctx, false)
}

func (r *Registry) run(ctx context.Context, criticalOnly bool) Report {
	r.mu.RLock()
	checks := make([]check, 0, len(r.checks))
	for _, c := range r.checks {
		if criticalOnly && !c.critical {
			continue
		}
		checks = append(checks, c)
	}
	r.mu.RUnlock()

	start := time.Now()
	report := Report{
		Status: StatusHealthy,
		Checks: make(map[string]Result, len(checks)),
		RunAt:  start.UTC(),
	}

	anyUnhealthy, anyDegradedOrUnknown := false, false
	for _, c := range checks {
		res := r.runOne(ctx, c)
		report.Checks[c.name] = res
		switch res.Status {
		case StatusUnhealthy:
			anyUnhealthy = true
			if c.critical {
				report.Status = StatusUnhealthy
			}
		case StatusDegraded, StatusUnknown:
			anyDegradedOrUnknown = true
		}
	}
	if report.Status != StatusUnhealthy {
		if anyUnhealthy || anyDegradedOrUnknown {
			report.Status = StatusDegraded
		}
	}
	report.Elapsed = time.Since(start)
	return report
}

// runOne applies the check's own timeout; an overrun reports unknown
// and the straggler result is discarded when it eventually lands.
func (r *Registry) runOne(ctx context.Context, c check) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() { done <- c.fn(ctx) }()

	select {
	case res := <-done:
		res.CheckedAt = start.UTC()
		res.Duration = time.Since(start)
		return res
	case <-ctx.Done():
		r.logger.Warn("health check timed out",
			zap.String("check", c.name),
			zap.Duration("timeout", c.timeout))
		return Result{
			Status:    StatusUnknown,
			Message:   "check timed out",
			CheckedAt: start.UTC(),
			Duration:  time.Since(start),
		}
	}
}

// Handler serves a probe as JSON: 200 for healthy/degraded, 503 for
// unhealthy.
func Handler(probe func(context.Context) Report) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		report := probe(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}
