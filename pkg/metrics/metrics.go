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

// Package metrics holds the prometheus instruments the engine records
// per Host. A Registry owns its own prometheus registry so tests and
// embedded engines never collide on the global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the per-Host instruments.
type Registry struct {
	reg *prometheus.Registry

	messagesReceived  *prometheus.CounterVec
	messagesProcessed *prometheus.CounterVec
	messagesFailed    *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	processLatency    *prometheus.HistogramVec
	restartCount      *prometheus.CounterVec
}

// NewRegistry creates a Registry with all instruments registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	r := &Registry{
		reg: reg,
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "li_messages_received_total",
			Help: "Messages accepted into a Host queue.",
		}, []string{"host"}),
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "li_messages_processed_total",
			Help: "Messages a Host worker processed successfully.",
		}, []string{"host"}),
		messagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "li_messages_failed_total",
			Help: "Messages that failed processing.",
		}, []string{"host"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "li_messages_sent_total",
			Help: "Messages delivered to a downstream target or peer.",
		}, []string{"host"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "li_queue_depth",
			Help: "Current number of items in a Host queue.",
		}, []string{"host"}),
		processLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "li_process_latency_seconds",
			Help:    "Wall time spent in a Host's message handler.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"host"}),
		restartCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "li_host_restarts_total",
			Help: "Supervision restarts per Host.",
		}, []string{"host"}),
	}
	reg.MustRegister(
		r.messagesReceived,
		r.messagesProcessed,
		r.messagesFailed,
		r.messagesSent,
		r.queueDepth,
		r.processLatency,
		r.restartCount,
	)
	return r
}

// IncReceived counts one accepted message.
func (r *Registry) IncReceived(host string) {
	r.messagesReceived.WithLabelValues(host).Inc()
}

// IncProcessed counts one successful processing.
func (r *Registry) IncProcessed(host string) {
	r.messagesProcessed.WithLabelValues(host).Inc()
}

// IncFailed counts one processing failure.
func (r *Registry) IncFailed(host string) {
	r.messagesFailed.WithLabelValues(host).Inc()
}

// IncSent counts one outbound delivery.
func (r *Registry) IncSent(host string) {
	r.messagesSent.WithLabelValues(host).Inc()
}

// SetQueueDepth records the current queue depth.
func (r *Registry) SetQueueDepth(host string, depth int) {
	r.queueDepth.WithLabelValues(host).Set(float64(depth))
}

// ObserveLatency records one handler duration.
func (r *Registry) ObserveLatency(host string, d time.Duration) {
	r.processLatency.WithLabelValues(host).Observe(d.Seconds())
}

// IncRestart counts one supervision restart.
func (r *Registry) IncRestart(host string) {
	r.restartCount.WithLabelValues(host).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests and the
// admin endpoint.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
