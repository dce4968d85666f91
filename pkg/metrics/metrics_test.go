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

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersPerHost(t *testing.T) {
	r := NewRegistry()
	r.IncReceived("HL7.In")
	r.IncReceived("HL7.In")
	r.IncProcessed("HL7.In")
	r.IncFailed("Orders.Out")
	r.IncSent("Orders.Out")
	r.SetQueueDepth("HL7.In", 7)
	r.ObserveLatency("HL7.In", 25*time.Millisecond)
	r.IncRestart("Orders.Out")

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"li_messages_received_total",
		"li_messages_processed_total",
		"li_messages_failed_total",
		"li_messages_sent_total",
		"li_queue_depth",
		"li_process_latency_seconds",
		"li_host_restarts_total",
	} {
		assert.True(t, found[name], "missing %s", name)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	r := NewRegistry()
	r.IncReceived("HL7.In")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `li_messages_received_total{host="HL7.In"} 1`))
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.IncReceived("HL7.In")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.False(t, strings.Contains(rec.Body.String(), `host="HL7.In"`))
}
