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

package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettingsCaseInsensitiveLookup(t *testing.T) {
	s := Settings{"Port": 2575, "ipaddress": "10.0.0.1", "StayConnected": -1}

	assert.Equal(t, 2575, s.Int("port", 0))
	assert.Equal(t, 2575, s.Int("PORT", 0))
	assert.Equal(t, "10.0.0.1", s.String("IPAddress", ""))
	assert.Equal(t, -1, s.Int("stayconnected", 0))
	assert.Equal(t, 99, s.Int("Missing", 99))
}

func TestSettingsConversions(t *testing.T) {
	s := Settings{
		"Port":        "2575",
		"ReadTimeout": 30,
		"Wait":        "250ms",
		"Fraction":    0.5,
		"SSLVerify":   "false",
		"Enabled":     true,
		"CustomHeaders": map[string]any{
			"X-Tenant": "north",
		},
	}

	assert.Equal(t, 2575, s.Int("Port", 0))
	assert.Equal(t, 30*time.Second, s.Duration("ReadTimeout", 0))
	assert.Equal(t, 250*time.Millisecond, s.Duration("Wait", 0))
	assert.Equal(t, 500*time.Millisecond, s.Duration("Fraction", 0))
	assert.False(t, s.Bool("SSLVerify", true))
	assert.True(t, s.Bool("Enabled", false))
	assert.Equal(t, map[string]string{"X-Tenant": "north"}, s.StringMap("customheaders"))
}

func TestBaseLifecycleAndMetrics(t *testing.T) {
	b := newBase("test", nil)
	assert.Equal(t, StateCreated, b.State())

	b.setState(StateRunning)
	assert.Equal(t, StateRunning, b.State())

	b.bytesReceived.Add(10)
	b.bytesSent.Add(5)
	b.errorsTotal.Add(1)
	b.touch()

	m := b.Metrics()
	assert.Equal(t, int64(10), m.BytesReceived)
	assert.Equal(t, int64(5), m.BytesSent)
	assert.Equal(t, int64(1), m.ErrorsTotal)
	assert.False(t, m.LastActivityAt.IsZero())
	assert.False(t, m.StartedAt.IsZero())
}
