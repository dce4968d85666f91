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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
)

func TestRegistryRegisterLookup(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	a := &captureHost{name: "A"}
	b := &captureHost{name: "B"}

	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))
	assert.ErrorIs(t, reg.Register(&captureHost{name: "A"}), lierr.ErrConfiguration)

	got, ok := reg.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"A", "B"}, reg.Names())

	reg.Unregister("A")
	_, ok = reg.Lookup("A")
	assert.False(t, ok)
}

func TestSendResponseWithoutWaiterIsDropped(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	reg.SendResponse("nobody-waiting", message.New([]byte("late")))
	assert.Zero(t, reg.PendingCount())
}

// echoHost wires a started BaseHost that answers sync requests with a
// derived "pong" message.
func echoHost(t *testing.T, reg *ServiceRegistry, name string, delay time.Duration) *BaseHost {
	t.Helper()
	cfg := testConfig(t, name)
	cfg.Registry = reg
	h := NewBaseHost(cfg, KindProcess)
	h.SetProcessor(procFunc(func(_ context.Context, m message.Message) (message.Message, []string, error) {
		if delay > 0 {
			time.Sleep(delay)
		}
		return message.Derive(m, []byte("pong")), []string{}, nil
	}))
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, reg.Register(h))
	t.Cleanup(func() { stopHost(t, h) })
	return h
}

func TestSendRequestSyncRoundTrip(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	echoHost(t, reg, "target", 0)

	cfg := testConfig(t, "source")
	cfg.Registry = reg
	src := NewBaseHost(cfg, KindProcess)

	m := message.New([]byte("ping"))
	result, err := src.SendRequestSync(context.Background(), "target", m, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), result.Payload.Raw)
	assert.Equal(t, m.Envelope.CorrelationID, result.Envelope.CorrelationID)
	assert.Zero(t, reg.PendingCount())
}

func TestSendRequestSyncTimesOut(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	echoHost(t, reg, "slow", 500*time.Millisecond)

	cfg := testConfig(t, "source")
	cfg.Registry = reg
	src := NewBaseHost(cfg, KindProcess)

	_, err := src.SendRequestSync(context.Background(), "slow", message.New([]byte("ping")), 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lierr.ErrTimeout))
	// The waiter is removed; the late response is dropped, not leaked.
	assert.Zero(t, reg.PendingCount())
}

func TestSendRequestAsyncDelivers(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	var processed int
	done := make(chan struct{})

	cfg := testConfig(t, "target")
	cfg.Registry = reg
	h := NewBaseHost(cfg, KindProcess)
	h.SetProcessor(procFunc(func(_ context.Context, m message.Message) (message.Message, []string, error) {
		processed++
		close(done)
		return m, []string{}, nil
	}))
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, reg.Register(h))
	defer stopHost(t, h)

	srcCfg := testConfig(t, "source")
	srcCfg.Registry = reg
	src := NewBaseHost(srcCfg, KindProcess)

	m := message.New([]byte("fire-and-forget"))
	corr, err := src.SendRequestAsync("target", m)
	require.NoError(t, err)
	assert.Equal(t, m.Envelope.CorrelationID, corr)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("async request not processed")
	}
	assert.Equal(t, 1, processed)
}

func TestSendRequestToUnknownTarget(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	cfg := testConfig(t, "source")
	cfg.Registry = reg
	src := NewBaseHost(cfg, KindProcess)

	_, err := src.SendRequestAsync("ghost", message.New(nil))
	assert.True(t, errors.Is(err, lierr.ErrNoMatch))

	_, err = src.SendRequestSync(context.Background(), "ghost", message.New(nil), time.Second)
	assert.True(t, errors.Is(err, lierr.ErrNoMatch))
}
