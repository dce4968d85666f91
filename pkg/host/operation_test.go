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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/li/pkg/adapter"
	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
	"github.com/teradata-labs/li/pkg/wal"
)

const ackAA = "MSH|^~\\&|DST|F2|SRC|F1|20240115120001||ACK^A01|X1|P|2.4\rMSA|AA|MSG001\r"
const ackAE = "MSH|^~\\&|DST|F2|SRC|F1|20240115120001||ACK^A01|X2|P|2.4\rMSA|AE|MSG001\r"
const ackAR = "MSH|^~\\&|DST|F2|SRC|F1|20240115120001||ACK^A01|X3|P|2.4\rMSA|AR|MSG001\r"

// fakeOutbound satisfies the outbound adapter contract with canned
// replies.
type fakeOutbound struct {
	mu      sync.Mutex
	sends   int
	replies [][]byte // consumed in order; the last repeats
	err     error
}

func (f *fakeOutbound) Name() string                { return "fake" }
func (f *fakeOutbound) Start(context.Context) error { return nil }
func (f *fakeOutbound) Stop(context.Context) error  { return nil }
func (f *fakeOutbound) State() adapter.State        { return adapter.StateRunning }
func (f *fakeOutbound) Metrics() adapter.Metrics    { return adapter.Metrics{} }

func (f *fakeOutbound) Send(_ context.Context, _ []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.err != nil {
		return nil, f.err
	}
	i := f.sends - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

func (f *fakeOutbound) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func opWAL(t *testing.T, maxRetries int) *wal.WAL {
	t.Helper()
	w, err := wal.Open(wal.Config{
		Dir:             t.TempDir(),
		Durability:      wal.DurabilityNone,
		MaxRetries:      maxRetries,
		CheckpointEvery: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func startOperation(t *testing.T, out adapter.Outbound, replyCodeActions string, w *wal.WAL) *BusinessOperation {
	t.Helper()
	cfg := testConfig(t, "HL7.Out")
	cfg.WAL = w
	o, err := NewBusinessOperation(cfg, out, replyCodeActions, true)
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { stopHost(t, o) })
	return o
}

func TestOperationSuccessCompletesWAL(t *testing.T) {
	w := opWAL(t, 3)
	out := &fakeOutbound{replies: [][]byte{[]byte(ackAA)}}
	o := startOperation(t, out, "?R=F,?E=S,*=S", w)

	require.True(t, o.Submit(message.New([]byte(hl7ADT))))

	waitFor(t, func() bool { return out.sendCount() == 1 })
	waitFor(t, func() bool { return len(w.Pending()) == 0 })
	assert.Empty(t, w.Failed())
}

func TestOperationErrorCodeMappedToSuccess(t *testing.T) {
	w := opWAL(t, 3)
	out := &fakeOutbound{replies: [][]byte{[]byte(ackAE)}}
	o := startOperation(t, out, "?R=F,?E=S,*=S", w)

	require.True(t, o.Submit(message.New([]byte(hl7ADT))))

	waitFor(t, func() bool { return out.sendCount() == 1 && len(w.Pending()) == 0 })
	assert.Empty(t, w.Failed())
}

func TestOperationRejectFailsWALPermanently(t *testing.T) {
	w := opWAL(t, 3)
	out := &fakeOutbound{replies: [][]byte{[]byte(ackAR)}}
	o := startOperation(t, out, "?R=F,?E=S,*=S", w)

	require.True(t, o.Submit(message.New([]byte(hl7ADT))))

	waitFor(t, func() bool { return len(w.Failed()) == 1 })
	// A reject does not consume retries: one send, no re-queue.
	assert.Equal(t, 1, out.sendCount())
	assert.Contains(t, w.Failed()[0].Error, "AR")
}

func TestOperationRetryActionRequeuesUntilBudget(t *testing.T) {
	w := opWAL(t, 2)
	out := &fakeOutbound{replies: [][]byte{[]byte(ackAE)}}
	o := startOperation(t, out, "?E=R,*=S", w)

	require.True(t, o.Submit(message.New([]byte(hl7ADT))))

	// First attempt raises the retry signal, the re-queue exhausts the
	// budget of two, then the entry fails.
	waitFor(t, func() bool { return len(w.Failed()) == 1 })
	assert.Equal(t, 2, out.sendCount())
}

func TestOperationTransportFailureIsFinal(t *testing.T) {
	w := opWAL(t, 3)
	out := &fakeOutbound{err: lierr.ErrSend}
	o := startOperation(t, out, "", w)

	require.True(t, o.Submit(message.New([]byte(hl7ADT))))

	waitFor(t, func() bool { return len(w.Failed()) == 1 })
	assert.Equal(t, 1, out.sendCount())
}

func TestOperationRejectsBadReplyCodeActions(t *testing.T) {
	cfg := testConfig(t, "HL7.Out")
	_, err := NewBusinessOperation(cfg, &fakeOutbound{}, "XX=Q", true)
	assert.ErrorIs(t, err, lierr.ErrConfiguration)
}
