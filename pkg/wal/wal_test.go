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
package wal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dir:             t.TempDir(),
		Durability:      DurabilityNone,
		CheckpointEvery: time.Hour,
		Logger:          zaptest.NewLogger(t),
	}
}

func mustOpen(t *testing.T, cfg Config) *WAL {
	t.Helper()
	w, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestAppendAndLifecycle(t *testing.T) {
	w := mustOpen(t, testConfig(t))

	id, err := w.Append("HL7.In", "msg-1", []byte("MSH|..."), "ADT_A01", nil)
	require.NoError(t, err)

	e, ok := w.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatePending, e.State)
	assert.Equal(t, "HL7.In", e.Host)
	assert.Equal(t, "msg-1", e.MessageID)
	assert.Equal(t, 0, e.RetryCount)

	require.NoError(t, w.MarkProcessing(id))
	e, _ = w.Get(id)
	assert.Equal(t, StateProcessing, e.State)

	require.NoError(t, w.Complete(id))
	e, _ = w.Get(id)
	assert.Equal(t, StateCompleted, e.State)
}

func TestCompleteIsIdempotent(t *testing.T) {
	w := mustOpen(t, testConfig(t))
	id, err := w.Append("H", "m", nil, "", nil)
	require.NoError(t, err)
	require.NoError(t, w.Complete(id))
	require.NoError(t, w.Complete(id))
	e, _ := w.Get(id)
	assert.Equal(t, StateCompleted, e.State)
}

func TestFailRetryBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 2
	w := mustOpen(t, cfg)

	id, err := w.Append("H", "m", nil, "", nil)
	require.NoError(t, err)

	retryable, err := w.Fail(id, errors.New("downstream refused"))
	require.NoError(t, err)
	assert.True(t, retryable)
	e, _ := w.Get(id)
	assert.Equal(t, StatePending, e.State)
	assert.Equal(t, 1, e.RetryCount)
	assert.Equal(t, "downstream refused", e.Error)

	retryable, err = w.Fail(id, errors.New("still down"))
	require.NoError(t, err)
	assert.False(t, retryable)
	e, _ = w.Get(id)
	assert.Equal(t, StateFailed, e.State)
	assert.Len(t, w.Failed(), 1)
}

func TestFailPermanentIgnoresRetryBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 5
	w := mustOpen(t, cfg)

	id, err := w.Append("H", "m", nil, "", nil)
	require.NoError(t, err)

	require.NoError(t, w.FailPermanent(id, errors.New("peer rejected with AR")))
	e, _ := w.Get(id)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, 0, e.RetryCount)
	assert.Equal(t, "peer rejected with AR", e.Error)
}

func TestRecoveryRequeuesWithoutConsumingRetry(t *testing.T) {
	cfg := testConfig(t)
	w := mustOpen(t, cfg)

	pendingID, err := w.Append("H", "m1", []byte("p1"), "", nil)
	require.NoError(t, err)
	processingID, err := w.Append("H", "m2", []byte("p2"), "", nil)
	require.NoError(t, err)
	require.NoError(t, w.MarkProcessing(processingID))
	doneID, err := w.Append("H", "m3", nil, "", nil)
	require.NoError(t, err)
	require.NoError(t, w.Complete(doneID))

	// Simulate a retry in flight before the crash.
	_, err = w.Fail(pendingID, errors.New("transient"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	w2 := mustOpen(t, cfg)
	pending := w2.Pending()
	require.Len(t, pending, 2)

	byID := map[string]Entry{}
	for _, e := range pending {
		byID[e.ID] = e
	}
	// The in-flight entry comes back pending, retry count untouched.
	assert.Equal(t, 0, byID[processingID].RetryCount)
	assert.Equal(t, []byte("p2"), byID[processingID].Payload)
	assert.Equal(t, 1, byID[pendingID].RetryCount)

	done, ok := w2.Get(doneID)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, done.State)
}

func TestRotationAndCompressedRecovery(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileSize = 256
	w := mustOpen(t, cfg)

	var ids []string
	for i := 0; i < 10; i++ {
		id, err := w.Append("H", "m", []byte(strings.Repeat("x", 64)), "", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, w.Close())

	compressed, err := filepath.Glob(filepath.Join(cfg.Dir, "wal_*.log.zst"))
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)

	w2 := mustOpen(t, cfg)
	assert.Len(t, w2.Pending(), len(ids))
}

func TestCheckpointRemovesCompletedSegments(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileSize = 1 // rotate on every write
	cfg.EntryTTL = time.Nanosecond
	compress := false
	cfg.Compress = &compress
	w := mustOpen(t, cfg)

	id, err := w.Append("H", "m", nil, "", nil)
	require.NoError(t, err)
	require.NoError(t, w.Complete(id))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, w.Checkpoint())

	// Completed entry expired out of the index, closed segments gone.
	_, ok := w.Get(id)
	assert.False(t, ok)
	segs, err := filepath.Glob(filepath.Join(cfg.Dir, "wal_*.log"))
	require.NoError(t, err)
	assert.Len(t, segs, 1) // only the active segment remains
}

func TestCheckpointKeepsSegmentsWithPendingEntries(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileSize = 1
	compress := false
	cfg.Compress = &compress
	w := mustOpen(t, cfg)

	_, err := w.Append("H", "m", nil, "", nil)
	require.NoError(t, err)
	_, err = w.Append("H", "m2", nil, "", nil)
	require.NoError(t, err)

	require.NoError(t, w.Checkpoint())
	assert.Len(t, w.Pending(), 2)
}

func TestTornTailRecovery(t *testing.T) {
	cfg := testConfig(t)
	w := mustOpen(t, cfg)
	_, err := w.Append("H", "m", []byte("payload"), "", nil)
	require.NoError(t, err)
	path := w.path
	require.NoError(t, w.Close())

	// Append garbage as if the process died mid-write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x00, 0x00, 0x00, 0xFF, 'j', 'u', 'n', 'k'})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2 := mustOpen(t, cfg)
	assert.Len(t, w2.Pending(), 1)
}

func TestClosedWALRejectsWrites(t *testing.T) {
	w := mustOpen(t, testConfig(t))
	require.NoError(t, w.Close())
	_, err := w.Append("H", "m", nil, "", nil)
	require.Error(t, err)
}
