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
package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/li/pkg/lierr"
)

func mustNew(t *testing.T, cfg Config) *Queue {
	t.Helper()
	q, err := New(cfg)
	require.NoError(t, err)
	return q
}

func drain(t *testing.T, q *Queue) []any {
	t.Helper()
	ctx := context.Background()
	var out []any
	for !q.Empty() {
		item, err := q.Get(ctx, time.Second)
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func TestFIFOOrder(t *testing.T) {
	q := mustNew(t, Config{Capacity: 10})
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		ok, err := q.Put(ctx, i)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []any{1, 2, 3}, drain(t, q))
}

func TestLIFOOrder(t *testing.T) {
	q := mustNew(t, Config{Capacity: 10, Discipline: LIFO})
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := q.Put(ctx, i)
		require.NoError(t, err)
	}
	assert.Equal(t, []any{3, 2, 1}, drain(t, q))
}

func TestPriorityOrderWithFIFOTieBreak(t *testing.T) {
	q := mustNew(t, Config{
		Capacity:   10,
		Discipline: Priority,
		PriorityFn: func(item any) int { return item.(prioritised).prio },
	})
	ctx := context.Background()

	puts := []prioritised{{"low-1", 3}, {"urgent", 0}, {"low-2", 3}, {"normal", 2}}
	for _, p := range puts {
		_, err := q.Put(ctx, p)
		require.NoError(t, err)
	}

	got := drain(t, q)
	assert.Equal(t, "urgent", got[0].(prioritised).name)
	assert.Equal(t, "normal", got[1].(prioritised).name)
	// Equal priorities keep submission order.
	assert.Equal(t, "low-1", got[2].(prioritised).name)
	assert.Equal(t, "low-2", got[3].(prioritised).name)
}

type prioritised struct {
	name string
	prio int
}

func TestDropOldestKeepsLastK(t *testing.T) {
	q := mustNew(t, Config{Capacity: 3, Overflow: DropOldest})
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		ok, err := q.Put(ctx, i)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []any{3, 4, 5}, drain(t, q))
	assert.Equal(t, int64(2), q.Metrics().TotalDropped)
}

func TestDropNewestRejects(t *testing.T) {
	q := mustNew(t, Config{Capacity: 2, Overflow: DropNewest})
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		ok, err := q.Put(ctx, i)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := q.Put(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []any{1, 2}, drain(t, q))
}

func TestRedirectOverflow(t *testing.T) {
	overflow := mustNew(t, Config{Capacity: 10})
	q := mustNew(t, Config{Capacity: 1, Overflow: Redirect, OverflowTarget: overflow})
	ctx := context.Background()

	_, err := q.Put(ctx, 1)
	require.NoError(t, err)
	ok, err := q.Put(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, q.Size())
	assert.Equal(t, 1, overflow.Size())
}

func TestRedirectWithoutTargetIsConfigError(t *testing.T) {
	_, err := New(Config{Capacity: 1, Overflow: Redirect})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lierr.ErrConfiguration))
}

func TestBlockingPutWaitsForSpace(t *testing.T) {
	q := mustNew(t, Config{Capacity: 1, Overflow: Block})
	ctx := context.Background()

	_, err := q.Put(ctx, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ok, err := q.Put(ctx, 2)
		assert.NoError(t, err)
		assert.True(t, ok)
	}()

	select {
	case <-done:
		t.Fatal("put should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	item, err := q.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, item)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("put should complete after space frees")
	}
}

func TestBlockingPutHonoursContext(t *testing.T) {
	q := mustNew(t, Config{Capacity: 1, Overflow: Block})
	_, err := q.Put(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Put(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lierr.ErrTimeout))
}

func TestGetTimeout(t *testing.T) {
	q := mustNew(t, Config{Capacity: 1})
	_, err := q.Get(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lierr.ErrTimeout))
}

func TestCloseDrains(t *testing.T) {
	q := mustNew(t, Config{Capacity: 5})
	ctx := context.Background()
	_, err := q.Put(ctx, 1)
	require.NoError(t, err)

	q.Close()

	_, err = q.Put(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lierr.ErrClosed))

	item, err := q.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, item)

	_, err = q.Get(ctx, 10*time.Millisecond)
	assert.True(t, errors.Is(err, lierr.ErrClosed))
}

func TestMetrics(t *testing.T) {
	q := mustNew(t, Config{Capacity: 2, Overflow: DropOldest})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := q.Put(ctx, i)
		require.NoError(t, err)
	}
	_, err := q.Get(ctx, time.Second)
	require.NoError(t, err)

	m := q.Metrics()
	assert.Equal(t, int64(3), m.TotalPut)
	assert.Equal(t, int64(1), m.TotalGet)
	assert.Equal(t, int64(1), m.TotalDropped)
	assert.Equal(t, int64(2), m.PeakSize)
	assert.Equal(t, int64(1), m.CurrentSize)
}
