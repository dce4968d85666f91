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

// Package queue provides the bounded per-Host queue with a selectable
// discipline (FIFO, LIFO, priority, unordered) and overflow policy
// (block, drop_oldest, drop_newest, redirect).
//
// All operations are safe for concurrent use.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teradata-labs/li/pkg/lierr"
)

// Discipline selects the ordering of a queue.
type Discipline string

const (
	FIFO      Discipline = "fifo"
	LIFO      Discipline = "lifo"
	Priority  Discipline = "priority"
	Unordered Discipline = "unordered"
)

// ParseDiscipline maps a configuration value to a Discipline. Empty or
// unknown values map to FIFO.
func ParseDiscipline(s string) Discipline {
	switch Discipline(s) {
	case LIFO, Priority, Unordered:
		return Discipline(s)
	default:
		return FIFO
	}
}

// OverflowPolicy selects the behaviour of Put on a full queue.
type OverflowPolicy string

const (
	Block      OverflowPolicy = "block"
	DropOldest OverflowPolicy = "drop_oldest"
	DropNewest OverflowPolicy = "drop_newest"
	Redirect   OverflowPolicy = "redirect"
)

// ParseOverflowPolicy maps a configuration value to an OverflowPolicy.
// Empty or unknown values map to Block.
func ParseOverflowPolicy(s string) OverflowPolicy {
	switch OverflowPolicy(s) {
	case DropOldest, DropNewest, Redirect:
		return OverflowPolicy(s)
	default:
		return Block
	}
}

// Config describes a queue.
type Config struct {
	// Capacity bounds the queue. Zero or negative means unbounded.
	Capacity int

	Discipline Discipline
	Overflow   OverflowPolicy

	// OverflowTarget receives evicted or redirected items under the
	// Redirect policy. Required when Overflow is Redirect.
	OverflowTarget *Queue

	// PriorityFn extracts the ordering key for the Priority discipline.
	// Lower ordinal is more urgent. Items for which the function is nil
	// or unset order as ordinal 0.
	PriorityFn func(item any) int
}

// Metrics is a point-in-time snapshot of queue counters.
type Metrics struct {
	TotalPut      int64
	TotalGet      int64
	TotalDropped  int64
	OverflowCount int64
	PeakSize      int64
	CurrentSize   int64
}

type entry struct {
	item any
	prio int
	seq  uint64
}

// Queue is a bounded, synchronised queue.
type Queue struct {
	cfg Config

	mu       sync.Mutex
	items    []entry // fifo/lifo/unordered storage, or heap for priority
	seq      uint64
	closed   bool
	notFull  chan struct{} // closed-and-replaced broadcast on space
	notEmpty chan struct{}

	totalPut      atomic.Int64
	totalGet      atomic.Int64
	totalDropped  atomic.Int64
	overflowCount atomic.Int64
	peakSize      atomic.Int64
}

// New creates a queue from cfg. A Redirect policy without a target is a
// configuration error.
func New(cfg Config) (*Queue, error) {
	if cfg.Discipline == "" {
		cfg.Discipline = FIFO
	}
	if cfg.Overflow == "" {
		cfg.Overflow = Block
	}
	if cfg.Overflow == Redirect && cfg.OverflowTarget == nil {
		return nil, lierr.Configf("redirect overflow policy requires an overflow queue")
	}
	return &Queue{
		cfg:      cfg,
		notFull:  make(chan struct{}),
		notEmpty: make(chan struct{}),
	}, nil
}

// Put inserts item. Under the Block policy it waits for space until ctx
// is done. The boolean reports whether the item was accepted (false for
// a drop_newest rejection).
func (q *Queue) Put(ctx context.Context, item any) (bool, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return false, fmt.Errorf("queue: %w", lierr.ErrClosed)
		}

		if q.cfg.Capacity <= 0 || len(q.items) < q.cfg.Capacity {
			q.insertLocked(item)
			q.mu.Unlock()
			return true, nil
		}

		switch q.cfg.Overflow {
		case DropOldest:
			q.evictOldestLocked()
			q.totalDropped.Add(1)
			q.overflowCount.Add(1)
			q.insertLocked(item)
			q.mu.Unlock()
			return true, nil

		case DropNewest:
			q.totalDropped.Add(1)
			q.overflowCount.Add(1)
			q.mu.Unlock()
			return false, nil

		case Redirect:
			target := q.cfg.OverflowTarget
			q.overflowCount.Add(1)
			q.mu.Unlock()
			return target.Put(ctx, item)

		default: // Block
			wait := q.notFull
			q.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return false, fmt.Errorf("queue put: %w", lierr.ErrTimeout)
			}
		}
	}
}

// Get removes and returns the next item per the discipline, waiting up
// to timeout (zero means wait until ctx is done). An elapsed deadline
// fails with TimeoutError; a closed empty queue fails with ErrClosed.
func (q *Queue) Get(ctx context.Context, timeout time.Duration) (any, error) {
	var timer *time.Timer
	var deadline <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.removeLocked()
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, fmt.Errorf("queue: %w", lierr.ErrClosed)
		}
		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-wait:
		case <-deadline:
			return nil, fmt.Errorf("queue get: %w", lierr.ErrTimeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("queue get: %w", lierr.ErrTimeout)
		}
	}
}

// Size returns the number of queued items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds no items.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// Full reports whether the queue is at capacity.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg.Capacity > 0 && len(q.items) >= q.cfg.Capacity
}

// Close rejects further puts. Queued items remain drainable with Get.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	// Wake blocked producers and consumers.
	close(q.notFull)
	close(q.notEmpty)
	q.notFull = make(chan struct{})
	q.notEmpty = make(chan struct{})
}

// Metrics returns a snapshot of the queue counters.
func (q *Queue) Metrics() Metrics {
	return Metrics{
		TotalPut:      q.totalPut.Load(),
		TotalGet:      q.totalGet.Load(),
		TotalDropped:  q.totalDropped.Load(),
		OverflowCount: q.overflowCount.Load(),
		PeakSize:      q.peakSize.Load(),
		CurrentSize:   int64(q.Size()),
	}
}

// insertLocked appends item per the discipline and wakes one consumer.
func (q *Queue) insertLocked(item any) {
	e := entry{item: item, seq: q.seq}
	q.seq++
	if q.cfg.Discipline == Priority {
		if q.cfg.PriorityFn != nil {
			e.prio = q.cfg.PriorityFn(item)
		}
		heap.Push((*prioHeap)(q), e)
	} else {
		q.items = append(q.items, e)
	}
	q.totalPut.Add(1)
	if n := int64(len(q.items)); n > q.peakSize.Load() {
		q.peakSize.Store(n)
	}
	q.broadcastLocked(&q.notEmpty)
}

// removeLocked pops the next item per the discipline and wakes one
// producer.
func (q *Queue) removeLocked() any {
	var e entry
	switch q.cfg.Discipline {
	case Priority:
		e = heap.Pop((*prioHeap)(q)).(entry)
	case LIFO, Unordered:
		e = q.items[len(q.items)-1]
		q.items = q.items[:len(q.items)-1]
	default: // FIFO
		e = q.items[0]
		q.items = q.items[1:]
	}
	q.totalGet.Add(1)
	q.broadcastLocked(&q.notFull)
	return e.item
}

// evictOldestLocked drops the earliest-inserted item regardless of
// discipline.
func (q *Queue) evictOldestLocked() {
	if len(q.items) == 0 {
		return
	}
	if q.cfg.Discipline == Priority {
		oldest := 0
		for i := range q.items {
			if q.items[i].seq < q.items[oldest].seq {
				oldest = i
			}
		}
		heap.Remove((*prioHeap)(q), oldest)
		return
	}
	q.items = q.items[1:]
}

func (q *Queue) broadcastLocked(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}

// prioHeap orders entries by priority ordinal, ties broken FIFO by
// insertion sequence.
type prioHeap Queue

func (h *prioHeap) Len() int { return len(h.items) }

func (h *prioHeap) Less(i, j int) bool {
	if h.items[i].prio != h.items[j].prio {
		return h.items[i].prio < h.items[j].prio
	}
	return h.items[i].seq < h.items[j].seq
}

func (h *prioHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *prioHeap) Push(x any) { h.items = append(h.items, x.(entry)) }

func (h *prioHeap) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	h.items = old[:n-1]
	return e
}
