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

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process MessageStore for tests and single-node
// deployments that do not need durable audit records.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Store inserts or replaces a record.
func (s *MemoryStore) Store(_ context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// UpdateState sets the state and optional error text of a record.
func (s *MemoryStore) UpdateState(_ context.Context, id, state, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.State = state
	rec.Error = errText
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

// Query returns records matching the filter, newest first.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]Record, error) {
	s.mu.RLock()
	var out []Record
	for _, rec := range s.records {
		if matches(rec, f) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Count returns the number of records matching the filter.
func (s *MemoryStore) Count(_ context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.records {
		if matches(rec, f) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func matches(rec Record, f Filter) bool {
	if f.HostName != "" && rec.HostName != f.HostName {
		return false
	}
	if f.MessageType != "" && rec.MessageType != f.MessageType {
		return false
	}
	if f.State != "" && rec.State != f.State {
		return false
	}
	if f.CorrelationID != "" && rec.CorrelationID != f.CorrelationID {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

var _ MessageStore = (*MemoryStore)(nil)
