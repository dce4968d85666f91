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

// Package store defines the persistence contracts the engine depends
// on, with memory, SQLite, and PostgreSQL implementations. The message
// store keeps an audit record per processed message; the external
// queue contract lets a Host swap its in-process queue for a shared
// one in cross-process deployments.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a lookup for an id the store does not hold.
var ErrNotFound = errors.New("store: record not found")

// Record is one audit row for a processed message.
type Record struct {
	ID            string
	MessageID     string
	HostName      string
	MessageType   string
	State         string
	Payload       []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Metadata      map[string]string
	Source        string
	Target        string
	CorrelationID string
	Error         string
	RetryCount    int
}

// Filter narrows Query and Count. Zero values match everything.
type Filter struct {
	HostName      string
	MessageType   string
	State         string
	CorrelationID string
	Since         time.Time
	Until         time.Time
	Limit         int
	Offset        int
}

// MessageStore persists audit records for replay and inspection.
type MessageStore interface {
	Store(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	UpdateState(ctx context.Context, id, state, errText string) error
	Query(ctx context.Context, f Filter) ([]Record, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Close() error
}

// QueuedMessage is one message leased from an external queue. Ack or
// Nack settles the lease.
type QueuedMessage struct {
	ID            int64
	Queue         string
	Payload       []byte
	Priority      int
	CorrelationID string
	EnqueuedAt    time.Time
	Attempts      int
}

// SendOptions carries the optional send parameters.
type SendOptions struct {
	Priority      int
	Delay         time.Duration
	CorrelationID string
}

// Queue is the external queue contract for cross-process deployments.
// Receive returns ErrNotFound when the wait elapses with no message.
type Queue interface {
	Send(ctx context.Context, queue string, payload []byte, opts SendOptions) error
	Receive(ctx context.Context, queue string, timeout time.Duration) (*QueuedMessage, error)
	Ack(ctx context.Context, msg *QueuedMessage) error
	Nack(ctx context.Context, msg *QueuedMessage, requeue bool) error
	Length(ctx context.Context, queue string) (int, error)
	Close() error
}
