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

// Package message defines the immutable clinical message record: an
// Envelope of routing/audit metadata paired with a raw byte Payload.
//
// Messages are value types. Every "modification" returns a new Message;
// the raw payload bytes are never mutated. Derivation preserves the
// correlation id and records causation, so a whole conversation can be
// traced from any of its members.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders messages in priority queues. Lower ordinal is more
// urgent.
type Priority int

const (
	PriorityUrgent Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// String returns the configuration name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority maps a configuration name to a Priority. Unknown names
// map to PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "urgent":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// State tracks a message through the engine.
type State string

const (
	StateCreated    State = "created"
	StateReceived   State = "received"
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateDelivered  State = "delivered"
	StateFailed     State = "failed"
	StateDeadLetter State = "dead-letter"
)

// DeliveryMode selects the delivery guarantee for a message.
type DeliveryMode string

const (
	AtMostOnce  DeliveryMode = "at-most-once"
	AtLeastOnce DeliveryMode = "at-least-once"
)

// Sensitivity classifies the governance level of a message.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)

// Routing carries the hop-by-hop addressing of a message.
type Routing struct {
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	RouteID     string `json:"route_id,omitempty"`
	HopCount    int    `json:"hop_count"`
}

// Governance carries the audit and tenancy metadata of a message.
type Governance struct {
	AuditID     string      `json:"audit_id,omitempty"`
	TenantID    string      `json:"tenant_id,omitempty"`
	Sensitivity Sensitivity `json:"sensitivity,omitempty"`
}

// Envelope is the metadata half of a Message.
type Envelope struct {
	MessageID     string       `json:"message_id"`
	CorrelationID string       `json:"correlation_id"`
	CausationID   string       `json:"causation_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	MessageType   string       `json:"message_type,omitempty"`
	Priority      Priority     `json:"priority"`
	Tags          []string     `json:"tags,omitempty"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	DeliveryMode  DeliveryMode `json:"delivery_mode"`
	Routing       Routing      `json:"routing"`
	Governance    Governance   `json:"governance"`
	State         State        `json:"state"`
}

// Payload is the content half of a Message. Raw is authoritative and is
// never mutated after construction.
type Payload struct {
	Raw         []byte              `json:"raw"`
	ContentType string              `json:"content_type,omitempty"`
	Encoding    string              `json:"encoding,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// Message is an immutable (Envelope, Payload) pair.
type Message struct {
	Envelope Envelope `json:"envelope"`
	Payload  Payload  `json:"payload"`
}

// Option customises a Message at construction.
type Option func(*Message)

// WithType sets the message type (typically "MSG^EVENT").
func WithType(t string) Option {
	return func(m *Message) { m.Envelope.MessageType = t }
}

// WithPriority sets the envelope priority.
func WithPriority(p Priority) Option {
	return func(m *Message) { m.Envelope.Priority = p }
}

// WithSource sets the originating Host name.
func WithSource(source string) Option {
	return func(m *Message) { m.Envelope.Routing.Source = source }
}

// WithDestination sets the destination Host name.
func WithDestination(dest string) Option {
	return func(m *Message) { m.Envelope.Routing.Destination = dest }
}

// WithContentType sets the payload content type.
func WithContentType(ct string) Option {
	return func(m *Message) { m.Payload.ContentType = ct }
}

// WithEncoding sets the payload character encoding.
func WithEncoding(enc string) Option {
	return func(m *Message) { m.Payload.Encoding = enc }
}

// WithTags appends tags to the envelope.
func WithTags(tags ...string) Option {
	return func(m *Message) { m.Envelope.Tags = append(m.Envelope.Tags, tags...) }
}

// WithTTL sets the expiry to ttl seconds after creation.
func WithTTL(seconds int) Option {
	return func(m *Message) {
		t := m.Envelope.CreatedAt.Add(time.Duration(seconds) * time.Second)
		m.Envelope.ExpiresAt = &t
	}
}

// WithExpiry sets an explicit expiry timestamp.
func WithExpiry(t time.Time) Option {
	return func(m *Message) { m.Envelope.ExpiresAt = &t }
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) Option {
	return func(m *Message) { m.Envelope.MaxRetries = n }
}

// WithDeliveryMode sets the delivery guarantee.
func WithDeliveryMode(mode DeliveryMode) Option {
	return func(m *Message) { m.Envelope.DeliveryMode = mode }
}

// WithTenant sets the governance tenant id.
func WithTenant(tenant string) Option {
	return func(m *Message) { m.Envelope.Governance.TenantID = tenant }
}

// WithSensitivity sets the governance sensitivity level.
func WithSensitivity(s Sensitivity) Option {
	return func(m *Message) { m.Envelope.Governance.Sensitivity = s }
}

// New creates a Message around raw bytes. The message id and correlation
// id are fresh UUIDs; the correlation id starts a new conversation.
func New(raw []byte, opts ...Option) Message {
	m := Message{
		Envelope: Envelope{
			MessageID:     uuid.NewString(),
			CorrelationID: uuid.NewString(),
			CreatedAt:     time.Now().UTC(),
			Priority:      PriorityNormal,
			MaxRetries:    3,
			DeliveryMode:  AtLeastOnce,
			State:         StateCreated,
		},
		Payload: Payload{Raw: raw},
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Derive creates a new Message caused by parent. The derived message has
// a fresh message id, shares the parent's correlation id, and records the
// parent's message id as its causation id. Routing source carries over;
// the hop count increments.
func Derive(parent Message, raw []byte, opts ...Option) Message {
	m := Message{
		Envelope: Envelope{
			MessageID:     uuid.NewString(),
			CorrelationID: parent.Envelope.CorrelationID,
			CausationID:   parent.Envelope.MessageID,
			CreatedAt:     time.Now().UTC(),
			MessageType:   parent.Envelope.MessageType,
			Priority:      parent.Envelope.Priority,
			MaxRetries:    parent.Envelope.MaxRetries,
			DeliveryMode:  parent.Envelope.DeliveryMode,
			Governance:    parent.Envelope.Governance,
			Routing: Routing{
				Source:   parent.Envelope.Routing.Source,
				RouteID:  parent.Envelope.Routing.RouteID,
				HopCount: parent.Envelope.Routing.HopCount + 1,
			},
			State: StateCreated,
		},
		Payload: Payload{
			Raw:         raw,
			ContentType: parent.Payload.ContentType,
			Encoding:    parent.Payload.Encoding,
		},
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// clone deep-copies the mutable parts of a Message (tags and property
// map). Raw bytes are shared: they are immutable by contract.
func (m Message) clone() Message {
	out := m
	if m.Envelope.Tags != nil {
		out.Envelope.Tags = append([]string(nil), m.Envelope.Tags...)
	}
	if m.Payload.Properties != nil {
		props := make(map[string]Property, len(m.Payload.Properties))
		for k, v := range m.Payload.Properties {
			props[k] = v
		}
		out.Payload.Properties = props
	}
	return out
}

// WithState returns a copy of m in the given state.
func (m Message) WithState(s State) Message {
	out := m.clone()
	out.Envelope.State = s
	return out
}

// WithProperty returns a copy of m with a payload property set.
func (m Message) WithProperty(name string, p Property) Message {
	out := m.clone()
	if out.Payload.Properties == nil {
		out.Payload.Properties = make(map[string]Property, 1)
	}
	out.Payload.Properties[name] = p
	return out
}

// WithPayload returns a copy of m carrying different raw bytes. The
// original raw slice is untouched.
func (m Message) WithPayload(raw []byte) Message {
	out := m.clone()
	out.Payload.Raw = raw
	return out
}

// WithRouting returns a copy of m with destination and route id set.
func (m Message) WithRouting(destination, routeID string) Message {
	out := m.clone()
	out.Envelope.Routing.Destination = destination
	out.Envelope.Routing.RouteID = routeID
	return out
}

// IncRetry returns a copy of m with the retry counter incremented.
func (m Message) IncRetry() Message {
	out := m.clone()
	out.Envelope.RetryCount++
	return out
}

// Expired reports whether the message's expiry has elapsed at now.
// Messages without an expiry never expire.
func (m Message) Expired(now time.Time) bool {
	return m.Envelope.ExpiresAt != nil && now.After(*m.Envelope.ExpiresAt)
}

// Property returns the named payload property.
func (m Message) Property(name string) (Property, bool) {
	p, ok := m.Payload.Properties[name]
	return p, ok
}
