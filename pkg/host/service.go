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
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/adapter"
	"github.com/teradata-labs/li/pkg/hl7"
	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
)

// BusinessService is the inbound specialisation: its adapter hands it
// raw bytes, it wraps them into a Message, answers the peer, and fans
// the message out to its targets after processing.
type BusinessService struct {
	*BaseHost
	in adapter.Inbound

	// HL7Mode controls whether ingress validates the payload as HL7
	// and answers with a generated ACK. File and plain HTTP services
	// leave it off.
	HL7Mode bool
}

// NewBusinessService wires the service around its inbound adapter. The
// adapter may be nil for services fed only through the broker.
func NewBusinessService(cfg Config, in adapter.Inbound, hl7Mode bool) *BusinessService {
	s := &BusinessService{
		BaseHost: NewBaseHost(cfg, KindService),
		in:       in,
		HL7Mode:  hl7Mode,
	}
	s.SetProcessor(s)
	if in != nil {
		in.SetHandler(s.onReceived)
	}
	return s
}

// Start launches the worker pool, then the adapter, so the first
// accepted connection already has consumers behind it.
func (s *BusinessService) Start(ctx context.Context) error {
	if err := s.BaseHost.Start(ctx); err != nil {
		return err
	}
	if s.in != nil {
		if err := s.in.Start(ctx); err != nil {
			s.setState(StateError)
			return err
		}
	}
	return nil
}

// Stop stops the adapter first so no new traffic is admitted, then the
// worker pool.
func (s *BusinessService) Stop(ctx context.Context) error {
	if s.in != nil {
		if err := s.in.Stop(ctx); err != nil {
			s.Logger().Warn("adapter stop failed", zap.Error(err))
		}
	}
	return s.BaseHost.Stop(ctx)
}

// onReceived is the adapter callback: wrap raw bytes into a Message,
// submit it, and answer the peer. For HL7 ingress the reply is a
// generated ACK echoing MSH-10; acceptance is AA, a structural fault
// AE, and a full queue AR.
func (s *BusinessService) onReceived(_ context.Context, raw []byte) ([]byte, error) {
	if !s.HL7Mode {
		m := message.New(raw, message.WithSource(s.Name()))
		if !s.Submit(m) {
			return nil, fmt.Errorf("host %s: %w", s.Name(), lierr.ErrQueueFull)
		}
		return nil, nil
	}

	view := hl7.NewMessage(raw)
	if err := view.Validate(); err != nil {
		s.Logger().Warn("rejecting structurally invalid message", zap.Error(err))
		return hl7.BuildAck(view, hl7.AckError, err.Error())
	}

	m := message.New(raw,
		message.WithSource(s.Name()),
		message.WithType(view.MessageType()),
		message.WithContentType("x-application/hl7-v2+er7"))
	if !s.Submit(m) {
		return hl7.BuildAck(view, hl7.AckReject, "not accepting messages")
	}
	return hl7.BuildAck(view, hl7.AckAccept, "Message accepted")
}

// OnMessage for a service is a hand-off: the message flows unchanged to
// the configured targets.
func (s *BusinessService) OnMessage(_ context.Context, m message.Message) (message.Message, []string, error) {
	return m, nil, nil
}

var _ Host = (*BusinessService)(nil)
var _ Processor = (*BusinessService)(nil)
