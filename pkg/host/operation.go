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
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/ack"
	"github.com/teradata-labs/li/pkg/adapter"
	"github.com/teradata-labs/li/pkg/hl7"
	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
)

// BusinessOperation is the outbound specialisation: it delivers each
// message through its adapter and, for HL7, drives the outcome off the
// peer's ACK code via its reply-code rules.
type BusinessOperation struct {
	*BaseHost
	out      adapter.Outbound
	ackRules ack.Rules

	// HL7Mode controls whether the peer's reply is parsed as an HL7
	// ACK. Off, any successful send is a success.
	HL7Mode bool
}

// NewBusinessOperation wires the operation around its outbound adapter
// and reply-code action list. An empty replyCodeActions means "*=S".
func NewBusinessOperation(cfg Config, out adapter.Outbound, replyCodeActions string, hl7Mode bool) (*BusinessOperation, error) {
	ackRules, err := ack.Parse(replyCodeActions)
	if err != nil {
		return nil, lierr.Configf("operation %s: ReplyCodeActions: %v", cfg.Name, err)
	}
	o := &BusinessOperation{
		BaseHost: NewBaseHost(cfg, KindOperation),
		out:      out,
		ackRules: ackRules,
		HL7Mode:  hl7Mode,
	}
	o.SetProcessor(o)
	return o, nil
}

// Start launches the adapter before the worker pool so the first
// dequeued message finds the transport ready.
func (o *BusinessOperation) Start(ctx context.Context) error {
	if o.out != nil {
		if err := o.out.Start(ctx); err != nil {
			o.setState(StateError)
			return err
		}
	}
	return o.BaseHost.Start(ctx)
}

// Stop stops the workers first so nothing dequeues mid-teardown, then
// the adapter.
func (o *BusinessOperation) Stop(ctx context.Context) error {
	err := o.BaseHost.Stop(ctx)
	if o.out != nil {
		if aerr := o.out.Stop(ctx); aerr != nil {
			o.Logger().Warn("adapter stop failed", zap.Error(aerr))
		}
	}
	return err
}

// OnMessage dispatches the payload and evaluates the outcome. A
// transport fault before reply bytes arrive is retryable; the adapter
// has already burned its own retry budget by then, so SendError is
// final. The reply-code action decides the rest: S and W succeed, F
// fails the WAL entry outright, R raises the retry signal.
func (o *BusinessOperation) OnMessage(ctx context.Context, m message.Message) (message.Message, []string, error) {
	if o.out == nil {
		return m, []string{}, lierr.Configf("operation %s: no outbound adapter", o.Name())
	}

	reply, err := o.out.Send(ctx, m.Payload.Raw)
	if err != nil {
		return m, []string{}, err
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.IncSent(o.Name())
	}

	result := message.Derive(m, reply)
	if !o.HL7Mode {
		return result, []string{}, nil
	}

	code := hl7.ParseAckCode(reply)
	action := o.ackRules.Evaluate(code)
	switch action {
	case ack.ActionSuccess:
		return result, []string{}, nil
	case ack.ActionWarn:
		o.Logger().Warn("peer acknowledged with warning",
			zap.String("ack_code", code),
			zap.String("message_id", m.Envelope.MessageID))
		return result, []string{}, nil
	case ack.ActionRetry:
		return m, []string{}, RetryableError(fmt.Errorf("operation %s: peer asked for retry with %s", o.Name(), code))
	default: // ack.ActionFail
		return m, []string{}, fmt.Errorf("operation %s: peer rejected with %s: %w", o.Name(), code, errNonRetryable)
	}
}

// errNonRetryable tags ACK-driven failures so the worker never mistakes
// them for transport faults.
var errNonRetryable = errors.New("peer rejection")

var _ Host = (*BusinessOperation)(nil)
var _ Processor = (*BusinessOperation)(nil)
