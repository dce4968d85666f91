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

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/hl7"
	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
	"github.com/teradata-labs/li/pkg/rules"
)

// Transform rewrites a message. Registered transforms are referenced by
// routing rules through their id.
type Transform func(m message.Message) (message.Message, error)

// BusinessProcess is the routing and transformation specialisation: it
// evaluates its rule engine against the HL7 view of each message and
// fans out per the matched rule.
type BusinessProcess struct {
	*BaseHost
	engine     *rules.Engine
	transforms map[string]Transform
}

// NewBusinessProcess wires the process around its rule engine. A nil
// engine passes every message straight to the configured targets.
func NewBusinessProcess(cfg Config, engine *rules.Engine) *BusinessProcess {
	p := &BusinessProcess{
		BaseHost:   NewBaseHost(cfg, KindProcess),
		engine:     engine,
		transforms: map[string]Transform{},
	}
	p.SetProcessor(p)
	return p
}

// RegisterTransform makes a transform addressable from routing rules.
func (p *BusinessProcess) RegisterTransform(id string, t Transform) {
	p.transforms[id] = t
}

// OnMessage routes the message. A matched delete rule drops it (nil
// fan-out); send and transform fan out to the rule's targets. A
// NoMatch without a default rule drops the message and records it.
func (p *BusinessProcess) OnMessage(_ context.Context, m message.Message) (message.Message, []string, error) {
	if p.engine == nil {
		return m, nil, nil
	}

	view := hl7.NewMessage(m.Payload.Raw)
	decision, err := p.engine.Route(view)
	if err != nil {
		if errors.Is(err, lierr.ErrNoMatch) {
			p.Logger().Info("no routing rule matched, dropping",
				zap.String("message_id", m.Envelope.MessageID),
				zap.String("message_type", m.Envelope.MessageType))
			p.audit(m, "dropped", "no routing rule matched")
			return m, []string{}, nil
		}
		return m, nil, err
	}

	switch decision.Action {
	case rules.ActionDelete:
		p.Logger().Info("rule deleted message",
			zap.String("rule", decision.Rule),
			zap.String("message_id", m.Envelope.MessageID))
		p.audit(m, "deleted", "rule "+decision.Rule)
		return m, []string{}, nil

	case rules.ActionTransform, rules.ActionSend:
		out := m
		if decision.Transform != "" {
			t, ok := p.transforms[decision.Transform]
			if !ok {
				return m, nil, lierr.Configf("process %s: rule %s references unknown transform %q",
					p.Name(), decision.Rule, decision.Transform)
			}
			derived, terr := t(m)
			if terr != nil {
				return m, nil, terr
			}
			out = message.Derive(m, derived.Payload.Raw)
		}
		out = out.WithRouting("", decision.Rule)
		return out, decision.Targets, nil
	}
	return m, decision.Targets, nil
}

var _ Host = (*BusinessProcess)(nil)
var _ Processor = (*BusinessProcess)(nil)
