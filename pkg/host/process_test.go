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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/li/pkg/message"
	"github.com/teradata-labs/li/pkg/rules"
)

const hl7ORU = "MSH|^~\\&|LAB|F1|DST|F2|20240115120000||ORU^R01|MSG002|P|2.4\r"
const hl7A03 = "MSH|^~\\&|SRC|F1|DST|F2|20240115120000||ADT^A03|MSG003|P|2.4\r"

func routingProcess(t *testing.T, reg *ServiceRegistry, engineCfg rules.EngineConfig) *BusinessProcess {
	t.Helper()
	engine, err := rules.NewEngine(engineCfg)
	require.NoError(t, err)

	cfg := testConfig(t, "Router")
	cfg.Registry = reg
	p := NewBusinessProcess(cfg, engine)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, reg.Register(p))
	t.Cleanup(func() { stopHost(t, p) })
	return p
}

func TestProcessRoutesByTrigger(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	pas := &captureHost{name: "PAS"}
	lab := &captureHost{name: "LAB"}
	require.NoError(t, reg.Register(pas))
	require.NoError(t, reg.Register(lab))

	p := routingProcess(t, reg, rules.EngineConfig{
		Rules: []rules.Rule{
			{Name: "adt-a01", Priority: 1, Condition: `{MSH-9.1} = "ADT" AND {MSH-9.2} = "A01"`, Action: rules.ActionSend, Targets: []string{"PAS"}},
			{Name: "oru", Priority: 2, Condition: `{MSH-9.1} = "ORU"`, Action: rules.ActionSend, Targets: []string{"LAB"}},
		},
	})

	require.True(t, p.Submit(message.New([]byte(hl7ADT), message.WithType("ADT_A01"))))
	waitFor(t, func() bool { return pas.count() == 1 })
	assert.Zero(t, lab.count())
	assert.Equal(t, "adt-a01", pas.got[0].Envelope.Routing.RouteID)

	require.True(t, p.Submit(message.New([]byte(hl7ORU), message.WithType("ORU_R01"))))
	waitFor(t, func() bool { return lab.count() == 1 })
	assert.Equal(t, 1, pas.count())
}

func TestProcessDropsOnNoMatch(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	pas := &captureHost{name: "PAS"}
	require.NoError(t, reg.Register(pas))

	p := routingProcess(t, reg, rules.EngineConfig{
		Rules: []rules.Rule{
			{Name: "adt-a01", Priority: 1, Condition: `{MSH-9.1} = "ADT" AND {MSH-9.2} = "A01"`, Action: rules.ActionSend, Targets: []string{"PAS"}},
		},
	})

	require.True(t, p.Submit(message.New([]byte(hl7A03), message.WithType("ADT_A03"))))

	// Give the worker time to route; nothing may reach PAS.
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, pas.count())
}

func TestProcessDeleteActionDropsMessage(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	pas := &captureHost{name: "PAS"}
	require.NoError(t, reg.Register(pas))

	p := routingProcess(t, reg, rules.EngineConfig{
		Rules: []rules.Rule{
			{Name: "discard-a03", Priority: 1, Condition: `{MSH-9.2} = "A03"`, Action: rules.ActionDelete},
			{Name: "rest", Priority: 2, Condition: "", Action: rules.ActionSend, Targets: []string{"PAS"}},
		},
	})

	require.True(t, p.Submit(message.New([]byte(hl7A03))))
	require.True(t, p.Submit(message.New([]byte(hl7ADT))))

	waitFor(t, func() bool { return pas.count() == 1 })
	assert.True(t, bytes.Equal([]byte(hl7ADT), pas.got[0].Payload.Raw))
}

func TestProcessTransformRewritesBeforeSend(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	sink := &captureHost{name: "sink"}
	require.NoError(t, reg.Register(sink))

	p := routingProcess(t, reg, rules.EngineConfig{
		Rules: []rules.Rule{
			{Name: "mask", Priority: 1, Condition: "", Action: rules.ActionTransform, Targets: []string{"sink"}, Transform: "strip-pid"},
		},
	})
	p.RegisterTransform("strip-pid", func(m message.Message) (message.Message, error) {
		return m.WithPayload([]byte(hl7ORU)), nil
	})

	parent := message.New([]byte(hl7ADT))
	require.True(t, p.Submit(parent))

	waitFor(t, func() bool { return sink.count() == 1 })
	out := sink.got[0]
	assert.Equal(t, []byte(hl7ORU), out.Payload.Raw)
	// Derivation keeps the conversation and points back at the parent.
	assert.Equal(t, parent.Envelope.CorrelationID, out.Envelope.CorrelationID)
	assert.Equal(t, parent.Envelope.MessageID, out.Envelope.CausationID)
	assert.NotEqual(t, parent.Envelope.MessageID, out.Envelope.MessageID)
}

func TestProcessWithoutEngineUsesConfiguredTargets(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	sink := &captureHost{name: "sink"}
	require.NoError(t, reg.Register(sink))

	cfg := testConfig(t, "PassThrough")
	cfg.Registry = reg
	cfg.Targets = []string{"sink"}
	p := NewBusinessProcess(cfg, nil)
	require.NoError(t, p.Start(context.Background()))
	defer stopHost(t, p)

	require.True(t, p.Submit(message.New([]byte("anything"))))
	waitFor(t, func() bool { return sink.count() == 1 })
}
