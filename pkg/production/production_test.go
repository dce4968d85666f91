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

package production

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/li/pkg/classreg"
	"github.com/teradata-labs/li/pkg/config"
	"github.com/teradata-labs/li/pkg/health"
	"github.com/teradata-labs/li/pkg/host"
	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
	"github.com/teradata-labs/li/pkg/metrics"
	"github.com/teradata-labs/li/pkg/queue"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func parseConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

// captureBuilder returns a custom.* builder producing a passthrough
// process that records every message it handles.
func captureBuilder(mu *sync.Mutex, got *[]message.Message) HostBuilder {
	return func(bc BuildContext) (host.Host, error) {
		p := host.NewBusinessProcess(hostConfig(bc), nil)
		p.SetHooks(host.Hooks{
			OnAfterProcess: func(_ context.Context, _, result message.Message) (message.Message, error) {
				mu.Lock()
				*got = append(*got, result)
				mu.Unlock()
				return result, nil
			},
		})
		return p, nil
	}
}

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func TestRegisterBuiltinsResolvable(t *testing.T) {
	r := classreg.NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	for _, name := range []string{
		"li.hosts.hl7.mllp.service",
		"li.hosts.hl7.http.service",
		"li.hosts.http.service",
		"li.hosts.file.service",
		"li.hosts.router.process",
		"li.hosts.passthrough.process",
		"li.hosts.hl7.mllp.operation",
		"li.hosts.http.operation",
		"li.hosts.file.operation",
	} {
		_, err := classreg.As[HostBuilder](r, name)
		assert.NoError(t, err, name)
	}
}

func TestBuildRejectsUnknownClass(t *testing.T) {
	cfg := parseConfig(t, heredoc.Doc(`
		production: {name: T}
		items:
		  - {name: A, class_name: li.hosts.no.such.thing}
	`))
	e := newEngine(t, cfg)
	err := e.Build(context.Background())
	assert.ErrorIs(t, err, lierr.ErrConfiguration)
}

func TestMessageFlowsAcrossHosts(t *testing.T) {
	cfg := parseConfig(t, heredoc.Doc(`
		production: {name: T, drain_timeout: 1, shutdown_timeout: 2}
		store: {driver: memory}
		items:
		  - name: In
		    class_name: li.hosts.passthrough.process
		    host_settings: {TargetConfigNames: Out}
		  - name: Out
		    class_name: custom.capture
		connections:
		  - {from: In, to: Out}
	`))
	e := newEngine(t, cfg)

	var mu sync.Mutex
	var got []message.Message
	require.NoError(t, e.Classes().Register("custom.capture", captureBuilder(&mu, &got)))

	ctx := context.Background()
	require.NoError(t, e.Build(ctx))
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	in, ok := e.Host("In")
	require.True(t, ok)
	require.True(t, in.Submit(message.New([]byte("hello"), message.WithType("test"))))

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 1 })
	mu.Lock()
	assert.Equal(t, []byte("hello"), got[0].Payload.Raw)
	mu.Unlock()

	require.NoError(t, e.Stop(ctx))
	assert.False(t, in.Submit(message.New([]byte("late"))))
}

const hl7ADT = "MSH|^~\\&|SRC|F1|DST|F2|20240115120000||ADT^A01|MSG001|P|2.4\rPID|1||12345||DOE^JOHN\r"
const hl7ORU = "MSH|^~\\&|LAB|F1|DST|F2|20240115120000||ORU^R01|MSG002|P|2.4\rOBR|1\r"

func TestRouterProcessAppliesConfiguredRules(t *testing.T) {
	cfg := parseConfig(t, heredoc.Doc(`
		production: {name: T, drain_timeout: 1, shutdown_timeout: 2}
		items:
		  - name: Router
		    class_name: li.hosts.router.process
		  - name: PAS
		    class_name: custom.capture
		rules:
		  - name: adt
		    condition: '{MSH-9.1} = "ADT"'
		    action: send
		    targets: [PAS]
		connections:
		  - {from: Router, to: PAS}
	`))
	e := newEngine(t, cfg)

	var mu sync.Mutex
	var got []message.Message
	require.NoError(t, e.Classes().Register("custom.capture", captureBuilder(&mu, &got)))

	ctx := context.Background()
	require.NoError(t, e.Build(ctx))
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	router, ok := e.Host("Router")
	require.True(t, ok)
	require.True(t, router.Submit(message.New([]byte(hl7ADT))))

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 1 })
	mu.Lock()
	assert.Equal(t, "adt", got[0].Envelope.Routing.RouteID)
	assert.Equal(t, "PAS", got[0].Envelope.Routing.Destination)
	mu.Unlock()

	// No rule matches and the router carries no default targets, so the
	// message drops without reaching PAS.
	require.True(t, router.Submit(message.New([]byte(hl7ORU))))
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestDisabledItemSkipped(t *testing.T) {
	doc := heredoc.Doc(`
		production: {name: T}
		items:
		  - name: A
		    class_name: li.hosts.passthrough.process
		  - name: B
		    class_name: li.hosts.passthrough.process
		    enabled: false
	`)
	e := newEngine(t, parseConfig(t, doc))
	require.NoError(t, e.Build(context.Background()))

	_, ok := e.Host("A")
	assert.True(t, ok)
	_, ok = e.Host("B")
	assert.False(t, ok)
}

func TestStartDisabledItemsOverride(t *testing.T) {
	doc := heredoc.Doc(`
		production: {name: T, start_disabled_items: true}
		items:
		  - name: B
		    class_name: li.hosts.passthrough.process
		    enabled: false
	`)
	e := newEngine(t, parseConfig(t, doc))
	require.NoError(t, e.Build(context.Background()))

	_, ok := e.Host("B")
	assert.True(t, ok)
}

func TestDoubleStartRejected(t *testing.T) {
	cfg := parseConfig(t, heredoc.Doc(`
		production: {name: T, drain_timeout: 1, shutdown_timeout: 2}
		items:
		  - {name: A, class_name: li.hosts.passthrough.process}
	`))
	e := newEngine(t, cfg)
	ctx := context.Background()
	require.NoError(t, e.Build(ctx))
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	assert.ErrorIs(t, e.Start(ctx), lierr.ErrConfiguration)
	require.NoError(t, e.Stop(ctx))
	assert.NoError(t, e.Stop(ctx)) // idempotent
}

// crashyHost fails immediately after starting so the supervision sweep
// has something to restart.
type crashyHost struct {
	name   string
	mu     sync.Mutex
	starts int
}

func (c *crashyHost) Name() string      { return c.name }
func (c *crashyHost) Kind() host.Kind   { return host.KindProcess }
func (c *crashyHost) State() host.State { return host.StateError }
func (c *crashyHost) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return nil
}
func (c *crashyHost) Stop(context.Context) error        { return nil }
func (c *crashyHost) Pause()                            {}
func (c *crashyHost) Resume()                           {}
func (c *crashyHost) Submit(message.Message) bool       { return false }
func (c *crashyHost) SubmitEnvelope(host.Envelope) bool { return false }
func (c *crashyHost) QueueDepth() int                   { return 0 }
func (c *crashyHost) QueueMetrics() queue.Metrics       { return queue.Metrics{} }

func (c *crashyHost) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func TestSupervisionRespectsRestartBudget(t *testing.T) {
	cfg := parseConfig(t, heredoc.Doc(`
		production: {name: T, monitoring_interval: 0.05, drain_timeout: 0.1, shutdown_timeout: 1}
		items:
		  - name: C
		    class_name: custom.crashy
		    host_settings:
		      RestartPolicy: on_failure
		      MaxRestarts: 2
		      RestartDelay: 1ms
	`))
	e := newEngine(t, cfg)

	crashy := &crashyHost{name: "C"}
	require.NoError(t, e.Classes().Register("custom.crashy",
		HostBuilder(func(BuildContext) (host.Host, error) { return crashy, nil })))

	ctx := context.Background()
	require.NoError(t, e.Build(ctx))
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	// Initial start plus two supervised restarts, then the budget is
	// spent and the sweep leaves it alone.
	waitFor(t, func() bool { return crashy.startCount() == 3 })
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 3, crashy.startCount())
}

func TestSupervisionNeverPolicyLeavesHostDown(t *testing.T) {
	cfg := parseConfig(t, heredoc.Doc(`
		production: {name: T, monitoring_interval: 0.05, drain_timeout: 0.1, shutdown_timeout: 1}
		items:
		  - name: C
		    class_name: custom.crashy
		    host_settings:
		      RestartPolicy: never
	`))
	e := newEngine(t, cfg)

	crashy := &crashyHost{name: "C"}
	require.NoError(t, e.Classes().Register("custom.crashy",
		HostBuilder(func(BuildContext) (host.Host, error) { return crashy, nil })))

	ctx := context.Background()
	require.NoError(t, e.Build(ctx))
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, crashy.startCount())
}

func TestReloadHostRebuildsFromItem(t *testing.T) {
	cfg := parseConfig(t, heredoc.Doc(`
		production: {name: T, drain_timeout: 1, shutdown_timeout: 2}
		items:
		  - name: In
		    class_name: li.hosts.passthrough.process
		    host_settings: {TargetConfigNames: Out}
		  - name: Out
		    class_name: custom.capture
		connections:
		  - {from: In, to: Out}
	`))
	e := newEngine(t, cfg)

	var mu sync.Mutex
	var got []message.Message
	require.NoError(t, e.Classes().Register("custom.capture", captureBuilder(&mu, &got)))

	ctx := context.Background()
	require.NoError(t, e.Build(ctx))
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	before, _ := e.Host("Out")
	require.NoError(t, e.ReloadHost(ctx, "Out"))
	after, ok := e.Host("Out")
	require.True(t, ok)
	assert.NotSame(t, before, after)
	assert.Equal(t, host.StateRunning, after.State())

	// The reloaded instance is wired into the broker: fan-out from In
	// still lands.
	in, _ := e.Host("In")
	require.True(t, in.Submit(message.New([]byte("post-reload"))))
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 1 })

	assert.ErrorIs(t, e.ReloadHost(ctx, "Ghost"), lierr.ErrNoMatch)
}

func TestAdminServerEndpoints(t *testing.T) {
	checks := health.NewRegistry(zaptest.NewLogger(t))
	checks.Register("always", func(context.Context) health.Result {
		return health.Healthy("ok")
	}, true, time.Second)

	a, err := newAdminServer(config.AdminSettings{Host: "127.0.0.1", Port: 0},
		checks, metrics.NewRegistry(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close(context.Background())

	for _, path := range []string{"/healthz", "/readyz", "/health", "/metrics"} {
		resp, err := http.Get("http://" + a.addr + path)
		require.NoError(t, err, path)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, body, path)
	}
}
