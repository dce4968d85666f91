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

// Package production assembles and supervises one running integration
// engine: it builds every configured Host, starts them in dependency
// order (operations, then processes, then services), monitors them for
// failure, and drains them on shutdown.
package production

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/li/pkg/adapter"
	"github.com/teradata-labs/li/pkg/classreg"
	"github.com/teradata-labs/li/pkg/config"
	"github.com/teradata-labs/li/pkg/health"
	"github.com/teradata-labs/li/pkg/host"
	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/metrics"
	"github.com/teradata-labs/li/pkg/store"
	"github.com/teradata-labs/li/pkg/wal"
)

// restart policies for a supervised Host.
const (
	RestartNever     = "never"
	RestartOnFailure = "on_failure"
	RestartAlways    = "always"
)

// supervised pairs a running Host with its restart budget.
type supervised struct {
	host host.Host
	item config.Item

	policy       string
	maxRestarts  int
	restartDelay time.Duration

	mu       sync.Mutex
	restarts int
}

// Engine is one running Production.
type Engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	classes *classreg.Registry
	metrics *metrics.Registry
	checks  *health.Registry

	walLog   *wal.WAL
	msgStore store.MessageStore
	registry *host.ServiceRegistry

	mu      sync.Mutex
	hosts   []*supervised // start order
	byName  map[string]*supervised
	cron    *cron.Cron
	admin   *adminServer
	running bool
}

// New prepares an Engine from a validated configuration. Build must be
// called before Start.
func New(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	classes := classreg.NewRegistry()
	if err := RegisterBuiltins(classes); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With(zap.String("production", cfg.Production.Name)),
		classes: classes,
		metrics: metrics.NewRegistry(),
		checks:  health.NewRegistry(logger),
		byName:  map[string]*supervised{},
	}, nil
}

// Classes exposes the implementation registry so callers can install
// custom.* constructors and aliases before Build.
func (e *Engine) Classes() *classreg.Registry { return e.classes }

// Metrics exposes the Prometheus registry.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// Registry exposes the inter-Host broker. Nil before Build.
func (e *Engine) Registry() *host.ServiceRegistry { return e.registry }

// Host looks up a built Host by Item name.
func (e *Engine) Host(name string) (host.Host, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	return s.host, true
}

// Build opens the shared infrastructure and constructs every enabled
// Host. Hosts come up in Start, not here.
func (e *Engine) Build(ctx context.Context) error {
	if err := e.openWAL(); err != nil {
		return err
	}
	if err := e.openStore(ctx); err != nil {
		return err
	}
	e.registry = host.NewServiceRegistry(e.logger)

	for _, item := range e.cfg.Items {
		if !item.IsEnabled() && !e.cfg.Production.StartDisabledItems {
			e.logger.Info("skipping disabled item", zap.String("item", item.Name))
			continue
		}
		s, err := e.buildOne(item)
		if err != nil {
			return err
		}
		e.hosts = append(e.hosts, s)
		e.byName[item.Name] = s
	}
	if len(e.hosts) == 0 {
		return lierr.Configf("production %s: no enabled items", e.cfg.Production.Name)
	}

	// Operations first so every downstream exists before anything can
	// feed it; services last because they open the external surface.
	sort.SliceStable(e.hosts, func(i, j int) bool {
		return kindRank(e.hosts[i].host.Kind()) < kindRank(e.hosts[j].host.Kind())
	})

	e.registerHealthChecks()
	return nil
}

func kindRank(k host.Kind) int {
	switch k {
	case host.KindOperation:
		return 0
	case host.KindProcess:
		return 1
	default:
		return 2
	}
}

func (e *Engine) buildOne(item config.Item) (*supervised, error) {
	builder, err := classreg.As[HostBuilder](e.classes, item.ClassName)
	if err != nil {
		return nil, fmt.Errorf("item %q: %w", item.Name, err)
	}
	h, err := builder(BuildContext{
		Config:   e.cfg,
		Item:     item,
		Logger:   e.logger,
		Metrics:  e.metrics,
		WAL:      e.walLog,
		Store:    e.msgStore,
		Registry: e.registry,
	})
	if err != nil {
		return nil, fmt.Errorf("item %q: %w", item.Name, err)
	}
	if err := e.registry.Register(h); err != nil {
		return nil, err
	}

	hs := adapter.Settings(item.HostSettings)
	return &supervised{
		host:         h,
		item:         item,
		policy:       hs.String("RestartPolicy", RestartOnFailure),
		maxRestarts:  hs.Int("MaxRestarts", 3),
		restartDelay: hs.Duration("RestartDelay", 5*time.Second),
	}, nil
}

func (e *Engine) openWAL() error {
	if e.cfg.WAL.Dir == "" {
		return nil
	}
	w, err := wal.Open(wal.Config{
		Dir:          config.WorkspacePath(e.cfg.WAL.Dir),
		Durability:   wal.Durability(e.cfg.WAL.Durability),
		MaxFileSize:  e.cfg.WAL.MaxFileSize,
		MaxRetries:   e.cfg.WAL.MaxRetries,
		EntryTTL:     secondsDuration(e.cfg.WAL.EntryTTL),
		SyncInterval: secondsDuration(e.cfg.WAL.SyncInterval),
		Logger:       e.logger,
	})
	if err != nil {
		return err
	}
	e.walLog = w
	return nil
}

func (e *Engine) openStore(ctx context.Context) error {
	switch e.cfg.Store.Driver {
	case "":
		return nil
	case "memory":
		e.msgStore = store.NewMemoryStore()
	case "sqlite":
		s, err := store.NewSQLiteStore(config.WorkspacePath(e.cfg.Store.DSN), e.logger)
		if err != nil {
			return err
		}
		e.msgStore = s
	case "postgres":
		s, err := store.NewPostgresStore(ctx, e.cfg.Store.DSN, e.logger)
		if err != nil {
			return err
		}
		e.msgStore = s
	default:
		return lierr.Configf("unknown store driver %q", e.cfg.Store.Driver)
	}
	return nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Start brings every Host up in build order, replays pending WAL
// entries, and begins supervision.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return lierr.Configf("production %s already running", e.cfg.Production.Name)
	}

	delay := e.cfg.StartupDelay()
	for i, s := range e.hosts {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		if err := s.host.Start(ctx); err != nil {
			e.stopStarted(ctx, i)
			return fmt.Errorf("start %s: %w", s.host.Name(), err)
		}
		e.logger.Info("host started",
			zap.String("host", s.host.Name()),
			zap.String("kind", string(s.host.Kind())))
	}

	if e.walLog != nil {
		e.recoverAll()
	}

	e.cron = cron.New()
	spec := fmt.Sprintf("@every %s", e.cfg.MonitoringInterval())
	if _, err := e.cron.AddFunc(spec, e.superviseSweep); err != nil {
		return lierr.Configf("monitoring schedule: %v", err)
	}
	e.cron.Start()

	if e.cfg.Admin.Port > 0 {
		admin, err := newAdminServer(e.cfg.Admin, e.checks, e.metrics, e.logger)
		if err != nil {
			return err
		}
		e.admin = admin
	}

	e.running = true
	e.logger.Info("production started", zap.Int("hosts", len(e.hosts)))
	return nil
}

// stopStarted unwinds the hosts started before a mid-start failure.
func (e *Engine) stopStarted(ctx context.Context, n int) {
	for i := n - 1; i >= 0; i-- {
		if err := e.hosts[i].host.Stop(ctx); err != nil {
			e.logger.Warn("stop during failed start",
				zap.String("host", e.hosts[i].host.Name()),
				zap.Error(err))
		}
	}
}

// walRecoverer is satisfied by every built-in Host.
type walRecoverer interface {
	RecoverWAL() int
}

func (e *Engine) recoverAll() {
	total := 0
	for _, s := range e.hosts {
		if r, ok := s.host.(walRecoverer); ok {
			total += r.RecoverWAL()
		}
	}
	if total > 0 {
		e.logger.Info("recovered in-flight messages", zap.Int("count", total))
	}
}

// superviseSweep restarts Hosts in the error state according to their
// restart policy.
func (e *Engine) superviseSweep() {
	e.mu.Lock()
	hosts := make([]*supervised, len(e.hosts))
	copy(hosts, e.hosts)
	e.mu.Unlock()

	for _, s := range hosts {
		st := s.host.State()
		wantRestart := st == host.StateError && s.policy == RestartOnFailure ||
			(st == host.StateError || st == host.StateStopped) && s.policy == RestartAlways
		if !wantRestart {
			continue
		}
		s.mu.Lock()
		if s.restarts >= s.maxRestarts {
			s.mu.Unlock()
			e.logger.Error("restart budget exhausted",
				zap.String("host", s.host.Name()),
				zap.Int("max_restarts", s.maxRestarts))
			continue
		}
		s.restarts++
		attempt := s.restarts
		s.mu.Unlock()

		e.logger.Warn("restarting host",
			zap.String("host", s.host.Name()),
			zap.String("state", string(st)),
			zap.Int("attempt", attempt))
		e.metrics.IncRestart(s.host.Name())

		time.Sleep(s.restartDelay)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.host.Stop(ctx); err != nil {
			e.logger.Warn("stop before restart", zap.String("host", s.host.Name()), zap.Error(err))
		}
		if err := s.host.Start(ctx); err != nil {
			e.logger.Error("restart failed", zap.String("host", s.host.Name()), zap.Error(err))
		}
		cancel()
	}
}

// ReloadHost restarts one Host with a fresh build from its current
// Item configuration. In-queue messages drain before the old instance
// stops.
func (e *Engine) ReloadHost(ctx context.Context, name string) error {
	e.mu.Lock()
	s, ok := e.byName[name]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: host %q", lierr.ErrNoMatch, name)
	}

	s.host.Pause()
	e.drainHosts(ctx, []*supervised{s}, e.cfg.DrainTimeout())
	if err := s.host.Stop(ctx); err != nil {
		return err
	}
	e.registry.Unregister(name)

	fresh, err := e.buildOne(s.item)
	if err != nil {
		return err
	}
	if err := fresh.host.Start(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	for i := range e.hosts {
		if e.hosts[i] == s {
			e.hosts[i] = fresh
		}
	}
	e.byName[name] = fresh
	e.mu.Unlock()

	e.logger.Info("host reloaded", zap.String("host", name))
	return nil
}

// Stop shuts the production down in four phases: services stop
// admitting, queues drain, everything stops in reverse start order,
// then the shared infrastructure closes.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	hosts := make([]*supervised, len(e.hosts))
	copy(hosts, e.hosts)
	e.mu.Unlock()

	if e.cron != nil {
		e.cron.Stop()
	}

	// Phase 1: close the external surface. Paused services reject new
	// submissions while downstream hosts keep draining.
	for _, s := range hosts {
		if s.host.Kind() == host.KindService {
			s.host.Pause()
		}
	}

	// Phase 2: wait for in-flight work to clear.
	e.drainHosts(ctx, hosts, e.cfg.DrainTimeout())

	// Phase 3: stop in reverse start order, bounded by the shutdown
	// timeout.
	stopCtx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout())
	defer cancel()
	g, gctx := errgroup.WithContext(stopCtx)
	for i := len(hosts) - 1; i >= 0; i-- {
		s := hosts[i]
		g.Go(func() error {
			if err := s.host.Stop(gctx); err != nil {
				return fmt.Errorf("stop %s: %w", s.host.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	// Phase 4: shared infrastructure.
	if e.admin != nil {
		e.admin.Close(ctx)
	}
	if e.walLog != nil {
		if werr := e.walLog.Close(); werr != nil && err == nil {
			err = werr
		}
	}
	if e.msgStore != nil {
		if serr := e.msgStore.Close(); serr != nil && err == nil {
			err = serr
		}
	}

	e.logger.Info("production stopped", zap.Error(err))
	return err
}

// drainHosts polls queue depths until everything is empty or the
// timeout expires.
func (e *Engine) drainHosts(ctx context.Context, hosts []*supervised, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		depth := 0
		for _, s := range hosts {
			depth += s.host.QueueDepth()
		}
		if depth == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	e.logger.Warn("drain timeout expired with queued messages")
}

// Run starts the production and blocks until ctx is cancelled or a
// termination signal arrives, then stops it.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Build(ctx); err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		e.logger.Info("signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(),
		e.cfg.DrainTimeout()+e.cfg.ShutdownTimeout()+5*time.Second)
	defer cancel()
	return e.Stop(stopCtx)
}

func (e *Engine) registerHealthChecks() {
	for _, s := range e.hosts {
		h := s.host
		e.checks.Register("host."+h.Name(), func(context.Context) health.Result {
			st := h.State()
			details := map[string]any{
				"state":       string(st),
				"queue_depth": h.QueueDepth(),
			}
			switch st {
			case host.StateRunning:
				return health.Healthy("running")
			case host.StatePaused, host.StateStarting:
				return health.Degraded(string(st), details)
			default:
				return health.Unhealthy(string(st), details)
			}
		}, true, 2*time.Second)
	}

	if e.walLog != nil {
		e.checks.Register("wal", func(context.Context) health.Result {
			pending := e.walLog.Pending()
			if len(pending) > 1000 {
				return health.Degraded("backlog", map[string]any{"pending": len(pending)})
			}
			return health.Healthy("ok")
		}, false, 2*time.Second)
	}
}
