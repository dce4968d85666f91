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

// Package host implements the supervised units of a Production: a Host
// owns one bounded queue, a worker pool draining it, an optional
// transport adapter, and business-logic hooks. Three specialisations
// exist: BusinessService (inbound), BusinessProcess (routing and
// transformation), and BusinessOperation (outbound delivery).
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/message"
	"github.com/teradata-labs/li/pkg/metrics"
	"github.com/teradata-labs/li/pkg/queue"
	"github.com/teradata-labs/li/pkg/store"
	"github.com/teradata-labs/li/pkg/wal"
)

// State of a Host's lifecycle.
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Kind distinguishes the three Host specialisations.
type Kind string

const (
	KindService   Kind = "service"
	KindProcess   Kind = "process"
	KindOperation Kind = "operation"
)

// errRetrySignal marks a processing error as retryable: the message is
// re-queued while its retry budget lasts.
var errRetrySignal = errors.New("retry requested")

// RetryableError wraps err so the worker re-queues the message instead
// of failing it outright.
func RetryableError(err error) error {
	return fmt.Errorf("%w: %w", errRetrySignal, err)
}

// Hooks are the per-Host extension points around message processing.
// Nil hooks are identity.
type Hooks struct {
	// OnBeforeProcess may rewrite the message before OnMessage runs.
	OnBeforeProcess func(ctx context.Context, m message.Message) (message.Message, error)
	// OnAfterProcess may rewrite the result after OnMessage returns.
	OnAfterProcess func(ctx context.Context, m, result message.Message) (message.Message, error)
	// OnProcessError observes processing failures. It cannot veto them.
	OnProcessError func(ctx context.Context, m message.Message, err error)
}

// Processor is the specialisation's message handler. The returned
// target list overrides the Host's configured fan-out: nil means use
// the configured targets, an empty non-nil slice means no fan-out.
type Processor interface {
	OnMessage(ctx context.Context, m message.Message) (message.Message, []string, error)
}

// Config carries the host_settings of one Item.
type Config struct {
	Name     string
	PoolSize int

	QueueType        string // fifo, lifo, priority, unordered
	QueueSize        int
	OverflowStrategy string // block, drop_oldest, drop_newest, redirect

	// Timeout bounds one OnMessage invocation. Default 30s.
	Timeout time.Duration

	// Targets are the downstream Host names for fan-out.
	Targets []string

	// RetryDelay spaces WAL-level re-queues of retryable failures.
	RetryDelay time.Duration

	RestartPolicy string // never, on_failure, always
	MaxRestarts   int
	RestartDelay  time.Duration

	Logger   *zap.Logger
	Metrics  *metrics.Registry
	WAL      *wal.WAL
	Store    store.MessageStore
	Registry *ServiceRegistry
}

// Host is the contract every Item satisfies.
type Host interface {
	Name() string
	Kind() Kind
	State() State

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Pause()
	Resume()

	// Submit offers a message to the Host's queue. It reports false
	// when the Host is not admitting or the queue rejected the item.
	Submit(m message.Message) bool

	// SubmitEnvelope offers an inter-Host envelope to the queue.
	SubmitEnvelope(env Envelope) bool

	QueueDepth() int
	QueueMetrics() queue.Metrics
}

// work is one queued unit: the message, its WAL entry, and the
// inter-Host envelope when the item arrived through the broker.
type work struct {
	msg   message.Message
	walID string
	env   *Envelope
}

// BaseHost implements the queue, worker pool, lifecycle, WAL and audit
// wiring shared by all specialisations. The specialisation supplies the
// Processor.
type BaseHost struct {
	cfg    Config
	kind   Kind
	proc   Processor
	hooks  Hooks
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	queue  *queue.Queue
	cancel context.CancelFunc
	resume chan struct{} // closed while running, open while paused
	wg     sync.WaitGroup
}

// NewBaseHost wires the shared machinery. The specialisation must call
// SetProcessor before Start.
func NewBaseHost(cfg Config, kind Kind) *BaseHost {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resume := make(chan struct{})
	close(resume)
	return &BaseHost{
		cfg:    cfg,
		kind:   kind,
		logger: logger.With(zap.String("host", cfg.Name)),
		state:  StateCreated,
		resume: resume,
	}
}

// SetProcessor installs the specialisation's handler.
func (h *BaseHost) SetProcessor(p Processor) { h.proc = p }

// SetHooks installs the extension points.
func (h *BaseHost) SetHooks(hooks Hooks) { h.hooks = hooks }

func (h *BaseHost) Name() string { return h.cfg.Name }

func (h *BaseHost) Kind() Kind { return h.kind }

func (h *BaseHost) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *BaseHost) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Logger exposes the host-tagged logger to specialisations.
func (h *BaseHost) Logger() *zap.Logger { return h.logger }

// Config returns the Host's settings.
func (h *BaseHost) Config() Config { return h.cfg }

// Start creates the queue and launches the worker pool.
func (h *BaseHost) Start(ctx context.Context) error {
	if h.proc == nil {
		return lierr.Configf("host %s: no processor installed", h.cfg.Name)
	}
	h.mu.Lock()
	if h.state == StateRunning || h.state == StatePaused {
		h.mu.Unlock()
		return nil
	}
	h.state = StateStarting
	h.mu.Unlock()

	q, err := queue.New(queue.Config{
		Capacity:   h.cfg.QueueSize,
		Discipline: queue.ParseDiscipline(h.cfg.QueueType),
		Overflow:   queue.ParseOverflowPolicy(h.cfg.OverflowStrategy),
		PriorityFn: func(item any) int {
			if w, ok := item.(work); ok {
				return int(w.msg.Envelope.Priority)
			}
			return int(message.PriorityNormal)
		},
	})
	if err != nil {
		h.setState(StateError)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.queue = q
	h.cancel = cancel
	h.state = StateRunning
	h.mu.Unlock()

	for i := 0; i < h.cfg.PoolSize; i++ {
		h.wg.Add(1)
		go h.worker(loopCtx)
	}
	h.logger.Info("host started",
		zap.String("kind", string(h.kind)),
		zap.Int("pool_size", h.cfg.PoolSize))
	return nil
}

// Pause blocks workers before their next get without draining the
// queue. Pausing a paused Host is a no-op.
func (h *BaseHost) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateRunning {
		return
	}
	h.state = StatePaused
	h.resume = make(chan struct{})
	h.logger.Info("host paused")
}

// Resume releases paused workers.
func (h *BaseHost) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StatePaused {
		return
	}
	h.state = StateRunning
	close(h.resume)
	h.logger.Info("host resumed")
}

// Stop signals shutdown and waits for workers up to the context
// deadline. Items still queued stay in the WAL for the next start.
func (h *BaseHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateStopped || h.state == StateCreated {
		h.mu.Unlock()
		return nil
	}
	h.state = StateStopping
	cancel := h.cancel
	resume := h.resume
	q := h.queue
	h.mu.Unlock()

	// Release any workers parked on the pause gate so they can exit.
	select {
	case <-resume:
	default:
		close(resume)
	}
	if cancel != nil {
		cancel()
	}
	if q != nil {
		q.Close()
	}

	done := make(chan struct{})
	go func() { h.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("workers did not stop before deadline")
	}
	h.setState(StateStopped)
	h.logger.Info("host stopped")
	return nil
}

// Submit offers a message to the queue. A WAL entry is appended before
// the item is queued so a crash between the two never loses work.
func (h *BaseHost) Submit(m message.Message) bool {
	return h.enqueue(work{msg: m.WithState(message.StateQueued)})
}

// SubmitEnvelope offers an inter-Host envelope to the queue. Envelopes
// take the same path as external messages so pause and overflow policy
// apply uniformly.
func (h *BaseHost) SubmitEnvelope(env Envelope) bool {
	e := env
	return h.enqueue(work{msg: env.Message.WithState(message.StateQueued), env: &e})
}

func (h *BaseHost) enqueue(w work) bool {
	if h.State() != StateRunning {
		return false
	}
	if h.cfg.WAL != nil && w.walID == "" {
		id, err := h.cfg.WAL.Append(h.cfg.Name, w.msg.Envelope.MessageID,
			w.msg.Payload.Raw, w.msg.Envelope.MessageType, nil)
		if err != nil {
			h.logger.Error("wal append failed", zap.Error(err))
		} else {
			w.walID = id
		}
	}
	h.mu.Lock()
	q := h.queue
	h.mu.Unlock()
	if q == nil {
		return false
	}
	ok, err := q.Put(context.Background(), w)
	if err != nil || !ok {
		return false
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.IncReceived(h.cfg.Name)
		h.cfg.Metrics.SetQueueDepth(h.cfg.Name, q.Size())
	}
	return true
}

// requeue puts retryable work back after RetryDelay. The WAL entry is
// reused so the retry counter keeps counting across attempts.
func (h *BaseHost) requeue(w work) {
	time.AfterFunc(h.cfg.RetryDelay, func() {
		if h.State() != StateRunning && h.State() != StatePaused {
			return
		}
		h.mu.Lock()
		q := h.queue
		h.mu.Unlock()
		if q == nil {
			return
		}
		if _, err := q.Put(context.Background(), w); err != nil {
			h.logger.Warn("retry requeue failed", zap.Error(err))
		}
	})
}

// QueueDepth returns the number of queued items.
func (h *BaseHost) QueueDepth() int {
	h.mu.Lock()
	q := h.queue
	h.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.Size()
}

// QueueMetrics returns the queue counter snapshot.
func (h *BaseHost) QueueMetrics() queue.Metrics {
	h.mu.Lock()
	q := h.queue
	h.mu.Unlock()
	if q == nil {
		return queue.Metrics{}
	}
	return q.Metrics()
}

func (h *BaseHost) worker(ctx context.Context) {
	defer h.wg.Done()
	for {
		// Pause gate, then shutdown gate, then get.
		h.mu.Lock()
		resume := h.resume
		q := h.queue
		h.mu.Unlock()
		select {
		case <-resume:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}

		item, err := q.Get(ctx, 500*time.Millisecond)
		if err != nil {
			if errors.Is(err, lierr.ErrClosed) {
				return
			}
			continue // short get timeout so shutdown is honoured
		}
		w, ok := item.(work)
		if !ok {
			continue
		}
		h.handle(ctx, w)
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.SetQueueDepth(h.cfg.Name, q.Size())
		}
	}
}

func (h *BaseHost) handle(ctx context.Context, w work) {
	m := w.msg.WithState(message.StateProcessing)
	if w.walID != "" && h.cfg.WAL != nil {
		if err := h.cfg.WAL.MarkProcessing(w.walID); err != nil {
			h.logger.Warn("wal mark processing failed", zap.Error(err))
		}
	}

	start := time.Now()
	result, targets, err := h.process(ctx, m)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ObserveLatency(h.cfg.Name, time.Since(start))
	}

	if err != nil {
		h.failed(ctx, w, m, err)
		return
	}

	if w.walID != "" && h.cfg.WAL != nil {
		if cerr := h.cfg.WAL.Complete(w.walID); cerr != nil {
			h.logger.Warn("wal complete failed", zap.Error(cerr))
		}
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.IncProcessed(h.cfg.Name)
	}
	h.audit(m, string(result.Envelope.State), "")

	if w.env != nil && w.env.Pattern == PatternSync {
		if h.cfg.Registry != nil {
			h.cfg.Registry.SendResponse(w.env.CorrelationID, result)
		}
		return
	}
	if targets == nil {
		targets = h.cfg.Targets
	}
	h.fanOut(result, targets)
}

func (h *BaseHost) process(ctx context.Context, m message.Message) (message.Message, []string, error) {
	var err error
	if h.hooks.OnBeforeProcess != nil {
		m, err = h.hooks.OnBeforeProcess(ctx, m)
		if err != nil {
			return m, nil, err
		}
	}

	procCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	result, targets, err := h.proc.OnMessage(procCtx, m)
	cancel()
	if err == nil && procCtx.Err() != nil {
		err = fmt.Errorf("host %s: %w", h.cfg.Name, lierr.ErrTimeout)
	}
	if err != nil {
		return m, nil, err
	}

	if h.hooks.OnAfterProcess != nil {
		result, err = h.hooks.OnAfterProcess(ctx, m, result)
		if err != nil {
			return m, nil, err
		}
	}
	return result, targets, nil
}

// failed handles a processing error: hook, metrics, and WAL retry
// accounting. Retryable failures with remaining budget are re-queued.
func (h *BaseHost) failed(ctx context.Context, w work, m message.Message, err error) {
	if h.hooks.OnProcessError != nil {
		h.hooks.OnProcessError(ctx, m, err)
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.IncFailed(h.cfg.Name)
	}
	h.logger.Warn("message processing failed",
		zap.String("message_id", m.Envelope.MessageID),
		zap.String("correlation_id", m.Envelope.CorrelationID),
		zap.String("error_kind", lierr.Kind(err)),
		zap.Error(err))

	retrySignal := errors.Is(err, errRetrySignal) ||
		errors.Is(err, lierr.ErrTimeout) || errors.Is(err, lierr.ErrConnection)

	if w.walID == "" || h.cfg.WAL == nil {
		h.audit(m, string(message.StateFailed), err.Error())
		return
	}
	if !retrySignal {
		if ferr := h.cfg.WAL.FailPermanent(w.walID, err); ferr != nil {
			h.logger.Warn("wal fail failed", zap.Error(ferr))
		}
		h.audit(m, string(message.StateFailed), err.Error())
		return
	}
	retryable, ferr := h.cfg.WAL.Fail(w.walID, err)
	if ferr != nil {
		h.logger.Warn("wal fail failed", zap.Error(ferr))
		return
	}
	if retryable {
		w.msg = m.IncRetry()
		h.requeue(w)
		return
	}
	h.audit(m, string(message.StateFailed), err.Error())
}

// fanOut submits the result to each downstream Host by name.
func (h *BaseHost) fanOut(result message.Message, targets []string) {
	if len(targets) == 0 || h.cfg.Registry == nil {
		return
	}
	for _, name := range targets {
		target, ok := h.cfg.Registry.Lookup(name)
		if !ok {
			h.logger.Warn("fan-out target unknown", zap.String("target", name))
			continue
		}
		out := result.WithRouting(name, result.Envelope.Routing.RouteID)
		if !target.Submit(out) {
			h.logger.Warn("fan-out target rejected message",
				zap.String("target", name),
				zap.String("message_id", out.Envelope.MessageID))
		}
	}
}

// audit writes the processed record to the message store, when one is
// configured.
func (h *BaseHost) audit(m message.Message, state, errText string) {
	if h.cfg.Store == nil {
		return
	}
	now := time.Now().UTC()
	rec := store.Record{
		ID:            m.Envelope.MessageID + "@" + h.cfg.Name,
		MessageID:     m.Envelope.MessageID,
		HostName:      h.cfg.Name,
		MessageType:   m.Envelope.MessageType,
		State:         state,
		Payload:       m.Payload.Raw,
		CreatedAt:     m.Envelope.CreatedAt,
		UpdatedAt:     now,
		Source:        m.Envelope.Routing.Source,
		Target:        m.Envelope.Routing.Destination,
		CorrelationID: m.Envelope.CorrelationID,
		Error:         errText,
		RetryCount:    m.Envelope.RetryCount,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.cfg.Store.Store(ctx, rec); err != nil {
		h.logger.Warn("audit store failed", zap.Error(err))
	}
}

// RecoverWAL re-submits this Host's pending WAL entries. Recovery does
// not consume a retry: the entries keep their recorded retry_count.
func (h *BaseHost) RecoverWAL() int {
	if h.cfg.WAL == nil {
		return 0
	}
	n := 0
	for _, e := range h.cfg.WAL.Pending() {
		if e.Host != h.cfg.Name {
			continue
		}
		m := message.New(e.Payload, message.WithType(e.MessageType), message.WithSource(h.cfg.Name))
		m.Envelope.RetryCount = e.RetryCount
		if h.enqueue(work{msg: m, walID: e.ID}) {
			n++
		}
	}
	if n > 0 {
		h.logger.Info("recovered pending messages from wal", zap.Int("count", n))
	}
	return n
}
