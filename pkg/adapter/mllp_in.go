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

package adapter

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/mllp"
)

// InboundMLLP listens for MLLP-framed HL7 on a TCP port. Each accepted
// connection runs a frame-handle-reply loop; connections beyond
// MaxConnections are refused at accept.
//
// Settings: Port (required), Host (bind address, default all
// interfaces), MaxConnections (default 16), ReadTimeout (seconds,
// default none), SSLCertFile/SSLKeyFile (both set enables TLS).
type InboundMLLP struct {
	base
	settings Settings

	mu      sync.Mutex
	handler Handler
	ln      net.Listener
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sem     chan struct{}
}

// NewInboundMLLP creates the adapter; Start binds the port.
func NewInboundMLLP(name string, settings Settings, logger *zap.Logger) *InboundMLLP {
	return &InboundMLLP{
		base:     newBase(name, logger),
		settings: settings,
	}
}

// SetHandler installs the Host callback. Must be set before Start.
func (a *InboundMLLP) SetHandler(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Start binds the listener and begins accepting connections.
func (a *InboundMLLP) Start(ctx context.Context) error {
	if _, ok := a.settings.Get("Port"); !ok {
		return lierr.Configf("mllp adapter %s: Port is required", a.name)
	}
	port := a.settings.Int("Port", 0)
	a.mu.Lock()
	if a.handler == nil {
		a.mu.Unlock()
		return lierr.Configf("mllp adapter %s: no handler installed", a.name)
	}
	a.mu.Unlock()

	a.setState(StateStarting)
	addr := fmt.Sprintf("%s:%d", a.settings.String("Host", ""), port)

	var ln net.Listener
	var err error
	cert := a.settings.String("SSLCertFile", "")
	key := a.settings.String("SSLKeyFile", "")
	if cert != "" && key != "" {
		var pair tls.Certificate
		pair, err = tls.LoadX509KeyPair(cert, key)
		if err != nil {
			a.setState(StateError)
			return lierr.Configf("mllp adapter %s: load certificate: %v", a.name, err)
		}
		ln, err = tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{pair}})
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		a.setState(StateError)
		return fmt.Errorf("mllp adapter %s: %w: %v", a.name, lierr.ErrConnection, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.ln = ln
	a.cancel = cancel
	a.sem = make(chan struct{}, a.settings.Int("MaxConnections", 16))
	a.mu.Unlock()

	a.setState(StateRunning)
	a.logger.Info("mllp listener started", zap.String("addr", ln.Addr().String()))

	a.wg.Add(1)
	go a.acceptLoop(loopCtx, ln)
	return nil
}

// Addr returns the bound listen address, for tests and logs.
func (a *InboundMLLP) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

func (a *InboundMLLP) acceptLoop(ctx context.Context, ln net.Listener) {
	defer a.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			a.errorsTotal.Add(1)
			a.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		a.connectionsTotal.Add(1)

		select {
		case a.sem <- struct{}{}:
		default:
			a.logger.Warn("connection refused, at MaxConnections",
				zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		a.wg.Add(1)
		go a.serve(ctx, conn)
	}
}

func (a *InboundMLLP) serve(ctx context.Context, conn net.Conn) {
	defer a.wg.Done()
	defer conn.Close()
	defer func() { <-a.sem }()

	a.connectionsActive.Add(1)
	defer a.connectionsActive.Add(-1)

	readTimeout := a.settings.Duration("ReadTimeout", 0)
	for ctx.Err() == nil {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		frame, err := mllp.ReadFrame(conn)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				a.errorsTotal.Add(1)
				a.logger.Debug("connection read failed", zap.Error(err))
			}
			return
		}
		a.bytesReceived.Add(int64(len(frame)))
		a.touch()

		a.mu.Lock()
		handler := a.handler
		a.mu.Unlock()

		reply, err := handler(ctx, frame)
		if err != nil {
			a.errorsTotal.Add(1)
			a.logger.Warn("message handler failed", zap.Error(err))
		}
		if reply == nil {
			continue
		}
		framed := mllp.Wrap(reply)
		if _, err := conn.Write(framed); err != nil {
			a.errorsTotal.Add(1)
			a.logger.Warn("ack write failed", zap.Error(err))
			return
		}
		a.bytesSent.Add(int64(len(framed)))
		a.touch()
	}
}

// Stop closes the listener and waits for in-flight connections up to
// the context deadline.
func (a *InboundMLLP) Stop(ctx context.Context) error {
	a.setState(StateStopping)
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	ln := a.ln
	a.ln = nil
	a.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("connections still draining at stop deadline")
	}
	a.setState(StateStopped)
	return nil
}

var _ Inbound = (*InboundMLLP)(nil)
