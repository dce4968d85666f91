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
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
)

// InboundHTTP accepts messages over HTTP. The request body is the
// message; the handler's reply is the response body with the request
// content type echoed back.
//
// Settings: Port (required), Host (bind address), MaxBodySize (bytes,
// default 10 MiB), ReadTimeout (seconds, default 30), AllowedMethods
// (comma-separated, default POST), BasePath (default /), EnableCORS.
type InboundHTTP struct {
	base
	settings Settings

	mu      sync.Mutex
	handler Handler
	srv     *http.Server
	ln      net.Listener
}

// NewInboundHTTP creates the adapter; Start binds the port.
func NewInboundHTTP(name string, settings Settings, logger *zap.Logger) *InboundHTTP {
	return &InboundHTTP{
		base:     newBase(name, logger),
		settings: settings,
	}
}

// SetHandler installs the Host callback. Must be set before Start.
func (a *InboundHTTP) SetHandler(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Start binds the listener and serves in the background.
func (a *InboundHTTP) Start(ctx context.Context) error {
	if _, ok := a.settings.Get("Port"); !ok {
		return lierr.Configf("http adapter %s: Port is required", a.name)
	}
	port := a.settings.Int("Port", 0)
	a.mu.Lock()
	if a.handler == nil {
		a.mu.Unlock()
		return lierr.Configf("http adapter %s: no handler installed", a.name)
	}
	a.mu.Unlock()

	a.setState(StateStarting)
	addr := fmt.Sprintf("%s:%d", a.settings.String("Host", ""), port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.setState(StateError)
		return fmt.Errorf("http adapter %s: %w: %v", a.name, lierr.ErrConnection, err)
	}

	srv := &http.Server{
		Handler:           http.HandlerFunc(a.serveHTTP),
		ReadTimeout:       a.settings.Duration("ReadTimeout", 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.mu.Lock()
	a.srv = srv
	a.ln = ln
	a.mu.Unlock()

	a.setState(StateRunning)
	a.logger.Info("http listener started", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errorsTotal.Add(1)
			a.logger.Error("http server stopped", zap.Error(err))
			a.setState(StateError)
		}
	}()
	return nil
}

// Addr returns the bound listen address, for tests and logs.
func (a *InboundHTTP) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

func (a *InboundHTTP) serveHTTP(w http.ResponseWriter, r *http.Request) {
	a.connectionsTotal.Add(1)
	w.Header().Set("Connection", "close")
	if a.settings.Bool("EnableCORS", false) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	basePath := a.settings.String("BasePath", "/")
	if !strings.HasPrefix(r.URL.Path, basePath) {
		http.NotFound(w, r)
		return
	}

	allowed := strings.Split(a.settings.String("AllowedMethods", "POST"), ",")
	ok := false
	for _, m := range allowed {
		if strings.EqualFold(strings.TrimSpace(m), r.Method) {
			ok = true
			break
		}
	}
	if !ok {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	maxBody := int64(a.settings.Int("MaxBodySize", 10<<20))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		a.errorsTotal.Add(1)
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	a.bytesReceived.Add(int64(len(body)))
	a.touch()

	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()

	reply, err := handler(r.Context(), body)
	if err != nil {
		a.errorsTotal.Add(1)
		a.logger.Warn("message handler failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	if len(reply) > 0 {
		_, _ = w.Write(reply)
		a.bytesSent.Add(int64(len(reply)))
	}
	a.touch()
}

// Stop shuts the server down gracefully within the context deadline.
func (a *InboundHTTP) Stop(ctx context.Context) error {
	a.setState(StateStopping)
	a.mu.Lock()
	srv := a.srv
	a.srv = nil
	a.ln = nil
	a.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	a.setState(StateStopped)
	return nil
}

var _ Inbound = (*InboundHTTP)(nil)
