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
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/config"
	"github.com/teradata-labs/li/pkg/health"
	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/metrics"
)

// adminServer exposes liveness, readiness, full health, and Prometheus
// metrics on the configured admin port.
type adminServer struct {
	srv    *http.Server
	addr   string
	logger *zap.Logger
}

func newAdminServer(cfg config.AdminSettings, checks *health.Registry, m *metrics.Registry, logger *zap.Logger) (*adminServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Handler(checks.Liveness))
	mux.Handle("/readyz", health.Handler(checks.Readiness))
	mux.Handle("/health", health.Handler(checks.Full))
	mux.Handle("/metrics", m.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: admin listener %s: %v", lierr.ErrConnection, addr, err)
	}

	a := &adminServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr:   ln.Addr().String(),
		logger: logger,
	}
	go func() {
		if serveErr := a.srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("admin server", zap.Error(serveErr))
		}
	}()
	logger.Info("admin server listening", zap.String("addr", ln.Addr().String()))
	return a, nil
}

func (a *adminServer) Close(ctx context.Context) {
	shutCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutCtx); err != nil {
		a.logger.Warn("admin shutdown", zap.Error(err))
	}
}
