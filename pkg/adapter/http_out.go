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
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
)

// OutboundHTTP posts payloads to a fixed URL and returns the response
// body. Network errors and 5xx responses retry with a constant delay;
// a circuit breaker opens after consecutive failures so a dead peer
// does not absorb every worker.
//
// Settings: URL (required), HTTPMethod (default POST), ContentType
// (default x-application/hl7-v2+er7), SSLVerify (default true),
// ConnectTimeout (seconds, default 10), ResponseTimeout (seconds,
// default 30), MaxRetries (default 3), RetryDelay (seconds, default
// 1), CustomHeaders (map).
type OutboundHTTP struct {
	base
	settings Settings

	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOutboundHTTP creates the adapter.
func NewOutboundHTTP(name string, settings Settings, logger *zap.Logger) *OutboundHTTP {
	a := &OutboundHTTP{
		base:     newBase(name, logger),
		settings: settings,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			a.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return a
}

// Start validates settings and builds the HTTP client.
func (a *OutboundHTTP) Start(context.Context) error {
	if a.settings.String("URL", "") == "" {
		return lierr.Configf("http adapter %s: URL is required", a.name)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !a.settings.Bool("SSLVerify", true),
		},
	}
	a.client = &http.Client{
		Transport: transport,
		Timeout:   a.settings.Duration("ResponseTimeout", 30*time.Second),
	}
	a.setState(StateRunning)
	return nil
}

// Send performs the request and returns the response body.
func (a *OutboundHTTP) Send(ctx context.Context, payload []byte) ([]byte, error) {
	if a.State() != StateRunning {
		return nil, fmt.Errorf("http adapter %s: %w", a.name, lierr.ErrClosed)
	}

	maxRetries := a.settings.Int("MaxRetries", 3)
	retryDelay := a.settings.Duration("RetryDelay", time.Second)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), uint64(maxRetries)),
		ctx)

	body, err := backoff.RetryWithData(func() ([]byte, error) {
		out, err := a.breaker.Execute(func() (any, error) {
			return a.request(ctx, payload)
		})
		if err != nil {
			a.errorsTotal.Add(1)
			if _, permanent := err.(*backoff.PermanentError); !permanent {
				a.logger.Warn("http send attempt failed", zap.Error(err))
			}
			return nil, err
		}
		return out.([]byte), nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("http adapter %s: %w: %v", a.name, lierr.ErrSend, err)
	}
	return body, nil
}

// request performs one attempt. 5xx and transport faults are
// retryable; other non-2xx statuses fail permanently.
func (a *OutboundHTTP) request(ctx context.Context, payload []byte) ([]byte, error) {
	method := a.settings.String("HTTPMethod", http.MethodPost)
	url := a.settings.String("URL", "")

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(lierr.Configf("http adapter %s: build request: %v", a.name, err))
	}
	req.Header.Set("Content-Type", a.settings.String("ContentType", "x-application/hl7-v2+er7"))
	for k, v := range a.settings.StringMap("CustomHeaders") {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lierr.ErrConnection, err)
	}
	defer resp.Body.Close()

	a.bytesSent.Add(int64(len(payload)))
	a.touch()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", lierr.ErrConnection, err)
	}
	a.bytesReceived.Add(int64(len(body)))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", lierr.ErrConnection, resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}
}

// Stop releases the client's idle connections.
func (a *OutboundHTTP) Stop(context.Context) error {
	a.setState(StateStopping)
	if a.client != nil {
		a.client.CloseIdleConnections()
	}
	a.setState(StateStopped)
	return nil
}

var _ Outbound = (*OutboundHTTP)(nil)
