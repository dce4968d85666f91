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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
	"github.com/teradata-labs/li/pkg/mllp"
)

// OutboundMLLP delivers framed HL7 to a peer and reads the framed ACK
// reply. A single connection is kept according to StayConnected; on
// transport fault the send retries with a constant delay up to
// MaxRetries and then fails with SendError.
//
// Settings: IPAddress (required), Port (required), ConnectTimeout
// (seconds, default 10), AckTimeout (seconds, default 30), MaxRetries
// (default 3), RetryDelay (seconds, default 1), StayConnected (-1 keep
// open, 0 close per message, N close after N idle seconds; default -1),
// SSLEnabled/SSLVerify.
type OutboundMLLP struct {
	base
	settings Settings

	mu        sync.Mutex
	conn      net.Conn
	idleTimer *time.Timer
}

// NewOutboundMLLP creates the adapter; the connection is dialed on
// first send.
func NewOutboundMLLP(name string, settings Settings, logger *zap.Logger) *OutboundMLLP {
	return &OutboundMLLP{
		base:     newBase(name, logger),
		settings: settings,
	}
}

// Start validates settings; dialing is lazy.
func (a *OutboundMLLP) Start(context.Context) error {
	if a.settings.String("IPAddress", "") == "" {
		return lierr.Configf("mllp adapter %s: IPAddress is required", a.name)
	}
	if a.settings.Int("Port", 0) <= 0 {
		return lierr.Configf("mllp adapter %s: Port is required", a.name)
	}
	a.setState(StateRunning)
	return nil
}

// Send writes one framed message and returns the peer's framed reply.
func (a *OutboundMLLP) Send(ctx context.Context, payload []byte) ([]byte, error) {
	if a.State() != StateRunning {
		return nil, fmt.Errorf("mllp adapter %s: %w", a.name, lierr.ErrClosed)
	}

	maxRetries := a.settings.Int("MaxRetries", 3)
	retryDelay := a.settings.Duration("RetryDelay", time.Second)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), uint64(maxRetries)),
		ctx)

	reply, err := backoff.RetryWithData(func() ([]byte, error) {
		out, err := a.exchange(payload)
		if err != nil {
			a.errorsTotal.Add(1)
			a.dropConn()
			a.logger.Warn("mllp send attempt failed", zap.Error(err))
		}
		return out, err
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("mllp adapter %s: %w after %d retries: %v",
			a.name, lierr.ErrSend, maxRetries, err)
	}
	return reply, nil
}

// exchange performs one write-then-read-ack round trip on the shared
// connection.
func (a *OutboundMLLP) exchange(payload []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConnLocked()
	if err != nil {
		return nil, err
	}

	framed := mllp.Wrap(payload)
	if _, err := conn.Write(framed); err != nil {
		return nil, fmt.Errorf("%w: write: %v", lierr.ErrConnection, err)
	}
	a.bytesSent.Add(int64(len(framed)))
	a.touch()

	ackTimeout := a.settings.Duration("AckTimeout", 30*time.Second)
	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	reply, err := mllp.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	a.bytesReceived.Add(int64(len(reply)))
	a.touch()

	a.settleConnLocked()
	return reply, nil
}

func (a *OutboundMLLP) ensureConnLocked() (net.Conn, error) {
	if a.conn != nil {
		if a.idleTimer != nil {
			a.idleTimer.Stop()
		}
		return a.conn, nil
	}

	addr := fmt.Sprintf("%s:%d", a.settings.String("IPAddress", ""), a.settings.Int("Port", 0))
	dialer := net.Dialer{Timeout: a.settings.Duration("ConnectTimeout", 10*time.Second)}

	var conn net.Conn
	var err error
	if a.settings.Bool("SSLEnabled", false) {
		conn, err = tls.DialWithDialer(&dialer, "tcp", addr, &tls.Config{
			InsecureSkipVerify: !a.settings.Bool("SSLVerify", true),
		})
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", lierr.ErrConnection, addr, err)
	}
	a.conn = conn
	a.connectionsTotal.Add(1)
	a.connectionsActive.Store(1)
	a.logger.Debug("mllp connection opened", zap.String("addr", addr))
	return conn, nil
}

// settleConnLocked applies the StayConnected policy after a completed
// round trip.
func (a *OutboundMLLP) settleConnLocked() {
	stay := a.settings.Int("StayConnected", -1)
	switch {
	case stay == 0:
		a.closeConnLocked()
	case stay > 0:
		if a.idleTimer != nil {
			a.idleTimer.Stop()
		}
		a.idleTimer = time.AfterFunc(time.Duration(stay)*time.Second, func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.closeConnLocked()
		})
	}
}

func (a *OutboundMLLP) dropConn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeConnLocked()
}

func (a *OutboundMLLP) closeConnLocked() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
		a.connectionsActive.Store(0)
	}
}

// Stop closes the connection.
func (a *OutboundMLLP) Stop(context.Context) error {
	a.setState(StateStopping)
	a.mu.Lock()
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	a.closeConnLocked()
	a.mu.Unlock()
	a.setState(StateStopped)
	return nil
}

var _ Outbound = (*OutboundMLLP)(nil)
