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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/hl7"
	"github.com/teradata-labs/li/pkg/lierr"
)

// OutboundFile writes each payload to a templated filename. Send
// always returns a nil reply.
//
// Settings: FilePath (required), Filename (template, default
// %timestamp%_%id%.hl7), Overwrite (error|overwrite|append, default
// error), TempFileSuffix (when set, write-then-rename for atomicity).
//
// Template placeholders: %timestamp% (YYYYMMDD_HHMMSS_ffffff), %date%
// (YYYYMMDD), %time% (HHMMSS), %id% (short uuid), %type% (HL7 message
// type with the caret replaced by an underscore).
type OutboundFile struct {
	base
	settings Settings
}

// NewOutboundFile creates the adapter.
func NewOutboundFile(name string, settings Settings, logger *zap.Logger) *OutboundFile {
	return &OutboundFile{
		base:     newBase(name, logger),
		settings: settings,
	}
}

// Start validates and creates the target directory.
func (a *OutboundFile) Start(context.Context) error {
	dir := a.settings.String("FilePath", "")
	if dir == "" {
		return lierr.Configf("file adapter %s: FilePath is required", a.name)
	}
	switch mode := a.settings.String("Overwrite", "error"); mode {
	case "error", "overwrite", "append":
	default:
		return lierr.Configf("file adapter %s: Overwrite must be error, overwrite, or append, got %q", a.name, mode)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.setState(StateError)
		return lierr.Configf("file adapter %s: create FilePath: %v", a.name, err)
	}
	a.setState(StateRunning)
	return nil
}

// Send writes the payload to its rendered filename.
func (a *OutboundFile) Send(_ context.Context, payload []byte) ([]byte, error) {
	if a.State() != StateRunning {
		return nil, fmt.Errorf("file adapter %s: %w", a.name, lierr.ErrClosed)
	}

	dir := a.settings.String("FilePath", "")
	name := a.renderFilename(payload)
	target := filepath.Join(dir, name)
	mode := a.settings.String("Overwrite", "error")

	if mode == "append" {
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			a.errorsTotal.Add(1)
			return nil, fmt.Errorf("file adapter %s: %w: %v", a.name, lierr.ErrSend, err)
		}
		defer f.Close()
		if _, err := f.Write(payload); err != nil {
			a.errorsTotal.Add(1)
			return nil, fmt.Errorf("file adapter %s: %w: %v", a.name, lierr.ErrSend, err)
		}
		a.bytesSent.Add(int64(len(payload)))
		a.touch()
		return nil, nil
	}

	if mode == "error" {
		if _, err := os.Stat(target); err == nil {
			a.errorsTotal.Add(1)
			return nil, fmt.Errorf("file adapter %s: %w: %s already exists", a.name, lierr.ErrSend, target)
		}
	}

	writePath := target
	if suffix := a.settings.String("TempFileSuffix", ""); suffix != "" {
		writePath = target + suffix
	}
	if err := os.WriteFile(writePath, payload, 0o644); err != nil {
		a.errorsTotal.Add(1)
		return nil, fmt.Errorf("file adapter %s: %w: %v", a.name, lierr.ErrSend, err)
	}
	if writePath != target {
		if err := os.Rename(writePath, target); err != nil {
			a.errorsTotal.Add(1)
			return nil, fmt.Errorf("file adapter %s: %w: %v", a.name, lierr.ErrSend, err)
		}
	}
	a.bytesSent.Add(int64(len(payload)))
	a.touch()
	a.logger.Debug("file written", zap.String("file", name))
	return nil, nil
}

func (a *OutboundFile) renderFilename(payload []byte) string {
	template := a.settings.String("Filename", "%timestamp%_%id%.hl7")
	now := time.Now()

	msgType := ""
	if strings.Contains(template, "%type%") {
		msgType = hl7.NewMessage(payload).MessageType()
		if msgType == "" {
			msgType = "unknown"
		}
	}

	r := strings.NewReplacer(
		"%timestamp%", fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000),
		"%date%", now.Format("20060102"),
		"%time%", now.Format("150405"),
		"%id%", strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		"%type%", msgType,
	)
	return r.Replace(template)
}

// Stop transitions to stopped; there is no held resource.
func (a *OutboundFile) Stop(context.Context) error {
	a.setState(StateStopped)
	return nil
}

var _ Outbound = (*OutboundFile)(nil)
