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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
)

// InboundFile polls a directory for matching files and feeds their
// contents to the Host. A file is claimed by renaming it into the work
// directory, so concurrent pollers never double-process. Directory
// events from fsnotify wake the poll loop early; the ticker remains
// the fallback for filesystems without event support.
//
// Settings: FilePath (required), FileSpec (glob, default *),
// PollInterval (seconds, default 5), ArchivePath (empty deletes after
// processing), WorkPath (default <FilePath>/work), SemaphoreSpec
// (glob with * standing for the data file's stem; when set a file is
// only picked up once its semaphore exists).
type InboundFile struct {
	base
	settings Settings

	mu      sync.Mutex
	handler Handler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewInboundFile creates the adapter; Start begins polling.
func NewInboundFile(name string, settings Settings, logger *zap.Logger) *InboundFile {
	return &InboundFile{
		base:     newBase(name, logger),
		settings: settings,
	}
}

// SetHandler installs the Host callback. Must be set before Start.
func (a *InboundFile) SetHandler(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Start validates the directory layout and launches the poll loop.
func (a *InboundFile) Start(context.Context) error {
	dir := a.settings.String("FilePath", "")
	if dir == "" {
		return lierr.Configf("file adapter %s: FilePath is required", a.name)
	}
	a.mu.Lock()
	if a.handler == nil {
		a.mu.Unlock()
		return lierr.Configf("file adapter %s: no handler installed", a.name)
	}
	a.mu.Unlock()

	a.setState(StateStarting)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.setState(StateError)
		return lierr.Configf("file adapter %s: create FilePath: %v", a.name, err)
	}
	if err := os.MkdirAll(a.workDir(), 0o755); err != nil {
		a.setState(StateError)
		return lierr.Configf("file adapter %s: create WorkPath: %v", a.name, err)
	}
	if archive := a.settings.String("ArchivePath", ""); archive != "" {
		if err := os.MkdirAll(archive, 0o755); err != nil {
			a.setState(StateError)
			return lierr.Configf("file adapter %s: create ArchivePath: %v", a.name, err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if werr := watcher.Add(dir); werr != nil {
			a.logger.Debug("directory watch unavailable, polling only", zap.Error(werr))
			watcher.Close()
			watcher = nil
		}
	} else {
		a.logger.Debug("fsnotify unavailable, polling only", zap.Error(err))
		watcher = nil
	}

	a.setState(StateRunning)
	a.wg.Add(1)
	go a.pollLoop(loopCtx, watcher)
	return nil
}

func (a *InboundFile) pollLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer a.wg.Done()
	if watcher != nil {
		defer watcher.Close()
	}

	interval := a.settings.Duration("PollInterval", 5*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	a.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.poll(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				a.poll(ctx)
			}
		}
	}
}

// poll processes every matching file once, oldest first.
func (a *InboundFile) poll(ctx context.Context) {
	dir := a.settings.String("FilePath", "")
	spec := a.settings.String("FileSpec", "*")

	entries, err := os.ReadDir(dir)
	if err != nil {
		a.errorsTotal.Add(1)
		a.logger.Warn("poll failed", zap.Error(err))
		return
	}

	type candidate struct {
		name string
		mod  time.Time
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(spec, e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{e.Name(), info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		a.processFile(ctx, f.name)
	}
}

func (a *InboundFile) processFile(ctx context.Context, name string) {
	dir := a.settings.String("FilePath", "")
	src := filepath.Join(dir, name)

	semSpec := a.settings.String("SemaphoreSpec", "")
	var semPath string
	if semSpec != "" {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		semPath = filepath.Join(dir, strings.Replace(semSpec, "*", stem, 1))
		if _, err := os.Stat(semPath); err != nil {
			return // data file not ready yet
		}
	}

	// The rename is the claim; losing the race is not an error.
	work := filepath.Join(a.workDir(), name)
	if err := os.Rename(src, work); err != nil {
		return
	}

	data, err := os.ReadFile(work)
	if err != nil {
		a.errorsTotal.Add(1)
		a.logger.Warn("claimed file unreadable", zap.String("file", name), zap.Error(err))
		_ = os.Rename(work, src)
		return
	}
	a.bytesReceived.Add(int64(len(data)))
	a.touch()

	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()

	if _, err := handler(ctx, data); err != nil {
		a.errorsTotal.Add(1)
		a.logger.Warn("message handler failed, returning file",
			zap.String("file", name), zap.Error(err))
		_ = os.Rename(work, src)
		return
	}

	archive := a.settings.String("ArchivePath", "")
	if archive == "" {
		_ = os.Remove(work)
	} else {
		stamped := fmt.Sprintf("%s_%s", time.Now().Format("20060102150405"), name)
		if err := os.Rename(work, filepath.Join(archive, stamped)); err != nil {
			a.errorsTotal.Add(1)
			a.logger.Warn("archive failed", zap.String("file", name), zap.Error(err))
		}
	}
	if semPath != "" {
		_ = os.Remove(semPath)
	}
	a.logger.Debug("file processed", zap.String("file", name))
}

func (a *InboundFile) workDir() string {
	if w := a.settings.String("WorkPath", ""); w != "" {
		return w
	}
	return filepath.Join(a.settings.String("FilePath", ""), "work")
}

// Stop ends the poll loop and waits for the in-flight poll.
func (a *InboundFile) Stop(ctx context.Context) error {
	a.setState(StateStopping)
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
	a.setState(StateStopped)
	return nil
}

var _ Inbound = (*InboundFile)(nil)
