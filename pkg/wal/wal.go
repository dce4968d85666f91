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

// Package wal implements the write-ahead log backing the at-least-once
// delivery guarantee.
//
// The log is a directory of rotating segment files named wal_<ts>.log.
// Every record is appended as
//
//	[u32 big-endian entry length][entry JSON]
//	[u32 big-endian checksum length][MD5 hex of the entry bytes]
//
// and state changes append a fresh record for the same entry id; the
// in-memory index keeps the latest state per id, ordered by a monotonic
// sequence. On startup all segments are scanned and entries left in
// pending or processing are re-exposed as pending with their retry
// count untouched — a crash must not consume a retry.
//
// Segments rotated out of the active position are zstd-compressed.
// A cron-scheduled checkpoint deletes segments whose every entry has
// reached completed or expired, and expires terminal entries older than
// the configured TTL.
package wal

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
)

// State is the lifecycle state of a WAL entry.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
)

// Entry is one unit of Host work recorded in the log.
type Entry struct {
	ID          string            `json:"id"`
	Seq         uint64            `json:"seq"`
	Timestamp   time.Time         `json:"timestamp"`
	State       State             `json:"state"`
	Host        string            `json:"host"`
	MessageID   string            `json:"message_id"`
	MessageType string            `json:"message_type,omitempty"`
	Payload     []byte            `json:"payload,omitempty"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	Error       string            `json:"error,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Durability selects when writes reach stable storage.
type Durability string

const (
	// DurabilityFsync syncs after every record.
	DurabilityFsync Durability = "fsync"
	// DurabilityAsync syncs on SyncInterval.
	DurabilityAsync Durability = "async"
	// DurabilityNone never syncs explicitly.
	DurabilityNone Durability = "none"
)

// Config describes a WAL.
type Config struct {
	// Dir is the segment directory, created if absent.
	Dir string

	// MaxFileSize triggers rotation. Default 64 MiB.
	MaxFileSize int64

	// Durability dial. Default DurabilityFsync.
	Durability Durability

	// SyncInterval applies under DurabilityAsync. Default 1s.
	SyncInterval time.Duration

	// EntryTTL expires terminal entries at checkpoint. Default 24h.
	EntryTTL time.Duration

	// CheckpointEvery schedules the background checkpoint. Default 1m.
	CheckpointEvery time.Duration

	// MaxRetries is the default retry budget recorded on new entries.
	// Default 3.
	MaxRetries int

	// Compress controls zstd compression of rotated segments. Default
	// true; tests disable it to inspect raw segments.
	Compress *bool

	Logger *zap.Logger
}

// WAL is the write-ahead log. All operations are safe for concurrent
// use; a single mutex serialises writes, rotation, and checkpoint.
type WAL struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	active *os.File
	path   string
	size   int64
	seq    uint64
	index  map[string]*Entry
	closed bool

	cron   *cron.Cron
	syncCh chan struct{}
}

// Open scans dir, recovers the entry index, and opens a fresh active
// segment.
func Open(cfg Config) (*WAL, error) {
	if cfg.Dir == "" {
		return nil, lierr.Configf("wal: directory is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 64 << 20
	}
	if cfg.Durability == "" {
		cfg.Durability = DurabilityFsync
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Second
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 24 * time.Hour
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	w := &WAL{
		cfg:    cfg,
		logger: cfg.Logger,
		index:  make(map[string]*Entry),
		syncCh: make(chan struct{}),
	}

	if err := w.recover(); err != nil {
		return nil, err
	}
	if err := w.openSegment(); err != nil {
		return nil, err
	}

	w.cron = cron.New()
	if _, err := w.cron.AddFunc(fmt.Sprintf("@every %s", cfg.CheckpointEvery), func() {
		if err := w.Checkpoint(); err != nil {
			w.logger.Warn("wal checkpoint failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("wal: schedule checkpoint: %w", err)
	}
	w.cron.Start()

	if cfg.Durability == DurabilityAsync {
		go w.syncLoop()
	}

	w.logger.Info("wal opened",
		zap.String("dir", cfg.Dir),
		zap.Int("recovered", len(w.index)),
		zap.String("durability", string(cfg.Durability)))
	return w, nil
}

// Append records a new pending entry and returns its id.
func (w *WAL) Append(host, messageID string, payload []byte, msgType string, meta map[string]string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", fmt.Errorf("wal: %w", lierr.ErrClosed)
	}

	w.seq++
	e := &Entry{
		ID:          uuid.NewString(),
		Seq:         w.seq,
		Timestamp:   time.Now().UTC(),
		State:       StatePending,
		Host:        host,
		MessageID:   messageID,
		MessageType: msgType,
		Payload:     payload,
		MaxRetries:  w.cfg.MaxRetries,
		Meta:        meta,
	}
	if err := w.writeLocked(e); err != nil {
		return "", err
	}
	w.index[e.ID] = e
	return e.ID, nil
}

// MarkProcessing transitions an entry to processing.
func (w *WAL) MarkProcessing(entryID string) error {
	return w.transition(entryID, StateProcessing, "")
}

// Complete transitions an entry to completed. Completing a completed
// entry is a no-op, so acknowledgement is idempotent.
func (w *WAL) Complete(entryID string) error {
	w.mu.Lock()
	e, ok := w.index[entryID]
	if ok && e.State == StateCompleted {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	return w.transition(entryID, StateCompleted, "")
}

// Fail records a failure. It increments the retry counter and reports
// whether the entry remains retryable; re-submission is the caller's
// responsibility.
func (w *WAL) Fail(entryID string, cause error) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false, fmt.Errorf("wal: %w", lierr.ErrClosed)
	}
	e, ok := w.index[entryID]
	if !ok {
		return false, fmt.Errorf("wal: unknown entry %s", entryID)
	}

	updated := *e
	updated.RetryCount++
	updated.Error = ""
	if cause != nil {
		updated.Error = cause.Error()
	}
	retryable := updated.RetryCount < updated.MaxRetries
	if retryable {
		updated.State = StatePending
	} else {
		updated.State = StateFailed
	}
	w.seq++
	updated.Seq = w.seq
	updated.Timestamp = time.Now().UTC()
	if err := w.writeLocked(&updated); err != nil {
		return false, err
	}
	w.index[entryID] = &updated
	return retryable, nil
}

// FailPermanent marks an entry failed regardless of its remaining
// retry budget. Used when the peer's reply says the message must not
// be retried.
func (w *WAL) FailPermanent(entryID string, cause error) error {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	return w.transition(entryID, StateFailed, errText)
}

// Pending returns entries awaiting work, oldest first.
func (w *WAL) Pending() []Entry {
	return w.byState(StatePending)
}

// Failed returns terminally failed entries, oldest first.
func (w *WAL) Failed() []Entry {
	return w.byState(StateFailed)
}

// Get returns the latest state of an entry.
func (w *WAL) Get(entryID string) (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.index[entryID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Checkpoint expires terminal entries older than the TTL and deletes
// closed segments whose every entry has reached a terminal state.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	cutoff := time.Now().Add(-w.cfg.EntryTTL)
	for id, e := range w.index {
		switch e.State {
		case StateCompleted, StateExpired:
			if e.Timestamp.Before(cutoff) {
				delete(w.index, id)
			}
		case StateFailed:
			if e.Timestamp.Before(cutoff) {
				w.logger.Warn("wal entry expired after failure",
					zap.String("entry_id", id),
					zap.String("host", e.Host),
					zap.String("message_id", e.MessageID),
					zap.String("error", e.Error))
				e.State = StateExpired
			}
		}
	}

	segments, err := w.closedSegments()
	if err != nil {
		return err
	}
	for _, seg := range segments {
		removable, err := w.segmentRemovable(seg)
		if err != nil {
			w.logger.Warn("wal checkpoint: segment scan failed",
				zap.String("segment", seg), zap.Error(err))
			continue
		}
		if removable {
			if err := os.Remove(seg); err != nil {
				w.logger.Warn("wal checkpoint: remove failed",
					zap.String("segment", seg), zap.Error(err))
				continue
			}
			w.logger.Debug("wal segment removed", zap.String("segment", seg))
		}
	}
	return nil
}

// Sync flushes the active segment to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.active == nil {
		return nil
	}
	return w.active.Sync()
}

// Close stops background work and closes the active segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.syncCh)
	active := w.active
	w.active = nil
	w.mu.Unlock()

	if w.cron != nil {
		w.cron.Stop()
	}
	if active != nil {
		_ = active.Sync()
		return active.Close()
	}
	return nil
}

func (w *WAL) transition(entryID string, state State, errText string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("wal: %w", lierr.ErrClosed)
	}
	e, ok := w.index[entryID]
	if !ok {
		return fmt.Errorf("wal: unknown entry %s", entryID)
	}

	updated := *e
	updated.State = state
	if errText != "" {
		updated.Error = errText
	}
	w.seq++
	updated.Seq = w.seq
	updated.Timestamp = time.Now().UTC()
	if err := w.writeLocked(&updated); err != nil {
		return err
	}
	w.index[entryID] = &updated
	return nil
}

func (w *WAL) byState(state State) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Entry
	for _, e := range w.index {
		if e.State == state {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// writeLocked appends one record to the active segment, rotating first
// when the size threshold is reached.
func (w *WAL) writeLocked(e *Entry) error {
	if w.size >= w.cfg.MaxFileSize {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("wal: marshal entry: %w", err)
	}
	sum := md5.Sum(data)
	checksum := []byte(hex.EncodeToString(sum[:]))

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.active.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if _, err := w.active.Write(data); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(checksum)))
	if _, err := w.active.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if _, err := w.active.Write(checksum); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	w.size += int64(8 + len(data) + len(checksum))

	if w.cfg.Durability == DurabilityFsync {
		return w.active.Sync()
	}
	return nil
}

func (w *WAL) openSegment() error {
	path := filepath.Join(w.cfg.Dir, fmt.Sprintf("wal_%d.log", time.Now().UnixNano()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}
	w.active = f
	w.path = path
	w.size = 0
	return nil
}

func (w *WAL) rotateLocked() error {
	old, oldPath := w.active, w.path
	if err := w.openSegment(); err != nil {
		return err
	}
	_ = old.Sync()
	if err := old.Close(); err != nil {
		return fmt.Errorf("wal: close segment: %w", err)
	}
	if w.compressEnabled() {
		if err := compressSegment(oldPath); err != nil {
			w.logger.Warn("wal: segment compression failed",
				zap.String("segment", oldPath), zap.Error(err))
		}
	}
	w.logger.Debug("wal segment rotated", zap.String("segment", oldPath))
	return nil
}

func (w *WAL) compressEnabled() bool {
	return w.cfg.Compress == nil || *w.cfg.Compress
}

func (w *WAL) syncLoop() {
	ticker := time.NewTicker(w.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Sync(); err != nil {
				w.logger.Warn("wal sync failed", zap.Error(err))
			}
		case <-w.syncCh:
			return
		}
	}
}

// recover scans every segment and rebuilds the index. Entries left in
// pending or processing become pending; the retry counter is preserved.
func (w *WAL) recover() error {
	segments, err := w.allSegments()
	if err != nil {
		return err
	}
	for _, seg := range segments {
		entries, err := readSegment(seg)
		if err != nil {
			w.logger.Warn("wal recovery: segment unreadable",
				zap.String("segment", seg), zap.Error(err))
			continue
		}
		for i := range entries {
			e := entries[i]
			if cur, ok := w.index[e.ID]; ok && cur.Seq >= e.Seq {
				continue
			}
			w.index[e.ID] = &e
			if e.Seq > w.seq {
				w.seq = e.Seq
			}
		}
	}
	for _, e := range w.index {
		if e.State == StateProcessing {
			e.State = StatePending
		}
	}
	return nil
}

func (w *WAL) allSegments() ([]string, error) {
	names, err := filepath.Glob(filepath.Join(w.cfg.Dir, "wal_*.log*"))
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// closedSegments lists every segment except the active one. Callers
// hold w.mu.
func (w *WAL) closedSegments() ([]string, error) {
	all, err := w.allSegments()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, name := range all {
		if name != w.path {
			out = append(out, name)
		}
	}
	return out, nil
}

// segmentRemovable reports whether every entry recorded in seg has
// reached a terminal state (or left the index entirely).
func (w *WAL) segmentRemovable(seg string) (bool, error) {
	entries, err := readSegment(seg)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		cur, ok := w.index[e.ID]
		if !ok {
			continue
		}
		switch cur.State {
		case StateCompleted, StateExpired:
		default:
			return false, nil
		}
	}
	return true, nil
}

// readSegment decodes every valid record in a segment, transparently
// decompressing .zst files. A corrupt record ends the scan (torn tail
// after a crash) without failing recovery.
func readSegment(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}

	var out []Entry
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, nil // torn record
		}
		data := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, data); err != nil {
			return out, nil
		}
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return out, nil
		}
		checksum := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, checksum); err != nil {
			return out, nil
		}
		sum := md5.Sum(data)
		if hex.EncodeToString(sum[:]) != string(checksum) {
			return out, nil // corrupt record
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return out, nil
		}
		out = append(out, e)
	}
}

// compressSegment replaces path with path+".zst".
func compressSegment(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(dst)
	if err != nil {
		dst.Close()
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
