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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "github.com/teradata-labs/li/internal/sqlitedriver"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL,
	host_name      TEXT NOT NULL,
	message_type   TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	payload        BLOB,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	metadata       TEXT NOT NULL DEFAULT '{}',
	source         TEXT NOT NULL DEFAULT '',
	target         TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_host ON messages(host_name);
CREATE INDEX IF NOT EXISTS idx_messages_correlation ON messages(correlation_id);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

CREATE TABLE IF NOT EXISTS queue_messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	queue          TEXT NOT NULL,
	payload        BLOB,
	priority       INTEGER NOT NULL DEFAULT 0,
	correlation_id TEXT NOT NULL DEFAULT '',
	enqueued_at    TIMESTAMP NOT NULL,
	visible_at     TIMESTAMP NOT NULL,
	attempts       INTEGER NOT NULL DEFAULT 0,
	leased         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_queue_visible ON queue_messages(queue, leased, visible_at);
`

// SQLiteStore is a MessageStore and external Queue on a single SQLite
// file via the pure-Go driver.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and migrates) the database at path. ":memory:"
// is accepted for tests.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// modernc sqlite serialises writes; a single connection avoids
	// SQLITE_BUSY under concurrent hosts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	logger.Debug("sqlite store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Store inserts or replaces an audit record.
func (s *SQLiteStore) Store(ctx context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	meta, err := json.Marshal(orEmpty(rec.Metadata))
	if err != nil {
		return fmt.Errorf("sqlite store: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
		(id, message_id, host_name, message_type, state, payload, created_at,
		 updated_at, metadata, source, target, correlation_id, error, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MessageID, rec.HostName, rec.MessageType, rec.State,
		rec.Payload, rec.CreatedAt, rec.UpdatedAt, string(meta),
		rec.Source, rec.Target, rec.CorrelationID, rec.Error, rec.RetryCount)
	if err != nil {
		return fmt.Errorf("sqlite store: insert: %w", err)
	}
	return nil
}

// Get returns one record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, host_name, message_type, state, payload,
		       created_at, updated_at, metadata, source, target,
		       correlation_id, error, retry_count
		FROM messages WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// UpdateState sets state and error text on an existing record.
func (s *SQLiteStore) UpdateState(ctx context.Context, id, state, errText string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET state = ?, error = ?, updated_at = ? WHERE id = ?`,
		state, errText, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite store: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Query returns matching records, newest first.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	where, args := filterSQL(f, "?")
	q := `SELECT id, message_id, host_name, message_type, state, payload,
	             created_at, updated_at, metadata, source, target,
	             correlation_id, error, retry_count
	      FROM messages` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of matching records.
func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := filterSQL(f, "?")
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: count: %w", err)
	}
	return n, nil
}

// Send enqueues a payload on the named queue.
func (s *SQLiteStore) Send(ctx context.Context, queue string, payload []byte, opts SendOptions) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_messages (queue, payload, priority, correlation_id, enqueued_at, visible_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		queue, payload, opts.Priority, opts.CorrelationID, now, now.Add(opts.Delay))
	if err != nil {
		return fmt.Errorf("sqlite queue: send: %w", err)
	}
	return nil
}

// Receive leases the next visible message, ordered by priority then
// arrival. It polls until timeout elapses and then fails with
// ErrNotFound.
func (s *SQLiteStore) Receive(ctx context.Context, queue string, timeout time.Duration) (*QueuedMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		msg, err := s.tryReceive(ctx, queue)
		if err != nil || msg != nil {
			return msg, err
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: queue %s empty", ErrNotFound, queue)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *SQLiteStore) tryReceive(ctx context.Context, queue string) (*QueuedMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite queue: begin: %w", err)
	}
	defer tx.Rollback()

	var m QueuedMessage
	err = tx.QueryRowContext(ctx, `
		SELECT id, queue, payload, priority, correlation_id, enqueued_at, attempts
		FROM queue_messages
		WHERE queue = ? AND leased = 0 AND visible_at <= ?
		ORDER BY priority ASC, id ASC LIMIT 1`,
		queue, time.Now().UTC()).
		Scan(&m.ID, &m.Queue, &m.Payload, &m.Priority, &m.CorrelationID, &m.EnqueuedAt, &m.Attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite queue: receive: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_messages SET leased = 1, attempts = attempts + 1 WHERE id = ?`, m.ID); err != nil {
		return nil, fmt.Errorf("sqlite queue: lease: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite queue: commit: %w", err)
	}
	m.Attempts++
	return &m, nil
}

// Ack deletes a leased message.
func (s *SQLiteStore) Ack(ctx context.Context, msg *QueuedMessage) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = ?`, msg.ID)
	if err != nil {
		return fmt.Errorf("sqlite queue: ack: %w", err)
	}
	return nil
}

// Nack releases the lease; with requeue the message becomes visible
// again, otherwise it is dropped.
func (s *SQLiteStore) Nack(ctx context.Context, msg *QueuedMessage, requeue bool) error {
	if !requeue {
		return s.Ack(ctx, msg)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE queue_messages SET leased = 0 WHERE id = ?`, msg.ID)
	if err != nil {
		return fmt.Errorf("sqlite queue: nack: %w", err)
	}
	return nil
}

// Length returns the number of visible messages on a queue.
func (s *SQLiteStore) Length(ctx context.Context, queue string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_messages WHERE queue = ? AND leased = 0`, queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite queue: length: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var meta string
	err := row.Scan(&rec.ID, &rec.MessageID, &rec.HostName, &rec.MessageType,
		&rec.State, &rec.Payload, &rec.CreatedAt, &rec.UpdatedAt, &meta,
		&rec.Source, &rec.Target, &rec.CorrelationID, &rec.Error, &rec.RetryCount)
	if err != nil {
		return Record{}, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("store: decode metadata: %w", err)
		}
	}
	return rec, nil
}

// filterSQL builds the WHERE clause shared by the SQL stores. ph is
// the positional placeholder style: "?" for SQLite, "$" for Postgres.
func filterSQL(f Filter, ph string) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		if ph == "?" {
			conds = append(conds, cond+" ?")
		} else {
			conds = append(conds, fmt.Sprintf("%s $%d", cond, len(args)))
		}
	}
	if f.HostName != "" {
		add("host_name =", f.HostName)
	}
	if f.MessageType != "" {
		add("message_type =", f.MessageType)
	}
	if f.State != "" {
		add("state =", f.State)
	}
	if f.CorrelationID != "" {
		add("correlation_id =", f.CorrelationID)
	}
	if !f.Since.IsZero() {
		add("created_at >=", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <=", f.Until)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

var (
	_ MessageStore = (*SQLiteStore)(nil)
	_ Queue        = (*SQLiteStore)(nil)
)
