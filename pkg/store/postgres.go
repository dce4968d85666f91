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
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL,
	host_name      TEXT NOT NULL,
	message_type   TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	payload        BYTEA,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	metadata       JSONB NOT NULL DEFAULT '{}',
	source         TEXT NOT NULL DEFAULT '',
	target         TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_host ON messages(host_name);
CREATE INDEX IF NOT EXISTS idx_messages_correlation ON messages(correlation_id);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
`

// PostgresStore is a MessageStore on PostgreSQL for deployments where
// the audit trail is shared across engine instances.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore connects with a lib/pq DSN and runs the schema
// migration.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	logger.Debug("postgres store connected")
	return &PostgresStore{db: db, logger: logger}, nil
}

// Store inserts or replaces an audit record.
func (s *PostgresStore) Store(ctx context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	meta, err := json.Marshal(orEmpty(rec.Metadata))
	if err != nil {
		return fmt.Errorf("postgres store: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages
		(id, message_id, host_name, message_type, state, payload, created_at,
		 updated_at, metadata, source, target, correlation_id, error, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at,
			error = EXCLUDED.error,
			retry_count = EXCLUDED.retry_count`,
		rec.ID, rec.MessageID, rec.HostName, rec.MessageType, rec.State,
		rec.Payload, rec.CreatedAt, rec.UpdatedAt, meta,
		rec.Source, rec.Target, rec.CorrelationID, rec.Error, rec.RetryCount)
	if err != nil {
		return fmt.Errorf("postgres store: insert: %w", err)
	}
	return nil
}

// Get returns one record by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, host_name, message_type, state, payload,
		       created_at, updated_at, metadata::text, source, target,
		       correlation_id, error, retry_count
		FROM messages WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// UpdateState sets state and error text on an existing record.
func (s *PostgresStore) UpdateState(ctx context.Context, id, state, errText string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET state = $1, error = $2, updated_at = $3 WHERE id = $4`,
		state, errText, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres store: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Query returns matching records, newest first.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	where, args := filterSQL(f, "$")
	q := `SELECT id, message_id, host_name, message_type, state, payload,
	             created_at, updated_at, metadata::text, source, target,
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
		return nil, fmt.Errorf("postgres store: query: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := filterSQL(f, "$")
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres store: count: %w", err)
	}
	return n, nil
}

// Ping verifies the connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

var _ MessageStore = (*PostgresStore)(nil)
