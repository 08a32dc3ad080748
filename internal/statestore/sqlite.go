// Package statestore implements core.StateStore against a local SQLite
// file: a one-way, write-through sink for the bot and order documents.
// It never reads its own rows back into the engine (spec.md §6.3).
package statestore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"gridbot/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS runners (
	id TEXT PRIMARY KEY,
	pair TEXT NOT NULL,
	data TEXT NOT NULL,
	checksum BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	runner_id TEXT NOT NULL,
	local_id INTEGER NOT NULL,
	data TEXT NOT NULL,
	checksum BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (runner_id, local_id)
);
`

// SQLiteStore is a WAL-mode sqlite core.StateStore. Each row carries a
// JSON document plus a SHA256 checksum over it, checked on every
// partial update so a corrupted row fails loudly instead of silently
// merging into garbage.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or attaches to the sqlite file at path, enabling WAL
// mode and creating the schema if absent.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("statestore: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("statestore: ping: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("statestore: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("statestore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func checksumOf(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func verifyChecksum(data, want []byte) error {
	got := checksumOf(data)
	if len(got) != len(want) {
		return fmt.Errorf("statestore: checksum length mismatch")
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("statestore: checksum verification failed, row may be corrupted")
		}
	}
	return nil
}

// CreateAndUseRunner inserts a new runner document and returns a fresh
// runner id that scopes every subsequent order write.
func (s *SQLiteStore) CreateAndUseRunner(ctx context.Context, runner core.RunnerRecord) (string, error) {
	runnerID := uuid.NewString()
	data, err := json.Marshal(runner)
	if err != nil {
		return "", fmt.Errorf("statestore: marshal runner: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runners (id, pair, data, checksum, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runnerID, runner.Pair, string(data), checksumOf(data), time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("statestore: insert runner: %w", err)
	}
	return runnerID, nil
}

// UpdateRunner merges fields into the runner document under a
// serializable transaction, re-checksumming the result.
func (s *SQLiteStore) UpdateRunner(ctx context.Context, runnerID string, fields map[string]interface{}) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("statestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data string
	var checksum []byte
	row := tx.QueryRowContext(ctx, `SELECT data, checksum FROM runners WHERE id = ?`, runnerID)
	if err := row.Scan(&data, &checksum); err != nil {
		return fmt.Errorf("statestore: read runner %s: %w", runnerID, err)
	}
	if err := verifyChecksum([]byte(data), checksum); err != nil {
		return err
	}

	merged, err := mergeJSON(data, fields)
	if err != nil {
		return fmt.Errorf("statestore: merge runner fields: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runners SET data = ?, checksum = ?, updated_at = ? WHERE id = ?`,
		string(merged), checksumOf(merged), time.Now().UnixNano(), runnerID,
	); err != nil {
		return fmt.Errorf("statestore: update runner: %w", err)
	}
	return tx.Commit()
}

// CreateOrder inserts the per-order write-through row.
func (s *SQLiteStore) CreateOrder(ctx context.Context, runnerID string, order core.OrderRecord) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("statestore: marshal order: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO orders (runner_id, local_id, data, checksum, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runnerID, order.LocalID, string(data), checksumOf(data), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("statestore: insert order: %w", err)
	}
	return nil
}

// UpdateOrder merges fields into an order document.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, runnerID string, localID int64, fields map[string]interface{}) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("statestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data string
	var checksum []byte
	row := tx.QueryRowContext(ctx,
		`SELECT data, checksum FROM orders WHERE runner_id = ? AND local_id = ?`, runnerID, localID)
	if err := row.Scan(&data, &checksum); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("statestore: update_order: unknown order %d for runner %s", localID, runnerID)
		}
		return fmt.Errorf("statestore: read order %d: %w", localID, err)
	}
	if err := verifyChecksum([]byte(data), checksum); err != nil {
		return err
	}

	merged, err := mergeJSON(data, fields)
	if err != nil {
		return fmt.Errorf("statestore: merge order fields: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET data = ?, checksum = ?, updated_at = ? WHERE runner_id = ? AND local_id = ?`,
		string(merged), checksumOf(merged), time.Now().UnixNano(), runnerID, localID,
	); err != nil {
		return fmt.Errorf("statestore: update order: %w", err)
	}
	return tx.Commit()
}

// DeleteOrder removes an order's row once it reaches a terminal state.
func (s *SQLiteStore) DeleteOrder(ctx context.Context, runnerID string, localID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM orders WHERE runner_id = ? AND local_id = ?`, runnerID, localID)
	if err != nil {
		return fmt.Errorf("statestore: delete order %d: %w", localID, err)
	}
	return nil
}

func mergeJSON(existing string, fields map[string]interface{}) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(existing), &doc); err != nil {
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	return json.Marshal(doc)
}

var _ core.StateStore = (*SQLiteStore)(nil)
