package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Tx is the set of key-value operations available both directly on a KVStore
// and inside an Update transaction.
type Tx interface {
	Get(ctx context.Context, key Key, dst any) (bool, error)
	Set(ctx context.Context, key Key, value any) error
	Delete(ctx context.Context, keys ...Key) error
	List(ctx context.Context, kind Kind) ([]Entry, error)
	DeleteKinds(ctx context.Context, kinds ...Kind) (int64, error)
	ClearPartition(ctx context.Context, p Partition) (int64, error)
}

// Entry is a stored value as returned by List
type Entry struct {
	Key       Key
	Value     json.RawMessage
	UpdatedAt time.Time
}

// Decode unmarshals the entry's value into dst
func (e Entry) Decode(dst any) error {
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", e.Key, err)
	}
	return nil
}

// Size is the stored size of the value in bytes
func (e Entry) Size() int {
	return len(e.Value)
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// KVStore persists JSON values under typed keys in two partitions
type KVStore struct {
	kvOps
	db *DB
}

// NewKVStore creates a new key-value store
func NewKVStore(db *DB) *KVStore {
	return &KVStore{kvOps: kvOps{q: db}, db: db}
}

// Update runs fn inside a single transaction. fn must only use the Tx it is
// given; the store holds one connection, so calling back into the KVStore
// from fn blocks until the transaction ends.
func (s *KVStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(kvOps{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type kvOps struct {
	q querier
}

// Get decodes the value stored under key into dst. It reports false, with no
// error, when the key does not exist.
func (o kvOps) Get(ctx context.Context, key Key, dst any) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}

	var raw string
	err := o.q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key, replacing any previous value
func (o kvOps) Set(ctx context.Context, key Key, value any) error {
	if err := key.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	query := `
		INSERT INTO kv (key, partition, kind, scope, value, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err = o.q.ExecContext(ctx, query,
		key.String(),
		string(key.Partition()),
		string(key.Kind()),
		key.Scope(),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (o kvOps) Delete(ctx context.Context, keys ...Key) error {
	for _, key := range keys {
		if err := key.validate(); err != nil {
			return err
		}
		if _, err := o.q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key.String()); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// List returns every entry of a kind ordered by key
func (o kvOps) List(ctx context.Context, kind Kind) ([]Entry, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT kind, scope, value, updated_at FROM kv WHERE kind = ? ORDER BY key`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			k, scope, value string
			updatedAt       time.Time
		)
		if err := rows.Scan(&k, &scope, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s entry: %w", kind, err)
		}
		entries = append(entries, Entry{
			Key:       Key{kind: Kind(k), scope: scope},
			Value:     json.RawMessage(value),
			UpdatedAt: updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	return entries, nil
}

// DeleteKinds removes every key of the given kinds and returns how many rows went
func (o kvOps) DeleteKinds(ctx context.Context, kinds ...Kind) (int64, error) {
	var total int64
	for _, kind := range kinds {
		res, err := o.q.ExecContext(ctx, `DELETE FROM kv WHERE kind = ?`, string(kind))
		if err != nil {
			return total, fmt.Errorf("failed to delete %s keys: %w", kind, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// ClearPartition removes every key in a partition
func (o kvOps) ClearPartition(ctx context.Context, p Partition) (int64, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM kv WHERE partition = ?`, string(p))
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s partition: %w", p, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
