package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/groupcart/internal/storage"
)

// ReserveKey claims an idempotency key. If the key exists the stored record
// is returned along with storage.ErrKeyExists.
func (s *SQLiteStore) ReserveKey(ctx context.Context, scope, key, fingerprint string, now int64) (*storage.IdempotencyRecord, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (scope, idem_key, fingerprint, completed, created_at)
		 VALUES (?, ?, ?, 0, ?) ON CONFLICT(scope, idem_key) DO NOTHING`,
		scope, key, fingerprint, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return &storage.IdempotencyRecord{Scope: scope, Key: key, Fingerprint: fingerprint, CreatedAt: now}, nil
	}

	rec := &storage.IdempotencyRecord{Scope: scope, Key: key}
	var completed int
	var result []byte
	err = s.db.QueryRowContext(ctx,
		"SELECT fingerprint, completed, result, created_at FROM idempotency_keys WHERE scope = ? AND idem_key = ?",
		scope, key,
	).Scan(&rec.Fingerprint, &completed, &result, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Purged between the insert and the read
		return nil, fmt.Errorf("idempotency key %s vanished during reserve", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	rec.Completed = completed == 1
	rec.Result = result
	return rec, storage.ErrKeyExists
}

// CompleteKey stores the result of a reserved request.
func (s *SQLiteStore) CompleteKey(ctx context.Context, scope, key string, result []byte) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE idempotency_keys SET completed = 1, result = ? WHERE scope = ? AND idem_key = ?",
		result, scope, key,
	)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// ReleaseKey drops an uncompleted reservation.
func (s *SQLiteStore) ReleaseKey(ctx context.Context, scope, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM idempotency_keys WHERE scope = ? AND idem_key = ? AND completed = 0",
		scope, key,
	)
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// PurgeKeys deletes records created before the cutoff.
func (s *SQLiteStore) PurgeKeys(ctx context.Context, before int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM idempotency_keys WHERE created_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}
	return res.RowsAffected()
}
