package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

// AcquireSlot takes a slot with a single conditional upsert. The row is
// only written when the slot is free, the current lock has expired, or the
// same group already holds it. A re-acquire by the holder never shortens
// the lock.
func (s *SQLiteStore) AcquireSlot(ctx context.Context, slotID, groupID string, lockedUntil, now int64) (*models.SlotLock, error) {
	lock := &models.SlotLock{}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO slot_locks (slot_id, group_id, locked_until, lock_version) VALUES (?, ?, ?, 1)
		 ON CONFLICT(slot_id) DO UPDATE SET
		     group_id = excluded.group_id,
		     locked_until = CASE WHEN slot_locks.group_id = excluded.group_id
		         THEN MAX(slot_locks.locked_until, excluded.locked_until)
		         ELSE excluded.locked_until END,
		     lock_version = slot_locks.lock_version + 1
		 WHERE slot_locks.locked_until < ? OR slot_locks.group_id = excluded.group_id
		 RETURNING slot_id, group_id, locked_until, lock_version`,
		slotID, groupID, lockedUntil, now,
	).Scan(&lock.SlotID, &lock.GroupID, &lock.LockedUntil, &lock.LockVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrSlotHeld)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire slot lock: %w", err)
	}
	return lock, nil
}

// RenewSlot extends a live lock held by groupID. The expiry never moves backwards.
func (s *SQLiteStore) RenewSlot(ctx context.Context, slotID, groupID string, lockedUntil, now int64) (*models.SlotLock, error) {
	lock := &models.SlotLock{}
	err := s.db.QueryRowContext(ctx,
		`UPDATE slot_locks SET locked_until = MAX(locked_until, ?), lock_version = lock_version + 1
		 WHERE slot_id = ? AND group_id = ? AND locked_until >= ?
		 RETURNING slot_id, group_id, locked_until, lock_version`,
		lockedUntil, slotID, groupID, now,
	).Scan(&lock.SlotID, &lock.GroupID, &lock.LockedUntil, &lock.LockVersion)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to renew slot lock: %w", err)
	}

	// Work out why nothing matched
	var holder string
	err = s.db.QueryRowContext(ctx, "SELECT group_id FROM slot_locks WHERE slot_id = ?", slotID).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && holder != groupID) {
		return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrNotHolder)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot lock: %w", err)
	}
	return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrLockLapsed)
}

// ReleaseSlot removes the lock if groupID holds it.
func (s *SQLiteStore) ReleaseSlot(ctx context.Context, slotID, groupID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM slot_locks WHERE slot_id = ? AND group_id = ?", slotID, groupID)
	if err != nil {
		return fmt.Errorf("failed to release slot lock: %w", err)
	}
	return nil
}

// GetSlotLock retrieves the live lock on a slot.
func (s *SQLiteStore) GetSlotLock(ctx context.Context, slotID string, now int64) (*models.SlotLock, error) {
	lock := &models.SlotLock{}
	err := s.db.QueryRowContext(ctx,
		"SELECT slot_id, group_id, locked_until, lock_version FROM slot_locks WHERE slot_id = ? AND locked_until >= ?",
		slotID, now,
	).Scan(&lock.SlotID, &lock.GroupID, &lock.LockedUntil, &lock.LockVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot lock: %w", err)
	}
	return lock, nil
}

// ReapExpiredLocks deletes lock rows that expired before the cutoff.
func (s *SQLiteStore) ReapExpiredLocks(ctx context.Context, before int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM slot_locks WHERE locked_until < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to reap slot locks: %w", err)
	}
	return res.RowsAffected()
}
