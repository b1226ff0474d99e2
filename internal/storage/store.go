// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/groupcart/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by CommitIfVersion when the stored
	// version is no longer the expected one.
	ErrVersionConflict = errors.New("version conflict")

	// ErrSlotHeld is returned when another group holds an unexpired lock.
	ErrSlotHeld = errors.New("slot held by another group")

	// ErrNotHolder is returned when the caller's group does not hold the lock.
	ErrNotHolder = errors.New("group does not hold the slot")

	// ErrLockLapsed is returned when renewing a lock that already expired.
	ErrLockLapsed = errors.New("slot lock expired")

	// ErrKeyExists is returned by Reserve when the idempotency key is taken.
	ErrKeyExists = errors.New("idempotency key exists")
)

// GroupStore persists group aggregates with optimistic versioning.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the engine.
type GroupStore interface {
	// CreateGroup persists a new group at version 1.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup loads the full aggregate, including its current version.
	// Returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// CommitIfVersion writes the whole aggregate if the stored version still
	// equals expectedVersion. On success group.Version is expectedVersion+1.
	// Returns ErrVersionConflict otherwise.
	CommitIfVersion(ctx context.Context, group *models.Group, expectedVersion int64) error

	// ListGroupsByUser returns every group the user is a member of.
	ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error)

	// ListGroupsByStatus returns the ids of groups in the given status.
	ListGroupsByStatus(ctx context.Context, status models.GroupStatus) ([]string, error)

	// FindInviteGroup returns the group id an invite token belongs to.
	FindInviteGroup(ctx context.Context, token string) (string, error)
}

// SlotLockStore holds the cluster-wide slot lock table. Every method is a
// single atomic operation against the store.
type SlotLockStore interface {
	// AcquireSlot takes the slot for groupID until lockedUntil if the slot is
	// free, expired at now, or already held by the same group.
	// Returns ErrSlotHeld otherwise.
	AcquireSlot(ctx context.Context, slotID, groupID string, lockedUntil, now int64) (*models.SlotLock, error)

	// RenewSlot extends a lock the group holds and that has not expired.
	// Returns ErrNotHolder or ErrLockLapsed.
	RenewSlot(ctx context.Context, slotID, groupID string, lockedUntil, now int64) (*models.SlotLock, error)

	// ReleaseSlot frees the slot if groupID holds it. Releasing a slot the
	// group does not hold is a no-op.
	ReleaseSlot(ctx context.Context, slotID, groupID string) error

	// GetSlotLock returns the live lock on a slot, or ErrNotFound if the
	// slot is free or its lock expired at now.
	GetSlotLock(ctx context.Context, slotID string, now int64) (*models.SlotLock, error)

	// ReapExpiredLocks deletes lock records that expired before the cutoff.
	ReapExpiredLocks(ctx context.Context, before int64) (int64, error)
}

// IdempotencyRecord is the stored outcome of a deduplicated request.
type IdempotencyRecord struct {
	Scope       string
	Key         string
	Fingerprint string
	Completed   bool
	Result      []byte
	CreatedAt   int64
}

// IdempotencyStore deduplicates client retries.
type IdempotencyStore interface {
	// ReserveKey claims (scope, key). Returns the existing record and
	// ErrKeyExists if the key was already claimed.
	ReserveKey(ctx context.Context, scope, key, fingerprint string, now int64) (*IdempotencyRecord, error)

	// CompleteKey stores the result for a reserved key.
	CompleteKey(ctx context.Context, scope, key string, result []byte) error

	// ReleaseKey drops a reservation so the request can be retried.
	ReleaseKey(ctx context.Context, scope, key string) error

	// PurgeKeys deletes records created before the cutoff.
	PurgeKeys(ctx context.Context, before int64) (int64, error)
}
