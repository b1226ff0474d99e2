package groupcart

import (
	"errors"

	"github.com/mmynk/groupcart/internal/calculator"
)

var (
	// ErrConflict means the group kept changing under the caller until the
	// retry budget ran out. Retrying the whole request with fresh state is safe.
	ErrConflict = errors.New("concurrent update conflict")

	ErrNotMember = errors.New("caller is not a member of the group")
	ErrNotOwner  = errors.New("caller is not the group owner")

	// ErrGroupClosed means the group is no longer in a state that accepts
	// the requested change.
	ErrGroupClosed = errors.New("group is closed for changes")

	ErrSlotAlreadyLocked = errors.New("slot already locked by another group")
	ErrLockExpired       = errors.New("slot lock expired")
	ErrNoSlotLock        = errors.New("group holds no slot lock")

	// ErrSplitMismatch covers splits that do not sum to the total and
	// splits that are stale against the live total.
	ErrSplitMismatch = calculator.ErrSplitMismatch

	// ErrDuplicateRequest marks an idempotency key whose request already
	// completed. Callers get the stored result instead of this error.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrRequestInFlight means another request with the same idempotency key
	// has not finished yet.
	ErrRequestInFlight = errors.New("request with this idempotency key is in flight")

	// ErrIdempotencyKeyReused means the key was first used for a different
	// request payload.
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different request")

	// ErrOrderPlacementFailed means the order service failed after the
	// ordering gate was won. The group is back in slot_locked.
	ErrOrderPlacementFailed = errors.New("order placement failed")

	ErrGroupNotFound   = errors.New("group not found")
	ErrInviteNotFound  = errors.New("invite not found")
	ErrInviteExpired   = errors.New("invite expired")
	ErrAlreadyMember   = errors.New("user is already a member")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidArgument = errors.New("invalid argument")
)
