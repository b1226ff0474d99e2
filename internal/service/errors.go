package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/mmynk/groupcart/internal/groupcart"
)

// toConnectError maps engine errors to Connect codes. Errors the engine does
// not name are internal and logged.
func toConnectError(ctx context.Context, procedure string, err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, groupcart.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, groupcart.ErrGroupNotFound), errors.Is(err, groupcart.ErrInviteNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, groupcart.ErrNotMember), errors.Is(err, groupcart.ErrNotOwner):
		code = connect.CodePermissionDenied
	case errors.Is(err, groupcart.ErrSlotAlreadyLocked), errors.Is(err, groupcart.ErrAlreadyMember):
		code = connect.CodeAlreadyExists
	case errors.Is(err, groupcart.ErrGroupClosed),
		errors.Is(err, groupcart.ErrLockExpired),
		errors.Is(err, groupcart.ErrNoSlotLock),
		errors.Is(err, groupcart.ErrSplitMismatch),
		errors.Is(err, groupcart.ErrEmptyCart),
		errors.Is(err, groupcart.ErrInviteExpired),
		errors.Is(err, groupcart.ErrIdempotencyKeyReused):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, groupcart.ErrConflict), errors.Is(err, groupcart.ErrRequestInFlight):
		code = connect.CodeAborted
	case errors.Is(err, groupcart.ErrOrderPlacementFailed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	if code == connect.CodeInternal {
		slog.ErrorContext(ctx, "Unexpected error", "procedure", procedure, "error", err)
	}
	return connect.NewError(code, err)
}
