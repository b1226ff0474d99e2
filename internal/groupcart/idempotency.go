package groupcart

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/groupcart/internal/storage"
	"golang.org/x/crypto/blake2b"
)

// runIdempotent runs fn at most once per (caller, operation, key).
//
// A replay of a completed request returns the stored result. A replay that
// arrives while the first attempt is still running gets ErrRequestInFlight.
// Reusing a key for a different payload gets ErrIdempotencyKeyReused. When
// fn fails the reservation is dropped so the client can retry with the same
// key.
func runIdempotent[T any](ctx context.Context, e *Engine, c Caller, op string, req any, fn func() (T, error)) (T, error) {
	var zero T
	if c.IdempotencyKey == "" || e.keys == nil {
		return fn()
	}

	fingerprint, err := fingerprintOf(op, req)
	if err != nil {
		return zero, err
	}
	scope := c.UserID + ":" + op

	rec, err := e.reserve(ctx, scope, c.IdempotencyKey, fingerprint)
	if errors.Is(err, ErrDuplicateRequest) {
		var out T
		if err := json.Unmarshal(rec.Result, &out); err != nil {
			return zero, fmt.Errorf("failed to decode stored result: %w", err)
		}
		e.metrics.Replay()
		slog.InfoContext(ctx, "Replayed idempotent request", "operation", op, "user_id", c.UserID)
		return out, nil
	}
	if err != nil {
		return zero, err
	}

	out, err := fn()
	if err != nil {
		if relErr := e.keys.ReleaseKey(context.WithoutCancel(ctx), scope, c.IdempotencyKey); relErr != nil {
			slog.WarnContext(ctx, "Failed to release idempotency key", "operation", op, "error", relErr)
		}
		return zero, err
	}

	result, err := json.Marshal(out)
	if err != nil {
		return zero, fmt.Errorf("failed to encode result: %w", err)
	}
	if err := e.keys.CompleteKey(context.WithoutCancel(ctx), scope, c.IdempotencyKey, result); err != nil {
		// The effect is committed; a later replay will see the key in
		// flight until it is purged.
		slog.ErrorContext(ctx, "Failed to complete idempotency key", "operation", op, "error", err)
	}
	return out, nil
}

// reserve claims the key. It returns ErrDuplicateRequest together with the
// stored record when the same request already completed.
func (e *Engine) reserve(ctx context.Context, scope, key, fingerprint string) (*storage.IdempotencyRecord, error) {
	rec, err := e.keys.ReserveKey(ctx, scope, key, fingerprint, e.now())
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, storage.ErrKeyExists) {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	switch {
	case rec.Fingerprint != fingerprint:
		return nil, ErrIdempotencyKeyReused
	case !rec.Completed:
		return nil, ErrRequestInFlight
	default:
		return rec, ErrDuplicateRequest
	}
}

func fingerprintOf(op string, req any) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	sum := blake2b.Sum256(append([]byte(op+"\x00"), payload...))
	return hex.EncodeToString(sum[:]), nil
}
