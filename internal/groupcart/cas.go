package groupcart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mmynk/groupcart/internal/calculator"
	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

// errNoChange lets a mutator finish without committing. update then returns
// the group as loaded.
var errNoChange = errors.New("no change")

// mutator edits a private copy of the group. It may run several times, so
// it must not have side effects outside the group it is given.
type mutator func(g *models.Group, now int64) error

// update loads the group, applies fn to a copy and commits it if nobody else
// committed in between. Lost races are retried with exponential backoff up
// to CASAttempts times, then ErrConflict is returned.
func (e *Engine) update(ctx context.Context, op, groupID string, fn mutator) (*models.Group, error) {
	backoff := e.opts.CASBackoff
	for attempt := 1; ; attempt++ {
		current, err := e.load(ctx, groupID)
		if err != nil {
			return nil, err
		}

		now := e.now()
		next := current.Clone()
		if err := fn(next, now); err != nil {
			if errors.Is(err, errNoChange) {
				return current, nil
			}
			return nil, err
		}
		next.UpdatedAt = now

		err = e.groups.CommitIfVersion(ctx, next, current.Version)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to commit group: %w", err)
		}

		e.metrics.CASConflict(op)
		if attempt >= e.opts.CASAttempts {
			e.metrics.CASExhausted(op)
			slog.WarnContext(ctx, "Group update gave up after conflicts",
				"operation", op,
				"group_id", groupID,
				"attempts", attempt,
			)
			return nil, ErrConflict
		}
		if err := sleep(ctx, jitter(backoff)); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

func (e *Engine) load(ctx context.Context, groupID string) (*models.Group, error) {
	g, err := e.groups.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	return g, nil
}

// jitter returns a duration in [d/2, d].
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func requireMember(g *models.Group, userID string) (*models.Member, error) {
	m, ok := g.MemberByUser(userID)
	if !ok {
		return nil, ErrNotMember
	}
	return m, nil
}

func requireOwner(g *models.Group, userID string) (*models.Member, error) {
	m, err := requireMember(g, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != models.MemberRoleOwner {
		return nil, ErrNotOwner
	}
	return m, nil
}

func requireForming(g *models.Group) error {
	if g.Status != models.GroupStatusForming {
		return fmt.Errorf("%w: status is %s", ErrGroupClosed, g.Status)
	}
	return nil
}

// refreshTotals recomputes the total and re-resolves the split against it.
// A split that no longer resolves (explicit amounts that stopped adding up)
// is kept with no obligations so placement sees it as stale.
func refreshTotals(g *models.Group, now int64) {
	total := g.RecomputeTotal()
	if g.Split == nil {
		return
	}
	obligations, err := calculator.Resolve(g.Split.Policy, total, g.Members, g.OwnerMemberID)
	if err != nil {
		g.Split.Obligations = nil
		g.Split.UpdatedAt = now
		return
	}
	g.Split.Obligations = obligations
	g.Split.CapturedTotal = total
	g.Split.UpdatedAt = now
}
