package groupcart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/groupcart/internal/calculator"
	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/models"
)

// SetPaymentSplit stores a split policy and resolves it against the live
// total. Any member may set it while the group is forming or holds a slot.
// Policies that cannot cover the total exactly are rejected.
func (e *Engine) SetPaymentSplit(ctx context.Context, c Caller, groupID string, policy models.SplitPolicy) (*models.Group, error) {
	req := struct {
		GroupID string             `json:"group_id"`
		Policy  models.SplitPolicy `json:"policy"`
	}{groupID, policy}
	return runIdempotent(ctx, e, c, "set_payment_split", req, func() (*models.Group, error) {
		return e.setPaymentSplit(ctx, c.UserID, groupID, policy)
	})
}

func (e *Engine) setPaymentSplit(ctx context.Context, userID, groupID string, policy models.SplitPolicy) (*models.Group, error) {
	g, err := e.update(ctx, "set_payment_split", groupID, func(g *models.Group, now int64) error {
		if _, err := requireMember(g, userID); err != nil {
			return err
		}
		if err := requireLockable(g); err != nil {
			return err
		}
		total := g.RecomputeTotal()
		obligations, err := calculator.Resolve(policy, total, g.Members, g.OwnerMemberID)
		if err != nil {
			return splitError(err)
		}
		g.Split = &models.PaymentSplit{
			GroupID: g.ID,
			Policy: models.SplitPolicy{
				Type:    policy.Type,
				Entries: append([]models.SplitEntry(nil), policy.Entries...),
			},
			CapturedTotal: total,
			Obligations:   obligations,
			UpdatedAt:     now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Payment split set",
		"group_id", g.ID,
		"type", g.Split.Policy.Type,
		"total", g.Split.CapturedTotal,
	)
	e.publish(ctx, events.SplitUpdated, g, userID, map[string]any{"type": string(g.Split.Policy.Type)})
	return g, nil
}

// splitError keeps ErrSplitMismatch as is and reports malformed policies as
// invalid arguments.
func splitError(err error) error {
	if errors.Is(err, calculator.ErrInvalidSplit) {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return err
}
