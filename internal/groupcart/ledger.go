package groupcart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/models"
)

// AddCartItem adds quantity units of a catalog item on behalf of the caller.
// The unit price is looked up once, here, and stored with the line. A line
// the caller already owns for the same item and price absorbs the quantity.
func (e *Engine) AddCartItem(ctx context.Context, c Caller, groupID, catalogRef string, quantity int64) (*models.Group, error) {
	req := struct {
		GroupID    string `json:"group_id"`
		CatalogRef string `json:"catalog_ref"`
		Quantity   int64  `json:"quantity"`
	}{groupID, catalogRef, quantity}
	return runIdempotent(ctx, e, c, "add_cart_item", req, func() (*models.Group, error) {
		return e.addCartItem(ctx, c.UserID, groupID, catalogRef, quantity)
	})
}

func (e *Engine) addCartItem(ctx context.Context, userID, groupID, catalogRef string, quantity int64) (*models.Group, error) {
	catalogRef = strings.TrimSpace(catalogRef)
	if catalogRef == "" {
		return nil, fmt.Errorf("%w: catalog reference is required", ErrInvalidArgument)
	}
	if quantity <= 0 || quantity > e.opts.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidArgument, e.opts.MaxQuantity)
	}

	// Check access before calling the catalog so strangers cannot probe it.
	current, err := e.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(current, userID); err != nil {
		return nil, err
	}
	if err := requireForming(current); err != nil {
		return nil, err
	}

	price, err := e.catalog.Price(ctx, catalogRef)
	if err != nil {
		return nil, fmt.Errorf("failed to look up price for %s: %w", catalogRef, err)
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: catalog returned negative price for %s", ErrInvalidArgument, catalogRef)
	}

	g, err := e.update(ctx, "add_cart_item", groupID, func(g *models.Group, now int64) error {
		m, err := requireMember(g, userID)
		if err != nil {
			return err
		}
		if err := requireForming(g); err != nil {
			return err
		}

		merged := false
		for i := range g.Items {
			item := &g.Items[i]
			if item.OwnerMemberID == m.ID && item.CatalogRef == catalogRef && item.PriceAtTime == price {
				if item.Quantity+quantity > e.opts.MaxQuantity {
					return fmt.Errorf("%w: line would exceed %d units", ErrInvalidArgument, e.opts.MaxQuantity)
				}
				item.Quantity += quantity
				merged = true
				break
			}
		}
		if !merged {
			g.Items = append(g.Items, models.CartItem{
				ID:            uuid.NewString(),
				GroupID:       g.ID,
				OwnerMemberID: m.ID,
				CatalogRef:    catalogRef,
				Quantity:      quantity,
				PriceAtTime:   price,
				AddedAt:       now,
			})
		}
		if err := checkTotal(g); err != nil {
			return err
		}
		refreshTotals(g, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Cart item added",
		"group_id", g.ID,
		"catalog_ref", catalogRef,
		"quantity", quantity,
		"price", price,
		"total", g.Total,
	)
	e.publish(ctx, events.CartUpdated, g, userID, map[string]any{"catalog_ref": catalogRef, "quantity": quantity})
	return g, nil
}

// RemoveCartItem deletes a line. The line's owner may remove it, and so may
// the group owner.
func (e *Engine) RemoveCartItem(ctx context.Context, c Caller, groupID, itemID string) (*models.Group, error) {
	req := struct {
		GroupID string `json:"group_id"`
		ItemID  string `json:"item_id"`
	}{groupID, itemID}
	return runIdempotent(ctx, e, c, "remove_cart_item", req, func() (*models.Group, error) {
		return e.changeItem(ctx, "remove_cart_item", c.UserID, groupID, itemID, 0)
	})
}

// UpdateCartItem sets a line's quantity. Only the line's owner may change
// it. A quantity of zero removes the line.
func (e *Engine) UpdateCartItem(ctx context.Context, c Caller, groupID, itemID string, quantity int64) (*models.Group, error) {
	if quantity < 0 || quantity > e.opts.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 0 and %d", ErrInvalidArgument, e.opts.MaxQuantity)
	}
	req := struct {
		GroupID  string `json:"group_id"`
		ItemID   string `json:"item_id"`
		Quantity int64  `json:"quantity"`
	}{groupID, itemID, quantity}
	return runIdempotent(ctx, e, c, "update_cart_item", req, func() (*models.Group, error) {
		return e.changeItem(ctx, "update_cart_item", c.UserID, groupID, itemID, quantity)
	})
}

// changeItem sets an item's quantity; zero removes it. Removal is the only
// change the group owner may make to another member's line.
func (e *Engine) changeItem(ctx context.Context, op, userID, groupID, itemID string, quantity int64) (*models.Group, error) {
	g, err := e.update(ctx, op, groupID, func(g *models.Group, now int64) error {
		m, err := requireMember(g, userID)
		if err != nil {
			return err
		}
		if err := requireForming(g); err != nil {
			return err
		}
		item, ok := g.ItemByID(itemID)
		if !ok {
			return fmt.Errorf("%w: item %s not in cart", ErrInvalidArgument, itemID)
		}
		if item.OwnerMemberID != m.ID {
			if quantity > 0 || m.Role != models.MemberRoleOwner {
				return fmt.Errorf("%w: item belongs to another member", ErrNotOwner)
			}
		}

		if quantity > 0 {
			item.Quantity = quantity
		} else {
			items := g.Items[:0]
			for _, it := range g.Items {
				if it.ID != itemID {
					items = append(items, it)
				}
			}
			g.Items = items
		}
		if err := checkTotal(g); err != nil {
			return err
		}
		refreshTotals(g, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Cart item changed",
		"group_id", g.ID,
		"item_id", itemID,
		"quantity", quantity,
		"total", g.Total,
	)
	e.publish(ctx, events.CartUpdated, g, userID, map[string]any{"item_id": itemID, "quantity": quantity})
	return g, nil
}

// checkTotal rejects a cart whose total does not fit in int64.
func checkTotal(g *models.Group) error {
	if _, ok := g.CheckedTotal(); !ok {
		return fmt.Errorf("%w: cart total is too large", ErrInvalidArgument)
	}
	return nil
}
