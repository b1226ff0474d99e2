package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/groupcart/internal/auth"
	"github.com/mmynk/groupcart/internal/config"
	"github.com/mmynk/groupcart/internal/storage"
)

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile stuck ordering groups and expire lapsed slot locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.engine.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return a.print(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "reconciled %d, reverted %d, expired %d, failed %d\n",
					res.Reconciled, res.Reverted, res.Expired, res.Failed)
			})
		},
	}
}

func newReapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Delete expired slot lock records and old idempotency keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.engine.Reap(cmd.Context())
			if err != nil {
				return fmt.Errorf("reap: %w", err)
			}
			return a.print(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "reaped %d locks, %d idempotency keys\n", res.Locks, res.Keys)
			})
		},
	}
}

func newLockGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get SLOT",
		Short: "Show the live lock on a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := a.engine.GetSlotLock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, lock, func(w io.Writer) {
				if lock == nil {
					fmt.Fprintf(w, "slot %s is free\n", args[0])
					return
				}
				fmt.Fprintf(w, "slot %s held by group %s until %s\n",
					lock.SlotID, lock.GroupID, time.Unix(lock.LockedUntil, 0).Format(time.RFC3339))
			})
		},
	}
}

func newGroupGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a group with its members, cart and split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.store.GetGroup(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("group %s not found", args[0])
			}
			if err != nil {
				return err
			}
			return a.print(cmd, g, func(w io.Writer) {
				fmt.Fprintf(w, "%s %q status=%s version=%d total=%d\n", g.ID, g.Name, g.Status, g.Version, g.Total)
				if g.SlotID != "" {
					fmt.Fprintf(w, "  slot %s until %s\n", g.SlotID, time.Unix(g.SlotLockedUntil, 0).Format(time.RFC3339))
				}
				for _, m := range g.Members {
					fmt.Fprintf(w, "  member %s user=%s role=%s\n", m.ID, m.UserID, m.Role)
				}
				for _, it := range g.Items {
					fmt.Fprintf(w, "  item %s %s x%d @%d by %s\n", it.ID, it.CatalogRef, it.Quantity, it.PriceAtTime, it.OwnerMemberID)
				}
				if g.Order != nil {
					fmt.Fprintf(w, "  order %s total=%d\n", g.Order.OrderID, g.Order.Total)
				}
			})
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "token USER",
		Short: "Issue a signed access token for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration).Generate(args[0], phone)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			return a.print(cmd, map[string]string{"token": token}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number to embed in the token")
	return cmd
}
