package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmynk/groupcart/internal/clients"
	"github.com/mmynk/groupcart/internal/config"
	"github.com/mmynk/groupcart/internal/groupcart"
	"github.com/mmynk/groupcart/internal/storage"
	"github.com/mmynk/groupcart/internal/storage/redislock"
	"github.com/mmynk/groupcart/internal/storage/sqlite"
)

// app is built once per invocation by the root command.
type app struct {
	cfg    *config.Config
	store  *sqlite.SQLiteStore
	engine *groupcart.Engine
	json   bool

	closers []io.Closer
}

func (a *app) open(cmd *cobra.Command) error {
	a.cfg = config.Load()

	store, err := sqlite.New(a.cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	var locks storage.SlotLockStore = store
	if a.cfg.Redis.Addr != "" {
		redisLocks, err := redislock.New(cmd.Context(), a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB, a.cfg.Engine.ReapAfter)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		locks = redisLocks
		a.closers = append(a.closers, redisLocks)
	}

	a.engine = groupcart.New(groupcart.Deps{
		Groups:  store,
		Locks:   locks,
		Keys:    store,
		Catalog: clients.NewCatalogClient(a.cfg.Clients.CatalogURL, a.cfg.Clients.Timeout),
		Orders:  clients.NewOrderClient(a.cfg.Clients.OrderURL, a.cfg.Clients.Timeout),
	}, a.cfg.Engine.Options())
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// print writes v as indented JSON with --json, otherwise calls text.
func (a *app) print(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	if a.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(cmd.OutOrStdout())
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "groupcartctl",
		Short: "Group cart maintenance and inspection",
		Long: `groupcartctl talks to the group cart database directly. It reads the
same environment as the server (DB_PATH, REDIS_ADDR, ORDER_SERVICE_URL, ...).

  groupcartctl sweep          Recover groups stuck in ordering or holding lapsed locks
  groupcartctl reap           Delete old slot lock and idempotency records
  groupcartctl lock get SLOT  Show who holds a slot
  groupcartctl group get ID   Dump a group
  groupcartctl token USER     Issue an access token for local testing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&a.json, "json", false, "Output as JSON")

	withApp := func(cmd *cobra.Command) *cobra.Command {
		run := cmd.RunE
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := a.open(cmd); err != nil {
				return err
			}
			return run(cmd, args)
		}
		return cmd
	}

	lockCmd := &cobra.Command{Use: "lock", Short: "Inspect slot locks"}
	lockCmd.AddCommand(withApp(newLockGetCmd(a)))

	groupCmd := &cobra.Command{Use: "group", Short: "Inspect groups"}
	groupCmd.AddCommand(withApp(newGroupGetCmd(a)))

	root.AddCommand(
		withApp(newSweepCmd(a)),
		withApp(newReapCmd(a)),
		lockCmd,
		groupCmd,
		newTokenCmd(a),
	)
	return root
}
