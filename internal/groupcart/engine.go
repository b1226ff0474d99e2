// Package groupcart coordinates group carts: membership, the shared cart,
// slot locks, payment splits and the single order each group may place.
//
// Every mutation is a read-modify-write of the whole group aggregate guarded
// by its version (see update). The slot lock table is the only resource
// shared across groups and is changed with single atomic writes.
package groupcart

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/metrics"
	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

// PriceLookup returns the current unit price of a catalog item in minor units.
type PriceLookup interface {
	Price(ctx context.Context, catalogRef string) (int64, error)
}

// OrderService creates the external order. CreateOrder must be idempotent
// for a given key; LookupOrder reports whether an order exists for a key.
type OrderService interface {
	CreateOrder(ctx context.Context, key string, req models.OrderRequest) (string, error)
	LookupOrder(ctx context.Context, key string) (orderID string, found bool, err error)
}

// Options tunes retry budgets and timeouts.
type Options struct {
	CASAttempts int
	CASBackoff  time.Duration

	// OrderAttempts is how many times CreateOrder is called within one won
	// ordering gate before the group reverts.
	OrderAttempts int
	OrderBackoff  time.Duration

	InviteTTL       time.Duration
	OrderingTimeout time.Duration
	MaxLockMinutes  int

	// MaxQuantity caps the quantity of a single cart line.
	MaxQuantity int64

	// ReapAfter is how long an expired slot lock record is kept.
	ReapAfter            time.Duration
	IdempotencyRetention time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		CASAttempts:          3,
		CASBackoff:           10 * time.Millisecond,
		OrderAttempts:        2,
		OrderBackoff:         200 * time.Millisecond,
		InviteTTL:            48 * time.Hour,
		OrderingTimeout:      2 * time.Minute,
		MaxLockMinutes:       120,
		MaxQuantity:          99,
		ReapAfter:            time.Hour,
		IdempotencyRetention: 24 * time.Hour,
		Clock:                time.Now,
	}
}

// Deps are the collaborators the engine runs against. Events and Metrics
// are optional.
type Deps struct {
	Groups  storage.GroupStore
	Locks   storage.SlotLockStore
	Keys    storage.IdempotencyStore
	Catalog PriceLookup
	Orders  OrderService
	Events  events.Publisher
	Metrics *metrics.Metrics
}

// Engine implements the group cart operations.
type Engine struct {
	groups  storage.GroupStore
	locks   storage.SlotLockStore
	keys    storage.IdempotencyStore
	catalog PriceLookup
	orders  OrderService
	events  events.Publisher
	metrics *metrics.Metrics
	opts    Options
}

// Caller identifies who is acting, plus the client's idempotency key for
// the request. An empty key disables deduplication.
type Caller struct {
	UserID         string
	IdempotencyKey string
}

// New creates an Engine. Zero option values fall back to DefaultOptions.
func New(deps Deps, opts Options) *Engine {
	def := DefaultOptions()
	if opts.CASAttempts <= 0 {
		opts.CASAttempts = def.CASAttempts
	}
	if opts.CASBackoff <= 0 {
		opts.CASBackoff = def.CASBackoff
	}
	if opts.OrderAttempts <= 0 {
		opts.OrderAttempts = def.OrderAttempts
	}
	if opts.OrderBackoff < 0 {
		opts.OrderBackoff = 0
	}
	if opts.InviteTTL <= 0 {
		opts.InviteTTL = def.InviteTTL
	}
	if opts.OrderingTimeout <= 0 {
		opts.OrderingTimeout = def.OrderingTimeout
	}
	if opts.MaxLockMinutes <= 0 {
		opts.MaxLockMinutes = def.MaxLockMinutes
	}
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = def.MaxQuantity
	}
	if opts.ReapAfter <= 0 {
		opts.ReapAfter = def.ReapAfter
	}
	if opts.IdempotencyRetention <= 0 {
		opts.IdempotencyRetention = def.IdempotencyRetention
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if deps.Events == nil {
		deps.Events = events.LogPublisher{}
	}
	return &Engine{
		groups:  deps.Groups,
		locks:   deps.Locks,
		keys:    deps.Keys,
		catalog: deps.Catalog,
		orders:  deps.Orders,
		events:  deps.Events,
		metrics: deps.Metrics,
		opts:    opts,
	}
}

func (e *Engine) now() int64 {
	return e.opts.Clock().Unix()
}

// publish sends a group event. Failures are logged and never fail the
// operation that already committed.
func (e *Engine) publish(ctx context.Context, typ events.Type, g *models.Group, actor string, detail map[string]any) {
	ev := events.GroupEvent{
		Type:        typ,
		GroupID:     g.ID,
		ActorUserID: actor,
		Version:     g.Version,
		Status:      string(g.Status),
		At:          e.now(),
		Detail:      detail,
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish group event", "type", typ, "group_id", g.ID, "error", err)
	}
}
