package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/groupcart/internal/auth"
	"github.com/mmynk/groupcart/internal/clients"
	"github.com/mmynk/groupcart/internal/config"
	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/groupcart"
	"github.com/mmynk/groupcart/internal/metrics"
	"github.com/mmynk/groupcart/internal/middleware"
	"github.com/mmynk/groupcart/internal/service"
	"github.com/mmynk/groupcart/internal/storage"
	"github.com/mmynk/groupcart/internal/storage/redislock"
	"github.com/mmynk/groupcart/internal/storage/sqlite"
	"github.com/mmynk/groupcart/pkg/logging"
)

func main() {
	logging.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load()); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DB.Path)

	var (
		locks     storage.SlotLockStore = store
		publisher events.Publisher      = events.LogPublisher{}
	)
	if cfg.Redis.Addr != "" {
		redisLocks, err := redislock.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Engine.ReapAfter)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisLocks.Close()
		locks = redisLocks
		publisher = events.NewRedisPublisher(redisLocks.Client(), cfg.Redis.EventsChannel)
		slog.Info("Redis slot locks enabled", "addr", cfg.Redis.Addr, "events_channel", cfg.Redis.EventsChannel)
	}

	m := metrics.New()
	engine := groupcart.New(groupcart.Deps{
		Groups:  store,
		Locks:   locks,
		Keys:    store,
		Catalog: clients.NewCatalogClient(cfg.Clients.CatalogURL, cfg.Clients.Timeout),
		Orders:  clients.NewOrderClient(cfg.Clients.OrderURL, cfg.Clients.Timeout),
		Events:  publisher,
		Metrics: m,
	}, cfg.Engine.Options())

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)

	mux := http.NewServeMux()
	path, handler := service.NewGroupCartServiceHandler(
		service.NewGroupCartService(engine),
		connect.WithInterceptors(middleware.RequireAuth(jwtManager), middleware.LoggingInterceptor()),
	)
	mux.Handle(path, handler)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "Health check failed", "error", err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// h2c for HTTP/2 without TLS (required for Connect)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h2c.NewHandler(middleware.HTTPLogging(middleware.CORS(mux)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Connect server starting", "address", server.Addr, "url", fmt.Sprintf("http://localhost%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Engine.BackgroundJobs {
		g.Go(func() error {
			every(ctx, cfg.Engine.SweepInterval, func() {
				// Sweep logs its own outcome.
				if _, err := engine.Sweep(ctx); err != nil {
					slog.ErrorContext(ctx, "Sweep failed", "error", err)
				}
			})
			return nil
		})
		g.Go(func() error {
			every(ctx, cfg.Engine.ReapAfter, func() {
				if _, err := engine.Reap(ctx); err != nil {
					slog.ErrorContext(ctx, "Reap failed", "error", err)
				}
			})
			return nil
		})
	}

	return g.Wait()
}

// every calls fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
