// Package bootstrap assembles the engine from configuration and runs the
// HTTP service around it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/api/http"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/experience"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/tracker"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/config"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/ledgerclient"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/memory"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/postgres"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/sqlite"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/sse"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/migrations"
)

// Runtime is an assembled engine plus the resources it holds.
type Runtime struct {
	Engine *experience.Engine
	Hub    *sse.Hub

	closers []func()
}

// Close releases the store and notification resources.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// Open builds the engine on the configured store.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{}
	accounts, hist, err := openStore(ctx, cfg, logger, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Hub = sse.NewHub(logger)
	rt.closers = append(rt.closers, rt.Hub.Stop)

	deps := experience.Deps{
		Catalog:    cat,
		Accounts:   accounts,
		History:    hist,
		Notifier:   rt.Hub,
		Policy:     policyFor(cfg),
		SigningKey: cfg.HistorySigningKey,
		Logger:     logger,
	}
	if cfg.LedgerSimulated {
		deps.LedgerClient = ledgerclient.NewSimulated(ledgerclient.Options{
			Latency:     cfg.LedgerLatency,
			FailureRate: cfg.LedgerFailureRate,
		}, logger)
	}
	rt.Engine = experience.New(deps)

	logger.Info().
		Str("store", cfg.StoreDriver).
		Bool("autoResolve", cfg.TxAutoResolve).
		Bool("simulatedLedger", cfg.LedgerSimulated).
		Int("demos", len(cat.Demos())).
		Msg("engine ready")
	return rt, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func policyFor(cfg *config.Config) tracker.CompletionPolicy {
	if cfg.TxAutoResolve {
		return tracker.OptimisticPolicy{Delay: cfg.TxAutoResolveDelay}
	}
	return tracker.ManualPolicy{}
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger, rt *Runtime) (account.Repository, history.Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, func() { _ = store.Close() })
		return store.Accounts(), store.History(), nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("db error: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, nil, fmt.Errorf("migration error: %w", err)
		}
		return postgres.NewAccountRepository(pool), postgres.NewHistoryRepository(pool), nil
	default:
		return memory.NewAccountRepository(), memory.NewHistoryRepository(), nil
	}
}

// Serve runs the HTTP server and the idle session sweeper until ctx ends.
func Serve(ctx context.Context, rt *Runtime, cfg *config.Config, logger zerolog.Logger) error {
	apiServer := httpapi.NewServer(rt.Engine, rt.Hub, logger)
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// SSE streams end when the hub closes their channels.
		rt.Hub.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.SessionIdleTTL > 0 {
		g.Go(func() error {
			sweepIdle(gctx, rt.Engine, cfg.SessionIdleTTL, logger)
			return nil
		})
	}
	return g.Wait()
}

func sweepIdle(ctx context.Context, engine *experience.Engine, ttl time.Duration, logger zerolog.Logger) {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := engine.Sessions.EvictIdle(ttl); n > 0 {
				logger.Info().Int("evicted", n).Msg("idle sessions evicted")
			}
		}
	}
}
