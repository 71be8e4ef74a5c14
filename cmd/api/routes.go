package main

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/inaiurai/gateway/internal/alerts"
	"github.com/inaiurai/gateway/internal/auth"
	"github.com/inaiurai/gateway/internal/config"
	"github.com/inaiurai/gateway/internal/dashboard"
	"github.com/inaiurai/gateway/internal/gateway"
	"github.com/inaiurai/gateway/internal/handlers"
	"github.com/inaiurai/gateway/internal/ledger"
	"github.com/inaiurai/gateway/internal/providers"
	"github.com/inaiurai/gateway/internal/registry"
	"github.com/inaiurai/gateway/internal/repository"
	"github.com/inaiurai/gateway/internal/retry"
	"github.com/inaiurai/gateway/internal/router"
)

// buildAPI wires services and handlers over the shared pool.
func buildAPI(
	cfg config.Config,
	pool *pgxpool.Pool,
	recorder gateway.UsageRecorder,
	rdb redis.UniversalClient,
	logger *slog.Logger,
) (http.Handler, error) {
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), cfg.InitialCredits)
	registrySvc := registry.NewService(registry.NewRepository(pool), cfg.ProviderDefaults(), logger)
	alerter := alerts.NewAlerter(rdb, "gateway:alerts", logger)

	// The per-turn timeout is applied by the gateway; the client timeout
	// only guards against a caller that forgets one.
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout + cfg.RetryDelay}

	gw := gateway.New(gateway.Deps{
		Ledger:          ledgerSvc,
		Resolver:        registrySvc,
		Adapters:        providers.NewSet(cfg.Endpoints(), httpClient),
		Usage:           recorder,
		Alerts:          alerter,
		Retry:           retry.NewPolicy(cfg.RetryDelay, providers.IsRateLimited),
		UpstreamTimeout: cfg.UpstreamTimeout,
		Logger:          logger,
	})

	providerHandler, err := registry.NewHandler(registrySvc, logger)
	if err != nil {
		return nil, err
	}

	return router.New(router.Handlers{
		Chat: &handlers.ChatHandler{Gateway: gw, Logger: logger},
		Dashboard: dashboard.NewHandler(
			ledgerSvc,
			repository.NewAccountRepo(pool),
			repository.NewCreditRepo(pool),
			repository.NewUsageRepo(pool),
			logger,
		),
		Providers: providerHandler,
		Tokens:    auth.NewService(cfg.JWTSecret),
	}), nil
}
