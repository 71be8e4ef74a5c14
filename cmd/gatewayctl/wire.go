package main

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/auth"
	"github.com/inaiurai/gateway/internal/config"
	"github.com/inaiurai/gateway/internal/database"
	"github.com/inaiurai/gateway/internal/ledger"
	"github.com/inaiurai/gateway/internal/logging"
	"github.com/inaiurai/gateway/internal/models"
	"github.com/inaiurai/gateway/internal/registry"
	"github.com/inaiurai/gateway/internal/repository"
)

type creditAdjuster interface {
	Adjust(ctx context.Context, userID uuid.UUID, amount int, mode string, adminID *uuid.UUID) (int, error)
}

type accountLister interface {
	List(ctx context.Context, limit int) ([]*models.Account, error)
}

type providerAdmin interface {
	List(ctx context.Context) ([]*models.ProviderConfiguration, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.ProviderConfiguration, error)
}

type app struct {
	tokens auth.Service

	// connect opens the database and fills the store-backed fields. It is
	// nil once connected, or when the fields were supplied directly.
	connect func(ctx context.Context) error
	close   func()

	ledger    creditAdjuster
	accounts  accountLister
	providers providerAdmin
	migrate   func(ctx context.Context) error
}

func (a *app) ensureDB(ctx context.Context) error {
	if a.connect == nil {
		return nil
	}
	if err := a.connect(ctx); err != nil {
		return err
	}
	a.connect = nil
	return nil
}

func wireApp() (*app, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	logger := logging.Init(cfg.LogLevel)

	a := &app{tokens: auth.NewService(cfg.JWTSecret)}
	a.connect = func(ctx context.Context) error {
		pool, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.close = pool.Close
		a.ledger = ledger.NewService(ledger.NewRepository(pool), cfg.InitialCredits)
		a.accounts = repository.NewAccountRepo(pool)
		a.providers = registry.NewService(registry.NewRepository(pool), cfg.ProviderDefaults(), logger)
		a.migrate = func(ctx context.Context) error {
			slog.Info("applying migrations")
			return database.Migrate(ctx, pool)
		}
		return nil
	}
	return a, nil
}
