package main

import (
	"context"
	"fmt"

	"github.com/ledgerlink/ledgerlink/internal/adaptive"
	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/config"
	"github.com/ledgerlink/ledgerlink/internal/engine"
	"github.com/ledgerlink/ledgerlink/internal/service"
	"github.com/ledgerlink/ledgerlink/internal/storage"
)

// app bundles the wired services every subcommand needs.
type app struct {
	settings *config.Settings
	storage  service.Storage
	models   *adaptive.Store
	engine   *engine.MatchingEngine
	learner  *adaptive.Learner
}

// initApp loads settings, opens storage, runs migrations and loads the
// current model. Callers must Close when done.
func initApp(ctx context.Context) (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, common.NewUserError("configuration is invalid", err)
	}

	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("cannot open database at %s", settings.DatabasePath), err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	models := adaptive.NewStore(store)
	if err := models.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load adaptive model: %w", err)
	}

	eng := engine.New(store, models, settings.EngineConfig())

	return &app{
		settings: settings,
		storage:  store,
		models:   models,
		engine:   eng,
		learner:  adaptive.NewLearner(models, store, settings.LearnerConfig()),
	}, nil
}

func (a *app) Close() error {
	return a.storage.Close()
}
