package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-sync/internal/attendance"
	"github.com/kozaktomas/face-sync/internal/config"
	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/database/mariadb"
	"github.com/kozaktomas/face-sync/internal/database/memory"
	"github.com/kozaktomas/face-sync/internal/database/postgres"
	"github.com/kozaktomas/face-sync/internal/roster"
	"github.com/sirupsen/logrus"
)

// engine is a running attendance service together with the backend it owns.
type engine struct {
	service *attendance.Service
	backend *database.Backend
	// fileRoster is set when the roster is read from a YAML file.
	fileRoster *roster.FileRoster
}

func (e *engine) Close() error {
	return e.backend.Close()
}

// openPostgres connects to the configured PostgreSQL database and applies
// pending migrations.
func openPostgres(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*postgres.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, applied, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	for _, name := range applied {
		logger.WithField("migration", name).Info("migration applied")
	}
	return pool, nil
}

// openBackend builds the stores described by cfg. Without DATABASE_URL the
// templates and sessions live in memory.
func openBackend(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*database.Backend, *roster.FileRoster, error) {
	var backend *database.Backend
	if cfg.Database.URL != "" {
		pool, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		backend = pool.Backend(cfg.Roster.Source == config.RosterPostgres)
		logger.Info("using PostgreSQL backend")
	} else {
		backend = &database.Backend{
			Templates: memory.NewTemplateStore(),
			Sessions:  memory.NewSessionStore(),
		}
		logger.Warn("DATABASE_URL not set, templates and sessions are kept in memory")
	}

	var fileRoster *roster.FileRoster
	switch cfg.Roster.Source {
	case config.RosterPostgres:
		// Set by pool.Backend.
	case config.RosterMariaDB:
		pool, err := mariadb.NewPool(cfg.Roster.DatabaseURL)
		if err != nil {
			backend.Close()
			return nil, nil, err
		}
		backend.Roster = mariadb.NewRoster(pool)
		backend.OnClose(pool.Close)
	case config.RosterFile:
		r, err := roster.Open(cfg.Roster.File, logger)
		if err != nil {
			backend.Close()
			return nil, nil, err
		}
		backend.Roster = r
		fileRoster = r
	case config.RosterMemory:
		backend.Roster = memory.NewRoster(nil)
	}
	logger.WithField("source", cfg.Roster.Source).Info("roster configured")

	return backend, fileRoster, nil
}

func serviceOptions(cfg *config.Config) attendance.Options {
	return attendance.Options{
		Dim:         cfg.Matching.Dim,
		Components:  cfg.Matching.Components,
		Threshold:   cfg.Matching.Threshold,
		Strategy:    attendance.Strategy(cfg.Matching.Strategy),
		Shortlist:   cfg.Matching.Shortlist,
		IndexPath:   cfg.Matching.IndexPath,
		MaxAttempts: cfg.Sessions.MaxAttempts,
		LockTimeout: cfg.Sessions.LockTimeout,
	}
}

// openEngine opens the backend and starts the attendance service on it with
// the template catalog loaded.
func openEngine(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*engine, error) {
	backend, fileRoster, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := attendance.NewService(backend, serviceOptions(cfg), logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to create attendance service: %w", err)
	}
	if err := svc.Reload(ctx); err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return &engine{service: svc, backend: backend, fileRoster: fileRoster}, nil
}

// requireDatabase rejects commands whose effect would be lost with the
// in-memory stores.
func requireDatabase(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	return nil
}
