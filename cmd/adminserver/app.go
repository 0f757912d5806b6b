package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	adminrest "github.com/nlstn/go-adminrest"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// app is a configured service together with the resources it owns.
type app struct {
	db        *gorm.DB
	service   *adminrest.Service
	telemetry *telemetry
	logger    *slog.Logger
}

func openDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case driverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case driverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == driverSQLite {
		// sqlite serializes writers; a single connection also keeps :memory: databases shared
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// newApp opens the database, migrates the demo entities and registers them.
func newApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*app, error) {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Customer{}, &Order{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	service, err := adminrest.NewServiceWithConfig(db, adminrest.ServiceConfig{
		BasePath:        cfg.Server.BasePath,
		DefaultPageSize: cfg.Paging.DefaultSize,
		MaxPageSize:     cfg.Paging.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	if err := service.SetLogger(logger); err != nil {
		return nil, err
	}

	if cfg.Messages.File != "" {
		bundle, err := adminrest.LoadMessageBundle(cfg.Messages.File)
		if err != nil {
			return nil, err
		}
		if err := service.SetMessageSource(bundle); err != nil {
			return nil, err
		}
	}

	scopes := demoScopes()
	for _, entity := range []interface{}{&Customer{}, &Order{}} {
		if err := service.RegisterEntity(entity); err != nil {
			return nil, err
		}
	}
	for repositoryName, list := range scopes {
		for _, sc := range list {
			if err := service.RegisterScope(repositoryName, sc); err != nil {
				return nil, err
			}
		}
	}
	for _, sc := range cfg.Scopes {
		if err := service.RegisterScope(sc.Repository, adminrest.NewSpecificationScope(sc.Name,
			adminrest.QueryScope{Condition: sc.Where, Args: sc.Args})); err != nil {
			return nil, fmt.Errorf("configured scope %s/%s: %w", sc.Repository, sc.Name, err)
		}
	}

	tel, err := setupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	if err := service.SetObservability(adminrest.ObservabilityConfig{
		TracerProvider:          tel.TracerProvider(),
		MeterProvider:           tel.MeterProvider(),
		ServiceName:             cfg.Telemetry.ServiceName,
		ServiceVersion:          version,
		EnableServerTiming:      cfg.Telemetry.ServerTiming,
		EnableDetailedDBTracing: cfg.Telemetry.DetailedDBTracing,
	}); err != nil {
		return nil, errors.Join(err, tel.Shutdown(ctx))
	}

	return &app{db: db, service: service, telemetry: tel, logger: logger}, nil
}

// Close flushes telemetry and closes the database.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	errs = append(errs, a.telemetry.Shutdown(ctx))
	if sqlDB, err := a.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
