package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/deposit-recon/internal/domain/deposit"
	importhandler "github.com/FACorreiaa/deposit-recon/internal/domain/import/handler"
	"github.com/FACorreiaa/deposit-recon/internal/domain/shopify"
	"github.com/FACorreiaa/deposit-recon/pkg/config"
	"github.com/FACorreiaa/deposit-recon/pkg/cron"
	"github.com/FACorreiaa/deposit-recon/pkg/db"
	"github.com/FACorreiaa/deposit-recon/pkg/observability"
	"github.com/FACorreiaa/deposit-recon/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	DB       *db.DB // nil when the database is disabled
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Repositories
	DepositRepo *deposit.PostgresRepository

	// Services
	DepositService  *deposit.Service
	ShopifyImporter *shopify.Importer
	FileStorage     storage.Storage // nil when the upload archive is disabled
	Scheduler       *cron.Scheduler // nil without archive or retention

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()

	if cfg.Database.Enabled {
		if err := deps.initDatabase(); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		deps.initRepositories()
	} else {
		logger.Warn("database disabled, settings and deposits will not be persisted")
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	if !d.Config.Observability.MetricsEnabled {
		return
	}
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		d.DB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.DepositRepo = deposit.NewPostgresRepository(d.DB.Pool)
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() error {
	// A nil *PostgresRepository must not reach the service as a non-nil
	// interface.
	var settings deposit.SettingsRepository
	var records deposit.RecordRepository
	if d.DepositRepo != nil {
		settings, records = d.DepositRepo, d.DepositRepo
	}

	d.DepositService = deposit.NewService(settings, records, d.Metrics, d.Logger)
	d.ShopifyImporter = shopify.NewImporter(d.Metrics, d.Logger)

	if d.Config.Storage.Enabled {
		fileStorage, err := storage.New(&storage.Config{
			Type:      storage.StorageTypeLocal,
			LocalPath: d.Config.Storage.LocalPath,
		})
		if err != nil {
			return fmt.Errorf("failed to init file storage: %w", err)
		}
		d.FileStorage = fileStorage

		if days := d.Config.Storage.RetentionDays; days > 0 {
			d.Scheduler = cron.NewScheduler(fileStorage, time.Duration(days)*24*time.Hour, d.Logger)
		}
	}

	d.Logger.Info("services initialized")
	return nil
}

func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.DepositService, d.ShopifyImporter, d.FileStorage, importhandler.Options{
		MaxUploadBytes:   d.Config.Server.MaxUploadBytes,
		DefaultHeaderRow: d.Config.Import.DefaultHeaderRow,
		DefaultCurrency:  d.Config.Import.DefaultCurrency,
	}, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
