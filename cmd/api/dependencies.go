package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
	importhandler "github.com/FACorreiaa/statement-import/internal/domain/import/handler"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	importrepo "github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"

	"github.com/FACorreiaa/statement-import/pkg/config"
	"github.com/FACorreiaa/statement-import/pkg/cron"
	"github.com/FACorreiaa/statement-import/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *prometheus.Registry

	// Repositories
	Store     importrepo.Store
	Overrides *normalizer.OverrideStore

	// Services
	BankConfigs   *bankconfig.Set
	ImportService *importservice.ImportService
	Scheduler     *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: prometheus.NewRegistry(),
	}

	// Initialize database
	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// Initialize handlers
	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations. With
// the database disabled the service keeps transactions in memory.
func (d *Dependencies) initDatabase() error {
	if !d.Config.Database.Enabled {
		d.Logger.Warn("database disabled, using the in-memory transaction store")
		return nil
	}
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
		Migrations:      importrepo.Migrations,
		MigrationsDir:   importrepo.MigrationsDir,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	if d.DB == nil {
		d.Store = importrepo.NewMemoryStore()
	} else {
		d.Store = importrepo.NewPostgresStore(d.DB.Pool)
		d.Overrides = normalizer.NewOverrideStore(d.DB.Pool)
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	configs, err := bankconfig.LoadSet(d.Config.Import.BankConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load bank configs: %w", err)
	}
	d.BankConfigs = configs

	dc := d.Config.Dedup
	engine := dedup.NewEngine().
		WithWindow(dc.WindowDays).
		WithAmountTolerance(decimal.NewFromFloat(dc.AmountTolerance)).
		WithThresholds(dc.DuplicateThreshold, dc.ReportThreshold).
		WithStrict(dc.Strict).
		WithLogger(d.Logger)

	ic := d.Config.Import
	d.ImportService = importservice.NewImportService(parser.DefaultRegistry(d.Logger), configs, engine, d.Store, d.Logger).
		WithLimits(importservice.Limits{
			MaxUploadBytes: ic.MaxUploadBytes,
			RollbackWindow: ic.RollbackWindow,
			Retention:      ic.SessionRetention,
			ParseWorkers:   ic.ParseWorkers,
			PreviewSample:  ic.PreviewSample,
		})
	if d.Overrides != nil {
		d.ImportService.WithOverrides(d.Overrides)
	}
	if d.Config.Observability.MetricsEnabled {
		d.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		d.ImportService.WithMetrics(importservice.NewMetrics(d.Metrics))
	}

	d.Scheduler = cron.NewScheduler(d.ImportService, d.Config.Cron.SweepSchedule, d.Logger)

	d.Logger.Info("services initialized",
		slog.Int("bank_configs", configs.Len()),
		slog.Bool("persistent_store", d.DB != nil))
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger).
		WithRateLimit(float64(d.Config.Server.RateLimitPerSecond), d.Config.Server.RateLimitBurst)

	d.Logger.Info("handlers initialized")
	return nil
}

// Handler assembles the HTTP routes behind CORS.
func (d *Dependencies) Handler() http.Handler {
	mux := http.NewServeMux()
	d.ImportHandler.RegisterRoutes(mux)
	if d.Config.Observability.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: d.Config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	})
	return c.Handler(mux)
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.ImportService != nil {
		d.ImportService.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
