package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-schema/pkg/config"
	"github.com/ekaya-inc/ekaya-schema/pkg/database"
	"github.com/ekaya-inc/ekaya-schema/pkg/handlers"
	"github.com/ekaya-inc/ekaya-schema/pkg/logging"
	"github.com/ekaya-inc/ekaya-schema/pkg/middleware"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/repositories"
	"github.com/ekaya-inc/ekaya-schema/pkg/retry"
	"github.com/ekaya-inc/ekaya-schema/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.User+"@"+cfg.Database.Host+"/"+cfg.Database.Database),
		zap.String("target_type", cfg.Target.Type),
		zap.String("target", cfg.Target.Host+"/"+cfg.Target.Database),
		zap.Bool("redis", cfg.Redis.Host != ""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Env == "local" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// The engine database may still be starting next to us.
	engineDB, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:              cfg.Database.URL(),
			MaxConnections:   cfg.Database.MaxConnections,
			StatementTimeout: time.Duration(cfg.Database.StatementTimeoutMS) * time.Millisecond,
		})
	})
	if err != nil {
		return err
	}
	defer engineDB.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	target, err := datasource.NewDatasourceAdapterFactory(logger).Open(ctx, cfg.Target.Type, cfg.Target.AdapterConfig())
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	opts := services.SchemaOptionsFromConfig(&cfg.Schema)

	locker := services.NewLocalTableLocker(opts.LockWait)
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		ttl := time.Duration(cfg.Redis.LockTTLSeconds) * time.Second
		locker = services.NewRedisTableLocker(redisClient, ttl, opts.LockWait, logger)
		logger.Info("Using Redis schema locks", zap.Duration("ttl", ttl))
	}

	tables := repositories.NewTableRepository(engineDB)
	columns := repositories.NewColumnRepository(engineDB)

	registry, err := services.NewSchemaRegistry(tables, columns, opts.RegistryCacheMaxCost, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	deps := services.ChangeDeps{
		Tables:     tables,
		Columns:    columns,
		Logs:       repositories.NewMigrationLogRepository(engineDB),
		Registry:   registry,
		Locker:     locker,
		MetaTx:     engineDB,
		Datasource: target,
	}
	validator := services.NewSchemaValidationService(tables, columns, target, opts, logger)
	builder := services.NewTableBuilder(deps, validator, opts, logger)
	migrator := services.NewSchemaMigrationService(deps, opts, logger)
	data := services.NewTableDataService(registry, target, logger)
	formulas := services.NewFormulaService(registry, validator, data, logger)
	imports := services.NewImportService(registry, target, opts, logger)

	if path := cfg.Schema.ManifestPath; path != "" {
		manifest, err := models.LoadTableManifestFile(path)
		if err != nil {
			return err
		}
		if err := builder.Bootstrap(ctx, manifest); err != nil {
			return err
		}
		logger.Info("Table manifest applied", zap.String("path", path), zap.Int("tables", len(manifest)))
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, target, logger).RegisterRoutes(mux)
	handlers.NewTablesHandler(registry, validator, builder, migrator, data, formulas, logger).
		RegisterRoutes(mux, middleware.ChangeRequestLogger(logger.Named("changes")))
	handlers.NewImportHandler(imports, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-schema",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if cfg.TLSCertPath != "" {
			errCh <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// migrate applies the engine metadata migrations over a database/sql
// connection, which golang-migrate requires.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Error("Engine metadata migrations failed",
			zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
			zap.Error(err))
		return err
	}
	return nil
}
