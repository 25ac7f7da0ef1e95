package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/handlers"
	"github.com/asakaida/datagraph/internal/infrastructure/config"
	"github.com/asakaida/datagraph/internal/infrastructure/database"
	"github.com/asakaida/datagraph/internal/infrastructure/logging"
	"github.com/asakaida/datagraph/internal/infrastructure/metrics"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/repositories/memstore"
	"github.com/asakaida/datagraph/internal/repositories/sqlstore"
	"github.com/asakaida/datagraph/internal/services"
	"github.com/asakaida/datagraph/internal/services/association"
	"github.com/asakaida/datagraph/internal/services/authorization"
	"github.com/asakaida/datagraph/internal/services/importer"
	"github.com/asakaida/datagraph/internal/services/loader"
	"github.com/asakaida/datagraph/internal/services/pagination"
	"github.com/asakaida/datagraph/internal/services/parser"
	"github.com/asakaida/datagraph/internal/services/validation"
	"github.com/asakaida/datagraph/models"
	"github.com/asakaida/datagraph/pkg/cache/memorycache"
)

const (
	defaultEnv = "dev"

	// healthService is the gRPC health service name of the GraphQL endpoint
	healthService = "datagraph.GraphQL"

	metricsUpdateInterval = 10 * time.Second
)

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	// Initialize configuration
	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	schema, defs, err := loadModels(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	logger.Info("models loaded", zap.Int("entity_types", len(schema.Entities())), zap.String("dir", cfg.Models.Dir))

	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector)

	// Connect to database when a model is stored in SQL
	var db *database.Database
	if needsDatabase(defs) {
		db, err = database.Open(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		logger.Info("connected to database",
			zap.String("dialect", string(db.Dialect)),
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Database))

		if db.Dialect == sqlstore.SQLite {
			if err := sqlstore.EnsureSchema(context.Background(), db.DB, db.Dialect, schema); err != nil {
				return err
			}
		}
	}

	registry := buildRegistry(schema, defs, db, logger, exporter)

	// Initialize services
	validator := validation.NewSchemaValidator(logger)
	pages := pagination.NewEngine(schema, registry, validator, logger)
	assoc := association.NewEngine(schema, registry, logger,
		association.WithConcurrency(cfg.Limits.Concurrency),
		association.WithObserver(exporter),
	)

	var notifier importer.Notifier = importer.NewLogNotifier(logger)
	if cfg.Email.Enabled() {
		notifier = importer.NewMailgunNotifier(cfg.Email.MailgunDomain, cfg.Email.MailgunAPIKey, cfg.Email.From, logger)
	}
	imp := importer.New(schema, registry, validator, notifier, logger)

	authorizer, err := newAuthorizer(cfg, collector, exporter, logger)
	if err != nil {
		return err
	}

	svc := services.NewEntityService(schema, registry, pages, assoc, validator, authorizer, imp, logger)
	svc.SetConcurrency(cfg.Limits.Concurrency)

	gqlSchema, err := handlers.NewSchemaBuilder(schema, svc, logger).Build()
	if err != nil {
		return fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	gql := handlers.NewGraphQLHandler(gqlSchema, schema, logger,
		handlers.WithRecordLimit(cfg.Limits.MaxRecords),
		handlers.WithLoader(registry,
			loader.WithWait(cfg.Limits.LoaderWait),
			loader.WithMaxBatch(cfg.Limits.LoaderMaxBatch),
		),
		handlers.WithOperationObserver(exporter),
	)

	// GraphQL HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(metrics.EchoMiddleware(collector, exporter))
	gql.Register(e)
	e.GET("/health", func(c echo.Context) error {
		if db != nil {
			if err := db.HealthCheck(); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC health server
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor(collector, exporter)),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor(collector, exporter)),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	// Register reflection service (for grpcurl, etc.)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	serverErrors := make(chan error, 3)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("GraphQL server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	go func() {
		logger.Info("gRPC health server listening", zap.String("addr", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go updateMetrics(ctx, exporter)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		logger.Info("initiating graceful shutdown")
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}

	// Channel to notify when graceful stop completes
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing gRPC stop")
		grpcServer.Stop()
	}

	// Let running CSV imports report their result
	imp.Wait()

	logger.Info("shutdown complete")
	return nil
}

// loadModels reads the model definitions of dir, or the embedded defaults when dir is empty
func loadModels(dir string) (*entities.Schema, []*parser.Definition, error) {
	var fsys fs.FS = models.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	return parser.LoadSchema(fsys, ".")
}

func needsDatabase(defs []*parser.Definition) bool {
	for _, d := range defs {
		if d.StorageType != "memory" {
			return true
		}
	}
	return false
}

// buildRegistry picks the storage of every entity type by its storageType
func buildRegistry(schema *entities.Schema, defs []*parser.Definition, db *database.Database, logger *zap.Logger, observer sqlstore.QueryObserver) repositories.StaticRegistry {
	reg := make(repositories.StaticRegistry, len(defs))
	for _, d := range defs {
		def := schema.GetEntity(d.Model)
		if d.StorageType == "memory" {
			reg[def.Name] = memstore.New(def)
			continue
		}
		reg[def.Name] = sqlstore.New(db.DB, db.Dialect, def,
			sqlstore.WithLogger(logger.Named("sqlstore")),
			sqlstore.WithObserver(observer),
		)
	}
	return reg
}

func newAuthorizer(cfg *config.Config, collector *metrics.Collector, exporter *metrics.PrometheusExporter, logger *zap.Logger) (authorization.Authorizer, error) {
	if !cfg.Auth.RequireSignIn {
		logger.Warn("sign-in is not required; every operation is allowed")
		return authorization.AllowAll{}, nil
	}

	rules, err := authorization.LoadRules(cfg.Auth.ACLRulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ACL rules: %w", err)
	}

	opts := []authorization.Option{
		authorization.WithLogger(logger),
		authorization.WithCacheObserver(exporter),
	}
	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
		decisions := memorycache.New[bool](&memorycache.Config{
			MaxEntries: cfg.Cache.MaxEntries,
			DefaultTTL: ttl,
		})
		collector.SetCache(decisions)
		opts = append(opts, authorization.WithCache(decisions, ttl))
	}
	return authorization.NewJWTAuthorizer([]byte(cfg.Auth.JWTSecret), rules, opts...), nil
}

func updateMetrics(ctx context.Context, exporter *metrics.PrometheusExporter) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exporter.Update()
		}
	}
}
