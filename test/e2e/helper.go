package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/asakaida/datagraph/internal/handlers"
	"github.com/asakaida/datagraph/internal/infrastructure/config"
	"github.com/asakaida/datagraph/internal/infrastructure/database"
	"github.com/asakaida/datagraph/internal/infrastructure/metrics"
	"github.com/asakaida/datagraph/internal/repositories/sqlstore"
	"github.com/asakaida/datagraph/internal/services"
	"github.com/asakaida/datagraph/internal/services/association"
	"github.com/asakaida/datagraph/internal/services/importer"
	"github.com/asakaida/datagraph/internal/services/pagination"
	"github.com/asakaida/datagraph/internal/services/parser"
	"github.com/asakaida/datagraph/internal/services/validation"
	"github.com/asakaida/datagraph/models"
)

const bufSize = 1024 * 1024

// E2ETestServer runs the GraphQL endpoint over a migrated SQLite database and the
// gRPC health service over an in-memory listener
type E2ETestServer struct {
	HTTP         *httptest.Server
	Client       *resty.Client
	HealthClient healthpb.HealthClient
	Health       *health.Server
	Server       *grpc.Server
	Conn         *grpc.ClientConn
	DB           *database.Database
	Listener     *bufconn.Listener
	Importer     *importer.Importer
	Collector    *metrics.Collector
	Exporter     *metrics.PrometheusExporter
}

// GraphQLError is one entry of a response's errors
type GraphQLError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions"`
}

// GraphQLResponse is a decoded GraphQL response
type GraphQLResponse struct {
	Data   map[string]any `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// Codes returns the error class codes of the response
func (r *GraphQLResponse) Codes() []string {
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		code, _ := e.Extensions["code"].(string)
		codes = append(codes, code)
	}
	return codes
}

// SetupE2ETest sets up an E2E test environment. recordLimit is the per-request
// record budget, 0 for none.
func SetupE2ETest(t *testing.T, recordLimit int) *E2ETestServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := database.Open(&config.DatabaseConfig{
		Dialect: config.DialectSQLite,
		Path:    filepath.Join(t.TempDir(), "e2e.db"),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// Run migrations (use absolute path)
	projectRoot, err := findProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}
	if err := db.RunMigrations(filepath.Join(projectRoot, "internal/infrastructure/database/migrations")); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	schema, _, err := parser.LoadSchema(models.FS, ".")
	if err != nil {
		t.Fatalf("failed to load models: %v", err)
	}

	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporterWithRegistry(collector, prometheus.NewRegistry())

	registry := sqlstore.NewRegistry(db.DB, db.Dialect, schema, sqlstore.WithObserver(exporter))
	validator := validation.NewSchemaValidator(logger)
	pages := pagination.NewEngine(schema, registry, validator, logger)
	assoc := association.NewEngine(schema, registry, logger, association.WithObserver(exporter))
	imp := importer.New(schema, registry, validator, importer.NewLogNotifier(logger), logger)
	svc := services.NewEntityService(schema, registry, pages, assoc, validator, nil, imp, logger)

	gqlSchema, err := handlers.NewSchemaBuilder(schema, svc, logger).Build()
	if err != nil {
		t.Fatalf("failed to build GraphQL schema: %v", err)
	}
	gql := handlers.NewGraphQLHandler(gqlSchema, schema, logger,
		handlers.WithRecordLimit(recordLimit),
		handlers.WithLoader(registry),
		handlers.WithOperationObserver(exporter),
	)

	e := echo.New()
	e.Use(metrics.EchoMiddleware(collector, exporter))
	gql.Register(e)
	httpServer := httptest.NewServer(e)

	// Create in-memory gRPC health server with bufconn
	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor(collector, exporter)),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor(collector, exporter)),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("datagraph.GraphQL", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	bufDialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient(
		"passthrough://bufconn",
		grpc.WithContextDialer(bufDialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to create client connection: %v", err)
	}

	return &E2ETestServer{
		HTTP:         httpServer,
		Client:       resty.New().SetBaseURL(httpServer.URL).SetTimeout(10 * time.Second),
		HealthClient: healthpb.NewHealthClient(conn),
		Health:       healthServer,
		Server:       server,
		Conn:         conn,
		DB:           db,
		Listener:     listener,
		Importer:     imp,
		Collector:    collector,
		Exporter:     exporter,
	}
}

// Teardown cleans up the E2E test environment
func (e *E2ETestServer) Teardown(t *testing.T) {
	t.Helper()

	if e.Importer != nil {
		e.Importer.Wait()
	}
	if e.HTTP != nil {
		e.HTTP.Close()
	}
	if e.Conn != nil {
		e.Conn.Close()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
	if e.Listener != nil {
		e.Listener.Close()
	}
	if e.DB != nil {
		e.DB.Close()
	}
}

// Query posts a GraphQL document and decodes the response
func (e *E2ETestServer) Query(t *testing.T, query string, variables map[string]any) *GraphQLResponse {
	t.Helper()

	out := &GraphQLResponse{}
	resp, err := e.Client.R().
		SetBody(handlers.Request{Query: query, Variables: variables}).
		SetResult(out).
		Post("/graphql")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode(), resp.String())
	}
	return out
}

// MustQuery posts a GraphQL document and fails the test on any error in the response
func (e *E2ETestServer) MustQuery(t *testing.T, query string, variables map[string]any) map[string]any {
	t.Helper()

	out := e.Query(t, query, variables)
	if len(out.Errors) > 0 {
		t.Fatalf("query %q returned errors: %+v", query, out.Errors)
	}
	return out.Data
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// ids extracts the id of every record of a list field
func ids(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		rec, _ := item.(map[string]any)
		id, _ := rec["id"].(string)
		out = append(out, id)
	}
	return out
}
