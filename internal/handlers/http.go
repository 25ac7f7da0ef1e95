package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/services/authorization"
	"github.com/asakaida/datagraph/internal/services/limits"
	"github.com/asakaida/datagraph/internal/services/loader"
	"github.com/asakaida/datagraph/internal/services/validation"
)

// HeaderRequestID carries the request id in both directions
const HeaderRequestID = "X-Request-ID"

// OperationObserver records every executed GraphQL operation
type OperationObserver interface {
	ObserveOperation(operation string, duration time.Duration, errors int)
}

// Request is a GraphQL request body
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// Response is a GraphQL response body
type Response struct {
	Data   any                        `json:"data,omitempty"`
	Errors []gqlerrors.FormattedError `json:"errors,omitempty"`
}

// GraphQLHandler serves the generated schema over HTTP. Every request gets its own
// benign error reporter, record budget and loader.
type GraphQLHandler struct {
	schema      graphql.Schema
	entities    *entities.Schema
	logger      *zap.Logger
	recordLimit int
	loaderOpts  []loader.Option
	registry    repositories.Registry
	observer    OperationObserver
}

// HandlerOption configures a GraphQLHandler
type HandlerOption func(*GraphQLHandler)

// WithRecordLimit sets the per-request record budget; 0 means unlimited
func WithRecordLimit(n int) HandlerOption {
	return func(h *GraphQLHandler) {
		h.recordLimit = n
	}
}

// WithLoader enables the per-request loader over the given registry
func WithLoader(registry repositories.Registry, opts ...loader.Option) HandlerOption {
	return func(h *GraphQLHandler) {
		h.registry = registry
		h.loaderOpts = opts
	}
}

// WithOperationObserver sets the observer of executed operations
func WithOperationObserver(o OperationObserver) HandlerOption {
	return func(h *GraphQLHandler) {
		h.observer = o
	}
}

// NewGraphQLHandler creates a new GraphQLHandler
func NewGraphQLHandler(schema graphql.Schema, model *entities.Schema, logger *zap.Logger, opts ...HandlerOption) *GraphQLHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &GraphQLHandler{
		schema:   schema,
		entities: model,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the handler on /graphql
func (h *GraphQLHandler) Register(e *echo.Echo) {
	e.POST("/graphql", h.Serve)
	e.GET("/graphql", h.Serve)
}

// Serve handles POST and GET /graphql
func (h *GraphQLHandler) Serve(c echo.Context) error {
	req, err := h.bindRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Errors: []gqlerrors.FormattedError{
			gqlerrors.NewFormattedError(err.Error()),
		}})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, Response{Errors: []gqlerrors.FormattedError{
			gqlerrors.NewFormattedError("query is required"),
		}})
	}

	requestID := c.Request().Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Response().Header().Set(HeaderRequestID, requestID)

	reporter := validation.NewReporter()
	ctx := h.requestContext(c.Request(), reporter)

	start := time.Now()
	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	elapsed := time.Since(start)

	resp := Response{Data: result.Data, Errors: result.Errors}
	for _, benign := range reporter.Errors() {
		resp.Errors = append(resp.Errors, gqlerrors.FormattedError{
			Message:    benign.Error(),
			Extensions: map[string]any{"code": "benign"},
		})
	}

	operation := req.OperationName
	if operation == "" {
		operation = "anonymous"
	}
	if h.observer != nil {
		h.observer.ObserveOperation(operation, elapsed, len(result.Errors))
	}
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("operation", operation),
		zap.Duration("duration", elapsed),
		zap.Int("errors", len(result.Errors)),
		zap.Int("benign_errors", len(resp.Errors)-len(result.Errors)),
	}
	if len(result.Errors) > 0 {
		h.logger.Info("graphql request failed", append(fields, zap.String("first_error", result.Errors[0].Message))...)
	} else {
		h.logger.Debug("graphql request", fields...)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *GraphQLHandler) bindRequest(c echo.Context) (*Request, error) {
	req := &Request{}
	if c.Request().Method == http.MethodGet {
		req.Query = c.QueryParam("query")
		req.OperationName = c.QueryParam("operationName")
		if vars := c.QueryParam("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				return nil, err
			}
		}
		return req, nil
	}
	if err := json.NewDecoder(c.Request().Body).Decode(req); err != nil {
		return nil, err
	}
	return req, nil
}

// requestContext attaches the per-request collaborators to the request context
func (h *GraphQLHandler) requestContext(r *http.Request, reporter *validation.Reporter) context.Context {
	ctx := validation.WithReporter(r.Context(), reporter)
	ctx = limits.WithBudget(ctx, limits.NewBudget(h.recordLimit))
	if h.registry != nil {
		ctx = loader.WithLoader(ctx, loader.New(h.entities, h.registry, h.loaderOpts...))
	}
	if token := bearerToken(r); token != "" {
		ctx = authorization.WithToken(ctx, token)
	}
	return ctx
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
