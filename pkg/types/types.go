package types

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/internal/runtime"
	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
)

// ServiceFactory is a function type that creates a service implementation.
// The base service is provided as input, and the factory should return a service
// that implements DeploymentService (and optionally additional interfaces).
type ServiceFactory func(base service.DeploymentService) service.DeploymentService

// DatabaseFactory is a function type that creates a database implementation.
// baseDB is the store selected by configuration; the factory may wrap or
// replace it.
type DatabaseFactory func(ctx context.Context, databaseURL string, baseDB database.Database, logger *zap.Logger) (database.Database, error)

// SubstrateFactory builds the workload scheduler, traffic router and health
// probe used by rollbacks. base is the substrate selected by configuration.
type SubstrateFactory func(base runtime.Substrate) runtime.Substrate

// AppOptions contains configuration for the registry app.
// All fields are optional and allow external developers to extend functionality.
type AppOptions struct {
	// DatabaseFactory is an optional function to create a database that adds new functionality.
	// If nil, the store named by MODEL_REGISTRY_STORE is used as is.
	DatabaseFactory DatabaseFactory

	// ServiceFactory is an optional function to create a service that adds new functionality.
	// The factory receives the base service and should return an extended service.
	ServiceFactory ServiceFactory

	// OnServiceCreated is an optional callback that receives the created service
	// (potentially extended via ServiceFactory).
	OnServiceCreated func(service.DeploymentService)

	// SubstrateFactory replaces the in-process runtime with a real one.
	SubstrateFactory SubstrateFactory

	// VersionRegistry resolves rollback targets from an external model
	// catalog. If nil, versions registered through the API are used.
	VersionRegistry runtime.VersionRegistry

	// HTTPServerFactory is an optional function to create a server that adds new API routes.
	HTTPServerFactory HTTPServerFactory

	// OnHTTPServerCreated is an optional callback that receives the created server
	// (potentially extended via HTTPServerFactory).
	OnHTTPServerCreated func(Server)

	// Logger overrides the logger built from MODEL_REGISTRY_LOG_LEVEL and
	// MODEL_REGISTRY_LOG_FORMAT.
	Logger *zap.Logger
}

// Server represents the HTTP server and provides access to the Huma API
// and HTTP mux for registering new routes and handlers.
//
// This interface allows external packages to extend the server functionality
// by adding new endpoints without accessing internal implementation details.
type Server interface {
	// HumaAPI returns the Huma API instance, allowing registration of new routes
	// that will appear in the OpenAPI documentation.
	HumaAPI() huma.API

	// Mux returns the HTTP ServeMux, allowing registration of custom HTTP handlers
	Mux() *http.ServeMux

	// Start begins listening for incoming HTTP requests
	Start() error

	// Shutdown gracefully shuts down the server
	Shutdown(ctx context.Context) error
}

// HTTPServerFactory is a function type that creates a server implementation that
// adds new API routes and handlers.
//
// The factory receives a Server interface and should return a Server after
// registering new routes using base.HumaAPI() or base.Mux().
type HTTPServerFactory func(base Server) Server
