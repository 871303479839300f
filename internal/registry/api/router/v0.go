// Package router contains API routing logic
package router

import (
	"github.com/danielgtaylor/huma/v2"

	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/internal/registry/config"
)

// RegisterRoutes registers all API routes
// This is the single entry point for all route registration
func RegisterRoutes(
	api huma.API,
	cfg *config.Config,
	services Services,
	versionInfo *v0.VersionBody,
) {
	// Probes are also served unversioned for load balancers
	registerCommonEndpoints(api, "", cfg, services, versionInfo)
	registerV0Routes(api, "/v0", cfg, services, versionInfo)
}

// registerV0Routes registers the deployment API for a version
func registerV0Routes(
	api huma.API,
	pathPrefix string,
	cfg *config.Config,
	services Services,
	versionInfo *v0.VersionBody,
) {
	registerCommonEndpoints(api, pathPrefix, cfg, services, versionInfo)

	v0.RegisterVersionsEndpoints(api, pathPrefix, services.Deployments)
	v0.RegisterDeploymentsEndpoints(api, pathPrefix, services.Deployments, services.Monitor)
	v0.RegisterTrafficEndpoints(api, pathPrefix, services.Deployments)
	v0.RegisterMetricsEndpoints(api, pathPrefix, services.Deployments)
	v0.RegisterAlertsEndpoints(api, pathPrefix, services.Deployments)

	if services.Rollbacks != nil {
		v0.RegisterRollbacksEndpoints(api, pathPrefix, services.Rollbacks)
	}
	if services.Monitor != nil {
		v0.RegisterMonitoringEndpoints(api, pathPrefix, services.Monitor)
	}
}

// registerCommonEndpoints registers the probe endpoints
func registerCommonEndpoints(
	api huma.API,
	pathPrefix string,
	cfg *config.Config,
	services Services,
	versionInfo *v0.VersionBody,
) {
	var watches v0.WatchCounter
	if services.Monitor != nil {
		watches = services.Monitor
	}
	v0.RegisterHealthEndpoint(api, pathPrefix, cfg, watches)
	v0.RegisterPingEndpoint(api, pathPrefix)
	v0.RegisterVersionEndpoint(api, pathPrefix, versionInfo)
}
