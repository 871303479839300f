package v0

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/modelregistry/internal/registry/config"
)

// HealthBody is the health check response
type HealthBody struct {
	Status        string `json:"status" example:"ok" doc:"Health status"`
	Store         string `json:"store" example:"postgres" doc:"Deployment store backend"`
	ActiveWatches int    `json:"activeWatches" doc:"Deployments currently watched by the SLO/drift monitor"`
}

// PingBody is the ping response
type PingBody struct {
	Pong bool `json:"pong" example:"true"`
}

// VersionBody carries build information
type VersionBody struct {
	Version   string `json:"version" example:"v1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123d" doc:"Git commit SHA"`
	BuildTime string `json:"build_time" example:"2025-10-14T12:00:00Z" doc:"Build timestamp"`
}

// WatchCounter reports how many deployments are being monitored
type WatchCounter interface {
	ActiveWatches() []string
}

// RegisterHealthEndpoint registers the health check endpoint
func RegisterHealthEndpoint(api huma.API, pathPrefix string, cfg *config.Config, watches WatchCounter) {
	huma.Register(api, huma.Operation{
		OperationID: "get-health" + operationSuffix(pathPrefix),
		Method:      http.MethodGet,
		Path:        pathPrefix + "/health",
		Summary:     "Health check",
		Description: "Check the health status of the API",
		Tags:        []string{"health"},
	}, func(_ context.Context, _ *struct{}) (*Response[HealthBody], error) {
		body := HealthBody{Status: "ok", Store: cfg.Store}
		if watches != nil {
			body.ActiveWatches = len(watches.ActiveWatches())
		}
		return &Response[HealthBody]{Body: body}, nil
	})
}

// RegisterPingEndpoint registers the ping endpoint
func RegisterPingEndpoint(api huma.API, pathPrefix string) {
	huma.Register(api, huma.Operation{
		OperationID: "ping" + operationSuffix(pathPrefix),
		Method:      http.MethodGet,
		Path:        pathPrefix + "/ping",
		Summary:     "Ping",
		Description: "Simple ping endpoint",
		Tags:        []string{"ping"},
	}, func(_ context.Context, _ *struct{}) (*Response[PingBody], error) {
		return &Response[PingBody]{Body: PingBody{Pong: true}}, nil
	})
}

// RegisterVersionEndpoint registers the version information endpoint
func RegisterVersionEndpoint(api huma.API, pathPrefix string, versionInfo *VersionBody) {
	huma.Register(api, huma.Operation{
		OperationID: "get-version" + operationSuffix(pathPrefix),
		Method:      http.MethodGet,
		Path:        pathPrefix + "/version",
		Summary:     "Get version information",
		Description: "Returns the version, git commit, and build time of the registry application",
		Tags:        []string{"version"},
	}, func(_ context.Context, _ *struct{}) (*Response[VersionBody], error) {
		return &Response[VersionBody]{Body: *versionInfo}, nil
	})
}

// operationSuffix keeps operation ids unique when the same endpoint is mounted under several prefixes
func operationSuffix(pathPrefix string) string {
	switch pathPrefix {
	case "/v0":
		return ""
	case "":
		return "-root"
	}
	return "-" + strings.ReplaceAll(strings.Trim(pathPrefix, "/"), "/", "-")
}
