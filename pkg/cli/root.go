package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/cli"
	"github.com/agentregistry-dev/modelregistry/internal/cli/alert"
	"github.com/agentregistry-dev/modelregistry/internal/cli/common"
	"github.com/agentregistry-dev/modelregistry/internal/cli/deployment"
	"github.com/agentregistry-dev/modelregistry/internal/cli/metrics"
	"github.com/agentregistry-dev/modelregistry/internal/cli/monitor"
	"github.com/agentregistry-dev/modelregistry/internal/cli/rollback"
	"github.com/agentregistry-dev/modelregistry/internal/client"
)

var registryURL string
var registryToken string

var rootCmd = &cobra.Command{
	Use:   "rollctl",
	Short: "Model deployment rollout and rollback CLI",
	Long: `rollctl drives the model deployment registry: create deployments, shift
traffic, push metrics, watch SLOs and roll back to a known good version.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		baseURL, token := resolveRegistryTarget()
		APIClient = client.NewClient(baseURL, token)
		common.SetAPIClient(APIClient)
		return nil
	},
}

// APIClient is the shared API client used by CLI commands
var APIClient *client.Client

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	envBaseURL := os.Getenv(client.EnvBaseURL)
	envToken := os.Getenv(client.EnvToken)
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry-url", envBaseURL, "Registry API base URL (overrides ROLLCTL_API_BASE_URL; default "+client.DefaultBaseURL+")")
	rootCmd.PersistentFlags().StringVar(&registryToken, "registry-token", envToken, "Registry bearer token (overrides ROLLCTL_API_TOKEN)")

	rootCmd.AddCommand(deployment.DeploymentCmd)
	rootCmd.AddCommand(rollback.RollbackCmd)
	rootCmd.AddCommand(monitor.MonitorCmd)
	rootCmd.AddCommand(alert.AlertCmd)
	rootCmd.AddCommand(metrics.MetricsCmd)
	rootCmd.AddCommand(cli.VersionCmd)
}

func Root() *cobra.Command {
	return rootCmd
}

func resolveRegistryTarget() (string, string) {
	base := strings.TrimSpace(registryURL)
	if base == "" {
		base = strings.TrimSpace(os.Getenv(client.EnvBaseURL))
	}
	base = normalizeBaseURL(base)

	token := registryToken
	if token == "" {
		token = os.Getenv(client.EnvToken)
	}

	return base, token
}

// normalizeBaseURL adds a scheme when missing and the /v0 prefix when the
// URL names only a host
func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return client.DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	rest := trimmed[strings.Index(trimmed, "://")+3:]
	if !strings.Contains(rest, "/") {
		trimmed += "/v0"
	}
	return trimmed
}
