package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/registry"
	"github.com/agentregistry-dev/modelregistry/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "registry-api",
	Short: "Model deployment registry API server",
	Long: `registry-api serves the deployment store, rollback orchestrator and
SLO/drift monitor over HTTP. It is configured with MODEL_REGISTRY_*
environment variables (see .env.example).`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return registry.App(cmd.Context())
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
