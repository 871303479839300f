// Package common holds state shared by the rollctl subcommands
package common

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/client"
	"github.com/agentregistry-dev/modelregistry/pkg/printer"
)

var apiClient *client.Client

// SetAPIClient sets the client used by every subcommand
func SetAPIClient(c *client.Client) {
	apiClient = c
}

// APIClient returns the configured client or an error when the root
// command did not initialise one
func APIClient() (*client.Client, error) {
	if apiClient == nil {
		return nil, errors.New("API client not initialized")
	}
	return apiClient, nil
}

// AddOutputFlag registers -o/--output on cmd
func AddOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", string(printer.OutputTypeTable), "Output format (table, wide, json, yaml)")
}

// NewPrinter builds a printer for an --output value writing to cmd's stdout
func NewPrinter(cmd *cobra.Command, output string) (*printer.Printer, error) {
	outputType, err := printer.ParseOutputType(output)
	if err != nil {
		return nil, err
	}
	p := printer.New(outputType, outputType == printer.OutputTypeWide)
	p.SetOutput(cmd.OutOrStdout())
	return p, nil
}

// Table renders headers and rows on out
func Table(out io.Writer, headers []string, rows [][]any) error {
	t := printer.NewTablePrinter(out)
	t.SetHeaders(headers...)
	for _, row := range rows {
		t.AddRow(row...)
	}
	return t.Render()
}

// Success prints a confirmation line on cmd's stdout
func Success(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ "+format+"\n", args...)
}
