package alert

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/cli/common"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/printer"
)

var AlertCmd = &cobra.Command{
	Use:     "alert",
	Aliases: []string{"alerts"},
	Short:   "Inspect and triage deployment alerts",
}

var (
	outputFormat string
	acknowledged string
)

var listCmd = &cobra.Command{
	Use:   "list <deployment-id>",
	Short: "List alerts raised for a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var ackCmd = &cobra.Command{
	Use:     "ack <alert-id>",
	Aliases: []string{"acknowledge"},
	Short:   "Acknowledge an alert",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := common.APIClient()
		if err != nil {
			return err
		}
		a, err := c.AcknowledgeAlert(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to acknowledge alert: %w", err)
		}
		common.Success(cmd, "alert %s acknowledged", a.ID)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := common.APIClient()
		if err != nil {
			return err
		}
		a, err := c.ResolveAlert(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve alert: %w", err)
		}
		common.Success(cmd, "alert %s resolved", a.ID)
		return nil
	},
}

func init() {
	common.AddOutputFlag(listCmd, &outputFormat)
	listCmd.Flags().StringVar(&acknowledged, "acknowledged", "", "Filter by acknowledgement (true or false)")

	AlertCmd.AddCommand(listCmd, ackCmd, resolveCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	var filter *bool
	if acknowledged != "" {
		v, err := strconv.ParseBool(acknowledged)
		if err != nil {
			return fmt.Errorf("invalid --acknowledged value %q", acknowledged)
		}
		filter = &v
	}

	alerts, err := c.ListAlerts(cmd.Context(), args[0], filter)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}
	return p.Print(alerts, func(out io.Writer) error {
		return printAlerts(out, alerts, p.Wide())
	})
}

func printAlerts(out io.Writer, alerts []models.DeploymentAlert, wide bool) error {
	headers := []string{"ID", "Type", "Severity", "Value", "Threshold", "Acked", "Resolved", "Age"}
	if wide {
		headers = append(headers, "Message")
	}
	rows := make([][]any, 0, len(alerts))
	for _, a := range alerts {
		row := []any{
			a.ID,
			a.Type,
			a.Severity,
			fmt.Sprintf("%.2f", a.Value),
			fmt.Sprintf("%.2f", a.Threshold),
			printer.FormatBool(a.Acknowledged),
			printer.FormatBool(a.ResolvedAt != nil),
			printer.FormatAge(a.TriggeredAt),
		}
		if wide {
			row = append(row, a.Message)
		}
		rows = append(rows, row)
	}
	return common.Table(out, headers, rows)
}
