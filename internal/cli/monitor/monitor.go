package monitor

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/cli/common"
	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/pkg/printer"
)

var MonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Control SLO and drift monitoring of deployments",
}

var (
	outputFormat string
	triggerOpts  struct {
		reason      string
		initiatedBy string
	}
)

var statusCmd = &cobra.Command{
	Use:   "status <deployment-id>",
	Short: "Show whether a deployment is being monitored",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var startCmd = &cobra.Command{
	Use:   "start <deployment-id>",
	Short: "Start monitoring an active deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop <deployment-id>",
	Short: "Stop monitoring a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <deployment-id>",
	Short: "Roll a deployment back to its last known good deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrigger,
}

func init() {
	common.AddOutputFlag(statusCmd, &outputFormat)
	common.AddOutputFlag(triggerCmd, &outputFormat)

	triggerCmd.Flags().StringVar(&triggerOpts.reason, "reason", "Manual rollback trigger", "Why the rollback is needed")
	triggerCmd.Flags().StringVar(&triggerOpts.initiatedBy, "initiated-by", os.Getenv("USER"), "Identity recorded on the rollback")

	MonitorCmd.AddCommand(statusCmd, startCmd, stopCmd, triggerCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	status, err := c.GetMonitoring(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get monitoring status: %w", err)
	}
	return p.Print(status, func(out io.Writer) error {
		return common.Table(out, []string{"Deployment", "Monitoring"},
			[][]any{{status.DeploymentID, printer.FormatBool(status.Monitoring)}})
	})
}

func runStart(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	if err := c.StartMonitoring(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}
	common.Success(cmd, "monitoring deployment %s", args[0])
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	if err := c.StopMonitoring(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to stop monitoring: %w", err)
	}
	common.Success(cmd, "stopped monitoring deployment %s", args[0])
	return nil
}

func runTrigger(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	op, err := c.TriggerRollback(cmd.Context(), args[0], &v0.TriggerRequest{
		Reason:      triggerOpts.reason,
		InitiatedBy: triggerOpts.initiatedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to trigger rollback: %w", err)
	}
	return p.Print(op, func(out io.Writer) error {
		return common.Table(out, []string{"Rollback", "Target", "Status"},
			[][]any{{op.ID, op.TargetVersionID, op.Status}})
	})
}
