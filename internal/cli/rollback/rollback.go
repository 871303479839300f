package rollback

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/cli/common"
	"github.com/agentregistry-dev/modelregistry/internal/client"
	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/printer"
)

var RollbackCmd = &cobra.Command{
	Use:     "rollback",
	Aliases: []string{"rollbacks"},
	Short:   "Roll deployments back to a previous model version",
}

var (
	outputFormat string
	runOpts      struct {
		target       string
		reason       string
		initiatedBy  string
		wait         bool
		pollInterval time.Duration
		timeout      time.Duration
	}
)

var runCmd = &cobra.Command{
	Use:   "run <deployment-id>",
	Short: "Start a rollback of a deployment",
	Long: `Start a rollback of a deployment. Without --target the most recent
rollback option (the previous active deployment in the same environment)
is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

var getCmd = &cobra.Command{
	Use:   "get <rollback-id>",
	Short: "Show a rollback operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var listCmd = &cobra.Command{
	Use:   "list <deployment-id>",
	Short: "Show the rollback history of a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <rollback-id>",
	Short: "Cancel an in-flight rollback",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var optionsCmd = &cobra.Command{
	Use:   "options <deployment-id>",
	Short: "List previous deployments a deployment can be rolled back to",
	Args:  cobra.ExactArgs(1),
	RunE:  runOptions,
}

func init() {
	runCmd.Flags().StringVar(&runOpts.target, "target", "", "Model version to roll back to")
	runCmd.Flags().StringVar(&runOpts.reason, "reason", "", "Why the rollback is needed")
	runCmd.Flags().StringVar(&runOpts.initiatedBy, "initiated-by", os.Getenv("USER"), "Identity recorded on the rollback")
	runCmd.Flags().BoolVar(&runOpts.wait, "wait", false, "Wait until the rollback completes or fails")
	runCmd.Flags().DurationVar(&runOpts.pollInterval, "poll-interval", 2*time.Second, "Polling interval used with --wait")
	runCmd.Flags().DurationVar(&runOpts.timeout, "timeout", 10*time.Minute, "Maximum time to wait with --wait")

	for _, cmd := range []*cobra.Command{runCmd, getCmd, listCmd, cancelCmd, optionsCmd} {
		common.AddOutputFlag(cmd, &outputFormat)
		RollbackCmd.AddCommand(cmd)
	}
}

func runRollback(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	deploymentID := args[0]

	target := runOpts.target
	if target == "" {
		options, err := c.GetRollbackOptions(ctx, deploymentID)
		if err != nil {
			return fmt.Errorf("failed to list rollback options: %w", err)
		}
		if len(options) == 0 {
			return fmt.Errorf("deployment %s has no previous deployment to roll back to", deploymentID)
		}
		target = options[0].VersionID
	}
	if runOpts.initiatedBy == "" {
		return fmt.Errorf("--initiated-by is required")
	}

	op, err := c.ExecuteRollback(ctx, deploymentID, &v0.RollbackRequest{
		TargetVersionID: target,
		Reason:          runOpts.reason,
		InitiatedBy:     runOpts.initiatedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to start rollback: %w", err)
	}

	if runOpts.wait {
		waitCtx, cancel := context.WithTimeout(ctx, runOpts.timeout)
		defer cancel()
		op, err = waitWithSpinner(waitCtx, c, op.ID, runOpts.pollInterval, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed waiting for rollback: %w", err)
		}
	}

	if err := p.Print(op, func(out io.Writer) error {
		return printOperations(out, []models.RollbackOperation{*op})
	}); err != nil {
		return err
	}
	if op.Status == models.RollbackStatusFailed {
		return fmt.Errorf("rollback %s failed: %s", op.ID, errorMessage(op))
	}
	return nil
}

// waitWithSpinner polls a rollback until it is terminal, spinning on w
func waitWithSpinner(ctx context.Context, c *client.Client, id string, interval time.Duration, w io.Writer) (*models.RollbackOperation, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Waiting for rollback "+id),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Finish() }()

	type result struct {
		op  *models.RollbackOperation
		err error
	}
	done := make(chan result, 1)
	go func() {
		op, err := c.WaitForRollback(ctx, id, interval)
		done <- result{op: op, err: err}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case r := <-done:
			return r.op, r.err
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	op, err := c.GetRollback(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get rollback: %w", err)
	}
	return p.Print(op, func(out io.Writer) error {
		return printOperations(out, []models.RollbackOperation{*op})
	})
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

	ops, err := c.ListRollbacks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list rollbacks: %w", err)
	}
	return p.Print(ops, func(out io.Writer) error {
		return printOperations(out, ops)
	})
}

func runCancel(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}

	cancelled, err := c.CancelRollback(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to cancel rollback: %w", err)
	}
	if !cancelled {
		return fmt.Errorf("rollback %s is not in flight", args[0])
	}
	common.Success(cmd, "rollback %s cancelled", args[0])
	return nil
}

func runOptions(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	options, err := c.GetRollbackOptions(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list rollback options: %w", err)
	}
	return p.Print(options, func(out io.Writer) error {
		rows := make([][]any, 0, len(options))
		for _, d := range options {
			rows = append(rows, []any{d.ID, d.VersionID, d.Strategy, printer.FormatTimestamp(d.DeployedAt), d.DeployedBy})
		}
		return common.Table(out, []string{"Deployment", "Version", "Strategy", "Deployed", "Deployed By"}, rows)
	})
}

func printOperations(out io.Writer, ops []models.RollbackOperation) error {
	rows := make([][]any, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []any{
			op.ID,
			op.DeploymentID,
			op.TargetVersionID,
			op.Status,
			op.InitiatedBy,
			printer.FormatAge(op.CreatedAt),
			printer.TruncateString(errorMessage(&op), 60),
		})
	}
	return common.Table(out, []string{"ID", "Deployment", "Target", "Status", "Initiated By", "Age", "Error"}, rows)
}

func errorMessage(op *models.RollbackOperation) string {
	if op.ErrorMessage == nil {
		return ""
	}
	return *op.ErrorMessage
}
