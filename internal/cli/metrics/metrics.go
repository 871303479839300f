package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/cli/common"
	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/printer"
)

var MetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Push and query deployment metrics samples",
}

var (
	outputFormat string
	sample       v0.MetricsSampleRequest
	drift        struct {
		input, output, performance float64
	}
	queryOpts struct {
		since       time.Duration
		granularity string
	}
)

var pushCmd = &cobra.Command{
	Use:   "push <deployment-id>",
	Short: "Record a metrics sample for a deployment",
	Long: `Record one metrics sample. Drift scores are only sent when their flag is
set explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

var queryCmd = &cobra.Command{
	Use:   "query <deployment-id>",
	Short: "Show metrics samples of a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	pushCmd.Flags().Float64Var(&sample.Availability, "availability", 100, "Availability percentage")
	pushCmd.Flags().Float64Var(&sample.LatencyP95Ms, "p95", 0, "95th percentile latency in milliseconds")
	pushCmd.Flags().Float64Var(&sample.LatencyP99Ms, "p99", 0, "99th percentile latency in milliseconds")
	pushCmd.Flags().Float64Var(&sample.ErrorRate, "error-rate", 0, "Error rate percentage")
	pushCmd.Flags().Int64Var(&sample.RequestCount, "requests", 0, "Requests served in the sample window")
	pushCmd.Flags().Float64Var(&drift.input, "input-drift", 0, "Input drift score")
	pushCmd.Flags().Float64Var(&drift.output, "output-drift", 0, "Output drift score")
	pushCmd.Flags().Float64Var(&drift.performance, "performance-drift", 0, "Performance drift score")

	queryCmd.Flags().DurationVar(&queryOpts.since, "since", time.Hour, "How far back to query")
	queryCmd.Flags().StringVar(&queryOpts.granularity, "granularity", "", "Aggregate into buckets (minute, hour, day)")

	common.AddOutputFlag(pushCmd, &outputFormat)
	common.AddOutputFlag(queryCmd, &outputFormat)
	MetricsCmd.AddCommand(pushCmd, queryCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	req := sample
	if cmd.Flags().Changed("input-drift") {
		req.InputDrift = &drift.input
	}
	if cmd.Flags().Changed("output-drift") {
		req.OutputDrift = &drift.output
	}
	if cmd.Flags().Changed("performance-drift") {
		req.PerformanceDrift = &drift.performance
	}

	m, err := c.RecordMetrics(cmd.Context(), args[0], &req)
	if err != nil {
		return fmt.Errorf("failed to record metrics: %w", err)
	}
	return p.Print(m, func(out io.Writer) error {
		common.Success(cmd, "sample %s recorded for deployment %s", m.ID, m.DeploymentID)
		return nil
	})
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	granularity := models.Granularity(queryOpts.granularity)
	if granularity != "" && granularity.Duration() == 0 {
		return fmt.Errorf("invalid granularity %q", queryOpts.granularity)
	}
	to := time.Now().UTC()
	samples, err := c.QueryMetrics(cmd.Context(), args[0], to.Add(-queryOpts.since), to, granularity)
	if err != nil {
		return fmt.Errorf("failed to query metrics: %w", err)
	}
	return p.Print(samples, func(out io.Writer) error {
		return printSamples(out, samples, p.Wide())
	})
}

func printSamples(out io.Writer, samples []models.DeploymentMetrics, wide bool) error {
	headers := []string{"Timestamp", "Availability", "P95 (ms)", "P99 (ms)", "Error Rate", "Requests"}
	if wide {
		headers = append(headers, "Input Drift", "Output Drift", "Perf Drift")
	}
	rows := make([][]any, 0, len(samples))
	for _, m := range samples {
		row := []any{
			printer.FormatTimestamp(m.Timestamp),
			fmt.Sprintf("%.2f%%", m.Availability),
			fmt.Sprintf("%.1f", m.LatencyP95Ms),
			fmt.Sprintf("%.1f", m.LatencyP99Ms),
			fmt.Sprintf("%.2f%%", m.ErrorRate),
			m.RequestCount,
		}
		if wide {
			row = append(row, formatScore(m.InputDrift), formatScore(m.OutputDrift), formatScore(m.PerformanceDrift))
		}
		rows = append(rows, row)
	}
	return common.Table(out, headers, rows)
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}
