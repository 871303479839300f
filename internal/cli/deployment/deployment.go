package deployment

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentregistry-dev/modelregistry/internal/cli/common"
	"github.com/agentregistry-dev/modelregistry/internal/client"
	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/printer"
)

var DeploymentCmd = &cobra.Command{
	Use:     "deployment",
	Aliases: []string{"deployments", "deploy"},
	Short:   "Manage model deployments",
	Long:    `Create deployments, inspect them and drive their lifecycle status.`,
}

var (
	outputFormat string
	listOpts     struct {
		environment string
		status      string
		versionID   string
		deployedBy  string
		limit       int
		offset      int
	}
	createFile     string
	createDeployer string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployments",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var getCmd = &cobra.Command{
	Use:   "get <deployment-id>",
	Short: "Show a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a deployment from a YAML or JSON file",
	Long: `Create a pending deployment. The file holds the deployment request:

  versionId: fraud-detector-v3
  environment: production
  strategy: canary
  config:
    replicas: 3
    resources: {cpu: 500m, memory: 1Gi}
    healthCheck: {path: /healthz}
  sloTargets: {availability: 99.9, errorRate: 1}`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var statusCmd = &cobra.Command{
	Use:   "status <deployment-id> <status>",
	Short: "Overwrite the status of a deployment",
	Long:  `Set the status of a deployment. Setting "active" starts SLO and drift monitoring.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runStatus,
}

var trafficCmd = &cobra.Command{
	Use:   "traffic <deployment-id> [percentage]",
	Short: "Show traffic splits, or shift traffic when a percentage is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTraffic,
}

var lastKnownGoodCmd = &cobra.Command{
	Use:   "last-known-good <deployment-id>",
	Short: "Show the deployment an automatic rollback would restore",
	Args:  cobra.ExactArgs(1),
	RunE:  runLastKnownGood,
}

func init() {
	listCmd.Flags().StringVar(&listOpts.environment, "environment", "", "Filter by environment (staging, production, canary)")
	listCmd.Flags().StringVar(&listOpts.status, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&listOpts.versionID, "version", "", "Filter by model version id")
	listCmd.Flags().StringVar(&listOpts.deployedBy, "deployed-by", "", "Filter by deployer")
	listCmd.Flags().IntVar(&listOpts.limit, "limit", 50, "Page size")
	listCmd.Flags().IntVar(&listOpts.offset, "offset", 0, "Page offset")

	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "Deployment request file, or - for stdin")
	createCmd.Flags().StringVar(&createDeployer, "deployed-by", os.Getenv("USER"), "Identity recorded as the deployer")
	_ = createCmd.MarkFlagRequired("file")

	for _, cmd := range []*cobra.Command{listCmd, getCmd, createCmd, statusCmd, trafficCmd, lastKnownGoodCmd} {
		common.AddOutputFlag(cmd, &outputFormat)
		DeploymentCmd.AddCommand(cmd)
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	deployments, err := c.ListDeployments(cmd.Context(), clientListOptions())
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}
	return p.Print(deployments, func(out io.Writer) error {
		return printDeployments(out, deployments, p.Wide())
	})
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

	d, err := c.GetDeployment(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}
	return p.Print(d, func(out io.Writer) error {
		return printDeployments(out, []models.Deployment{*d}, true)
	})
}

// ReadRequest decodes a deployment request from YAML or JSON. JSON is a
// subset of YAML, so one decoder serves both.
func ReadRequest(r io.Reader) (*v0.DeploymentRequest, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse deployment request: %w", err)
	}
	var req v0.DeploymentRequest
	if err := remarshal(generic, &req); err != nil {
		return nil, fmt.Errorf("failed to parse deployment request: %w", err)
	}
	return &req, nil
}

func runCreate(cmd *cobra.Command, _ []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if createFile != "-" {
		f, err := os.Open(createFile)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	req, err := ReadRequest(in)
	if err != nil {
		return err
	}
	if req.DeployedBy == "" {
		req.DeployedBy = createDeployer
	}

	d, err := c.CreateDeployment(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}
	return p.Print(d, func(out io.Writer) error {
		common.Success(cmd, "deployment %s created (%s)", d.ID, d.Status)
		return nil
	})
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

	status := models.DeploymentStatus(args[1])
	if !status.IsValid() {
		return fmt.Errorf("unknown status %q", args[1])
	}
	d, err := c.UpdateStatus(cmd.Context(), args[0], status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return p.Print(d, func(out io.Writer) error {
		common.Success(cmd, "deployment %s is now %s", d.ID, d.Status)
		return nil
	})
}

func runTraffic(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	if len(args) == 2 {
		var percentage float64
		if _, err := fmt.Sscanf(args[1], "%g", &percentage); err != nil {
			return fmt.Errorf("invalid percentage %q", args[1])
		}
		split, err := c.RecordTrafficSplit(cmd.Context(), args[0], percentage)
		if err != nil {
			return fmt.Errorf("failed to shift traffic: %w", err)
		}
		return p.Print(split, func(out io.Writer) error {
			common.Success(cmd, "deployment %s now receives %.1f%% of traffic", args[0], split.Percentage)
			return nil
		})
	}

	splits, err := c.ListTrafficSplits(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list traffic splits: %w", err)
	}
	return p.Print(splits, func(out io.Writer) error {
		rows := make([][]any, 0, len(splits))
		for _, s := range splits {
			completed := "-"
			if s.CompletedAt != nil {
				completed = printer.FormatTimestamp(*s.CompletedAt)
			}
			rows = append(rows, []any{s.ID, fmt.Sprintf("%.1f%%", s.Percentage), printer.FormatTimestamp(s.StartedAt), completed})
		}
		return common.Table(out, []string{"ID", "Percentage", "Started", "Completed"}, rows)
	})
}

func runLastKnownGood(cmd *cobra.Command, args []string) error {
	c, err := common.APIClient()
	if err != nil {
		return err
	}
	p, err := common.NewPrinter(cmd, outputFormat)
	if err != nil {
		return err
	}

	d, err := c.GetLastKnownGood(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve last known good deployment: %w", err)
	}
	return p.Print(d, func(out io.Writer) error {
		return printDeployments(out, []models.Deployment{*d}, false)
	})
}

func printDeployments(out io.Writer, deployments []models.Deployment, wide bool) error {
	headers := []string{"ID", "Version", "Environment", "Strategy", "Status", "Traffic", "Age"}
	if wide {
		headers = append(headers, "Deployed By", "Replicas")
	}
	rows := make([][]any, 0, len(deployments))
	for _, d := range deployments {
		row := []any{
			d.ID,
			d.VersionID,
			d.Environment,
			d.Strategy,
			d.Status,
			printer.FormatPercent(d.CurrentTraffic),
			printer.FormatAge(d.DeployedAt),
		}
		if wide {
			row = append(row, d.DeployedBy, d.Config.Replicas)
		}
		rows = append(rows, row)
	}
	return common.Table(out, headers, rows)
}

func clientListOptions() client.ListOptions {
	return client.ListOptions{
		Environment: listOpts.environment,
		Status:      listOpts.status,
		VersionID:   listOpts.versionID,
		DeployedBy:  listOpts.deployedBy,
		Limit:       listOpts.limit,
		Offset:      listOpts.offset,
	}
}

// remarshal moves a YAML-decoded value into a JSON-tagged struct
func remarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
