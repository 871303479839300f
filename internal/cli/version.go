package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/modelregistry/internal/cli/common"
	"github.com/agentregistry-dev/modelregistry/internal/version"
)

var versionOutput string

type versionReport struct {
	Client versionInfo  `json:"client"`
	Server *versionInfo `json:"server,omitempty"`
	Error  string       `json:"serverError,omitempty"`
}

type versionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the rollctl and registry server versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := common.NewPrinter(cmd, versionOutput)
		if err != nil {
			return err
		}

		report := versionReport{Client: versionInfo{
			Version:   version.Version,
			GitCommit: version.GitCommit,
			BuildDate: version.BuildDate,
		}}
		// the server half is best effort
		if c, err := common.APIClient(); err == nil {
			if info, err := c.GetVersionInfo(cmd.Context()); err == nil {
				report.Server = &versionInfo{Version: info.Version, GitCommit: info.GitCommit, BuildDate: info.BuildTime}
			} else {
				report.Error = err.Error()
			}
		}

		return p.Print(report, func(out io.Writer) error {
			rows := [][]any{{"rollctl", report.Client.Version, report.Client.GitCommit, report.Client.BuildDate}}
			if report.Server != nil {
				rows = append(rows, []any{"registry", report.Server.Version, report.Server.GitCommit, report.Server.BuildDate})
			} else if report.Error != "" {
				rows = append(rows, []any{"registry", "unreachable", "-", "-"})
			}
			return common.Table(out, []string{"Component", "Version", "Commit", "Built"}, rows)
		})
	},
}

func init() {
	common.AddOutputFlag(VersionCmd, &versionOutput)
}
