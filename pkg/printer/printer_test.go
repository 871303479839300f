package printer

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	DeploymentID string  `json:"deploymentId"`
	ErrorRate    float64 `json:"errorRate"`
}

func TestPrinter_Formats(t *testing.T) {
	data := []sample{{DeploymentID: "d-1", ErrorRate: 1.5}}

	tests := []struct {
		name       string
		outputType OutputType
		contains   []string
	}{
		{name: "json", outputType: OutputTypeJSON, contains: []string{`"deploymentId": "d-1"`, `"errorRate": 1.5`}},
		{name: "yaml", outputType: OutputTypeYAML, contains: []string{"- deploymentId: d-1", "  errorRate: 1.5"}},
		{name: "table", outputType: OutputTypeTable, contains: []string{"DEPLOYMENT", "d-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := New(tt.outputType, false)
			p.SetOutput(&buf)

			err := p.Print(data, func(out io.Writer) error {
				table := NewTablePrinter(out)
				table.SetHeaders("Deployment", "Error Rate")
				for _, s := range data {
					table.AddRow(s.DeploymentID, s.ErrorRate)
				}
				return table.Render()
			})
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestParseOutputType(t *testing.T) {
	for _, in := range []string{"", "table", "wide", "json", "yaml"} {
		_, err := ParseOutputType(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseOutputType("xml")
	assert.Error(t, err)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", FormatPercent(nil))
	v := 12.34
	assert.Equal(t, "12.3%", FormatPercent(&v))
	assert.Equal(t, "abcd...", TruncateString("abcdefghij", 7))
	assert.Equal(t, "n/a", EmptyValueOrDefault("", "n/a"))
	assert.Equal(t, "yes", FormatBool(true))
}
