package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Printer handles various output formats
type Printer struct {
	out        io.Writer
	outputType OutputType
	wide       bool
}

// New creates a new printer with the specified output type
func New(outputType OutputType, wide bool) *Printer {
	return &Printer{
		out:        os.Stdout,
		outputType: outputType,
		wide:       wide,
	}
}

// SetOutput sets the output writer
func (p *Printer) SetOutput(out io.Writer) {
	p.out = out
}

// PrintJSON prints data in JSON format
func (p *Printer) PrintJSON(data any) error {
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// PrintYAML prints data in YAML format. Values are round-tripped through
// JSON first so field names match the API.
func (p *Printer) PrintYAML(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(p.out)
	encoder.SetIndent(2)
	if err := encoder.Encode(generic); err != nil {
		return err
	}
	return encoder.Close()
}

// Print writes data as JSON or YAML, or calls table for the table formats
func (p *Printer) Print(data any, table func(out io.Writer) error) error {
	switch p.outputType {
	case OutputTypeJSON:
		return p.PrintJSON(data)
	case OutputTypeYAML:
		return p.PrintYAML(data)
	default:
		return table(p.out)
	}
}

// Wide reports whether extra columns were requested
func (p *Printer) Wide() bool {
	return p.wide || p.outputType == OutputTypeWide
}

// ParseOutputType validates an --output flag value
func ParseOutputType(s string) (OutputType, error) {
	switch t := OutputType(s); t {
	case OutputTypeTable, OutputTypeWide, OutputTypeJSON, OutputTypeYAML:
		return t, nil
	case "":
		return OutputTypeTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (table, wide, json, yaml)", s)
}

// FormatTimestamp formats a timestamp in kubectl style
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05Z")
}

// FormatPercent formats an optional percentage, or "-" when unset
func FormatPercent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

// FormatAge formats time.Duration as a kubectl-style age string (e.g., "5d", "3h", "45m")
func FormatAge(t time.Time) string {
	duration := time.Since(t)

	days := int(duration.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}

	hours := int(duration.Hours())
	if hours > 0 {
		return fmt.Sprintf("%dh", hours)
	}

	minutes := int(duration.Minutes())
	if minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}

	seconds := int(duration.Seconds())
	return fmt.Sprintf("%ds", seconds)
}
