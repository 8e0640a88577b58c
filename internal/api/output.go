package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format selects how CLI commands render API responses.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// outputFormat is set once by the root command's --output flag before
// any subcommand runs.
var outputFormat = FormatYAML

// SetOutputFormat applies the --output flag. Unknown values keep YAML.
func SetOutputFormat(format string) {
	if format == string(FormatJSON) {
		outputFormat = FormatJSON
		return
	}
	outputFormat = FormatYAML
}

// Output renders data to stdout in the selected format. Job records,
// summaries, and verification reports all come through here.
func Output(data any) error {
	return OutputTo(os.Stdout, outputFormat, data)
}

// OutputTo renders data to w in the given format.
func OutputTo(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
