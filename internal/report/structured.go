package report

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// JSONReporter writes the summary as an indented JSON document.
type JSONReporter struct {
	lines bool
}

// YAMLReporter writes the summary as a YAML document.
type YAMLReporter struct {
	lines bool
}

func init() {
	Register("json", func(options map[string]interface{}) (Reporter, error) {
		return &JSONReporter{lines: boolOption(options, "lines", true)}, nil
	})
	Register("yaml", func(options map[string]interface{}) (Reporter, error) {
		return &YAMLReporter{lines: boolOption(options, "lines", true)}, nil
	})
}

func (r *JSONReporter) Ext() string { return "json" }

func (r *JSONReporter) Write(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(s, r.lines))
}

func (r *YAMLReporter) Ext() string { return "yaml" }

func (r *YAMLReporter) Write(w io.Writer, s *Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewDocument(s, r.lines)); err != nil {
		return err
	}
	return enc.Close()
}
