package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// View is something the CLI can print in any output format: as table rows
// for humans or as a structured value for machines.
type View interface {
	Headers() []string
	Rows() [][]string
	Value() interface{}
}

// OutputFormatter renders a View
type OutputFormatter interface {
	Format(view View) (string, error)
}

// TableFormatter renders views as bordered text tables
type TableFormatter struct {
	colors   ColorSystem
	maxWidth int
}

// NewTableFormatter creates a table formatter. maxWidth 0 disables truncation.
func NewTableFormatter(colors ColorSystem, maxWidth int) *TableFormatter {
	return &TableFormatter{colors: colors, maxWidth: maxWidth}
}

// Format implements OutputFormatter
func (f *TableFormatter) Format(view View) (string, error) {
	rows := view.Rows()
	if len(rows) == 0 {
		return "(none)\n", nil
	}
	table := NewTable(f.colors, f.maxWidth).SetHeaders(view.Headers()...)
	for _, row := range rows {
		table.AddRow(row...)
	}
	return table.Render(), nil
}

// JSONFormatter implements OutputFormatter for JSON output
type JSONFormatter struct {
	indent string
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{indent: "  "}
}

// Format implements OutputFormatter
func (f *JSONFormatter) Format(view View) (string, error) {
	data, err := json.MarshalIndent(view.Value(), "", f.indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal output to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// YAMLFormatter implements OutputFormatter for YAML output
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Format implements OutputFormatter
func (f *YAMLFormatter) Format(view View) (string, error) {
	data, err := yaml.Marshal(view.Value())
	if err != nil {
		return "", fmt.Errorf("failed to marshal output to YAML: %w", err)
	}
	return string(data), nil
}

// CompactFormatter prints separator-separated rows for scripting
type CompactFormatter struct {
	separator      string
	includeHeaders bool
}

// NewCompactFormatter creates a tab-separated formatter without headers
func NewCompactFormatter() *CompactFormatter {
	return &CompactFormatter{separator: "\t"}
}

// NewCompactFormatterWithOptions creates a compact formatter with custom options
func NewCompactFormatterWithOptions(separator string, includeHeaders bool) *CompactFormatter {
	return &CompactFormatter{separator: separator, includeHeaders: includeHeaders}
}

// Format implements OutputFormatter
func (f *CompactFormatter) Format(view View) (string, error) {
	var b strings.Builder
	headers := view.Headers()
	if f.includeHeaders && len(headers) > 0 {
		b.WriteString(strings.Join(headers, f.separator) + "\n")
	}
	for _, row := range view.Rows() {
		cells := make([]string, len(row))
		for i, cell := range row {
			// Keep one record per line
			cells[i] = strings.NewReplacer(f.separator, " ", "\n", " ").Replace(cell)
		}
		b.WriteString(strings.Join(cells, f.separator) + "\n")
	}
	return b.String(), nil
}

// FormatterRegistry manages the formatter for each output format
type FormatterRegistry struct {
	formatters map[OutputFormat]OutputFormatter
}

// NewFormatterRegistry creates a registry with the default formatters
func NewFormatterRegistry(colors ColorSystem, maxWidth int) *FormatterRegistry {
	r := &FormatterRegistry{formatters: make(map[OutputFormat]OutputFormatter)}
	r.Register(FormatTable, NewTableFormatter(colors, maxWidth))
	r.Register(FormatJSON, NewJSONFormatter())
	r.Register(FormatYAML, NewYAMLFormatter())
	r.Register(FormatCompact, NewCompactFormatter())
	return r
}

// Register registers a formatter for a specific output format
func (r *FormatterRegistry) Register(format OutputFormat, formatter OutputFormatter) {
	r.formatters[format] = formatter
}

// GetFormatter returns the formatter for the specified format
func (r *FormatterRegistry) GetFormatter(format OutputFormat) (OutputFormatter, bool) {
	formatter, exists := r.formatters[format]
	return formatter, exists
}

// OutputWriter writes views to a writer in one output format
type OutputWriter struct {
	registry *FormatterRegistry
	format   OutputFormat
	writer   io.Writer
}

// NewOutputWriter creates an output writer
func NewOutputWriter(format OutputFormat, writer io.Writer, registry *FormatterRegistry) *OutputWriter {
	return &OutputWriter{registry: registry, format: format, writer: writer}
}

// Write formats view and writes it
func (w *OutputWriter) Write(view View) error {
	formatter, ok := w.registry.GetFormatter(w.format)
	if !ok {
		return fmt.Errorf("unsupported output format: %s", w.format)
	}
	out, err := formatter.Format(view)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w.writer, out)
	return err
}

// Format returns the output format
func (w *OutputWriter) Format() OutputFormat {
	return w.format
}
