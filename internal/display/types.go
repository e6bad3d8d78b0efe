package display

import (
	"fmt"
	"strings"
)

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCompact OutputFormat = "compact"
)

// SupportedFormats lists the accepted --format values
var SupportedFormats = []OutputFormat{FormatTable, FormatJSON, FormatYAML, FormatCompact}

// ParseOutputFormat resolves a format name, case-insensitively
func ParseOutputFormat(name string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(name)))
	if format == "" {
		return FormatTable, nil
	}
	for _, f := range SupportedFormats {
		if f == format {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q", name)
}

// IsStructured reports whether the format is meant for machines
func (f OutputFormat) IsStructured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
)

// ColorTheme defines color scheme for different message types
type ColorTheme struct {
	Primary Color
	Success Color
	Warning Color
	Error   Color
	Info    Color
	Muted   Color
}

// DefaultColorTheme returns a default color theme
func DefaultColorTheme() ColorTheme {
	return ColorTheme{
		Primary: ColorBlue,
		Success: ColorGreen,
		Warning: ColorYellow,
		Error:   ColorRed,
		Info:    ColorCyan,
		Muted:   ColorWhite,
	}
}
