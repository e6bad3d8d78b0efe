package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DisplayConfig holds configuration for terminal output
type DisplayConfig struct {
	ColorEnabled  bool         `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme         string       `mapstructure:"theme" yaml:"theme"`
	OutputFormat  OutputFormat `mapstructure:"output_format" yaml:"output_format"`
	UseIcons      bool         `mapstructure:"use_icons" yaml:"use_icons"`
	ShowProgress  bool         `mapstructure:"show_progress" yaml:"show_progress"`
	VerboseMode   bool         `mapstructure:"verbose" yaml:"verbose"`
	QuietMode     bool         `mapstructure:"quiet" yaml:"quiet"`
	MaxTableWidth int          `mapstructure:"max_table_width" yaml:"max_table_width"`

	Writer io.Writer `mapstructure:"-" yaml:"-"`
}

// DefaultDisplayConfig returns a default display configuration
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ColorEnabled:  true,
		Theme:         "dark",
		OutputFormat:  FormatTable,
		UseIcons:      true,
		ShowProgress:  true,
		MaxTableWidth: 0,
		Writer:        os.Stdout,
	}
}

// Validate validates the display configuration
func (dc *DisplayConfig) Validate() error {
	var errs []string

	if _, err := ParseOutputFormat(string(dc.OutputFormat)); err != nil {
		errs = append(errs, err.Error())
	}
	if dc.MaxTableWidth != 0 && (dc.MaxTableWidth < 40 || dc.MaxTableWidth > 300) {
		errs = append(errs, fmt.Sprintf("max table width must be between 40 and 300, got %d", dc.MaxTableWidth))
	}
	if dc.VerboseMode && dc.QuietMode {
		errs = append(errs, "verbose and quiet modes are mutually exclusive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("display configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SetDefaults sets default values for unspecified configuration options
func (dc *DisplayConfig) SetDefaults() {
	if dc.Theme == "" {
		dc.Theme = "dark"
	}
	if dc.OutputFormat == "" {
		dc.OutputFormat = FormatTable
	}
	if dc.Writer == nil {
		dc.Writer = os.Stdout
	}
}

// IsColorEnabled returns true if colors should be used
func (dc *DisplayConfig) IsColorEnabled() bool {
	return dc.ColorEnabled && dc.OutputFormat == FormatTable
}

// IsProgressEnabled returns true if progress indicators should be shown
func (dc *DisplayConfig) IsProgressEnabled() bool {
	return dc.ShowProgress && !dc.QuietMode && dc.OutputFormat == FormatTable
}
