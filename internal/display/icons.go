package display

import (
	"os"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// Icon names used for run status lines
const (
	IconCompleted = "completed"
	IconSkipped   = "skipped"
	IconFailed    = "failed"
	IconWarning   = "warning"
	IconInfo      = "info"
	IconBullet    = "bullet"
)

var icons = map[string]Icon{
	IconCompleted: {Unicode: "✓", ASCII: "OK", Color: ColorGreen},
	IconSkipped:   {Unicode: "-", ASCII: "-", Color: ColorCyan},
	IconFailed:    {Unicode: "✗", ASCII: "FAIL", Color: ColorRed},
	IconWarning:   {Unicode: "!", ASCII: "!", Color: ColorYellow},
	IconInfo:      {Unicode: "•", ASCII: "*", Color: ColorBlue},
	IconBullet:    {Unicode: "•", ASCII: "*", Color: ColorWhite},
}

// IconSystem renders icons with an ASCII fallback
type IconSystem struct {
	unicode bool
}

// NewIconSystem creates an icon system. Unicode is used when enabled and the
// locale does not rule it out.
func NewIconSystem(enabled bool) *IconSystem {
	return &IconSystem{unicode: enabled && detectUnicodeSupport()}
}

func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != "vt100"
}

// GetIcon returns the icon for the given name
func (is *IconSystem) GetIcon(name string) Icon {
	if icon, exists := icons[name]; exists {
		return icon
	}
	return Icon{Unicode: "?", ASCII: "?", Color: ColorWhite}
}

// Render returns the Unicode or ASCII form of the icon
func (is *IconSystem) Render(name string) string {
	icon := is.GetIcon(name)
	if is.unicode {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderWithColor returns the icon in its color when cs supports colors
func (is *IconSystem) RenderWithColor(name string, cs ColorSystem) string {
	text := is.Render(name)
	if cs == nil {
		return text
	}
	return cs.Colorize(text, is.GetIcon(name).Color)
}

// IsUnicodeSupported returns whether Unicode is used
func (is *IconSystem) IsUnicodeSupported() bool {
	return is.unicode
}

// SetUnicodeSupport overrides detection
func (is *IconSystem) SetUnicodeSupport(enabled bool) {
	is.unicode = enabled
}
