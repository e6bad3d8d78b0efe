package display

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDisplayConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DisplayConfig)
		wantErr string
	}{
		{name: "defaults", modify: func(*DisplayConfig) {}},
		{name: "bad format", modify: func(c *DisplayConfig) { c.OutputFormat = "xml" }, wantErr: "unsupported output format"},
		{name: "narrow table", modify: func(c *DisplayConfig) { c.MaxTableWidth = 20 }, wantErr: "max table width"},
		{name: "verbose and quiet", modify: func(c *DisplayConfig) { c.VerboseMode, c.QuietMode = true, true }, wantErr: "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDisplayConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDisplayConfigSetDefaults(t *testing.T) {
	config := &DisplayConfig{}
	config.SetDefaults()

	if config.OutputFormat != FormatTable {
		t.Errorf("OutputFormat = %q", config.OutputFormat)
	}
	if config.Theme != "dark" {
		t.Errorf("Theme = %q", config.Theme)
	}
	if config.Writer != os.Stdout {
		t.Error("Writer should default to stdout")
	}
}

func TestDisplayConfigColorAndProgress(t *testing.T) {
	config := DefaultDisplayConfig()
	if !config.IsColorEnabled() || !config.IsProgressEnabled() {
		t.Error("table output should allow colors and progress")
	}

	config.OutputFormat = FormatJSON
	if config.IsColorEnabled() || config.IsProgressEnabled() {
		t.Error("JSON output should never be colored or animated")
	}

	config.OutputFormat = FormatTable
	config.QuietMode = true
	if config.IsProgressEnabled() {
		t.Error("quiet mode should disable progress")
	}
}

func TestColorSystem_DisabledForBuffers(t *testing.T) {
	t.Setenv("FORCE_COLOR", "")
	cs := NewColorSystem(&bytes.Buffer{}, DarkColorTheme(), true)

	if cs.IsColorSupported() {
		t.Error("a buffer is not a terminal")
	}
	if got := cs.Colorize("text", ColorRed); got != "text" {
		t.Errorf("Colorize() = %q", got)
	}
	if got := cs.Sprintf(ColorGreen, "%d items", 3); got != "3 items" {
		t.Errorf("Sprintf() = %q", got)
	}
}

func TestColorSystem_Forced(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "1")
	cs := NewColorSystem(&bytes.Buffer{}, DarkColorTheme(), true)

	if !cs.IsColorSupported() {
		t.Fatal("FORCE_COLOR should enable colors")
	}
	if got := cs.Colorize("text", ColorRed); !strings.Contains(got, "\x1b[") {
		t.Errorf("expected ANSI escape, got %q", got)
	}
}

func TestGetThemeByName(t *testing.T) {
	if GetThemeByName("light") != DefaultColorTheme() {
		t.Error("light theme should match the default theme")
	}
	if GetThemeByName("plain") != PlainTextTheme() {
		t.Error("plain theme mismatch")
	}
	if GetThemeByName("unknown") != DarkColorTheme() {
		t.Error("unknown names should fall back to dark")
	}
}

func TestIconSystem(t *testing.T) {
	is := NewIconSystem(false)
	if is.IsUnicodeSupported() {
		t.Fatal("disabled icon system should use ASCII")
	}

	tests := map[string][2]string{
		IconCompleted: {"✓", "OK"},
		IconSkipped:   {"-", "-"},
		IconFailed:    {"✗", "FAIL"},
		IconWarning:   {"!", "!"},
		"missing":     {"?", "?"},
	}
	for name, forms := range tests {
		is.SetUnicodeSupport(true)
		if got := is.Render(name); got != forms[0] {
			t.Errorf("Render(%q) unicode = %q, want %q", name, got, forms[0])
		}
		is.SetUnicodeSupport(false)
		if got := is.Render(name); got != forms[1] {
			t.Errorf("Render(%q) ascii = %q, want %q", name, got, forms[1])
		}
	}

	if got := is.RenderWithColor(IconFailed, nil); got != "FAIL" {
		t.Errorf("RenderWithColor(nil) = %q", got)
	}
}

func TestUnicodeDetection(t *testing.T) {
	t.Setenv("FORCE_UNICODE", "")
	t.Setenv("NO_UNICODE", "1")
	if NewIconSystem(true).IsUnicodeSupported() {
		t.Error("NO_UNICODE should disable unicode")
	}

	t.Setenv("NO_UNICODE", "")
	t.Setenv("FORCE_UNICODE", "1")
	if !NewIconSystem(true).IsUnicodeSupported() {
		t.Error("FORCE_UNICODE should enable unicode")
	}
}

func TestSpinner_Disabled(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, LineSpinner, nil, false)

	s.Start("Searching")
	if s.IsActive() {
		t.Error("disabled spinner should never be active")
	}
	s.Stop("done")
	if buf.Len() != 0 {
		t.Errorf("disabled spinner wrote %q", buf.String())
	}
}

func TestSpinner_Animates(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, SpinnerStyle{Frames: []string{"-", "+"}, Delay: time.Millisecond}, nil, true)

	s.Start("Searching catalog")
	if !s.IsActive() {
		t.Fatal("spinner should be active after Start")
	}
	time.Sleep(20 * time.Millisecond)
	s.Update("Loading layers")
	time.Sleep(20 * time.Millisecond)
	s.Stop("Found 3 items")

	if s.IsActive() {
		t.Error("spinner should be inactive after Stop")
	}
	out := buf.String()
	if !strings.Contains(out, "Searching catalog") || !strings.Contains(out, "Loading layers") {
		t.Errorf("spinner output missing messages: %q", out)
	}
	if !strings.HasSuffix(out, "\r\x1b[KFound 3 items\n") {
		t.Errorf("spinner should clear its line before the final message: %q", out)
	}

	// A second Stop is a no-op
	s.Stop("again")
	if strings.Contains(buf.String(), "again") {
		t.Error("Stop on an inactive spinner should not print")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
