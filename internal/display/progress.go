package display

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// SpinnerStyle defines the visual style of a spinner
type SpinnerStyle struct {
	Frames []string
	Delay  time.Duration
}

var (
	// DotsSpinner is used on Unicode terminals
	DotsSpinner = SpinnerStyle{
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Delay:  80 * time.Millisecond,
	}
	// LineSpinner is the ASCII fallback
	LineSpinner = SpinnerStyle{
		Frames: []string{"-", "\\", "|", "/"},
		Delay:  100 * time.Millisecond,
	}
)

// Spinner animates a one-line status on a terminal while a long call runs.
// A disabled spinner prints nothing, so callers need not check the terminal.
type Spinner struct {
	writer  io.Writer
	style   SpinnerStyle
	colors  ColorSystem
	enabled bool

	mu      sync.Mutex
	message string
	active  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSpinner creates a spinner writing to w
func NewSpinner(w io.Writer, style SpinnerStyle, colors ColorSystem, enabled bool) *Spinner {
	return &Spinner{writer: w, style: style, colors: colors, enabled: enabled}
}

// Start begins the animation with message
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.message = message
	if !s.enabled || s.active {
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.animate(s.stopCh, s.doneCh)
}

// Update changes the message of a running spinner
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop ends the animation, clears the line and prints finalMessage if set
func (s *Spinner) Stop(finalMessage string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.clearLine()
	if finalMessage != "" {
		fmt.Fprintln(s.writer, finalMessage)
	}
}

// IsActive returns whether the spinner is running
func (s *Spinner) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Spinner) animate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.style.Delay)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		message := s.message
		s.mu.Unlock()

		glyph := s.style.Frames[frame%len(s.style.Frames)]
		if s.colors != nil {
			glyph = s.colors.Colorize(glyph, s.colors.Theme().Primary)
		}
		s.clearLine()
		fmt.Fprintf(s.writer, "%s %s", glyph, message)
	}
}

func (s *Spinner) clearLine() {
	fmt.Fprint(s.writer, "\r\033[K")
}
