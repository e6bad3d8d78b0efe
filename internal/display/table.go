package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// BorderStyle defines table border characters
type BorderStyle struct {
	Horizontal string
	Vertical   string
	Corner     string
}

var (
	// ASCIIBorderStyle draws +---+ borders
	ASCIIBorderStyle = BorderStyle{Horizontal: "-", Vertical: "|", Corner: "+"}

	// NoBorderStyle separates columns with padding only
	NoBorderStyle = BorderStyle{}
)

// Table renders rows of cells as an aligned text table. Cells longer than
// their column are truncated with an ellipsis when the table would exceed
// its maximum width.
type Table struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	border     BorderStyle
	padding    int
	maxWidth   int
	colors     ColorSystem
}

// NewTable creates an empty table. maxWidth 0 disables truncation.
func NewTable(colors ColorSystem, maxWidth int) *Table {
	return &Table{
		alignments: make(map[int]Alignment),
		border:     ASCIIBorderStyle,
		padding:    1,
		maxWidth:   maxWidth,
		colors:     colors,
	}
}

// SetHeaders sets the table headers
func (t *Table) SetHeaders(headers ...string) *Table {
	t.headers = headers
	return t
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) *Table {
	t.rows = append(t.rows, cells)
	return t
}

// SetAlignment sets the alignment of one column
func (t *Table) SetAlignment(column int, alignment Alignment) *Table {
	t.alignments[column] = alignment
	return t
}

// SetBorder sets the border style
func (t *Table) SetBorder(border BorderStyle) *Table {
	t.border = border
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render returns the formatted table
func (t *Table) Render() string {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return ""
	}

	widths := t.fitWidths(t.columnWidths())

	var b strings.Builder
	rule := t.rule(widths)
	if rule != "" {
		b.WriteString(rule + "\n")
	}
	if len(t.headers) > 0 {
		b.WriteString(t.renderRow(t.headers, widths, true) + "\n")
		if rule != "" {
			b.WriteString(rule + "\n")
		}
	}
	for _, row := range t.rows {
		b.WriteString(t.renderRow(row, widths, false) + "\n")
	}
	if rule != "" {
		b.WriteString(rule + "\n")
	}
	return b.String()
}

// RenderTo writes the table to w
func (t *Table) RenderTo(w io.Writer) error {
	_, err := fmt.Fprint(w, t.Render())
	return err
}

func (t *Table) columnCount() int {
	n := len(t.headers)
	for _, row := range t.rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

func (t *Table) columnWidths() []int {
	widths := make([]int, t.columnCount())
	measure := func(row []string) {
		for i, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	return widths
}

// fitWidths shrinks the widest columns first until the table fits maxWidth
func (t *Table) fitWidths(widths []int) []int {
	if t.maxWidth <= 0 {
		return widths
	}

	const minColumn = 4
	for t.totalWidth(widths) > t.maxWidth {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minColumn {
			break
		}
		widths[widest]--
	}
	return widths
}

func (t *Table) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + 2*t.padding
	}
	if t.border.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (t *Table) rule(widths []int) string {
	if t.border.Horizontal == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.border.Corner)
	for _, w := range widths {
		b.WriteString(strings.Repeat(t.border.Horizontal, w+2*t.padding))
		b.WriteString(t.border.Corner)
	}
	return b.String()
}

func (t *Table) renderRow(row []string, widths []int, header bool) string {
	var b strings.Builder
	b.WriteString(t.border.Vertical)
	for i, width := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		b.WriteString(t.formatCell(cell, width, t.alignments[i], header))
		b.WriteString(t.border.Vertical)
	}
	return strings.TrimRight(b.String(), " ")
}

func (t *Table) formatCell(content string, width int, alignment Alignment, header bool) string {
	content = truncate(content, width)
	gap := strings.Repeat(" ", width-utf8.RuneCountInString(content))

	if header && t.colors != nil {
		content = t.colors.Colorize(content, t.colors.Theme().Primary)
	}

	pad := strings.Repeat(" ", t.padding)
	if alignment == AlignRight {
		return pad + gap + content + pad
	}
	return pad + content + gap + pad
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width > 3 {
		return string(runes[:width-3]) + "..."
	}
	return string(runes[:width])
}

// TerminalWidth returns the width of w when it is a terminal, or 0
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
