// Package cli provides colored terminal output for the operator tooling.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes status lines and key/value blocks to w.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer for w. Colors are used only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: isTerminal(w)}
}

// Colorize returns text wrapped in color when the printer is colored.
func (p *Printer) Colorize(text, color string) string {
	if !p.color {
		return text
	}
	return color + text + ColorReset
}

func (p *Printer) Success(format string, args ...interface{}) { p.line("✓", ColorGreen, format, args) }
func (p *Printer) Error(format string, args ...interface{})   { p.line("✗", ColorRed, format, args) }
func (p *Printer) Warning(format string, args ...interface{}) { p.line("⚠", ColorYellow, format, args) }
func (p *Printer) Info(format string, args ...interface{})    { p.line("ℹ", ColorBlue, format, args) }

func (p *Printer) line(mark, color, format string, args []interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.Colorize(mark, color), fmt.Sprintf(format, args...))
}

// KV prints fields as aligned "key: value" lines sorted by key.
func (p *Printer) KV(fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	width := 0
	for k := range fields {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		label := p.Colorize(k+":", ColorCyan)
		pad := strings.Repeat(" ", width-len(k))
		fmt.Fprintf(p.w, "%s%s %v\n", label, pad, fields[k])
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
