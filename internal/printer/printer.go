package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Printer writes CLI output. Normal output goes to Out, errors to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New creates a printer over the given writers.
func New(out, errw io.Writer) *Printer {
	return &Printer{Out: out, Err: errw}
}

// Std prints to the process stdout and stderr. Package-level helpers use it.
var Std = New(os.Stdout, os.Stderr)

// Success prints a success message in green with a checkmark prefix
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(p.Out, msg)
}

// Info prints an informational message in the default color
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.Out, format, a...)
}

// Warning prints a warning message in yellow with a warning prefix
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(p.Out, msg)
}

// Step prints a step of a multi-step operation
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.Out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with title, explanation and suggestions to
// Err and returns an error carrying only the title. Commands return it as-is
// with cobra's SilenceErrors set.
func (p *Printer) Error(title string, explanation string, suggestions []string) error {
	return p.ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details printed in key order.
func (p *Printer) ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(p.Err, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(p.Err, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(p.Err, "\n")
		for _, k := range keys {
			fmt.Fprintf(p.Err, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.Err, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(p.Err, "  %d. %s\n", i+1, suggestion)
		}
	}

	return fmt.Errorf("%s", title)
}

// Table prints rows under a bold header, every column padded to its widest
// cell, with a dashed rule between header and rows.
func (p *Printer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], len(row[i]))
		}
	}

	line := func(cells []string) string {
		padded := make([]string, len(widths))
		for i := range widths {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			if i == len(widths)-1 {
				padded[i] = c
			} else {
				padded[i] = fmt.Sprintf("%-*s", widths[i], c)
			}
		}
		return strings.TrimRight(strings.Join(padded, "  "), " ")
	}

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}

	bold.Fprintln(p.Out, line(headers))
	fmt.Fprintln(p.Out, line(rule))
	for _, row := range rows {
		fmt.Fprintln(p.Out, line(row))
	}
}

// Success prints to Std.
func Success(format string, a ...any) { Std.Success(format, a...) }

// Info prints to Std.
func Info(format string, a ...any) { Std.Info(format, a...) }

// Warning prints to Std.
func Warning(format string, a ...any) { Std.Warning(format, a...) }

// Step prints to Std.
func Step(format string, a ...any) { Std.Step(format, a...) }

// Error prints to Std.
func Error(title string, explanation string, suggestions []string) error {
	return Std.Error(title, explanation, suggestions)
}

// ErrorWithContext prints to Std.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	return Std.ErrorWithContext(title, explanation, context, suggestions)
}

// Table prints to Std.
func Table(headers []string, rows [][]string) { Std.Table(headers, rows) }
