package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

// printer writes colored command output.
type printer struct {
	out io.Writer
	err io.Writer
}

// success prints a green line with a checkmark.
func (p printer) success(format string, a ...any) {
	green.Fprintf(p.out, "✓ "+format+"\n", a...)
}

func (p printer) info(format string, a ...any) {
	fmt.Fprintf(p.out, format+"\n", a...)
}

// change prints one change descriptor.
func (p printer) change(format string, a ...any) {
	cyan.Fprintf(p.out, "  "+format+"\n", a...)
}

func (p printer) warning(format string, a ...any) {
	yellow.Fprintf(p.err, "! "+format+"\n", a...)
}

// failure prints title in red followed by the cause and returns an error
// for cobra, which does not print it again.
func (p printer) failure(title string, cause error) error {
	red.Fprintf(p.err, "✗ %s\n", title)
	if cause != nil {
		fmt.Fprintf(p.err, "  %v\n", cause)
	}
	if cause == nil {
		return fmt.Errorf("%s", title)
	}
	return fmt.Errorf("%s: %w", title, cause)
}
