// Package output provides consistent CLI output formatting with colors.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette - single lime accent for a professional, distinctive look.
const (
	ColorLime     = "154" // Primary accent (#AFFF00)
	ColorWhite    = "255" // Headers, important text
	ColorGray     = "245" // Secondary text, labels
	ColorDarkGray = "238" // Separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
)

// Styles holds the text styles used for CLI rendering.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
}

// DefaultStyles returns styled components for color mode.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
	}
}

// Writer provides formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles Styles
	quiet  bool
}

// New creates a Writer with explicit color preference.
func New(out io.Writer, useColor bool) *Writer {
	styles := NoColorStyles()
	if useColor {
		styles = DefaultStyles()
	}
	return &Writer{out: out, styles: styles}
}

// NewAuto creates a Writer that colors output only when it is going to an
// interactive terminal and neither NO_COLOR nor a CI environment says
// otherwise.
func NewAuto(out io.Writer) *Writer {
	return New(out, IsTTY(out) && !DetectNoColor() && !DetectCI())
}

// Styles returns the writer's active styles.
func (w *Writer) Styles() Styles {
	return w.styles
}

// SetQuiet suppresses everything except errors.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// Header prints a bold section header.
func (w *Writer) Header(msg string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(msg))
}

// Success prints a success message.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Success(msg string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Plain prints an unstyled line.
func (w *Writer) Plain(msg string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Plainf prints a formatted unstyled line.
func (w *Writer) Plainf(format string, args ...any) {
	w.Plain(fmt.Sprintf(format, args...))
}

// KeyValue prints an aligned "label: value" line.
func (w *Writer) KeyValue(key, value string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(key+":"), value)
}

// Dim prints a secondary, de-emphasized line.
func (w *Writer) Dim(msg string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(msg))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// Rule prints a horizontal separator.
func (w *Writer) Rule() {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(strings.Repeat("─", 40)))
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
