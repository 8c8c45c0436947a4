// Package ui renders relay status and settings for terminal output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/onemin-relay/relayctl/internal/panel"
	"github.com/onemin-relay/relayctl/internal/settings"
	"golang.org/x/term"
)

var (
	runningStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196"))

	degradedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("214"))

	stoppedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
		Bold(true)
)

// IsTerminal reports whether w is a terminal, so styling is worth emitting.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Printer writes user-facing output, styled only when color is set.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer for w. Color is enabled for terminals.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: IsTerminal(w)}
}

// NewPlainPrinter returns a Printer that never styles its output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

// Status renders a relay status word.
func (p *Printer) Status(s panel.Status) string {
	switch s {
	case panel.StatusRunning:
		return p.render(runningStyle, string(s))
	case panel.StatusError:
		return p.render(errorStyle, string(s))
	case panel.StatusNotResponding:
		return p.render(degradedStyle, string(s))
	default:
		return p.render(stoppedStyle, string(s))
	}
}

// Printf writes formatted output.
func (p *Printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

// Warnf writes a highlighted warning line.
func (p *Printer) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(degradedStyle, "Warning:"), fmt.Sprintf(format, args...))
}

// Errorf writes a highlighted error line.
func (p *Printer) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(errorStyle, "Error:"), fmt.Sprintf(format, args...))
}

// Settings prints every settings key with its value. The API key is masked
// unless reveal is set.
func (p *Printer) Settings(doc *settings.Document, reveal bool) {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, key := range settings.Keys {
		value, _ := doc.Get(key)
		if key == "server.api_key" && !reveal {
			value = MaskSecret(value)
		}
		fmt.Fprintf(tw, "%s\t%s\n", p.render(labelStyle, key), value)
	}
	tw.Flush()
}

// Models prints a model listing, one id per line.
func (p *Printer) Models(ids []string) {
	if len(ids) == 0 {
		fmt.Fprintln(p.w, "No models reported.")
		return
	}
	for _, id := range ids {
		fmt.Fprintf(p.w, "  %s\n", id)
	}
}

// MaskSecret hides all but a short prefix of a secret.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return strings.Repeat("*", len(s))
	default:
		return s[:4] + strings.Repeat("*", 8)
	}
}
