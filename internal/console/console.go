// Package console prints the one-time startup report: how to reach the
// development server and any deprecation notices collected during startup.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"git.home.luguber.info/inful/devbundle/internal/urls"
)

var (
	boldStyle = lipgloss.NewStyle().Bold(true)
	cyanStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

// Printer writes startup output and accumulates deprecation notices.
type Printer struct {
	mu           sync.Mutex
	out          io.Writer
	deprecations []string
	// BuildHint is the command suggested for production builds.
	BuildHint string
}

// NewPrinter returns a Printer writing to out (stdout when nil).
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out}
}

// PrintInstructions tells the operator where the site can be viewed.
func (p *Printer) PrintInstructions(appName string, u urls.URLs) {
	var b strings.Builder
	fmt.Fprintf(&b, "\nYou can now view %s in the browser.\n\n", boldStyle.Render(appName))

	if u.LANURLForTerminal != "" {
		fmt.Fprintf(&b, "  %s  %s\n", boldStyle.Render("Local:"), cyanStyle.Render(u.LocalURLForTerminal))
		fmt.Fprintf(&b, "  %s  %s\n", boldStyle.Render("On Your Network:"), cyanStyle.Render(u.LANURLForTerminal))
	} else {
		fmt.Fprintf(&b, "  %s\n", cyanStyle.Render(u.LocalURLForTerminal))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("View the build status at ") + cyanStyle.Render(strings.TrimSuffix(u.LocalURLForTerminal, "/")+"/__status") + "\n\n")
	b.WriteString("Note that the development build is not optimized.\n")
	if p.BuildHint != "" {
		fmt.Fprintf(&b, "To create a production build, use %s\n", cyanStyle.Render(p.BuildHint))
	}
	b.WriteString("\n")

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, b.String())
}

// Deprecate records a notice for the next PrintDeprecationWarnings. Duplicates are kept once.
func (p *Printer) Deprecate(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.deprecations {
		if d == msg {
			return
		}
	}
	p.deprecations = append(p.deprecations, msg)
}

// PrintDeprecationWarnings prints and clears the accumulated notices.
func (p *Printer) PrintDeprecationWarnings() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.deprecations) == 0 {
		return
	}
	for _, d := range p.deprecations {
		_, _ = fmt.Fprintf(p.out, "%s %s\n", warnStyle.Render("warn"), d)
	}
	p.deprecations = nil
}
