// Package diagnostics turns raw compiler statistics into the messages shown
// to the operator and the structured errors handed to the fatal build path.
package diagnostics

import (
	"fmt"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/devbundle/internal/compiler"
)

// Messages is the normalised diagnostics shape.
type Messages struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Formatter converts raw statistics into Messages.
type Formatter interface {
	Format(stats compiler.StatsJSON) (Messages, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(compiler.StatsJSON) (Messages, error)

// Format implements Formatter.
func (f FormatterFunc) Format(stats compiler.StatsJSON) (Messages, error) { return f(stats) }

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	stackPattern    = regexp.MustCompile(`^\s*at\s.*(:\d+:\d+|\(native\)|<anonymous>)`)
	locatedPattern  = regexp.MustCompile(`^([^\s:][^:]*):(\d+):(\d+): (.*)$`)
	syntaxErrorHint = regexp.MustCompile(`(?i)syntax ?error`)
)

// Default is the formatter used by the development server.
//
// Each message has ANSI escapes and stack frames removed and its location
// moved onto its own line. Duplicates are dropped. When any error looks like
// a syntax error only syntax errors are kept, since they usually cause the rest.
type Default struct{}

// Format implements Formatter.
func (Default) Format(stats compiler.StatsJSON) (Messages, error) {
	msgs := Messages{
		Errors:   formatAll(stats.Errors),
		Warnings: formatAll(stats.Warnings),
	}
	var syntax []string
	for _, e := range msgs.Errors {
		if syntaxErrorHint.MatchString(e) {
			syntax = append(syntax, e)
		}
	}
	if len(syntax) > 0 {
		msgs.Errors = syntax
	}
	return msgs, nil
}

func formatAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		m := formatMessage(r)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func formatMessage(raw string) string {
	raw = ansiPattern.ReplaceAllString(raw, "")
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	kept := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if stackPattern.MatchString(l) {
			continue
		}
		if l == "" {
			if blank || len(kept) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		return ""
	}
	if m := locatedPattern.FindStringSubmatch(kept[0]); m != nil {
		head := []string{m[1], fmt.Sprintf("Line %s:%s:  %s", m[2], m[3], m[4])}
		kept = append(head, kept[1:]...)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
