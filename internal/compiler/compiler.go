// Package compiler defines the contract between devbundle and a long-running
// module compiler, plus ExecCompiler, a watch-mode compiler that re-runs an
// external build command whenever watched sources change.
package compiler

import (
	"context"
	"fmt"
	"time"
)

// Compiler is an event source for compilation lifecycle signals.
type Compiler interface {
	Hooks() *Hooks
	// Run performs the initial compilation, then watches for changes until ctx ends.
	Run(ctx context.Context) error
	Close() error
}

// Compilation describes a rebuild pass that is about to start.
type Compilation struct {
	Number    int
	Changed   []string
	StartedAt time.Time
}

// Diagnostic is one raw compiler message.
type Diagnostic struct {
	Message string
	File    string
	Line    int
	Column  int
	Code    string
}

// String renders the diagnostic the way compilers usually print it.
func (d Diagnostic) String() string {
	switch {
	case d.File != "" && d.Line > 0 && d.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
	case d.File != "" && d.Line > 0:
		return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
	case d.File != "":
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	default:
		return d.Message
	}
}

// Stats is the outcome of one compilation pass.
type Stats struct {
	Number    int
	Hash      string
	StartedAt time.Time
	Duration  time.Duration
	Errors    []Diagnostic
	Warnings  []Diagnostic
}

// HasErrors reports whether the compiler reported any error.
func (s *Stats) HasErrors() bool { return s != nil && len(s.Errors) > 0 }

// StatsJSON is the serialisable statistics snapshot handed to formatters.
type StatsJSON struct {
	Hash     string   `json:"hash"`
	TimeMS   int64    `json:"time"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ToJSON extracts a statistics snapshot.
func (s *Stats) ToJSON() StatsJSON {
	out := StatsJSON{
		Hash:     s.Hash,
		TimeMS:   s.Duration.Milliseconds(),
		Errors:   make([]string, 0, len(s.Errors)),
		Warnings: make([]string, 0, len(s.Warnings)),
	}
	for _, d := range s.Errors {
		out.Errors = append(out.Errors, d.String())
	}
	for _, d := range s.Warnings {
		out.Warnings = append(out.Warnings, d.String())
	}
	return out
}
