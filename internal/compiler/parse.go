package compiler

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

var (
	// The file part must look like a path with an extension so timestamps
	// such as "[12:30:45]" are not taken for locations.
	locatedLine = regexp.MustCompile(`^([^\s:\[\]]+\.[A-Za-z0-9]+):(\d+):(?:(\d+):)?\s*(?:(error|warning|warn)(?:\[([^\]]+)\])?:\s*)?(.+)$`)
	bareLine    = regexp.MustCompile(`^(?i)(error|warning|warn)(?:\[([^\]]+)\])?:\s*(.+)$`)
)

// ParseOutput splits compiler output into error and warning diagnostics.
//
// Recognised forms are "file:line[:col]: [error|warning:] message" and
// "error: message" / "warning: message". Indented lines continue the
// previous diagnostic. Located lines without a severity are errors.
func ParseOutput(output []byte) (errs, warns []Diagnostic) {
	// current addresses the last diagnostic by slice and index; pointers into
	// the slices would go stale when append reallocates.
	var current *[]Diagnostic
	idx := -1
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(line) == "" {
			current = nil
			continue
		}

		if m := locatedLine.FindStringSubmatch(line); m != nil {
			d := Diagnostic{File: m[1], Message: m[6], Code: m[5]}
			d.Line, _ = strconv.Atoi(m[2])
			if m[3] != "" {
				d.Column, _ = strconv.Atoi(m[3])
			}
			current, idx = appendDiagnostic(&errs, &warns, strings.ToLower(m[4]), d)
			continue
		}
		if m := bareLine.FindStringSubmatch(line); m != nil {
			d := Diagnostic{Message: m[3], Code: m[2]}
			current, idx = appendDiagnostic(&errs, &warns, strings.ToLower(m[1]), d)
			continue
		}
		if current != nil && (strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")) {
			(*current)[idx].Message += "\n" + strings.TrimSpace(line)
		}
	}
	return errs, warns
}

func appendDiagnostic(errs, warns *[]Diagnostic, severity string, d Diagnostic) (*[]Diagnostic, int) {
	target := errs
	if severity == "warning" || severity == "warn" {
		target = warns
	}
	*target = append(*target, d)
	return target, len(*target) - 1
}
