package diagnostics

import (
	"regexp"

	"git.home.luguber.info/inful/devbundle/internal/compiler"
)

// Stage names the pipeline step an error was produced in.
type Stage string

const (
	StageDevelop     Stage = "develop"
	StageDevelopHTML Stage = "develop-html"
)

var stageLabels = map[Stage]string{
	StageDevelop:     "Development bundle",
	StageDevelopHTML: "Development HTML bundle",
}

// Error IDs surfaced to the operator.
const (
	IDCompilation    = "98123"
	IDModuleNotFound = "98124"
)

// Location is a 1-based source position.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column,omitempty"`
}

// StructuredError is a compiler error normalised for reporting.
type StructuredError struct {
	ID         string    `json:"id"`
	Stage      Stage     `json:"stage"`
	StageLabel string    `json:"stageLabel"`
	Text       string    `json:"text"`
	FilePath   string    `json:"filePath,omitempty"`
	Location   *Location `json:"location,omitempty"`
	Code       string    `json:"code,omitempty"`
}

var moduleNotFound = regexp.MustCompile(`(?i)(cannot find module|could not resolve|module not found|no required module provides)`)

// StructureErrors normalises raw compiler errors for the given stage.
func StructureErrors(stage Stage, errs []compiler.Diagnostic) []StructuredError {
	out := make([]StructuredError, 0, len(errs))
	for _, d := range errs {
		se := StructuredError{
			ID:         IDCompilation,
			Stage:      stage,
			StageLabel: stageLabels[stage],
			Text:       formatMessage(d.Message),
			FilePath:   d.File,
			Code:       d.Code,
		}
		if se.StageLabel == "" {
			se.StageLabel = string(stage)
		}
		if moduleNotFound.MatchString(d.Message) {
			se.ID = IDModuleNotFound
		}
		if d.Line > 0 {
			se.Location = &Location{Line: d.Line, Column: d.Column}
		}
		out = append(out, se)
	}
	return out
}
