package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"git.home.luguber.info/inful/devbundle/internal/config"
	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/history"
)

// HistoryCmd lists recent compilations from the history database, or from a
// running server when --url is given.
type HistoryCmd struct {
	Limit int    `short:"n" default:"20" help:"Number of compilations to list"`
	URL   string `name:"url" help:"Read history from a running development server instead of the database"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	if h.Limit <= 0 {
		return ferrors.ValidationError("limit must be positive").WithContext("limit", h.Limit).Build()
	}
	records, err := h.records(context.Background(), root.Config)
	if err != nil {
		return err
	}
	return printHistory(os.Stdout, records)
}

func (h *HistoryCmd) records(ctx context.Context, configPath string) ([]history.Record, error) {
	if h.URL != "" {
		base, _ := serverURL(h.URL, "")
		var records []history.Record
		err := getJSON(ctx, base+"/__history?limit="+strconv.Itoa(h.Limit), &records)
		return records, err
	}

	program, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	path := program.HistoryPath()
	if path == "" || path == ":memory:" {
		return nil, ferrors.ConfigError("compilation history is disabled").
			WithContext("field", "history.path").
			Build()
	}
	store, err := history.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()
	return store.Recent(ctx, h.Limit)
}

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func printHistory(out io.Writer, records []history.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No compilations recorded.")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("FINISHED", "HASH", "RESULT", "ERRORS", "WARNINGS", "DURATION").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, rec := range records {
		result := okStyle.Render("ok")
		if !rec.Succeeded {
			result = failedStyle.Render("failed")
		}
		if rec.First {
			result += " (initial)"
		}
		t.Row(
			rec.FinishedAt.Local().Format(time.DateTime),
			shortHash(rec.Hash),
			result,
			strconv.Itoa(rec.Errors),
			strconv.Itoa(rec.Warnings),
			rec.Duration.Round(time.Millisecond).String(),
		)
	}
	_, err := fmt.Fprintln(out, t.Render())
	return err
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
