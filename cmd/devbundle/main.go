package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/devbundle/cmd/devbundle/commands"
	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("devbundle"),
		kong.Description("Development server that rebuilds a site bundle on every change."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := &commands.Global{Logger: slog.Default()}
	if err := parser.Run(global, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
