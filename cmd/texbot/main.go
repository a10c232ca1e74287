package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/texbot/cmd/texbot/commands"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Name("texbot"),
		kong.Description("Telegram bot that compiles zipped LaTeX projects to PDF."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global, cli),
	)

	err := parser.Run()
	if err != nil {
		os.Exit(tberrors.NewCLIErrorAdapter(cli.Verbose, nil).Report(err))
	}
}
