// Package commands implements the texbot command-line interface.
package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/texbot/internal/archive"
	"git.home.luguber.info/inful/texbot/internal/config"
	"git.home.luguber.info/inful/texbot/internal/latex"
	"git.home.luguber.info/inful/texbot/internal/pipeline"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (YAML, or legacy .ini)" default:"texbot.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve   ServeCmd   `cmd:"" help:"Run the Telegram bot"`
	Build   BuildCmd   `cmd:"" help:"Compile a zipped LaTeX project locally, without Telegram"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"Show processed requests from the history database"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	g.Logger = logger
	return nil
}

// loadConfig loads the configuration file. When optional is set and the file
// does not exist, defaults are used instead.
func loadConfig(path string, optional bool) (*config.Config, error) {
	if optional {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			slog.Debug("No configuration file, using defaults", slog.String("path", path))
			return config.Defaults(), nil
		}
	}
	return config.Load(path)
}

// newRunner builds the compiler runner from configuration.
func newRunner(cfg *config.Config, exec latex.Executor) *latex.Runner {
	return latex.NewRunner(exec, latex.Options{
		Timeout:     cfg.Compiler.TimeoutDuration(),
		ShellEscape: cfg.Compiler.ShellEscapeEnabled(),
		Sandbox:     cfg.Compiler.Sandbox,
		Binaries:    cfg.Compiler.Binaries,
	})
}

// newOrchestrator wires the request pipeline from configuration.
func newOrchestrator(cfg *config.Config, exec latex.Executor, opts ...pipeline.Option) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(pipeline.Options{
		WorkDir:        cfg.Pipeline.WorkDir,
		RequestTimeout: cfg.Pipeline.RequestTimeoutDuration(),
		Defaults:       cfg.Compiler.Choice(),
		Limits: archive.Limits{
			MaxEntries: cfg.Pipeline.MaxEntries,
			MaxBytes:   cfg.Pipeline.MaxExtractedBytes,
		},
	}, newRunner(cfg, exec), opts...)
}
