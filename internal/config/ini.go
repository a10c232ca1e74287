package config

import (
	"fmt"

	"github.com/go-git/gcfg"
	"github.com/go-git/gcfg/types"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// legacyINI mirrors the bot.ini layout older deployments carry around:
//
//	[auth]
//	token = 123:abc
//	[proxy]
//	url = socks5://localhost:9050/
type legacyINI struct {
	Auth struct {
		Token string `gcfg:"token"`
	} `gcfg:"auth"`
	Proxy struct {
		URL string `gcfg:"url"`
	} `gcfg:"proxy"`
	Compiler struct {
		Latex       string `gcfg:"latex"`
		Bibtex      string `gcfg:"bibtex"`
		ShellEscape string `gcfg:"shell-escape"`
		Timeout     string `gcfg:"timeout"`
	} `gcfg:"compiler"`
	Pipeline struct {
		Workers int    `gcfg:"workers"`
		WorkDir string `gcfg:"work-dir"`
	} `gcfg:"pipeline"`
	History struct {
		Database string `gcfg:"database"`
	} `gcfg:"history"`
	Admin struct {
		Listen string `gcfg:"listen"`
	} `gcfg:"admin"`
}

func loadINI(configPath string) (*Config, error) {
	var raw legacyINI
	// Unknown sections and variables are tolerated; only syntax errors are fatal.
	if err := gcfg.FatalOnly(gcfg.ReadFileInto(&raw, configPath)); err != nil {
		return nil, tberrors.Wrap(err, tberrors.CategoryConfig, tberrors.SeverityFatal, "failed to parse ini config")
	}

	cfg := &Config{}
	cfg.Telegram.Token = raw.Auth.Token
	cfg.Telegram.ProxyURL = raw.Proxy.URL
	cfg.Compiler.Latex = raw.Compiler.Latex
	cfg.Compiler.Bibtex = raw.Compiler.Bibtex
	if raw.Compiler.ShellEscape != "" {
		enabled, err := types.ParseBool(raw.Compiler.ShellEscape)
		if err != nil {
			return nil, tberrors.ValidationFailed("compiler.shell-escape", fmt.Sprintf("invalid boolean %q", raw.Compiler.ShellEscape))
		}
		cfg.Compiler.ShellEscape = &enabled
	}
	cfg.Compiler.Timeout = raw.Compiler.Timeout
	cfg.Pipeline.Workers = raw.Pipeline.Workers
	cfg.Pipeline.WorkDir = raw.Pipeline.WorkDir
	cfg.History.Database = raw.History.Database
	cfg.Admin.Listen = raw.Admin.Listen
	return cfg, nil
}
