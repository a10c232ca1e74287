package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/gcfg"
	"gopkg.in/yaml.v3"
)

// Override file names looked up directly inside a project folder, in order.
// The first file that exists is the only one read.
const (
	OverrideYAML = "texbot.yaml"
	OverrideINI  = "texbot.ini"
)

// Override holds the optional per-project values as read from disk.
type Override struct {
	Engine       string
	Bibliography string
	Source       string
}

type yamlOverride struct {
	Compiler struct {
		Latex  string `yaml:"latex"`
		Bibtex string `yaml:"bibtex"`
	} `yaml:"compiler"`
}

type iniOverride struct {
	Compiler struct {
		Latex  string `gcfg:"latex"`
		Bibtex string `gcfg:"bibtex"`
	}
}

// Resolve returns the compiler choice for projectFolder. It never fails: a missing,
// unreadable or malformed override file, as well as values outside the allow-lists,
// leave the defaults in place.
func Resolve(projectFolder string, defaults Choice) Choice {
	choice := defaults.WithDefaults()

	ov, err := ReadOverride(projectFolder)
	if err != nil {
		slog.Warn("Ignoring unreadable compiler override", "project", projectFolder, "error", err)
		return choice
	}
	if ov == nil {
		return choice
	}
	return Apply(choice, *ov)
}

// Apply merges ov into choice, keeping each prior value whose override is not allowed.
func Apply(choice Choice, ov Override) Choice {
	if ov.Engine != "" {
		if IsAllowedEngine(ov.Engine) {
			choice.Engine = normalize(ov.Engine)
		} else {
			slog.Debug("Discarding engine override outside allow-list", "engine", ov.Engine, "source", ov.Source)
		}
	}
	if ov.Bibliography != "" {
		if IsAllowedBibliography(ov.Bibliography) {
			choice.Bibliography = normalize(ov.Bibliography)
		} else {
			slog.Debug("Discarding bibliography override outside allow-list", "bibliography", ov.Bibliography, "source", ov.Source)
		}
	}
	return choice
}

// ReadOverride loads the first override file found in projectFolder.
// It returns (nil, nil) when the project ships none.
func ReadOverride(projectFolder string) (*Override, error) {
	for _, name := range []string{OverrideYAML, OverrideINI} {
		path := filepath.Join(projectFolder, name)
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if name == OverrideINI {
			return readINIOverride(path)
		}
		return readYAMLOverride(path)
	}
	return nil, nil
}

func readYAMLOverride(path string) (*Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var raw yamlOverride
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &Override{
		Engine:       raw.Compiler.Latex,
		Bibliography: raw.Compiler.Bibtex,
		Source:       filepath.Base(path),
	}, nil
}

func readINIOverride(path string) (*Override, error) {
	var raw iniOverride
	// Unknown sections and variables are warnings; only syntax errors matter here.
	if err := gcfg.FatalOnly(gcfg.ReadFileInto(&raw, path)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &Override{
		Engine:       raw.Compiler.Latex,
		Bibliography: raw.Compiler.Bibtex,
		Source:       filepath.Base(path),
	}, nil
}
