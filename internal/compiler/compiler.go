// Package compiler decides which LaTeX engine and bibliography engine a project
// is built with. Process-wide defaults may be overridden by a small file shipped
// inside the project folder, but only with values from fixed allow-lists.
package compiler

import (
	"slices"
	"strings"
)

// Default engines used when global configuration leaves them unset.
const (
	DefaultEngine       = "pdflatex"
	DefaultBibliography = "bibtex"
)

var (
	allowedEngines        = []string{"latex", "pdflatex", "xetex", "lualatex"}
	allowedBibliographies = []string{"bibtex", "bibtex8", "biber"}
)

// Choice is the pair of programs a build invokes.
type Choice struct {
	Engine       string `json:"engine" yaml:"latex"`
	Bibliography string `json:"bibliography" yaml:"bibtex"`
}

// String renders the choice as "engine+bibliography".
func (c Choice) String() string {
	return c.Engine + "+" + c.Bibliography
}

// WithDefaults fills empty fields with DefaultEngine / DefaultBibliography.
func (c Choice) WithDefaults() Choice {
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = DefaultEngine
	}
	if strings.TrimSpace(c.Bibliography) == "" {
		c.Bibliography = DefaultBibliography
	}
	return c
}

// Engines returns the allowed LaTeX engine identifiers.
func Engines() []string { return slices.Clone(allowedEngines) }

// Bibliographies returns the allowed bibliography engine identifiers.
func Bibliographies() []string { return slices.Clone(allowedBibliographies) }

// IsAllowedEngine reports whether name is an allowed LaTeX engine.
func IsAllowedEngine(name string) bool {
	return slices.Contains(allowedEngines, normalize(name))
}

// IsAllowedBibliography reports whether name is an allowed bibliography engine.
func IsAllowedBibliography(name string) bool {
	return slices.Contains(allowedBibliographies, normalize(name))
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
