package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestResolve_NoOverrideKeepsDefaults(t *testing.T) {
	dir := t.TempDir()

	got := Resolve(dir, Choice{Engine: "lualatex", Bibliography: "biber"})

	assert.Equal(t, Choice{Engine: "lualatex", Bibliography: "biber"}, got)
}

func TestResolve_EmptyDefaultsFallBack(t *testing.T) {
	got := Resolve(t.TempDir(), Choice{})

	assert.Equal(t, Choice{Engine: "pdflatex", Bibliography: "bibtex"}, got)
}

func TestResolve_YAMLOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OverrideYAML, "compiler:\n  latex: XeTeX\n  bibtex: biber\n")

	got := Resolve(dir, Choice{Engine: "pdflatex", Bibliography: "bibtex"})

	assert.Equal(t, Choice{Engine: "xetex", Bibliography: "biber"}, got)
}

func TestResolve_INIOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OverrideINI, "[compiler]\nlatex = lualatex\nbibtex = bibtex8\n\n[extra]\nignored = yes\n")

	got := Resolve(dir, Choice{Engine: "pdflatex", Bibliography: "bibtex"})

	assert.Equal(t, Choice{Engine: "lualatex", Bibliography: "bibtex8"}, got)
}

func TestResolve_YAMLWinsOverINI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OverrideYAML, "compiler:\n  latex: latex\n")
	writeFile(t, dir, OverrideINI, "[compiler]\nlatex = lualatex\n")

	got := Resolve(dir, Choice{Engine: "pdflatex", Bibliography: "bibtex"})

	assert.Equal(t, "latex", got.Engine)
}

func TestResolve_DisallowedValuesAreDiscarded(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Choice
	}{
		{
			name:    "engine outside allow-list",
			content: "compiler:\n  latex: \"rm -rf /\"\n",
			want:    Choice{Engine: "pdflatex", Bibliography: "bibtex"},
		},
		{
			name:    "bibliography outside allow-list",
			content: "compiler:\n  bibtex: makeindex\n",
			want:    Choice{Engine: "pdflatex", Bibliography: "bibtex"},
		},
		{
			name:    "one allowed one not",
			content: "compiler:\n  latex: xelatex\n  bibtex: biber\n",
			want:    Choice{Engine: "pdflatex", Bibliography: "biber"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, OverrideYAML, tc.content)

			got := Resolve(dir, Choice{Engine: "pdflatex", Bibliography: "bibtex"})

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_MalformedFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OverrideYAML, "compiler: [unterminated\n")

	got := Resolve(dir, Choice{Engine: "pdflatex", Bibliography: "bibtex"})

	assert.Equal(t, Choice{Engine: "pdflatex", Bibliography: "bibtex"}, got)
}

func TestResolve_OverrideDirectoryIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, OverrideYAML), 0o750))

	got := Resolve(dir, Choice{Engine: "xetex", Bibliography: "bibtex"})

	assert.Equal(t, "xetex", got.Engine)
}

func TestAllowLists(t *testing.T) {
	for _, e := range []string{"latex", "pdflatex", "xetex", "lualatex", " PDFLaTeX "} {
		assert.True(t, IsAllowedEngine(e), e)
	}
	for _, e := range []string{"", "xelatex", "tectonic", "sh"} {
		assert.False(t, IsAllowedEngine(e), e)
	}
	for _, b := range []string{"bibtex", "bibtex8", "biber"} {
		assert.True(t, IsAllowedBibliography(b), b)
	}
	assert.False(t, IsAllowedBibliography("makeindex"))

	engines := Engines()
	engines[0] = "mutated"
	assert.True(t, IsAllowedEngine("latex"), "Engines must return a copy")
}
