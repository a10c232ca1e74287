// Package project finds the primary LaTeX source inside an extracted project tree.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// Source identifies the primary .tex file of a project.
type Source struct {
	Dir  string // project folder, the working directory for every compiler process
	Path string // absolute path of the .tex file
	Name string // file name, e.g. main.tex
	Base string // name without extension, e.g. main
}

// ProjectName returns the project folder's own name.
func (s Source) ProjectName() string {
	return filepath.Base(s.Dir)
}

// Artifact returns the path of a sibling file sharing the source's base name,
// e.g. Artifact(".pdf") for the output document.
func (s Source) Artifact(ext string) string {
	return filepath.Join(s.Dir, s.Base+ext)
}

// Locate expects exactly one entry directly under destDir (the project folder)
// and exactly one regular .tex file directly inside that folder.
func Locate(destDir string) (Source, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return Source{}, tberrors.InternalError("cannot list extraction directory", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return Source{}, tberrors.ProjectLayoutInvalid(len(entries)).
			WithContext("dir", destDir)
	}
	dir := filepath.Join(destDir, entries[0].Name())

	sources, err := regularFilesWithExt(dir, ".tex")
	if err != nil {
		return Source{}, tberrors.InternalError("cannot list project folder", err)
	}
	if len(sources) != 1 {
		return Source{}, tberrors.AmbiguousProject(len(sources))
	}

	name := sources[0]
	return Source{
		Dir:  dir,
		Path: filepath.Join(dir, name),
		Name: name,
		Base: strings.TrimSuffix(name, filepath.Ext(name)),
	}, nil
}

// HasBibliography reports whether a regular .bib file sits directly in dir.
func HasBibliography(dir string) (bool, error) {
	bibs, err := regularFilesWithExt(dir, ".bib")
	if err != nil {
		return false, err
	}
	return len(bibs) > 0, nil
}

// regularFilesWithExt lists, non-recursively and sorted, regular files whose
// name ends in ext. Directories named like sources (e.g. "chapter.tex/") do not count.
func regularFilesWithExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
