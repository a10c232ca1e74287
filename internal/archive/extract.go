package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

var (
	ErrTooManyEntries = errors.New("archive has too many entries")
	ErrTooLarge       = errors.New("archive expands beyond the size limit")
)

type entry struct {
	file *zip.File
	name string // normalized, relative to the project root
	dir  bool
}

// writeError is a filesystem failure while materializing one entry. name is
// relative to the project root.
type writeError struct {
	name string
	err  error
}

func (e *writeError) Error() string { return fmt.Sprintf("write %s: %v", e.name, e.err) }
func (e *writeError) Unwrap() error { return e.err }

// Extract unpacks the ZIP held in data into destDir/projectName. Every failure
// is returned as an archive-category error. The user text describes the input
// and never names a path outside the archive.
func Extract(ctx context.Context, data []byte, destDir, projectName string, limits Limits) error {
	err := extract(ctx, data, destDir, projectName, limits)
	if err == nil || tberrors.IsCategory(err, tberrors.CategoryArchive) {
		return err
	}
	return tberrors.ExtractionFailed(err, describe(err))
}

// describe renders err for the submitter.
func describe(err error) string {
	var we *writeError
	if errors.As(err, &we) {
		return fmt.Sprintf("the entry %q conflicts with another entry or cannot be written", we.name)
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return ""
	}
	return err.Error()
}

func extract(ctx context.Context, data []byte, destDir, projectName string, limits Limits) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if limits.MaxEntries > 0 && len(zr.File) > limits.MaxEntries {
		return fmt.Errorf("%w (%d > %d)", ErrTooManyEntries, len(zr.File), limits.MaxEntries)
	}

	entries, err := collectEntries(zr.File)
	if err != nil {
		return err
	}
	entries = unwrap(entries)

	root := filepath.Join(destDir, projectName)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("create project folder: %w", err)
	}

	var written int64
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(e.name))
		if e.dir {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return &writeError{name: e.name, err: err}
			}
			continue
		}
		n, err := writeEntry(e.file, target, remaining(limits.MaxBytes, written))
		written += n
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return &writeError{name: e.name, err: err}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func collectEntries(files []*zip.File) ([]entry, error) {
	entries := make([]entry, 0, len(files))
	for _, f := range files {
		name := entryName(f.Name)
		if isMetadata(name) {
			continue
		}
		mode := f.Mode()
		if mode&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("symbolic link entry %q is not allowed", f.Name)
		}
		isDir := strings.HasSuffix(name, "/") || mode.IsDir()
		clean := strings.TrimSuffix(name, "/")
		if clean == "" {
			continue
		}
		if path.IsAbs(clean) || hasDriveLetter(clean) {
			return nil, fmt.Errorf("absolute entry name %q is not allowed", f.Name)
		}
		if !filepath.IsLocal(filepath.FromSlash(clean)) {
			return nil, fmt.Errorf("entry %q escapes the archive root", f.Name)
		}
		if !isDir && !mode.IsRegular() {
			return nil, fmt.Errorf("entry %q is not a regular file", f.Name)
		}
		entries = append(entries, entry{file: f, name: path.Clean(clean), dir: isDir})
	}
	return entries, nil
}

// unwrap strips a single common top-level directory, so an archive of the
// folder itself and an archive of its contents give the same project tree.
func unwrap(entries []entry) []entry {
	if len(entries) == 0 {
		return entries
	}
	var top string
	nested := false
	for _, e := range entries {
		first, rest, found := strings.Cut(e.name, "/")
		if !found && !e.dir {
			return entries
		}
		if top == "" {
			top = first
		} else if first != top {
			return entries
		}
		if found && rest != "" {
			nested = true
		}
	}
	if !nested {
		return entries
	}

	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		_, rest, found := strings.Cut(e.name, "/")
		if !found {
			continue
		}
		e.name = rest
		out = append(out, e)
	}
	return out
}

func hasDriveLetter(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0] | 0x20
	return c >= 'a' && c <= 'z'
}

func remaining(limit, used int64) int64 {
	if limit <= 0 {
		return -1
	}
	return limit - used
}

// writeEntry copies one file entry, enforcing the byte budget on actual
// decompressed bytes rather than on header values. budget < 0 means unlimited.
func writeEntry(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("create %s: %w", path.Dir(f.Name), err)
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", f.Name, err)
	}

	var src io.Reader = rc
	if budget >= 0 {
		src = io.LimitReader(rc, budget+1)
	}
	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return n, copyErr
	}
	if budget >= 0 && n > budget {
		return n, ErrTooLarge
	}
	if closeErr != nil {
		return n, closeErr
	}
	return n, nil
}
