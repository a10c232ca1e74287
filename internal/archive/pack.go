package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// Pack writes the whole project folder into a ZIP at outputPath. Entry names
// are prefixed with the folder's own name and written in lexical walk order.
// On failure the partial archive is removed and a packaging error returned.
func Pack(ctx context.Context, projectDir, outputPath string) (string, error) {
	if err := pack(ctx, projectDir, outputPath); err != nil {
		_ = os.Remove(outputPath)
		return "", tberrors.PackagingFailed(err)
	}
	return outputPath, nil
}

func pack(ctx context.Context, projectDir, outputPath string) error {
	info, err := os.Stat(projectDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", projectDir)
	}
	absOut, err := filepath.Abs(outputPath)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	prefix := filepath.Base(projectDir)

	walkErr := filepath.WalkDir(projectDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if abs, _ := filepath.Abs(p); abs == absOut {
			return nil
		}
		rel, err := filepath.Rel(projectDir, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))
		if d.IsDir() {
			return addDir(zw, d, name)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return addFile(zw, p, d, name)
	})

	closeErr := zw.Close()
	fileErr := out.Close()
	switch {
	case walkErr != nil:
		return walkErr
	case closeErr != nil:
		return closeErr
	default:
		return fileErr
	}
}

func addDir(zw *zip.Writer, d fs.DirEntry, name string) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name + "/"
	hdr.Method = zip.Store
	_, err = zw.CreateHeader(hdr)
	return err
}

func addFile(zw *zip.Writer, p string, d fs.DirEntry, name string) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
