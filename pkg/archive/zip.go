package archive

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Zip writes every file below the given directories to out.
// Entries are named relative to the parent of each directory, so a media root
// "/srv/app/media" is stored as "media/...".
func Zip(l *zap.Logger, paths []string, out string) (err error) {
	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", out)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close %s", out)
		}
		if err != nil {
			_ = os.Remove(out)
		}
	}()

	zw := zip.NewWriter(f)
	for _, root := range paths {
		if err := addTree(zw, root); err != nil {
			_ = zw.Close()
			return err
		}
		l.Debug("added directory to archive", zap.String("path", root))
	}
	if err := zw.Close(); err != nil {
		return errors.Wrapf(err, "failed to finish %s", out)
	}
	l.Info("wrote archive", zap.String("file", out), zap.Strings("paths", paths))
	return nil
}

// Unzip extracts in below dest. With dryRun entries are only validated.
// Entries escaping dest are rejected.
func Unzip(l *zap.Logger, in, dest string, dryRun bool) ([]string, error) {
	zr, err := zip.OpenReader(in)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", in)
	}
	defer zr.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return nil, err
	}

	var extracted []string
	for _, zf := range zr.File {
		target, err := entryPath(dest, zf.Name)
		if err != nil {
			return extracted, err
		}
		if zf.FileInfo().IsDir() {
			if !dryRun {
				if err := os.MkdirAll(target, 0755); err != nil {
					return extracted, err
				}
			}
			continue
		}
		if dryRun {
			l.Info("would extract", zap.String("entry", zf.Name), zap.String("target", target))
			extracted = append(extracted, target)
			continue
		}
		if err := extract(zf, target); err != nil {
			return extracted, err
		}
		extracted = append(extracted, target)
	}
	l.Info("extracted archive", zap.String("file", in), zap.String("dest", dest), zap.Int("files", len(extracted)), zap.Bool("dry_run", dryRun))
	return extracted, nil
}

func addTree(zw *zip.Writer, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return errors.Wrapf(err, "could not find %s", root)
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", root)
	}
	parent := filepath.Dir(root)

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() && !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(parent, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		return addFile(zw, p, name)
	})
}

func addFile(zw *zip.Writer, file, name string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return errors.Wrapf(err, "failed to add %s", file)
	}
	return nil
}

// entryPath maps an entry name below dest, rejecting absolute names and ".." elements.
func entryPath(dest, name string) (string, error) {
	clean := strings.TrimSuffix(strings.ReplaceAll(name, `\`, "/"), "/")
	if !fs.ValidPath(clean) || clean == "." {
		return "", errors.Errorf("illegal archive entry %q", name)
	}
	return filepath.Join(dest, filepath.FromSlash(clean)), nil
}

func extract(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	r, err := zf.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open entry %s", zf.Name)
	}
	defer r.Close()

	perm := zf.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	w, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "failed to extract %s", zf.Name)
	}
	return w.Close()
}
