package backend

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NameLocal is the display name of the local backend
const NameLocal = "Local"

type (
	// Local emulates object versioning on a plain directory tree.
	// Versions of <bucket>/<key> live in <dir>/<bucket> as files named by a Pattern.
	Local struct {
		l       *zap.Logger
		dir     string
		pattern *Pattern
		now     func() time.Time
		newID   func() string
	}
	LocalOption func(*Local)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func LocalWithPattern(v *Pattern) LocalOption {
	return func(o *Local) {
		o.pattern = v
	}
}

func LocalWithClock(v func() time.Time) LocalOption {
	return func(o *Local) {
		o.now = v
	}
}

func LocalWithVersionGenerator(v func() string) LocalOption {
	return func(o *Local) {
		o.newID = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewLocal creates a local backend storing versions below dir.
func NewLocal(l *zap.Logger, dir string, opts ...LocalOption) (*Local, error) {
	if dir == "" {
		return nil, errors.New("local backend requires a storage directory")
	}
	inst := &Local{
		l:     l.Named("local"),
		dir:   dir,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(inst)
	}

	if inst.pattern == nil {
		p, err := NewPattern(DefaultFilePattern)
		if err != nil {
			return nil, err
		}
		inst.pattern = p
	}

	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (b *Local) Name() string {
	return NameLocal
}

// Dir returns the storage root.
func (b *Local) Dir() string {
	return b.dir
}

func (b *Local) Versions(_ context.Context, bucket, key string) ([]Version, error) {
	root := filepath.Join(b.dir, bucket)
	match := b.pattern.Matcher(key)

	var versions []Version
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		versionID, stamp, ok := match(relName(root, path))
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		versions = append(versions, Version{
			ID:           versionID,
			LastModified: StampTime(stamp),
			Size:         info.Size(),
			locator:      path,
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) && len(versions) == 0 {
		return []Version{}, nil
	} else if err != nil {
		b.l.Error("unable to list versions", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return nil, errors.Wrapf(err, "failed to list versions of %s in %s", key, bucket)
	}

	sortVersions(versions)
	if versions == nil {
		versions = []Version{}
	}
	return versions, nil
}

func (b *Local) Store(ctx context.Context, localFile, bucket, key string, checkIdentical bool) (StoreOutcome, error) {
	if checkIdentical && b.identical(ctx, localFile, bucket, key) {
		b.l.Info("latest backup is equal to the stored version", zap.String("key", key))
		return OutcomeIdentical, nil
	}

	target := filepath.Join(b.dir, bucket, b.pattern.Render(b.newID(), Stamp(b.now()), key))
	if err := copyFile(localFile, target, true); err != nil {
		b.l.Error("there was a problem storing the backup", zap.String("file", localFile), zap.Error(err))
		return OutcomeFailed, errors.Wrapf(err, "failed to store %s", localFile)
	}

	b.l.Info("backup stored", zap.String("file", localFile), zap.String("path", target))
	return OutcomeStored, nil
}

func (b *Local) Object(_ context.Context, bucket, key, versionID string) ([]byte, error) {
	b.l.Info("fetching version", zap.String("version", versionID), zap.String("key", key))
	path, err := b.lookup(bucket, key, versionID)
	if err != nil {
		b.l.Error("unable to retrieve version", zap.String("version", versionID), zap.String("key", key), zap.Error(err))
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read version %s of %s", versionID, key)
	}
	return data, nil
}

func (b *Local) Download(_ context.Context, localFile, bucket, key, versionID string) error {
	path, err := b.lookup(bucket, key, versionID)
	if err != nil {
		b.l.Error("unable to retrieve version",
			zap.String("version", versionID),
			zap.String("key", key),
			zap.String("file", localFile),
			zap.Error(err),
		)
		return err
	}
	if err := copyFile(path, localFile, false); err != nil {
		b.l.Error("unable to save version",
			zap.String("version", versionID),
			zap.String("key", key),
			zap.String("file", localFile),
			zap.String("path", path),
			zap.Error(err),
		)
		return errors.Wrapf(err, "failed to save version %s of %s", versionID, key)
	}
	b.l.Info("saved version", zap.String("version", versionID), zap.String("key", key), zap.String("file", localFile))
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// identical reports whether the latest version has the bytes of localFile.
// Any failure counts as "nothing to compare against".
func (b *Local) identical(ctx context.Context, localFile, bucket, key string) bool {
	latest, err := Latest(ctx, b, bucket, key)
	if err != nil || latest == nil {
		if err != nil {
			b.l.Debug("could not compare with the latest version", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	same, err := sameFile(latest.locator, localFile)
	if err != nil {
		b.l.Debug("could not compare with the latest version", zap.String("key", key), zap.Error(err))
		return false
	}
	return same
}

// lookup resolves the file holding versionID.
// If several files match, the lexically first one wins.
func (b *Local) lookup(bucket, key, versionID string) (string, error) {
	candidates, err := filepath.Glob(filepath.Join(escapeGlob(b.dir), escapeGlob(bucket), b.pattern.Glob(versionID, key)))
	if err != nil {
		return "", errors.Wrap(err, "invalid version pattern")
	}

	root := filepath.Join(b.dir, bucket)
	match := b.pattern.Matcher(key)
	var paths []string
	for _, candidate := range candidates {
		if id, _, ok := match(relName(root, candidate)); ok && id == versionID {
			paths = append(paths, candidate)
		}
	}

	switch len(paths) {
	case 0:
		return "", versionNotFound(bucket, key, versionID)
	case 1:
	default:
		b.l.Warn("multiple files match version, using the first",
			zap.String("version", versionID),
			zap.Strings("paths", paths),
		)
	}
	return paths[0], nil
}

// copyFile copies src to dst. With mkdir the parent of dst is created.
func copyFile(src, dst string, mkdir bool) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if mkdir {
		if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
			return err
		}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// relName returns path relative to root with forward slashes, so keys may contain "/".
func relName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// sortVersions orders versions latest first.
func sortVersions(versions []Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].LastModified.After(versions[j].LastModified)
	})
}
