package backend

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// register the bucket URL schemes supported by the blob backend
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// NameBlob is the display name of the blob backend
const NameBlob = "Cloud Blob"

type (
	// Blob emulates object versioning on any gocloud.dev bucket.
	// Versions of <bucket>/<key> are stored as <bucket>/<name> with name rendered by a Pattern.
	Blob struct {
		l       *zap.Logger
		bucket  *blob.Bucket
		pattern *Pattern
		now     func() time.Time
	}
	BlobOption func(*Blob)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func BlobWithPattern(v *Pattern) BlobOption {
	return func(o *Blob) {
		o.pattern = v
	}
}

func BlobWithClock(v func() time.Time) BlobOption {
	return func(o *Blob) {
		o.now = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewBlob opens the bucket at bucketURL, e.g. "gs://name", "s3://name", "file:///path" or "mem://".
func NewBlob(ctx context.Context, l *zap.Logger, bucketURL string, opts ...BlobOption) (*Blob, error) {
	if bucketURL == "" {
		return nil, errors.New("blob backend requires a bucket URL")
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bucket %s", bucketURL)
	}
	return NewBlobFromBucket(l, bucket, opts...)
}

// NewBlobFromBucket creates a blob backend from an existing bucket.
// This is useful for testing with memblob.
func NewBlobFromBucket(l *zap.Logger, bucket *blob.Bucket, opts ...BlobOption) (*Blob, error) {
	inst := &Blob{
		l:      l.Named("blob"),
		bucket: bucket,
		now:    time.Now,
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

func (b *Blob) Name() string {
	return NameBlob
}

func (b *Blob) Versions(ctx context.Context, bucket, key string) ([]Version, error) {
	prefix := b.prefix(bucket)
	match := b.pattern.Matcher(key)

	versions := []Version{}
	iter := b.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			b.l.Error("unable to list versions", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
			return nil, errors.Wrapf(err, "failed to list versions of %s in %s", key, bucket)
		}
		if obj.IsDir {
			continue
		}
		versionID, stamp, ok := match(strings.TrimPrefix(obj.Key, prefix))
		if !ok {
			continue
		}
		versions = append(versions, Version{
			ID:           versionID,
			LastModified: StampTime(stamp),
			Size:         obj.Size,
			locator:      obj.Key,
		})
	}

	sortVersions(versions)
	return versions, nil
}

func (b *Blob) Store(ctx context.Context, localFile, bucket, key string, checkIdentical bool) (StoreOutcome, error) {
	if checkIdentical {
		same, err := b.identical(ctx, localFile, bucket, key)
		if err != nil {
			b.l.Debug("could not compare with the latest version", zap.String("key", key), zap.Error(err))
		} else if same {
			b.l.Info("latest backup is equal to the stored version", zap.String("key", key))
			return OutcomeIdentical, nil
		}
	}

	objectKey := b.prefix(bucket) + b.pattern.Render(uuid.New().String(), Stamp(b.now()), key)
	if err := b.upload(ctx, localFile, objectKey); err != nil {
		b.l.Error("there was a problem storing the backup", zap.String("file", localFile), zap.Error(err))
		return OutcomeFailed, errors.Wrapf(err, "failed to store %s", localFile)
	}

	b.l.Info("backup stored", zap.String("file", localFile), zap.String("object", objectKey))
	return OutcomeStored, nil
}

func (b *Blob) Object(ctx context.Context, bucket, key, versionID string) ([]byte, error) {
	b.l.Info("fetching version", zap.String("version", versionID), zap.String("key", key))
	objectKey, err := b.lookup(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	data, err := b.bucket.ReadAll(ctx, objectKey)
	if err != nil {
		return nil, b.readErr(err, bucket, key, versionID)
	}
	return data, nil
}

func (b *Blob) Download(ctx context.Context, localFile, bucket, key, versionID string) (err error) {
	objectKey, err := b.lookup(ctx, bucket, key, versionID)
	if err != nil {
		return err
	}

	r, err := b.bucket.NewReader(ctx, objectKey, nil)
	if err != nil {
		return b.readErr(err, bucket, key, versionID)
	}
	defer r.Close()

	f, err := os.Create(localFile)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", localFile)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(localFile)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		return errors.Wrapf(err, "failed to save version %s of %s", versionID, key)
	}
	b.l.Info("saved version", zap.String("version", versionID), zap.String("key", key), zap.String("file", localFile))
	return nil
}

// Close releases the underlying bucket.
func (b *Blob) Close() error {
	return b.bucket.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (b *Blob) prefix(bucket string) string {
	bucket = strings.Trim(bucket, "/")
	if bucket == "" {
		return ""
	}
	return bucket + "/"
}

func (b *Blob) identical(ctx context.Context, localFile, bucket, key string) (bool, error) {
	latest, err := Latest(ctx, b, bucket, key)
	if err != nil || latest == nil {
		return false, err
	}
	r, err := b.bucket.NewReader(ctx, latest.locator, nil)
	if err != nil {
		return false, err
	}
	defer r.Close()
	return sameAsFile(r, localFile)
}

func (b *Blob) upload(ctx context.Context, localFile, objectKey string) error {
	f, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := b.bucket.NewWriter(ctx, objectKey, nil)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(w, f)
	closeErr := w.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// lookup resolves the object key holding versionID by listing the versions of key.
func (b *Blob) lookup(ctx context.Context, bucket, key, versionID string) (string, error) {
	versions, err := b.Versions(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	for _, v := range versions {
		if v.ID == versionID {
			return v.locator, nil
		}
	}
	b.l.Error("unable to retrieve version", zap.String("version", versionID), zap.String("key", key))
	return "", versionNotFound(bucket, key, versionID)
}

func (b *Blob) readErr(err error, bucket, key, versionID string) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return versionNotFound(bucket, key, versionID)
	}
	return errors.Wrapf(err, "failed to read version %s of %s", versionID, key)
}
