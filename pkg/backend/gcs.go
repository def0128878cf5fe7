package backend

import (
	"bytes"
	"context"
	"io"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// NameGCS is the display name of the Google Cloud Storage backend
const NameGCS = "Google Cloud Storage"

type (
	// GCSConfig holds the connection settings of the GCS backend.
	GCSConfig struct {
		CredentialsFile string `mapstructure:"credentials_file"`
		Endpoint        string `mapstructure:"endpoint"`
	}
	// GCS delegates versioning to object generations of a versioning enabled bucket.
	// Version ids are decimal generation numbers.
	GCS struct {
		l      *zap.Logger
		client *storage.Client
	}
)

// NewGCS creates a GCS backend. Without a credentials file the application default credentials are used.
func NewGCS(ctx context.Context, l *zap.Logger, cfg GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage client")
	}
	return NewGCSFromClient(l, client), nil
}

// NewGCSFromClient creates a GCS backend from an existing client.
func NewGCSFromClient(l *zap.Logger, client *storage.Client) *GCS {
	return &GCS{
		l:      l.Named("gcs"),
		client: client,
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (b *GCS) Name() string {
	return NameGCS
}

func (b *GCS) Versions(ctx context.Context, bucket, key string) ([]Version, error) {
	versions := []Version{}
	it := b.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: key, Versions: true})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			b.l.Error("unable to retrieve version list", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
			return nil, errors.Wrapf(err, "failed to list versions of %s in %s", key, bucket)
		}
		if attrs.Name != key {
			continue
		}
		versions = append(versions, Version{
			ID:           strconv.FormatInt(attrs.Generation, 10),
			LastModified: attrs.Created,
			Size:         attrs.Size,
		})
	}

	sortVersions(versions)
	return versions, nil
}

func (b *GCS) Store(ctx context.Context, localFile, bucket, key string, checkIdentical bool) (StoreOutcome, error) {
	if checkIdentical {
		same, err := b.identical(ctx, localFile, bucket, key)
		if err != nil {
			b.l.Debug("could not compare with the latest version", zap.String("key", key), zap.Error(err))
		} else if same {
			b.l.Info("latest backup is equal to the remote version", zap.String("key", key))
			return OutcomeIdentical, nil
		}
	}

	if err := b.upload(ctx, localFile, bucket, key); err != nil {
		b.l.Error("there was a problem storing the backup", zap.String("file", localFile), zap.Error(err))
		return OutcomeFailed, errors.Wrapf(err, "failed to upload %s", localFile)
	}

	b.l.Info("backup stored", zap.String("file", localFile), zap.String("key", key))
	return OutcomeStored, nil
}

func (b *GCS) Object(ctx context.Context, bucket, key, versionID string) ([]byte, error) {
	b.l.Info("fetching version", zap.String("version", versionID), zap.String("key", key))
	var buf bytes.Buffer
	if err := b.get(ctx, &buf, bucket, key, versionID); err != nil {
		b.l.Error("unable to download version", zap.String("version", versionID), zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *GCS) Download(ctx context.Context, localFile, bucket, key, versionID string) (err error) {
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

	if err := b.get(ctx, f, bucket, key, versionID); err != nil {
		return err
	}
	b.l.Info("saved version", zap.String("version", versionID), zap.String("key", key), zap.String("file", localFile))
	return nil
}

// Close releases the underlying client.
func (b *GCS) Close() error {
	return b.client.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// get copies a generation into w, the live one if versionID is empty.
func (b *GCS) get(ctx context.Context, w io.Writer, bucket, key, versionID string) error {
	obj := b.client.Bucket(bucket).Object(key)
	if versionID != "" {
		generation, err := ParseGeneration(versionID)
		if err != nil {
			return errors.Wrap(versionNotFound(bucket, key, versionID), err.Error())
		}
		obj = obj.Generation(generation)
	}

	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return versionNotFound(bucket, key, versionID)
	} else if err != nil {
		return errors.Wrapf(err, "failed to get version %s of %s", versionID, key)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return errors.Wrapf(err, "failed to read version %s of %s", versionID, key)
	}
	return nil
}

func (b *GCS) identical(ctx context.Context, localFile, bucket, key string) (bool, error) {
	r, err := b.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return false, err
	}
	defer r.Close()
	return sameAsFile(r, localFile)
}

func (b *GCS) upload(ctx context.Context, localFile, bucket, key string) error {
	f, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer f.Close()

	w := b.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ParseGeneration converts a version id into a GCS object generation.
func ParseGeneration(versionID string) (int64, error) {
	generation, err := strconv.ParseInt(versionID, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid generation %q", versionID)
	}
	if generation <= 0 {
		return 0, errors.Errorf("invalid generation %q", versionID)
	}
	return generation, nil
}
