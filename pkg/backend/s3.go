package backend

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/foomo/caretaker/pkg/terraform"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NameS3 is the display name of the S3 backend
const NameS3 = "Amazon S3"

type (
	// S3API is the subset of the S3 client used by the S3 backend.
	S3API interface {
		manager.UploadAPIClient
		GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
		ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	}
	// S3Config holds the connection settings of the S3 backend.
	S3Config struct {
		Region          string `mapstructure:"region"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		SessionToken    string `mapstructure:"session_token"`
		UsePathStyle    bool   `mapstructure:"use_path_style"`
	}
	// S3 delegates versioning to a versioning enabled S3 bucket.
	S3 struct {
		l        *zap.Logger
		client   S3API
		uploader *manager.Uploader
	}
)

// NewS3 creates a S3 backend from the given configuration.
// Without explicit credentials the default AWS credential chain is used.
func NewS3(ctx context.Context, l *zap.Logger, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// required for most S3-compatible services
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewS3FromClient(l, client), nil
}

// NewS3FromClient creates a S3 backend from an existing client.
func NewS3FromClient(l *zap.Logger, client S3API) *S3 {
	return &S3{
		l:        l.Named("s3"),
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (b *S3) Name() string {
	return NameS3
}

func (b *S3) Versions(ctx context.Context, bucket, key string) ([]Version, error) {
	versions := []Version{}
	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	}
	for {
		out, err := b.client.ListObjectVersions(ctx, input)
		if err != nil {
			b.l.Error("unable to retrieve version list",
				zap.String("bucket", bucket),
				zap.String("key", key),
				zap.Error(err),
			)
			return nil, errors.Wrapf(err, "failed to list versions of %s in %s", key, bucket)
		}
		for _, item := range out.Versions {
			// the prefix also matches longer keys
			if aws.ToString(item.Key) != key {
				continue
			}
			versions = append(versions, Version{
				ID:           aws.ToString(item.VersionId),
				LastModified: aws.ToTime(item.LastModified),
				Size:         aws.ToInt64(item.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.KeyMarker = out.NextKeyMarker
		input.VersionIdMarker = out.NextVersionIdMarker
	}

	sortVersions(versions)
	return versions, nil
}

func (b *S3) Store(ctx context.Context, localFile, bucket, key string, checkIdentical bool) (StoreOutcome, error) {
	if checkIdentical {
		// a failure here is usually caused by this being the first version
		same, err := b.identical(ctx, localFile, bucket, key)
		if err != nil {
			b.l.Debug("there was a problem comparing the previous version with the local file, "+
				"this is not fatal and can be caused by this being the first stored version",
				zap.String("key", key),
				zap.Error(err),
			)
		} else if same {
			b.l.Info("latest backup is equal to the remote version", zap.String("key", key))
			return OutcomeIdentical, nil
		}
	}

	f, err := os.Open(localFile)
	if err != nil {
		b.l.Error("there was a problem storing the backup", zap.String("file", localFile), zap.Error(err))
		return OutcomeFailed, errors.Wrapf(err, "failed to open %s", localFile)
	}
	defer f.Close()

	if _, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		b.l.Error("there was a problem storing the backup", zap.String("file", localFile), zap.Error(err))
		return OutcomeFailed, errors.Wrapf(err, "failed to upload %s", localFile)
	}

	b.l.Info("backup stored", zap.String("file", localFile), zap.String("key", key))
	return OutcomeStored, nil
}

func (b *S3) Object(ctx context.Context, bucket, key, versionID string) ([]byte, error) {
	b.l.Info("fetching version", zap.String("version", versionID), zap.String("key", key))
	var buf bytes.Buffer
	if err := b.get(ctx, &buf, bucket, key, versionID); err != nil {
		b.l.Error("unable to download version", zap.String("version", versionID), zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *S3) Download(ctx context.Context, localFile, bucket, key, versionID string) (err error) {
	f, err := os.Create(localFile)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", localFile)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close %s", localFile)
		}
		if err != nil {
			_ = os.Remove(localFile)
			b.l.Error("unable to download version",
				zap.String("version", versionID),
				zap.String("key", key),
				zap.String("file", localFile),
				zap.Error(err),
			)
		}
	}()

	if err := b.get(ctx, f, bucket, key, versionID); err != nil {
		return err
	}
	b.l.Info("saved version", zap.String("version", versionID), zap.String("key", key), zap.String("file", localFile))
	return nil
}

// Terraform returns the files provisioning a versioned bucket and a user to access it.
func (b *S3) Terraform(bucket string) (map[string][]byte, error) {
	return terraform.AWS(bucket)
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// get copies a version into w, the latest one if versionID is empty.
func (b *S3) get(ctx context.Context, w io.Writer, bucket, key, versionID string) error {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	out, err := b.client.GetObject(ctx, input)
	if err != nil {
		if isS3NotFound(err) {
			return errors.Wrap(versionNotFound(bucket, key, versionID), err.Error())
		}
		return errors.Wrapf(err, "failed to get version %s of %s", versionID, key)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return errors.Wrapf(err, "failed to read version %s of %s", versionID, key)
	}
	return nil
}

// identical downloads the latest version to a temporary location and compares it with localFile.
func (b *S3) identical(ctx context.Context, localFile, bucket, key string) (bool, error) {
	tmp, err := os.MkdirTemp("", "caretaker-compare-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(tmp)

	latest := filepath.Join(tmp, "latest")
	f, err := os.Create(latest)
	if err != nil {
		return false, err
	}
	err = b.get(ctx, f, bucket, key, "")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return false, err
	}
	return sameFile(latest, localFile)
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchVersion", "NotFound", "InvalidArgument":
			return true
		}
	}
	return false
}
