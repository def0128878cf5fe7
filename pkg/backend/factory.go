package backend

import (
	"context"

	"github.com/foomo/caretaker/pkg/plugin"
	"github.com/foomo/caretaker/pkg/utils"
	"go.uber.org/zap"
)

// Backend ids usable in candidate lists, in default lookup order.
const (
	IDS3    = "s3"
	IDGCS   = "gcs"
	IDBlob  = "blob"
	IDLocal = "local"
)

type (
	// LocalConfig configures the local backend.
	LocalConfig struct {
		Directory   string `mapstructure:"store_directory"`
		FilePattern string `mapstructure:"file_pattern"`
	}
	// BlobConfig configures the blob backend.
	BlobConfig struct {
		URL         string `mapstructure:"url"`
		FilePattern string `mapstructure:"file_pattern"`
	}
	// Settings configures backend selection and all backends.
	Settings struct {
		// Name is the display name of the default backend
		Name string `mapstructure:"name"`
		// Backends lists candidate backend ids
		Backends []string    `mapstructure:"backends"`
		Local    LocalConfig `mapstructure:"local"`
		Blob     BlobConfig  `mapstructure:"blob"`
		S3       S3Config    `mapstructure:"s3"`
		GCS      GCSConfig   `mapstructure:"gcs"`
	}
	// Factory selects a backend by display name.
	Factory = plugin.Registry[Backend]
)

// NewFactory registers the built-in backends configured by s.
// Without a requested or default name the S3 backend is selected.
func NewFactory(l *zap.Logger, s Settings) *Factory {
	return plugin.New(l, "backend",
		plugin.Settings{
			Candidates: s.Backends,
			Default:    s.Name,
			Fallback:   NameS3,
		},
		plugin.Plugin[Backend]{
			ID:   IDS3,
			Name: NameS3,
			New: func(ctx context.Context) (Backend, error) {
				b, err := NewS3(ctx, l, s.S3)
				if err != nil {
					return nil, err
				}
				return b, nil
			},
		},
		plugin.Plugin[Backend]{
			ID:   IDGCS,
			Name: NameGCS,
			New: func(ctx context.Context) (Backend, error) {
				b, err := NewGCS(ctx, l, s.GCS)
				if err != nil {
					return nil, err
				}
				return b, nil
			},
		},
		plugin.Plugin[Backend]{
			ID:   IDBlob,
			Name: NameBlob,
			New: func(ctx context.Context) (Backend, error) {
				pattern, err := NewPattern(s.Blob.FilePattern)
				if err != nil {
					return nil, err
				}
				b, err := NewBlob(ctx, l, s.Blob.URL, BlobWithPattern(pattern))
				if err != nil {
					return nil, err
				}
				return b, nil
			},
		},
		plugin.Plugin[Backend]{
			ID:   IDLocal,
			Name: NameLocal,
			New: func(ctx context.Context) (Backend, error) {
				pattern, err := NewPattern(s.Local.FilePattern)
				if err != nil {
					return nil, err
				}
				b, err := NewLocal(l, utils.ExpandPath(s.Local.Directory), LocalWithPattern(pattern))
				if err != nil {
					return nil, err
				}
				return b, nil
			},
		},
	)
}
