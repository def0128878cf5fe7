package frontend

import (
	"context"
	"io"

	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/dump"
	"github.com/foomo/caretaker/pkg/plugin"
	"github.com/pkg/errors"
)

const (
	// DefaultDataFile is the key of the data snapshot
	DefaultDataFile = "data.json"
	// DefaultArchiveFile is the key of the media archive
	DefaultArchiveFile = "media.zip"
)

var (
	// ErrNotFound no frontend is registered under the requested name
	ErrNotFound = plugin.ErrNotFound
	// ErrBackupNotFound a backup could not be pulled
	ErrBackupNotFound = errors.New("backup not found")
	// ErrUnknownFileType an import file is neither a snapshot, a dump nor an archive
	ErrUnknownFileType = errors.New("unknown file type")
	// ErrNotConfigured a collaborator required by the operation is missing
	ErrNotConfigured = errors.New("not configured")
)

type (
	// CreateOptions controls the contents of a local backup set.
	CreateOptions struct {
		// DataFile is the data file name, also used as its key
		DataFile string
		// ArchiveFile is the archive file name, also used as its key
		ArchiveFile string
		// Paths are zipped in addition to the configured media root and backup paths
		Paths []string
		// SQLMode writes a native SQL dump instead of a JSON snapshot
		SQLMode bool
	}
	// RunResult holds the store outcome of both files of a backup run.
	RunResult struct {
		Data    backend.StoreOutcome
		Archive backend.StoreOutcome
	}
	// Frontend creates backup sets of an application and moves them through a backend.
	Frontend interface {
		Name() string

		// CreateBackup writes a data file and an archive file to outputDir.
		CreateBackup(ctx context.Context, outputDir string, opts CreateOptions) (dataFile, archiveFile string, err error)
		// PushBackup stores localFile as a new version of key.
		PushBackup(ctx context.Context, b backend.Backend, localFile, bucket, key string, checkIdentical bool) (backend.StoreOutcome, error)
		// ListBackups lists the versions of key, latest first.
		ListBackups(ctx context.Context, b backend.Backend, bucket, key string) ([]backend.Version, error)
		// PullBackup downloads a version to outFile and returns its normalized path.
		PullBackup(ctx context.Context, b backend.Backend, versionID, outFile, bucket, key string) (string, error)
		// PullBackupBytes returns the bytes of a version.
		PullBackupBytes(ctx context.Context, b backend.Backend, versionID, bucket, key string) ([]byte, error)
		// RunBackup creates a backup set in a temporary directory and pushes both files.
		RunBackup(ctx context.Context, b backend.Backend, bucket string, opts CreateOptions) (RunResult, error)
		// ImportFile restores a snapshot, a SQL dump or an archive.
		ImportFile(ctx context.Context, inputFile string, dryRun bool) (dump.FileType, error)
		// ExportSQL writes a native SQL dump to w.
		ExportSQL(ctx context.Context, w io.Writer) error
		// GenerateTerraform writes the infrastructure files b needs to outputDir.
		GenerateTerraform(ctx context.Context, outputDir string, b backend.Backend, bucket string) (string, error)
	}
)

// pullError marks backend failures of a pull as ErrBackupNotFound
// while keeping the cause inspectable.
type pullError struct {
	err error
}

func (e *pullError) Error() string {
	return ErrBackupNotFound.Error() + ": " + e.err.Error()
}

func (e *pullError) Is(target error) bool {
	return target == ErrBackupNotFound
}

func (e *pullError) Unwrap() error {
	return e.err
}
