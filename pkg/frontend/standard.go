package frontend

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/foomo/caretaker/pkg/archive"
	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/dump"
	"github.com/foomo/caretaker/pkg/metrics"
	"github.com/foomo/caretaker/pkg/utils"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// NameStandard is the display name of the standard frontend
const NameStandard = "Standard"

type (
	// Standard backs up a database through pluggable exporters and a media
	// directory as a zip archive.
	Standard struct {
		l           *zap.Logger
		exporter    dump.Exporter
		importer    dump.Importer
		sqlExporter dump.Exporter
		sqlImporter dump.Importer
		mediaRoot   string
		paths       []string
		restoreDir  string
		dataFile    string
		archiveFile string
	}
	StandardOption func(*Standard)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// StandardWithExporter sets the JSON snapshot exporter.
func StandardWithExporter(v dump.Exporter) StandardOption {
	return func(o *Standard) {
		o.exporter = v
	}
}

// StandardWithImporter sets the JSON snapshot importer.
func StandardWithImporter(v dump.Importer) StandardOption {
	return func(o *Standard) {
		o.importer = v
	}
}

func StandardWithSQLExporter(v dump.Exporter) StandardOption {
	return func(o *Standard) {
		o.sqlExporter = v
	}
}

func StandardWithSQLImporter(v dump.Importer) StandardOption {
	return func(o *Standard) {
		o.sqlImporter = v
	}
}

func StandardWithMediaRoot(v string) StandardOption {
	return func(o *Standard) {
		o.mediaRoot = v
	}
}

// StandardWithBackupPaths adds directories to every archive.
func StandardWithBackupPaths(v ...string) StandardOption {
	return func(o *Standard) {
		o.paths = append(o.paths, v...)
	}
}

// StandardWithRestoreDir sets where archives are extracted, the parent of the media root by default.
func StandardWithRestoreDir(v string) StandardOption {
	return func(o *Standard) {
		o.restoreDir = v
	}
}

// StandardWithKeys sets the default data and archive file names.
func StandardWithKeys(dataFile, archiveFile string) StandardOption {
	return func(o *Standard) {
		if dataFile != "" {
			o.dataFile = dataFile
		}
		if archiveFile != "" {
			o.archiveFile = archiveFile
		}
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewStandard(l *zap.Logger, opts ...StandardOption) *Standard {
	inst := &Standard{
		l:           l.Named("standard"),
		dataFile:    DefaultDataFile,
		archiveFile: DefaultArchiveFile,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (f *Standard) Name() string {
	return NameStandard
}

// Keys returns the default data and archive keys.
func (f *Standard) Keys() (string, string) {
	return f.dataFile, f.archiveFile
}

func (f *Standard) CreateBackup(ctx context.Context, outputDir string, opts CreateOptions) (string, string, error) {
	if outputDir == "" {
		f.l.Error("no output directory specified")
		return "", "", errors.New("no output directory specified")
	}
	opts = f.withDefaults(opts)

	outputDir = utils.ExpandPath(outputDir)
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		return "", "", errors.Wrapf(err, "failed to create %s", outputDir)
	}

	exporter, err := f.dataExporter(opts.SQLMode)
	if err != nil {
		return "", "", err
	}
	dataFile := filepath.Join(outputDir, opts.DataFile)
	if err := exportToFile(ctx, exporter, dataFile); err != nil {
		f.l.Error("unable to export data", zap.String("file", dataFile), zap.Error(err))
		return "", "", err
	}
	f.l.Info("wrote data file", zap.String("file", dataFile), zap.Bool("sql", opts.SQLMode))

	paths, err := f.archivePaths(opts.Paths)
	if err != nil {
		return "", "", err
	}
	archiveFile := filepath.Join(outputDir, opts.ArchiveFile)
	if err := archive.Zip(f.l, paths, archiveFile); err != nil {
		f.l.Error("unable to write archive", zap.String("file", archiveFile), zap.Error(err))
		return "", "", err
	}

	return dataFile, archiveFile, nil
}

func (f *Standard) PushBackup(ctx context.Context, b backend.Backend, localFile, bucket, key string, checkIdentical bool) (backend.StoreOutcome, error) {
	localFile = utils.ExpandPath(localFile)

	start := time.Now()
	outcome, err := b.Store(ctx, localFile, bucket, key, checkIdentical)
	metrics.StoreCounter.WithLabelValues(b.Name(), key, outcome.String()).Inc()
	metrics.StoreDuration.WithLabelValues(b.Name(), outcome.String()).Observe(time.Since(start).Seconds())

	switch outcome {
	case backend.OutcomeStored:
		f.l.Info("stored backup", zap.String("key", key))
	case backend.OutcomeIdentical:
		f.l.Info("last version was identical", zap.String("key", key))
	default:
		f.l.Error("failed to store backup", zap.String("key", key), zap.Error(err))
	}
	return outcome, err
}

func (f *Standard) ListBackups(ctx context.Context, b backend.Backend, bucket, key string) ([]backend.Version, error) {
	versions, err := b.Versions(ctx, bucket, key)
	metrics.ListCounter.WithLabelValues(b.Name(), metrics.Status(err)).Inc()
	return versions, err
}

func (f *Standard) PullBackup(ctx context.Context, b backend.Backend, versionID, outFile, bucket, key string) (string, error) {
	outFile = utils.ExpandPath(outFile)

	err := b.Download(ctx, outFile, bucket, key, versionID)
	metrics.FetchCounter.WithLabelValues(b.Name(), metrics.Status(err)).Inc()
	if err != nil {
		f.l.Error("unable to download version",
			zap.String("version", versionID),
			zap.String("key", key),
			zap.String("file", outFile),
		)
		return "", &pullError{err: err}
	}
	return outFile, nil
}

func (f *Standard) PullBackupBytes(ctx context.Context, b backend.Backend, versionID, bucket, key string) ([]byte, error) {
	data, err := b.Object(ctx, bucket, key, versionID)
	metrics.FetchCounter.WithLabelValues(b.Name(), metrics.Status(err)).Inc()
	if err != nil {
		return nil, &pullError{err: err}
	}
	return data, nil
}

func (f *Standard) RunBackup(ctx context.Context, b backend.Backend, bucket string, opts CreateOptions) (result RunResult, err error) {
	start := time.Now()
	defer func() {
		status := metrics.Status(err)
		metrics.RunBackupCounter.WithLabelValues(status).Inc()
		metrics.RunBackupDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	opts = f.withDefaults(opts)

	tmp, err := os.MkdirTemp("", "caretaker-")
	if err != nil {
		return result, errors.Wrap(err, "failed to create temporary directory")
	}
	defer os.RemoveAll(tmp)

	dataFile, archiveFile, err := f.CreateBackup(ctx, tmp, opts)
	if err != nil {
		return result, err
	}

	// both stores run even if the first one fails
	var dataErr, archiveErr error
	result.Data, dataErr = f.PushBackup(ctx, b, dataFile, bucket, opts.DataFile, true)
	result.Archive, archiveErr = f.PushBackup(ctx, b, archiveFile, bucket, opts.ArchiveFile, true)
	if err := multierr.Combine(dataErr, archiveErr); err != nil {
		return result, err
	}

	f.l.Info("pushed backups to remote store",
		zap.String("data", result.Data.String()),
		zap.String("archive", result.Archive.String()),
	)
	return result, nil
}

func (f *Standard) ImportFile(ctx context.Context, inputFile string, dryRun bool) (dump.FileType, error) {
	inputFile = utils.ExpandPath(inputFile)
	l := f.l.With(zap.String("file", inputFile), zap.Bool("dry_run", dryRun))

	if _, err := os.Stat(inputFile); err != nil {
		l.Error("input file does not exist")
		return dump.TypeUnknown, errors.Wrapf(err, "failed to open %s", inputFile)
	}

	fileType, err := dump.DetectFile(inputFile)
	if err != nil {
		return dump.TypeUnknown, errors.Wrapf(err, "failed to read %s", inputFile)
	}
	l = l.With(zap.Stringer("type", fileType))

	switch fileType {
	case dump.TypeJSON:
		return fileType, f.importData(ctx, l, f.importer, inputFile, dryRun)
	case dump.TypeSQL:
		return fileType, f.importData(ctx, l, f.sqlImporter, inputFile, dryRun)
	case dump.TypeZIP:
		dir, err := f.archiveRestoreDir()
		if err != nil {
			return fileType, err
		}
		if _, err := archive.Unzip(l, inputFile, dir, dryRun); err != nil {
			return fileType, err
		}
		return fileType, nil
	default:
		l.Error("unable to determine input type")
		return fileType, errors.Wrap(ErrUnknownFileType, inputFile)
	}
}

func (f *Standard) ExportSQL(ctx context.Context, w io.Writer) error {
	if f.sqlExporter == nil {
		return errors.Wrap(ErrNotConfigured, "sql exporter")
	}
	return f.sqlExporter.Export(ctx, w)
}

func (f *Standard) GenerateTerraform(_ context.Context, outputDir string, b backend.Backend, bucket string) (string, error) {
	outputDir = utils.ExpandPath(outputDir)

	p, ok := b.(backend.Provisioner)
	if !ok {
		f.l.Info("backend does not need provisioning", zap.String("backend", b.Name()))
		return outputDir, nil
	}

	files, err := p.Terraform(bucket)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", outputDir)
	}
	for name, data := range files {
		f.l.Info("writing terraform file", zap.String("file", name), zap.String("dir", outputDir))
		if err := os.WriteFile(filepath.Join(outputDir, name), data, 0600); err != nil {
			return "", errors.Wrapf(err, "failed to write %s", name)
		}
	}

	f.l.Info("terraform files were written", zap.String("dir", outputDir))
	return outputDir, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (f *Standard) withDefaults(opts CreateOptions) CreateOptions {
	if opts.DataFile == "" {
		opts.DataFile = f.dataFile
	}
	if opts.ArchiveFile == "" {
		opts.ArchiveFile = f.archiveFile
	}
	return opts
}

func (f *Standard) dataExporter(sqlMode bool) (dump.Exporter, error) {
	if sqlMode {
		if f.sqlExporter == nil {
			return nil, errors.Wrap(ErrNotConfigured, "sql exporter")
		}
		return f.sqlExporter, nil
	}
	if f.exporter == nil {
		return nil, errors.Wrap(ErrNotConfigured, "exporter")
	}
	return f.exporter, nil
}

// archivePaths returns the normalized, deduplicated directories to zip.
// Every directory must exist.
func (f *Standard) archivePaths(extra []string) ([]string, error) {
	var candidates []string
	candidates = append(candidates, extra...)
	if f.mediaRoot != "" {
		candidates = append(candidates, f.mediaRoot)
	}
	candidates = append(candidates, f.paths...)

	seen := map[string]bool{}
	paths := make([]string, 0, len(candidates))
	for _, p := range candidates {
		p = filepath.Clean(utils.ExpandPath(p))
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := os.Stat(p); err != nil {
			f.l.Error("could not find backup path", zap.String("path", p))
			return nil, errors.Wrapf(err, "could not find %s", p)
		}
		paths = append(paths, p)
	}
	f.l.Info("paths to be zipped", zap.Strings("paths", paths))
	return paths, nil
}

func (f *Standard) archiveRestoreDir() (string, error) {
	if f.restoreDir != "" {
		return utils.ExpandPath(f.restoreDir), nil
	}
	if f.mediaRoot != "" {
		return filepath.Dir(filepath.Clean(utils.ExpandPath(f.mediaRoot))), nil
	}
	return "", errors.Wrap(ErrNotConfigured, "media root")
}

func (f *Standard) importData(ctx context.Context, l *zap.Logger, importer dump.Importer, inputFile string, dryRun bool) error {
	if importer == nil {
		return errors.Wrap(ErrNotConfigured, "importer")
	}
	if dryRun {
		l.Info("operating in dry run mode, nothing imported")
		return nil
	}

	in, err := os.Open(inputFile)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", inputFile)
	}
	defer in.Close()

	if err := importer.Import(ctx, in); err != nil {
		l.Error("unable to import", zap.Error(err))
		return err
	}
	l.Info("imported file")
	return nil
}

func exportToFile(ctx context.Context, exporter dump.Exporter, file string) (err error) {
	out, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", file)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close %s", file)
		}
		if err != nil {
			_ = os.Remove(file)
		}
	}()
	return exporter.Export(ctx, out)
}
