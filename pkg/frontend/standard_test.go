package frontend

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/dump"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// staticExporter writes a fixed payload.
type staticExporter struct {
	data string
}

func (e *staticExporter) Export(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, e.data)
	return err
}

// recordingImporter keeps everything it was asked to import.
type recordingImporter struct {
	mu       sync.Mutex
	imported []string
}

func (i *recordingImporter) Import(_ context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.imported = append(i.imported, string(data))
	return nil
}

// failingBackend fails every store of one key.
type failingBackend struct {
	backend.Backend
	key string
}

func (b *failingBackend) Store(ctx context.Context, localFile, bucket, key string, checkIdentical bool) (backend.StoreOutcome, error) {
	if key == b.key {
		return backend.OutcomeFailed, errors.New("store failed")
	}
	return b.Backend.Store(ctx, localFile, bucket, key, checkIdentical)
}

// observingBackend records which local files existed on every store.
type observingBackend struct {
	backend.Backend
	files    []string
	observed [][]bool
}

func (b *observingBackend) Store(ctx context.Context, localFile, bucket, key string, checkIdentical bool) (backend.StoreOutcome, error) {
	dir := filepath.Dir(localFile)
	var exists []bool
	for _, name := range b.files {
		_, err := os.Stat(filepath.Join(dir, name))
		exists = append(exists, err == nil)
	}
	b.observed = append(b.observed, exists)
	return b.Backend.Store(ctx, localFile, bucket, key, checkIdentical)
}

type provisioningBackend struct {
	backend.Backend
}

func (b *provisioningBackend) Terraform(bucket string) (map[string][]byte, error) {
	return map[string][]byte{"main.tf": []byte(`bucket = "` + bucket + `"`)}, nil
}

func newTestBackend(t *testing.T) *backend.Local {
	t.Helper()
	b, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	return b
}

func newTestMedia(t *testing.T) string {
	t.Helper()
	media := filepath.Join(t.TempDir(), "media")
	require.NoError(t, os.MkdirAll(filepath.Join(media, "images"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(media, "images", "logo.png"), []byte("png"), 0644))
	return media
}

func newTestStandard(t *testing.T, opts ...StandardOption) *Standard {
	t.Helper()
	return NewStandard(zaptest.NewLogger(t), append([]StandardOption{
		StandardWithExporter(&staticExporter{data: `[{"model": "page"}]`}),
		StandardWithMediaRoot(newTestMedia(t)),
	}, opts...)...)
}

func zipEntries(t *testing.T, file string) []string {
	t.Helper()
	zr, err := zip.OpenReader(file)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestStandard_CreateBackup(t *testing.T) {
	ctx := context.Background()
	extra := filepath.Join(t.TempDir(), "static")
	require.NoError(t, os.MkdirAll(extra, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(extra, "app.css"), []byte("body{}"), 0644))
	f := newTestStandard(t, StandardWithBackupPaths(extra))

	out := filepath.Join(t.TempDir(), "nested", "out")
	dataFile, archiveFile, err := f.CreateBackup(ctx, out, CreateOptions{Paths: []string{extra}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, DefaultDataFile), dataFile)
	assert.Equal(t, filepath.Join(out, DefaultArchiveFile), archiveFile)

	data, err := os.ReadFile(dataFile)
	require.NoError(t, err)
	assert.Equal(t, `[{"model": "page"}]`, string(data))

	entries := zipEntries(t, archiveFile)
	assert.Contains(t, entries, "media/images/logo.png")
	assert.Contains(t, entries, "static/app.css")
	var css int
	for _, e := range entries {
		if e == "static/app.css" {
			css++
		}
	}
	assert.Equal(t, 1, css)
}

func TestStandard_CreateBackup_CustomNames(t *testing.T) {
	f := newTestStandard(t)
	dataFile, archiveFile, err := f.CreateBackup(context.Background(), t.TempDir(), CreateOptions{
		DataFile:    "db.json",
		ArchiveFile: "files.zip",
	})
	require.NoError(t, err)
	assert.Equal(t, "db.json", filepath.Base(dataFile))
	assert.Equal(t, "files.zip", filepath.Base(archiveFile))
}

func TestStandard_CreateBackup_Errors(t *testing.T) {
	ctx := context.Background()

	_, _, err := newTestStandard(t).CreateBackup(ctx, "", CreateOptions{})
	require.Error(t, err)

	_, _, err = newTestStandard(t).CreateBackup(ctx, t.TempDir(), CreateOptions{SQLMode: true})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = NewStandard(zaptest.NewLogger(t)).CreateBackup(ctx, t.TempDir(), CreateOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = newTestStandard(t).CreateBackup(ctx, t.TempDir(), CreateOptions{
		Paths: []string{filepath.Join(t.TempDir(), "missing")},
	})
	require.Error(t, err)
}

func TestStandard_CreateBackup_SQLMode(t *testing.T) {
	f := newTestStandard(t, StandardWithSQLExporter(&staticExporter{data: "BEGIN;"}))
	dataFile, _, err := f.CreateBackup(context.Background(), t.TempDir(), CreateOptions{SQLMode: true})
	require.NoError(t, err)
	data, err := os.ReadFile(dataFile)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN;", string(data))
}

func TestStandard_PushListPull(t *testing.T) {
	ctx := context.Background()
	f := newTestStandard(t)
	b := newTestBackend(t)

	local := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(local, []byte("test"), 0600))

	outcome, err := f.PushBackup(ctx, b, local, "b1", "data.json", true)
	require.NoError(t, err)
	assert.Equal(t, backend.OutcomeStored, outcome)

	outcome, err = f.PushBackup(ctx, b, local, "b1", "data.json", true)
	require.NoError(t, err)
	assert.Equal(t, backend.OutcomeIdentical, outcome)

	versions, err := f.ListBackups(ctx, b, "b1", "data.json")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	out := filepath.Join(t.TempDir(), "restored.json")
	path, err := f.PullBackup(ctx, b, versions[0].ID, out, "b1", "data.json")
	require.NoError(t, err)
	assert.Equal(t, out, path)
	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test", string(restored))

	data, err := f.PullBackupBytes(ctx, b, versions[0].ID, "b1", "data.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("test"), data)
}

func TestStandard_Pull_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newTestStandard(t)
	b := newTestBackend(t)

	_, err := f.PullBackup(ctx, b, "00000000-0000-0000-0000-000000000000", filepath.Join(t.TempDir(), "x"), "b1", "data.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackupNotFound)
	assert.ErrorIs(t, err, backend.ErrVersionNotFound)

	_, err = f.PullBackupBytes(ctx, b, "00000000-0000-0000-0000-000000000000", "b1", "data.json")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestStandard_RunBackup(t *testing.T) {
	ctx := context.Background()
	f := newTestStandard(t)
	b := &observingBackend{Backend: newTestBackend(t), files: []string{DefaultDataFile, DefaultArchiveFile}}

	result, err := f.RunBackup(ctx, b, "b1", CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, RunResult{Data: backend.OutcomeStored, Archive: backend.OutcomeStored}, result)

	// the whole set exists before the first store
	require.Len(t, b.observed, 2)
	assert.Equal(t, []bool{true, true}, b.observed[0])

	for _, key := range []string{DefaultDataFile, DefaultArchiveFile} {
		versions, err := f.ListBackups(ctx, b, "b1", key)
		require.NoError(t, err)
		assert.Len(t, versions, 1, key)
	}

	result, err = f.RunBackup(ctx, b, "b1", CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, RunResult{Data: backend.OutcomeIdentical, Archive: backend.OutcomeIdentical}, result)
}

func TestStandard_RunBackup_StoresAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newTestStandard(t)
	local := newTestBackend(t)

	result, err := f.RunBackup(ctx, &failingBackend{Backend: local, key: DefaultDataFile}, "b1", CreateOptions{})
	require.Error(t, err)
	assert.Equal(t, backend.OutcomeFailed, result.Data)
	assert.Equal(t, backend.OutcomeStored, result.Archive)

	versions, err := local.Versions(ctx, "b1", DefaultArchiveFile)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	result, err = f.RunBackup(ctx, &failingBackend{Backend: local, key: DefaultArchiveFile}, "b1", CreateOptions{})
	require.Error(t, err)
	assert.Equal(t, backend.OutcomeStored, result.Data)
	assert.Equal(t, backend.OutcomeFailed, result.Archive)
}

func TestStandard_RunBackup_CreateFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := NewStandard(zaptest.NewLogger(t), StandardWithMediaRoot(newTestMedia(t)))
	b := &observingBackend{Backend: newTestBackend(t)}

	_, err := f.RunBackup(ctx, b, "b1", CreateOptions{})
	require.Error(t, err)
	assert.Empty(t, b.observed)
}

func TestStandard_ImportFile(t *testing.T) {
	ctx := context.Background()
	importer := &recordingImporter{}
	sqlImporter := &recordingImporter{}
	restore := t.TempDir()
	f := newTestStandard(t,
		StandardWithImporter(importer),
		StandardWithSQLImporter(sqlImporter),
		StandardWithRestoreDir(restore),
	)
	dir := t.TempDir()

	jsonFile := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`[{"model": "page"}]`), 0600))
	typ, err := f.ImportFile(ctx, jsonFile, true)
	require.NoError(t, err)
	assert.Equal(t, dump.TypeJSON, typ)
	assert.Empty(t, importer.imported)

	typ, err = f.ImportFile(ctx, jsonFile, false)
	require.NoError(t, err)
	assert.Equal(t, dump.TypeJSON, typ)
	assert.Equal(t, []string{`[{"model": "page"}]`}, importer.imported)

	sqlFile := filepath.Join(dir, "dump.sql")
	require.NoError(t, os.WriteFile(sqlFile, []byte("BEGIN TRANSACTION;\nCOMMIT;"), 0600))
	typ, err = f.ImportFile(ctx, sqlFile, false)
	require.NoError(t, err)
	assert.Equal(t, dump.TypeSQL, typ)
	assert.Len(t, sqlImporter.imported, 1)

	_, archiveFile, err := f.CreateBackup(ctx, filepath.Join(dir, "set"), CreateOptions{})
	require.NoError(t, err)
	typ, err = f.ImportFile(ctx, archiveFile, false)
	require.NoError(t, err)
	assert.Equal(t, dump.TypeZIP, typ)
	assert.FileExists(t, filepath.Join(restore, "media", "images", "logo.png"))

	unknown := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unknown, []byte("hello"), 0600))
	typ, err = f.ImportFile(ctx, unknown, false)
	assert.Equal(t, dump.TypeUnknown, typ)
	assert.ErrorIs(t, err, ErrUnknownFileType)

	_, err = f.ImportFile(ctx, filepath.Join(dir, "missing.json"), false)
	require.Error(t, err)
}

func TestStandard_ImportFile_NotConfigured(t *testing.T) {
	f := NewStandard(zaptest.NewLogger(t))
	sqlFile := filepath.Join(t.TempDir(), "dump.sql")
	require.NoError(t, os.WriteFile(sqlFile, []byte("CREATE TABLE x (id int);"), 0600))

	_, err := f.ImportFile(context.Background(), sqlFile, false)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStandard_ExportSQL(t *testing.T) {
	var buf bytes.Buffer
	err := NewStandard(zaptest.NewLogger(t)).ExportSQL(context.Background(), &buf)
	assert.ErrorIs(t, err, ErrNotConfigured)

	f := NewStandard(zaptest.NewLogger(t), StandardWithSQLExporter(&staticExporter{data: "BEGIN;"}))
	require.NoError(t, f.ExportSQL(context.Background(), &buf))
	assert.Equal(t, "BEGIN;", buf.String())
}

func TestStandard_GenerateTerraform(t *testing.T) {
	ctx := context.Background()
	f := newTestStandard(t)

	out := filepath.Join(t.TempDir(), "terraform")
	dir, err := f.GenerateTerraform(ctx, out, newTestBackend(t), "my-backups")
	require.NoError(t, err)
	assert.Equal(t, out, dir)
	assert.NoDirExists(t, out)

	dir, err = f.GenerateTerraform(ctx, out, &provisioningBackend{Backend: newTestBackend(t)}, "my-backups")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "main.tf"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "my-backups"))
}

func TestStandard_PushBackup_LogsFailureAsError(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	f := NewStandard(zap.New(core))
	file := filepath.Join(t.TempDir(), DefaultDataFile)
	require.NoError(t, os.WriteFile(file, []byte("[]"), 0600))

	b := &failingBackend{Backend: newTestBackend(t), key: DefaultDataFile}
	outcome, err := f.PushBackup(ctx, b, file, "b1", DefaultDataFile, true)
	require.Error(t, err)
	assert.Equal(t, backend.OutcomeFailed, outcome)

	entries := logs.FilterMessage("failed to store backup").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}
