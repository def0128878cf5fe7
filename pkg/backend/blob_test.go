package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

func newTestBlob(t *testing.T) (*Blob, *blob.Bucket) {
	t.Helper()
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })
	b, err := NewBlobFromBucket(zaptest.NewLogger(t), bucket, BlobWithClock(tickingClock()))
	require.NoError(t, err)
	return b, bucket
}

func TestNewBlob_RequiresURL(t *testing.T) {
	_, err := NewBlob(context.Background(), zaptest.NewLogger(t), "")
	require.Error(t, err)
}

func TestNewBlob_Mem(t *testing.T) {
	b, err := NewBlob(context.Background(), zaptest.NewLogger(t), "mem://")
	require.NoError(t, err)
	assert.Equal(t, NameBlob, b.Name())
	require.NoError(t, b.Close())
}

func TestBlob_Store(t *testing.T) {
	ctx := context.Background()
	b, bucket := newTestBlob(t)

	outcome, err := b.Store(ctx, writeFile(t, "test"), "b1", "data.json", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, outcome)

	outcome, err = b.Store(ctx, writeFile(t, "test"), "b1", "data.json", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdentical, outcome)

	outcome, err = b.Store(ctx, writeFile(t, "test2"), "b1", "data.json", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, outcome)

	versions, err := b.Versions(ctx, "b1", "data.json")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(5), versions[0].Size)
	assert.Equal(t, int64(4), versions[1].Size)
	assert.NotEqual(t, versions[0].ID, versions[1].ID)

	exists, err := bucket.Exists(ctx, versions[0].locator)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBlob_Versions_Empty(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBlob(t)

	versions, err := b.Versions(ctx, "b1", "data.json")
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)
}

func TestBlob_Versions_IgnoresOtherObjects(t *testing.T) {
	ctx := context.Background()
	b, bucket := newTestBlob(t)

	require.NoError(t, bucket.WriteAll(ctx, "b1/README", []byte("unrelated"), nil))
	_, err := b.Store(ctx, writeFile(t, "media"), "b1", "media.zip", false)
	require.NoError(t, err)
	_, err = b.Store(ctx, writeFile(t, "data"), "b2", "data.json", false)
	require.NoError(t, err)

	versions, err := b.Versions(ctx, "b1", "data.json")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestBlob_Object(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBlob(t)

	_, err := b.Store(ctx, writeFile(t, "test"), "b1", "data.json", false)
	require.NoError(t, err)
	latest, err := Latest(ctx, b, "b1", "data.json")
	require.NoError(t, err)
	require.NotNil(t, latest)

	data, err := b.Object(ctx, "b1", "data.json", latest.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("test"), data)

	target := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, b.Download(ctx, target, "b1", "data.json", latest.ID))
	restored, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("test"), restored)
}

func TestBlob_Object_VersionNotFound(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBlob(t)

	_, err := b.Object(ctx, "b1", "data.json", "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	target := filepath.Join(t.TempDir(), "restored")
	err = b.Download(ctx, target, "b1", "data.json", "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.NoFileExists(t, target)
}

func TestBlob_Store_UnreadableLatestIsNotFatal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bucket, err := fileblob.OpenBucket(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })
	b, err := NewBlobFromBucket(zaptest.NewLogger(t), bucket, BlobWithClock(tickingClock()))
	require.NoError(t, err)

	_, err = b.Store(ctx, writeFile(t, "test"), "b1", "data.json", true)
	require.NoError(t, err)
	latest, err := Latest(ctx, b, "b1", "data.json")
	require.NoError(t, err)
	require.NotNil(t, latest)

	// still listed, but reading it fails
	path := filepath.Join(dir, filepath.FromSlash(latest.locator))
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Symlink(filepath.Join(t.TempDir(), "missing"), path))

	outcome, err := b.Store(ctx, writeFile(t, "test"), "b1", "data.json", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, outcome)

	versions, err := b.Versions(ctx, "b1", "data.json")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}
