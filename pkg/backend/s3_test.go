package backend

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeS3Object struct {
	versionID string
	data      []byte
	modified  time.Time
}

// fakeS3 is an in-memory versioning enabled bucket store.
// Multipart uploads are not supported, test payloads stay below the part size.
type fakeS3 struct {
	mu      sync.Mutex
	now     func() time.Time
	objects map[string][]fakeS3Object
	seq     int
	// pageSize limits ListObjectVersions results per call
	pageSize int
	// getErr is returned by GetObject if set
	getErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		now:      tickingClock(),
		objects:  map[string][]fakeS3Object{},
		pageSize: 1000,
	}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := "v" + strconv.Itoa(f.seq)
	k := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	f.objects[k] = append(f.objects[k], fakeS3Object{versionID: id, data: data, modified: f.now()})
	return &s3.PutObjectOutput{VersionId: aws.String(id)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	objects := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if len(objects) == 0 {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	if params.VersionId == nil {
		return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(objects[len(objects)-1].data))}, nil
	}
	for _, o := range objects {
		if o.versionID == aws.ToString(params.VersionId) {
			return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.data))}, nil
		}
	}
	return nil, &smithy.GenericAPIError{Code: "NoSuchVersion", Message: "The specified version does not exist."}
}

func (f *fakeS3) ListObjectVersions(_ context.Context, params *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Prefix)
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var all []types.ObjectVersion
	for _, k := range keys {
		objects := f.objects[k]
		key := k[len(aws.ToString(params.Bucket))+1:]
		for i, o := range objects {
			all = append(all, types.ObjectVersion{
				Key:          aws.String(key),
				VersionId:    aws.String(o.versionID),
				LastModified: aws.Time(o.modified),
				Size:         aws.Int64(int64(len(o.data))),
				IsLatest:     aws.Bool(i == len(objects)-1),
			})
		}
	}

	start := 0
	if params.VersionIdMarker != nil {
		for i, v := range all {
			if aws.ToString(v.VersionId) == aws.ToString(params.VersionIdMarker) {
				start = i + 1
				break
			}
		}
	}
	end := min(start+f.pageSize, len(all))
	page := all[start:end]
	out := &s3.ListObjectVersionsOutput{Versions: page, IsTruncated: aws.Bool(end < len(all))}
	if end < len(all) {
		out.NextKeyMarker = page[len(page)-1].Key
		out.NextVersionIdMarker = page[len(page)-1].VersionId
	}
	return out, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "NotImplemented"}
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "NotImplemented"}
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "NotImplemented"}
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "NotImplemented"}
}

func TestS3_Store(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	b := NewS3FromClient(zaptest.NewLogger(t), client)

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
	assert.Equal(t, "v2", versions[0].ID)
	assert.Equal(t, int64(5), versions[0].Size)
	assert.Equal(t, "v1", versions[1].ID)
}

func TestS3_Store_CompareFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	client.getErr = &smithy.GenericAPIError{Code: "AccessDenied"}
	b := NewS3FromClient(zaptest.NewLogger(t), client)

	outcome, err := b.Store(ctx, writeFile(t, "test"), "b1", "data.json", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, outcome)
}

func TestS3_Versions_ExactKey(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	b := NewS3FromClient(zaptest.NewLogger(t), client)

	_, err := b.Store(ctx, writeFile(t, "data"), "b1", "data.json", false)
	require.NoError(t, err)
	_, err = b.Store(ctx, writeFile(t, "other"), "b1", "data.json.bak", false)
	require.NoError(t, err)

	versions, err := b.Versions(ctx, "b1", "data.json")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(4), versions[0].Size)

	versions, err = b.Versions(ctx, "b1", "never.json")
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)
}

func TestS3_Versions_Paginated(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	client.pageSize = 2
	b := NewS3FromClient(zaptest.NewLogger(t), client)

	for _, data := range []string{"1", "22", "333", "4444", "55555"} {
		_, err := b.Store(ctx, writeFile(t, data), "b1", "data.json", false)
		require.NoError(t, err)
	}

	versions, err := b.Versions(ctx, "b1", "data.json")
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, int64(5-i), v.Size)
	}
}

func TestS3_Object(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	b := NewS3FromClient(zaptest.NewLogger(t), client)

	_, err := b.Store(ctx, writeFile(t, "first"), "b1", "data.json", false)
	require.NoError(t, err)
	_, err = b.Store(ctx, writeFile(t, "second"), "b1", "data.json", false)
	require.NoError(t, err)

	data, err := b.Object(ctx, "b1", "data.json", "v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	target := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, b.Download(ctx, target, "b1", "data.json", "v2"))
	restored, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), restored)
}

func TestS3_Object_VersionNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	b := NewS3FromClient(zaptest.NewLogger(t), client)

	_, err := b.Store(ctx, writeFile(t, "test"), "b1", "data.json", false)
	require.NoError(t, err)

	_, err = b.Object(ctx, "b1", "data.json", "v42")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	target := filepath.Join(t.TempDir(), "restored")
	err = b.Download(ctx, target, "b1", "data.json", "v42")
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.NoFileExists(t, target)
}

func TestS3_Terraform(t *testing.T) {
	b := NewS3FromClient(zaptest.NewLogger(t), newFakeS3())

	var p Provisioner = b
	files, err := p.Terraform("my-backups")
	require.NoError(t, err)
	assert.Contains(t, string(files["main.tf"]), `"my-backups"`)
	assert.Contains(t, files, "output.tf")
}
