package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/frontend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestHandler(t *testing.T) (http.Handler, backend.Backend) {
	t.Helper()
	l := zaptest.NewLogger(t)
	b, err := backend.NewLocal(l, t.TempDir())
	require.NoError(t, err)
	h := NewHTTP(l, frontend.NewStandard(l), b, "site", WithBasePath("/backups/"))
	return h, b
}

func store(t *testing.T, b backend.Backend, key, content string) backend.Version {
	t.Helper()
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), key)
	require.NoError(t, os.WriteFile(file, []byte(content), 0600))
	_, err := b.Store(ctx, file, "site", key, false)
	require.NoError(t, err)
	latest, err := backend.Latest(ctx, b, "site", key)
	require.NoError(t, err)
	require.NotNil(t, latest)
	return *latest
}

func get(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHTTP_List(t *testing.T) {
	h, b := newTestHandler(t)

	rec := get(h, http.MethodGet, "/backups/list/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": [], "archive": []}`, rec.Body.String())

	data := store(t, b, frontend.DefaultDataFile, `[]`)
	rec = get(h, http.MethodGet, "/backups/list/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, data.ID, resp.Data[0].ID)
	assert.Equal(t, int64(2), resp.Data[0].Size)
	assert.Empty(t, resp.Archive)
}

func TestHTTP_Download(t *testing.T) {
	h, b := newTestHandler(t)
	data := store(t, b, frontend.DefaultDataFile, `[{"model": "page"}]`)
	media := store(t, b, frontend.DefaultArchiveFile, "PK")

	for _, typ := range []string{"data", "sql"} {
		rec := get(h, http.MethodGet, "/backups/download/"+typ+"/version/"+data.ID+"/")
		require.Equal(t, http.StatusOK, rec.Code, typ)
		assert.Equal(t, `[{"model": "page"}]`, rec.Body.String())
		assert.Equal(t, `attachment; filename="`+data.ID+`-data.json"`, rec.Header().Get("Content-Disposition"))
	}

	rec := get(h, http.MethodGet, "/backups/download/media/version/"+media.ID+"/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PK", rec.Body.String())
	assert.Equal(t, `attachment; filename="`+media.ID+`-media.zip"`, rec.Header().Get("Content-Disposition"))
}

func TestHTTP_Errors(t *testing.T) {
	h, b := newTestHandler(t)
	data := store(t, b, frontend.DefaultDataFile, `[]`)

	// a data version is not an archive version
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodGet, "/backups/download/media/version/"+data.ID+"/").Code)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodGet, "/backups/download/data/version/unknown/").Code)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodGet, "/backups/download/data/").Code)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodGet, "/backups/unknown/").Code)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodGet, "/other/list/").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(h, http.MethodPost, "/backups/list/").Code)
}
