package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/frontend"
	"github.com/foomo/caretaker/pkg/metrics"
	httputils "github.com/foomo/keel/utils/net/http"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	HTTP struct {
		l          *zap.Logger
		path       string
		frontend   frontend.Frontend
		backend    backend.Backend
		bucket     string
		dataKey    string
		archiveKey string
	}
	HTTPOption func(*HTTP)
	// ListResponse holds the versions of both keys, latest first
	ListResponse struct {
		Data    []backend.Version `json:"data"`
		Archive []backend.Version `json:"archive"`
	}
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewHTTP returns a handler serving the backups of bucket
func NewHTTP(l *zap.Logger, fe frontend.Frontend, b backend.Backend, bucket string, opts ...HTTPOption) http.Handler {
	inst := &HTTP{
		l:          l.Named("http"),
		path:       "/caretaker",
		frontend:   fe,
		backend:    b,
		bucket:     bucket,
		dataKey:    frontend.DefaultDataFile,
		archiveKey: frontend.DefaultArchiveFile,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithBasePath(v string) HTTPOption {
	return func(o *HTTP) {
		o.path = strings.TrimSuffix(v, "/")
	}
}

func WithKeys(dataKey, archiveKey string) HTTPOption {
	return func(o *HTTP) {
		if dataKey != "" {
			o.dataKey = dataKey
		}
		if archiveKey != "" {
			o.archiveKey = archiveKey
		}
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputils.ServerError(h.l, w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if !strings.HasPrefix(r.URL.Path, h.path+"/") {
		httputils.ServerError(h.l, w, r, http.StatusNotFound, errors.New("not found"))
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, h.path), "/"), "/")
	route := Route(parts[0])

	var err error
	switch {
	case route == RouteList && len(parts) == 1:
		err = h.list(w, r)
	case route == RouteDownload && len(parts) == 4 && parts[2] == "version" && parts[3] != "":
		err = h.download(w, r, parts[1], parts[3])
	default:
		httputils.ServerError(h.l, w, r, http.StatusNotFound, errors.New("unknown route: "+r.URL.Path))
		return
	}

	metrics.ServiceRequestCounter.WithLabelValues(string(route), metrics.Status(err)).Inc()
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrVersionNotFound), errors.Is(err, frontend.ErrBackupNotFound):
		httputils.ServerError(h.l, w, r, http.StatusNotFound, err)
	default:
		httputils.ServerError(h.l, w, r, http.StatusInternalServerError, err)
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) error {
	var resp ListResponse

	g, gCtx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		resp.Data, err = h.frontend.ListBackups(gCtx, h.backend, h.bucket, h.dataKey)
		return err
	})
	g.Go(func() (err error) {
		resp.Archive, err = h.frontend.ListBackups(gCtx, h.backend, h.bucket, h.archiveKey)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if resp.Data == nil {
		resp.Data = []backend.Version{}
	}
	if resp.Archive == nil {
		resp.Archive = []backend.Version{}
	}

	bytes, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "failed to encode versions")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(bytes)
	return nil
}

func (h *HTTP) download(w http.ResponseWriter, r *http.Request, typ, versionID string) error {
	key := h.archiveKey
	if typ == DownloadTypeData || typ == DownloadTypeSQL {
		key = h.dataKey
	}

	bytes, err := h.frontend.PullBackupBytes(r.Context(), h.backend, versionID, h.bucket, key)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", versionID+"-"+key))
	_, _ = w.Write(bytes)
	return nil
}
