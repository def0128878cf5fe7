package backend

import (
	"github.com/foomo/caretaker/pkg/plugin"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound no backend is registered under the requested name
	ErrNotFound = plugin.ErrNotFound
	// ErrVersionNotFound the requested version does not exist
	ErrVersionNotFound = errors.New("version not found")
)

// IsVersionNotFound reports whether err means the requested version does not exist.
func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

// versionNotFound wraps ErrVersionNotFound with the request details.
func versionNotFound(bucket, key, versionID string) error {
	return errors.Wrapf(ErrVersionNotFound, "%s/%s@%s", bucket, key, versionID)
}
