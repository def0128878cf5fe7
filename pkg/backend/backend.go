package backend

import (
	"context"
	"time"
)

// StoreOutcome is the result of a single Store call.
type StoreOutcome int

const (
	// OutcomeFailed the write did not happen
	OutcomeFailed StoreOutcome = iota
	// OutcomeStored a new version was written
	OutcomeStored
	// OutcomeIdentical the latest version already has the same bytes, nothing was written
	OutcomeIdentical
)

func (o StoreOutcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeIdentical:
		return "identical"
	default:
		return "failed"
	}
}

// Version is one historical version of an object.
type Version struct {
	ID           string    `json:"version_id"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
	// locator is only meaningful to the backend that produced the version
	locator string
}

// Backend defines the contract for versioned object stores.
// A (bucket, key) pair identifies a version history, not a single object.
type Backend interface {
	// Name returns the display name used to select the backend.
	Name() string

	// Versions lists all versions of key in bucket, latest first.
	// Returns an empty slice and no error if the key was never stored.
	Versions(ctx context.Context, bucket, key string) ([]Version, error)

	// Store writes localFile as a new version of key.
	// With checkIdentical the write is skipped if the latest version has the same bytes.
	// Failures while reading the latest version never prevent the write.
	Store(ctx context.Context, localFile, bucket, key string, checkIdentical bool) (StoreOutcome, error)

	// Object returns the bytes of the given version.
	// Returns ErrVersionNotFound if the version does not exist.
	Object(ctx context.Context, bucket, key, versionID string) ([]byte, error)

	// Download writes the given version to localFile.
	// The directory of localFile must exist.
	Download(ctx context.Context, localFile, bucket, key, versionID string) error
}

// Provisioner is implemented by backends that need infrastructure
// to be provisioned before use.
type Provisioner interface {
	// Terraform returns terraform file names mapped to their contents.
	Terraform(bucket string) (map[string][]byte, error)
}

// Latest returns the most recent version of key or nil if there is none.
func Latest(ctx context.Context, b Backend, bucket, key string) (*Version, error) {
	versions, err := b.Versions(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}
