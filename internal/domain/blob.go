package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ProfileArchiver snapshots generated interest profiles to cold storage.
type ProfileArchiver interface {
	// ArchiveProfiles writes one snapshot for a job run and returns the
	// object path it was written to.
	ArchiveProfiles(ctx context.Context, runID string, profiles []InterestProfile) (string, error)
}
