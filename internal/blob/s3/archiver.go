package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// multipartThreshold is the compressed size above which snapshots are sent
// through the multipart uploader.
const multipartThreshold = 16 * 1024 * 1024

const snapshotContentType = "application/x-ndjson"

// ProfileArchiver implements domain.ProfileArchiver by writing each profile
// run as one gzipped JSONL object:
//
//	{prefix}/profiles/2025/01/31/{runID}.jsonl.gz
type ProfileArchiver struct {
	writer domain.BlobWriter
	prefix string
	now    func() time.Time
}

// NewProfileArchiver creates a ProfileArchiver writing under prefix.
func NewProfileArchiver(writer domain.BlobWriter, prefix string) *ProfileArchiver {
	return &ProfileArchiver{writer: writer, prefix: prefix, now: time.Now}
}

var _ domain.ProfileArchiver = (*ProfileArchiver)(nil)

// ArchiveProfiles uploads profiles and returns the object key. An empty
// snapshot is still written so every run leaves a marker.
func (a *ProfileArchiver) ArchiveProfiles(ctx context.Context, runID string, profiles []domain.InterestProfile) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("s3blob: archive profiles: empty run id: %w", domain.ErrInvalidInput)
	}

	buf, err := gzipJSONL(profiles)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive profiles marshal: %w", err)
	}

	key := a.snapshotPath(runID)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(buf), snapshotContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive profiles upload: %w", err)
	}
	return key, nil
}

func (a *ProfileArchiver) snapshotPath(runID string) string {
	day := a.now().UTC().Format("2006/01/02")
	return path.Join(a.prefix, "profiles", day, runID+".jsonl.gz")
}

// gzipJSONL serialises records as newline-delimited JSON and compresses the
// result.
func gzipJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
