package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/udlabs/pulseratings/internal/domain"
)

// ArchiveImpl implements domain.SnapshotArchiver by serializing each
// refreshed snapshot to JSON and uploading two objects: an immutable
// history entry keyed by refresh time and sequence, and a mutable
// "latest" pointer that always holds the newest snapshot.
//
// History entries are never overwritten; a replayed upload for the same
// refresh lands on the same key with identical content.
type ArchiveImpl struct {
	writer domain.BlobWriter
}

// NewArchiver creates a new ArchiveImpl over the given writer.
func NewArchiver(writer domain.BlobWriter) *ArchiveImpl {
	return &ArchiveImpl{writer: writer}
}

// LatestPath is the S3 key of the mutable latest-snapshot pointer.
const LatestPath = "snapshots/latest.json"

// ArchiveSnapshot uploads the snapshot to its history key and refreshes the
// latest pointer. The history upload must succeed before the pointer moves.
func (a *ArchiveImpl) ArchiveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}

	path := historyPath(snap)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive snapshot %s: %w", path, err)
	}
	if err := a.writer.Put(ctx, LatestPath, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: update latest snapshot: %w", err)
	}
	return nil
}

// historyPath builds the immutable S3 key for one snapshot, partitioned by
// refresh month for cheap prefix listing.
//
//	snapshots/2026-08/20260829T101500Z-seq42.json
func historyPath(snap domain.Snapshot) string {
	t := snap.RefreshedAt.UTC()
	return fmt.Sprintf("snapshots/%s/%s-seq%d.json",
		t.Format("2006-01"), t.Format("20060102T150405Z"), snap.LatestSequence)
}

// Compile-time interface check.
var _ domain.SnapshotArchiver = (*ArchiveImpl)(nil)
