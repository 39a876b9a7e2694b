package backup

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ArchiveExtension is the file extension for backup archives.
const ArchiveExtension = ".zip"

// archiveTimestamp formats a timestamp for embedding in an object key:
// ISO-8601 UTC at millisecond precision with colons and dots replaced by
// hyphens so the key is filesystem-safe and lexically sortable.
// Example: 2026-08-29T12-34-56-789Z
func archiveTimestamp(ts time.Time) string {
	stamp := ts.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	return strings.ReplaceAll(stamp, ".", "-")
}

// ArchiveKey generates the destination object key for a backup archive.
// Format: <prefix>/backup-<sourceBucket>-<timestamp>.zip
//
// Millisecond precision in the timestamp keeps keys from colliding when
// two invocations land in the same second.
func ArchiveKey(prefix, sourceBucket string, ts time.Time) string {
	filename := fmt.Sprintf("backup-%s-%s%s", sourceBucket, archiveTimestamp(ts), ArchiveExtension)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}
