package backup

import (
	"testing"
	"time"
)

func TestArchiveKey(t *testing.T) {
	ts := time.Date(2026, 8, 29, 12, 34, 56, 789000000, time.UTC)

	tests := []struct {
		name         string
		prefix       string
		sourceBucket string
		ts           time.Time
		want         string
	}{
		{
			name:         "default prefix",
			prefix:       "backups",
			sourceBucket: "my-space",
			ts:           ts,
			want:         "backups/backup-my-space-2026-08-29T12-34-56-789Z.zip",
		},
		{
			name:         "empty prefix",
			prefix:       "",
			sourceBucket: "my-space",
			ts:           ts,
			want:         "backup-my-space-2026-08-29T12-34-56-789Z.zip",
		},
		{
			name:         "prefix with surrounding slashes",
			prefix:       "/archive/deep/",
			sourceBucket: "my-space",
			ts:           ts,
			want:         "archive/deep/backup-my-space-2026-08-29T12-34-56-789Z.zip",
		},
		{
			name:         "non-UTC timestamp is normalized",
			prefix:       "backups",
			sourceBucket: "my-space",
			ts:           time.Date(2026, 8, 29, 14, 34, 56, 789000000, time.FixedZone("CEST", 2*60*60)),
			want:         "backups/backup-my-space-2026-08-29T12-34-56-789Z.zip",
		},
		{
			name:         "midnight pads all fields",
			prefix:       "backups",
			sourceBucket: "b",
			ts:           time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			want:         "backups/backup-b-2026-01-02T00-00-00-000Z.zip",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ArchiveKey(tc.prefix, tc.sourceBucket, tc.ts); got != tc.want {
				t.Errorf("ArchiveKey() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestArchiveKeysSortChronologically(t *testing.T) {
	earlier := ArchiveKey("backups", "my-space", time.Date(2026, 8, 29, 9, 59, 59, 0, time.UTC))
	later := ArchiveKey("backups", "my-space", time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	if !(earlier < later) {
		t.Errorf("keys are not lexically ordered: %q >= %q", earlier, later)
	}
}
