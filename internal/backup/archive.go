package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"golang.org/x/time/rate"

	backuperrors "github.com/dc-tec/spaces-backup/internal/errors"
	"github.com/dc-tec/spaces-backup/internal/storage"
)

// ObjectFetcher retrieves a single object as an incremental byte stream.
// It is the slice of storage.ObjectStorage the archiver needs.
type ObjectFetcher interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// Archiver streams source objects into a zip encoder. Objects are fetched
// strictly one at a time, in listing order, so peak memory stays bounded by
// the encoder's internal buffers rather than the bucket's total size.
type Archiver struct {
	source  ObjectFetcher
	level   int
	limiter *rate.Limiter
}

// NewArchiver creates an Archiver reading from source. level is the deflate
// compression level (0-9). fetchQPS caps GetObject requests per second;
// zero means unlimited.
func NewArchiver(source ObjectFetcher, level int, fetchQPS float64) *Archiver {
	a := &Archiver{source: source, level: level}
	if fetchQPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(fetchQPS), 1)
	}
	return a
}

// Archive fetches each object in order and appends it to a zip stream
// written to w. The entry name is the object key verbatim, path separators
// included, so unzipping reproduces the bucket layout.
//
// It returns the running total of source bytes (from listed sizes; unknown
// sizes count as zero). The first fetch or append failure aborts the whole
// archive; no partial central directory is written in that case.
func (a *Archiver) Archive(ctx context.Context, objects []storage.ObjectInfo, w io.Writer) (int64, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, a.level)
	})

	var totalBytes int64
	for _, obj := range objects {
		if err := a.appendObject(ctx, zw, obj); err != nil {
			return totalBytes, err
		}
		if obj.Size > 0 {
			totalBytes += obj.Size
		}
	}

	// The encoder buffers, so a dead consumer often surfaces here as a
	// failed flush; its classified error passes through unchanged.
	if err := zw.Close(); err != nil {
		return totalBytes, backuperrors.Classify(backuperrors.KindArchive, "finalize", err)
	}
	return totalBytes, nil
}

// appendObject streams one object into the zip writer.
func (a *Archiver) appendObject(ctx context.Context, zw *zip.Writer, obj storage.ObjectInfo) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return backuperrors.New(backuperrors.KindFetch, "fetch", err).WithKey(obj.Key)
		}
	}

	body, err := a.source.Download(ctx, obj.Key)
	if err != nil {
		return backuperrors.New(backuperrors.KindFetch, "fetch", err).WithKey(obj.Key)
	}
	defer body.Close()

	header := &zip.FileHeader{
		Name:   obj.Key,
		Method: zip.Deflate,
	}
	if !obj.LastModified.IsZero() {
		header.Modified = obj.LastModified
	}

	// CreateHeader flushes the previous entry, so it can fail with the
	// consumer's error too.
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return backuperrors.Classify(backuperrors.KindArchive, "append",
			fmt.Errorf("appending object %s: %w", obj.Key, err))
	}

	if _, err := io.Copy(entry, body); err != nil {
		// A copy failure is either the source stream breaking or the
		// downstream consumer aborting; in the latter case the error is
		// already classified and passes through unchanged.
		return backuperrors.Classify(backuperrors.KindFetch, "copy",
			fmt.Errorf("streaming object %s: %w", obj.Key, err))
	}
	return nil
}
