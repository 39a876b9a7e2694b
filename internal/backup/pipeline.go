// Package backup implements the bucket-to-archive backup pipeline:
// a paginated listing of the source bucket feeds a streaming zip encoder
// whose output is concurrently drained into a multipart upload to the
// destination bucket.
//
// The archiver (producer) and the upload sink (consumer) are joined by an
// io.Pipe. The pipe is unbuffered, so backpressure is inherent: the encoder
// blocks whenever the uploader is not consuming, and peak memory stays
// proportional to the encoder's and uploader's internal buffers plus one
// in-flight object, independent of bucket size. On the first error from
// either side the failing side closes its pipe end with the error, which
// unblocks the partner promptly; there is no state in which one stage waits
// forever for a partner that will never produce or consume.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"

	backuperrors "github.com/dc-tec/spaces-backup/internal/errors"
	"github.com/dc-tec/spaces-backup/internal/storage"
)

// Result is the terminal value of a successful backup invocation.
type Result struct {
	// FilesBackedUp is the number of objects included in the archive.
	FilesBackedUp int
	// TotalBytes is the running total of source object bytes as reported
	// by the listing (unknown sizes count as zero).
	TotalBytes int64
	// ArchiveBytes is the destination-confirmed size of the stored archive.
	// This is canonical; the encoder's own byte count is not reported.
	ArchiveBytes int64
	// ArchiveKey is the destination object key of the archive. Empty when
	// the source bucket was empty and no archive was created.
	ArchiveKey string
	// Duration is the wall-clock time of the invocation.
	Duration time.Duration
}

// Pipeline wires the lister, archiver, and upload sink together for one
// source/destination bucket pair. All progress state is per invocation;
// a single Pipeline is safe for concurrent Run calls.
type Pipeline struct {
	source       storage.ObjectStorage
	dest         storage.ObjectStorage
	sourceBucket string
	prefix       string

	archiver *Archiver
	log      logr.Logger
	now      func() time.Time
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Source is the bucket being backed up.
	Source storage.ObjectStorage
	// Dest is the bucket receiving the archive.
	Dest storage.ObjectStorage
	// SourceBucket is the source bucket name, embedded in the archive key.
	SourceBucket string
	// ArchivePrefix is the destination key prefix for archives.
	ArchivePrefix string
	// CompressionLevel is the deflate level (0-9) for archive entries.
	CompressionLevel int
	// FetchRateLimit caps source object fetches per second; zero disables.
	FetchRateLimit float64
	// Logger receives progress and completion events.
	Logger logr.Logger
}

// NewPipeline creates a Pipeline from cfg.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		source:       cfg.Source,
		dest:         cfg.Dest,
		sourceBucket: cfg.SourceBucket,
		prefix:       cfg.ArchivePrefix,
		archiver:     NewArchiver(cfg.Source, cfg.CompressionLevel, cfg.FetchRateLimit),
		log:          cfg.Logger,
		now:          time.Now,
	}
}

// archiveOutcome carries the producer goroutine's result across the pipe.
type archiveOutcome struct {
	totalBytes int64
	err        error
}

// Run executes one backup invocation and returns exactly one terminal
// outcome: a Result on success or a kind-classified error on failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.now()

	result, err := p.run(ctx, start)
	if err != nil {
		recordFailure(p.sourceBucket, string(backuperrors.KindOf(err)))
		p.log.Error(err, "backup failed",
			"sourceBucket", p.sourceBucket,
			"kind", string(backuperrors.KindOf(err)))
		return nil, err
	}

	recordSuccess(p.sourceBucket, result)
	p.log.Info("backup completed",
		"sourceBucket", p.sourceBucket,
		"archiveKey", result.ArchiveKey,
		"filesBackedUp", result.FilesBackedUp,
		"archiveBytes", result.ArchiveBytes,
		"durationSeconds", result.Duration.Seconds())
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, start time.Time) (*Result, error) {
	objects, err := p.source.List(ctx)
	if err != nil {
		return nil, backuperrors.New(backuperrors.KindListing, "list", err)
	}

	// Nothing to back up is a valid terminal outcome, not an error.
	// No archive object is created in this case.
	if len(objects) == 0 {
		return &Result{Duration: p.now().Sub(start)}, nil
	}

	archiveKey := ArchiveKey(p.prefix, p.sourceBucket, start)
	p.log.Info("starting backup",
		"sourceBucket", p.sourceBucket,
		"objectCount", len(objects),
		"archiveKey", archiveKey)

	totalBytes, err := p.stream(ctx, objects, archiveKey)
	if err != nil {
		return nil, err
	}

	archiveBytes, err := p.verify(ctx, archiveKey)
	if err != nil {
		return nil, err
	}

	return &Result{
		FilesBackedUp: len(objects),
		TotalBytes:    totalBytes,
		ArchiveBytes:  archiveBytes,
		ArchiveKey:    archiveKey,
		Duration:      p.now().Sub(start),
	}, nil
}

// stream runs the archiver and the upload sink concurrently, joined by an
// io.Pipe, and resolves their errors into the single first-fatal cause.
func (p *Pipeline) stream(ctx context.Context, objects []storage.ObjectInfo, archiveKey string) (int64, error) {
	pr, pw := io.Pipe()

	outcomeCh := make(chan archiveOutcome, 1)
	go func() {
		totalBytes, archiveErr := p.archiver.Archive(ctx, objects, pw)
		// CloseWithError(nil) closes the write side cleanly, signalling
		// end-of-stream to the uploader.
		_ = pw.CloseWithError(archiveErr)
		outcomeCh <- archiveOutcome{totalBytes: totalBytes, err: archiveErr}
	}()

	// Total archive length is unknown upfront, so the sink streams via
	// multipart upload. This blocks until the encoder is fully drained or
	// either side fails.
	uploadErr := p.dest.Upload(ctx, archiveKey, pr, -1)
	if uploadErr != nil {
		uploadErr = backuperrors.Classify(backuperrors.KindUpload, "upload", uploadErr)
		// Break the producer's pending writes so it cannot hang.
		_ = pr.CloseWithError(uploadErr)
	}
	_ = pr.Close()

	outcome := <-outcomeCh

	// First fatal error wins. When the uploader died first, the archiver's
	// writes fail with the uploader's (already classified) error, so an
	// archiver outcome carrying KindUpload is the uploader's fault, not a
	// fetch/append failure.
	switch {
	case outcome.err != nil && backuperrors.KindOf(outcome.err) != backuperrors.KindUpload:
		return outcome.totalBytes, outcome.err
	case uploadErr != nil:
		return outcome.totalBytes, uploadErr
	case outcome.err != nil:
		return outcome.totalBytes, outcome.err
	}
	return outcome.totalBytes, nil
}

// verify confirms the stored archive exists and returns its size as
// reported by the destination. The destination-confirmed size is the
// canonical archive size; multipart bookkeeping on the encoder side can
// disagree with what the backend actually stored.
func (p *Pipeline) verify(ctx context.Context, archiveKey string) (int64, error) {
	info, err := p.dest.Head(ctx, archiveKey)
	if err != nil {
		return 0, backuperrors.New(backuperrors.KindUpload, "verify", err).WithKey(archiveKey)
	}
	if info == nil {
		return 0, backuperrors.New(backuperrors.KindUpload, "verify",
			errors.New("archive not found after upload")).WithKey(archiveKey)
	}
	if info.Size == 0 {
		return 0, backuperrors.New(backuperrors.KindUpload, "verify",
			fmt.Errorf("uploaded archive %s has zero size", archiveKey))
	}
	return info.Size, nil
}
