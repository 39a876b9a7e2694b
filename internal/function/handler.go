// Package function is the invocation boundary of the backup service. It
// turns a configuration bundle into exactly one JSON-serializable response:
// a success payload with counts and sizes, or a classified error payload.
// No fault escapes the boundary unclassified.
package function

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/dc-tec/spaces-backup/internal/backup"
	"github.com/dc-tec/spaces-backup/internal/config"
	backuperrors "github.com/dc-tec/spaces-backup/internal/errors"
	"github.com/dc-tec/spaces-backup/internal/storage"
)

// Response is the invocation result: a status classifier plus a JSON body.
// Config errors are client-class (400); runtime failures during listing,
// archiving, or uploading are server-class (500).
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

// SuccessBody is the response payload of a completed backup.
type SuccessBody struct {
	Message           string  `json:"message"`
	SourceBucket      string  `json:"sourceBucket"`
	DestinationBucket string  `json:"destinationBucket"`
	ArchiveName       string  `json:"archiveName"`
	FilesBackedUp     int     `json:"filesBackedUp"`
	ArchiveSize       int64   `json:"archiveSize"`
	DurationSeconds   float64 `json:"durationSeconds"`
}

// ErrorBody is the response payload of a failed backup.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// runner is the slice of the pipeline the handler drives.
type runner interface {
	Run(ctx context.Context) (*backup.Result, error)
}

// buildFunc constructs the pipeline for one invocation. Swapped in tests.
type buildFunc func(ctx context.Context, cfg *config.Config) (runner, error)

// Handler executes backup invocations.
type Handler struct {
	log   logr.Logger
	build buildFunc
}

// NewHandler creates a Handler that builds real S3-backed pipelines.
func NewHandler(log logr.Logger) *Handler {
	h := &Handler{log: log}
	h.build = h.buildPipeline
	return h
}

// Invoke runs one backup invocation for cfg. Configuration is validated
// before any storage client is constructed, so config errors never touch
// the network.
func (h *Handler) Invoke(ctx context.Context, cfg *config.Config) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			err := backuperrors.Newf(backuperrors.KindPipeline, "invoke", "panic: %v", r)
			h.log.Error(err, "backup invocation panicked")
			resp = errorResponse(err)
		}
	}()

	if err := cfg.Validate(); err != nil {
		return errorResponse(err)
	}

	pipeline, err := h.build(ctx, cfg)
	if err != nil {
		return errorResponse(backuperrors.Classify(backuperrors.KindPipeline, "setup", err))
	}

	result, err := pipeline.Run(ctx)
	if err != nil {
		return errorResponse(err)
	}

	message := "backup completed"
	if result.FilesBackedUp == 0 {
		message = "nothing to back up"
	}

	return Response{
		StatusCode: http.StatusOK,
		Body: SuccessBody{
			Message:           message,
			SourceBucket:      cfg.SourceBucket,
			DestinationBucket: cfg.DestBucket,
			ArchiveName:       result.ArchiveKey,
			FilesBackedUp:     result.FilesBackedUp,
			ArchiveSize:       result.ArchiveBytes,
			DurationSeconds:   result.Duration.Seconds(),
		},
	}
}

// buildPipeline constructs S3 clients for both buckets and wires the
// backup pipeline between them.
func (h *Handler) buildPipeline(ctx context.Context, cfg *config.Config) (runner, error) {
	source, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.SourceEndpoint,
		Bucket:          cfg.SourceBucket,
		Region:          cfg.SourceRegion,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UsePathStyle:    cfg.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create source storage client: %w", err)
	}

	dest, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.DestEndpoint,
		Bucket:          cfg.DestBucket,
		Region:          cfg.DestRegion,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UsePathStyle:    cfg.UsePathStyle,
		PartSize:        cfg.UploadPartSize,
		Concurrency:     cfg.UploadConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create destination storage client: %w", err)
	}

	return backup.NewPipeline(backup.PipelineConfig{
		Source:           source,
		Dest:             dest,
		SourceBucket:     cfg.SourceBucket,
		ArchivePrefix:    cfg.ArchivePrefix,
		CompressionLevel: cfg.CompressionLevel,
		FetchRateLimit:   cfg.FetchRateLimit,
		Logger:           h.log,
	}), nil
}

// errorResponse converts a classified error into the failure payload.
func errorResponse(err error) Response {
	status := http.StatusInternalServerError
	if backuperrors.IsConfig(err) {
		status = http.StatusBadRequest
	}

	body := ErrorBody{
		Error:   string(backuperrors.KindOf(err)),
		Message: err.Error(),
	}
	if cause := errors.Unwrap(err); cause != nil {
		body.Cause = cause.Error()
	}

	return Response{StatusCode: status, Body: body}
}
