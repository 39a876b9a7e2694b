package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// defaultHTTPTimeout bounds a single request/response cycle. Multipart
	// uploads issue many such requests, so this does not cap total upload time.
	defaultHTTPTimeout = 10 * time.Minute

	// maxListPageSize is the maximum page size accepted by ListObjectsV2.
	maxListPageSize = 1000
)

// s3API is the narrow slice of the S3 client the storage layer uses.
// It exists so tests can substitute a mock; *s3.Client satisfies it.
type s3API interface {
	manager.UploadAPIClient

	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ s3API = (*s3.Client)(nil)

// S3ClientConfig holds configuration for creating a new S3-compatible
// storage client bound to a single bucket.
type S3ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL
	// (e.g. "https://nyc3.digitaloceanspaces.com").
	Endpoint string
	// Bucket is the target bucket name.
	Bucket string
	// Region is the region name. Required.
	Region string
	// AccessKeyID is the access key for authentication. If empty, the
	// default credential chain is used.
	AccessKeyID string
	// SecretAccessKey is the secret key for authentication.
	SecretAccessKey string
	// UsePathStyle forces path-style addressing (required for MinIO and
	// some S3-compatible stores).
	UsePathStyle bool
	// PartSize is the multipart upload part size in bytes. Zero selects
	// the SDK default (5 MiB).
	PartSize int64
	// Concurrency is the number of parts uploaded in parallel. Zero
	// selects the SDK default.
	Concurrency int
}

// S3Client implements ObjectStorage for a single S3-compatible bucket.
type S3Client struct {
	api         s3API
	bucket      string
	partSize    int64
	concurrency int
}

// NewS3Client creates a storage client for the configured bucket.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		api:         api,
		bucket:      cfg.Bucket,
		partSize:    cfg.PartSize,
		concurrency: cfg.Concurrency,
	}, nil
}

// newS3ClientWithAPI constructs a client around an existing API
// implementation. Used by tests.
func newS3ClientWithAPI(api s3API, bucket string) *S3Client {
	return &S3Client{api: api, bucket: bucket}
}

// Bucket returns the bucket this client is bound to.
func (c *S3Client) Bucket() string {
	return c.bucket
}

// List returns metadata for every object in the bucket, following the
// continuation token until the backend reports no more pages. Order is
// preserved as returned by the backend.
func (c *S3Client) List(ctx context.Context) ([]ObjectInfo, error) {
	var (
		result            []ObjectInfo
		continuationToken *string
	)

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			MaxKeys:           aws.Int32(maxListPageSize),
			ContinuationToken: continuationToken,
		}

		output, err := c.api.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list objects in bucket %s: %w", c.bucket, err)
		}

		for _, obj := range output.Contents {
			result = append(result, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return result, nil
}

// Download retrieves an object as an incremental byte stream.
func (c *S3Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", c.bucket, key, err)
	}
	return output.Body, nil
}

// Upload streams body to the bucket under key. When size is unknown (-1)
// the transfer manager reads the body in parts and performs a multipart
// upload, so the total length never needs to be known upfront.
func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	uploader := manager.NewUploader(c.api, func(u *manager.Uploader) {
		if c.partSize > 0 {
			u.PartSize = c.partSize
		}
		if c.concurrency > 0 {
			u.Concurrency = c.concurrency
		}
	})

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload object %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// Head retrieves metadata for a single object. Returns nil and no error if
// the object does not exist.
func (c *S3Client) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	output, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("head object %s/%s: %w", c.bucket, key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(output.ContentLength),
		LastModified: aws.ToTime(output.LastModified),
		ETag:         aws.ToString(output.ETag),
	}, nil
}

var _ ObjectStorage = (*S3Client)(nil)

// buildAWSConfig constructs the SDK config with static credentials and a
// tuned HTTP client.
func buildAWSConfig(ctx context.Context, cfg S3ClientConfig) (aws.Config, error) {
	if cfg.Region == "" {
		return aws.Config{}, fmt.Errorf("region is required for S3 client")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(buildHTTPClient()),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// buildHTTPClient creates an HTTP client with sane transport settings for
// long-running streaming transfers.
func buildHTTPClient() *http.Client {
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHTTPTimeout,
	}
}
