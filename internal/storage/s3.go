package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Config configures the S3 payload backend.
type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint for MinIO or LocalStack.
	Endpoint     string
	UsePathStyle bool
	// KeyPrefix namespaces every key, letting several deployments share a
	// bucket. It is stripped again by ListObjects.
	KeyPrefix string
	// MaxRetries bounds retries of transient failures. Client errors such
	// as AccessDenied are never retried.
	MaxRetries int
	// BaseBackoff is doubled after every failed attempt.
	BaseBackoff time.Duration
}

// DefaultS3Config returns the settings used when the config file leaves
// them out.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:      "us-east-1",
		MaxRetries:  3,
		BaseBackoff: 100 * time.Millisecond,
	}
}

// S3Storage stores payloads as objects in one bucket. Payloads are snappy
// frames, so objects are written as application/octet-stream.
type S3Storage struct {
	client *s3.Client
	bucket string
	cfg    S3Config
}

// NewS3Storage loads AWS credentials from the default chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient wraps an already configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	if cfg.KeyPrefix != "" && !strings.HasSuffix(cfg.KeyPrefix, "/") {
		cfg.KeyPrefix += "/"
	}
	return &S3Storage{client: client, bucket: bucket, cfg: cfg}
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}

	var etag string
	err = s.withRetry(ctx, func() error {
		out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objKey),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String("application/octet-stream"),
		})
		if err != nil {
			return err
		}
		etag = strings.Trim(aws.ToString(out.ETag), `"`)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, key, err)
	}
	return etag, nil
}

func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.withRetry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				return ErrObjectNotFound
			}
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return nil, ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, key, err)
	}
	return data, nil
}

// Delete relies on S3 treating deletes of missing keys as success.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	err = s.withRetry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeleteFailed, key, err)
	}
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	var found bool
	err = s.withRetry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		})
		var nf *types.NotFound
		switch {
		case errors.As(err, &nf):
			found = false
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.cfg.KeyPrefix + prefix),
	})

	var keys []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.cfg.KeyPrefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Storage) objectKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return s.cfg.KeyPrefix + key, nil
}

// withRetry runs op until it succeeds, fails permanently or the retry
// budget runs out.
func (s *S3Storage) withRetry(ctx context.Context, op func() error) error {
	backoff := s.cfg.BaseBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = op(); err == nil || !retryable(err) || attempt >= s.cfg.MaxRetries {
			return err
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
}

// retryable reports whether err looks transient: throttling, a 5xx
// response or a transport failure with no response at all.
func retryable(err error) bool {
	if errors.Is(err, ErrObjectNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return true
}
