// Package storage provides the S3 backed invoice artifact store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
	infraconfig "github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

const pdfContentType = "application/pdf"

// S3ArtifactStore implements invoice.ArtifactStore on any S3-compatible
// object storage (AWS S3, MinIO, RustFS, etc.)
type S3ArtifactStore struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	prefix            string
	presignExpiration time.Duration
	logger            *zap.Logger
}

// S3ArtifactStoreOption is a functional option for configuring S3ArtifactStore
type S3ArtifactStoreOption func(*S3ArtifactStore)

// WithLogger sets a custom logger for S3ArtifactStore
func WithLogger(logger *zap.Logger) S3ArtifactStoreOption {
	return func(s *S3ArtifactStore) {
		s.logger = logger
	}
}

// WithPresignExpiration sets a custom presign expiration duration
func WithPresignExpiration(d time.Duration) S3ArtifactStoreOption {
	return func(s *S3ArtifactStore) {
		s.presignExpiration = d
	}
}

// NewS3ArtifactStore creates a new S3ArtifactStore from configuration
func NewS3ArtifactStore(cfg *infraconfig.StorageConfig, opts ...S3ArtifactStoreOption) (*S3ArtifactStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}

	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"", // session token (not used for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
		// many S3-compatible servers reject the default trailing checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	store := &S3ArtifactStore{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		prefix:            normalizePrefix(cfg.Prefix),
		presignExpiration: cfg.PresignExpiration,
		logger:            zap.NewNop(),
	}

	for _, opt := range opts {
		opt(store)
	}

	if store.presignExpiration == 0 {
		store.presignExpiration = 15 * time.Minute
	}

	return store, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (s *S3ArtifactStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating storage bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Ignore "BucketAlreadyOwnedByYou" error (race condition)
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	s.logger.Info("Storage bucket created successfully", zap.String("bucket", s.bucket))
	return nil
}

// Write buffers the document produced by fn and uploads it in one PutObject.
// Nothing is uploaded when fn fails, so the previous object stays visible.
func (s *S3ArtifactStore) Write(ctx context.Context, name string, fn func(w io.Writer) error) (*invoice.ArtifactInfo, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return nil, err
	}
	size := int64(buf.Len())

	ctx, span := s.startSpan(ctx, "PutObject", key)
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrBytes, size)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(pdfContentType),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Info("invoice uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int64("size", size))

	return &invoice.ArtifactInfo{
		Name:       name,
		Size:       size,
		ModifiedAt: time.Now(),
	}, nil
}

// Open streams the stored object or returns invoice.ErrArtifactNotFound
func (s *S3ArtifactStore) Open(ctx context.Context, name string) (io.ReadCloser, *invoice.ArtifactInfo, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, nil, err
	}

	ctx, span := s.startSpan(ctx, "GetObject", key)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			telemetry.SetAttribute(span, "s3.not_found", true)
			return nil, nil, invoice.ErrArtifactNotFound
		}
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}

	info := &invoice.ArtifactInfo{Name: name, Size: -1}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModifiedAt = *out.LastModified
	}
	return out.Body, info, nil
}

// Delete removes the object; S3 treats deleting a missing key as success
func (s *S3ArtifactStore) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CleanupOlderThan deletes every object under the prefix last modified before now-age
func (s *S3ArtifactStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	deleted := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			}); err != nil {
				s.logger.Warn("failed to delete expired invoice",
					zap.String("key", *obj.Key),
					zap.Error(err))
				continue
			}
			deleted++
		}
	}

	s.logger.Info("cleanup completed",
		zap.Int("deleted", deleted),
		zap.Duration("age", age))
	return deleted, nil
}

// DownloadURL generates a presigned GET URL for a stored invoice
func (s *S3ArtifactStore) DownloadURL(ctx context.Context, name string, expiresIn time.Duration) (string, time.Time, error) {
	key, err := s.key(name)
	if err != nil {
		return "", time.Time{}, err
	}
	if expiresIn <= 0 {
		expiresIn = s.presignExpiration
	}

	presignReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentType:        aws.String(pdfContentType),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", name)),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate download URL: %w", err)
	}

	return presignReq.URL, time.Now().Add(expiresIn), nil
}

// GetBucket returns the bucket name
func (s *S3ArtifactStore) GetBucket() string {
	return s.bucket
}

// startSpan opens a client span around one S3 call
func (s *S3ArtifactStore) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, "s3."+operation,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("aws.s3.bucket", s.bucket),
		telemetry.WithAttribute("aws.s3.key", key))
}

func (s *S3ArtifactStore) key(name string) (string, error) {
	if name == "" {
		return "", errors.New("artifact name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return path.Join(s.prefix, name), nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	// Some S3-compatible services report missing keys differently
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}

var (
	_ invoice.ArtifactStore     = (*S3ArtifactStore)(nil)
	_ invoice.ArtifactURLSigner = (*S3ArtifactStore)(nil)
)
