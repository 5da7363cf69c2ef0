// Package storage keeps generated documents in an S3 compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Presigned links are capped at seven days by S3.
const maxPresign = 7 * 24 * time.Hour

// Config holds S3 settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// PublicBaseURL, when set, is used to build plain links instead of
	// presigned ones (for a public bucket behind a CDN).
	PublicBaseURL string
	PresignTTL    time.Duration
}

// objectAPI is the part of *minio.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// S3Store uploads and downloads objects.
type S3Store struct {
	api        objectAPI
	region     string
	publicBase string
	presignTTL time.Duration
	log        *slog.Logger
}

func NewS3Store(cfg Config, log *slog.Logger) (*S3Store, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return newS3Store(c, cfg, log), nil
}

func newS3Store(api objectAPI, cfg Config, log *slog.Logger) *S3Store {
	if log == nil {
		log = slog.Default()
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 || ttl > maxPresign {
		ttl = maxPresign
	}
	return &S3Store{
		api:        api,
		region:     cfg.Region,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignTTL: ttl,
		log:        log,
	}
}

// EnsureBucket creates bucket if it does not exist.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	ok, err := s.api.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	s.log.Info("bucket created", "bucket", bucket)
	return nil
}

// Upload stores data at path and returns a link to it.
func (s *S3Store) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: "inline",
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", bucket, path, err)
	}
	if s.publicBase != "" {
		return s.publicBase + "/" + bucket + "/" + path, nil
	}
	u, err := s.api.PresignedGetObject(ctx, bucket, path, s.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, path, err)
	}
	return u.String(), nil
}

// Download reads the object at path.
func (s *S3Store) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	obj, err := s.api.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, path, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, path, err)
	}
	return data, nil
}
