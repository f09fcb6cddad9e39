package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ExportStorage archives generated exports and hands out time-limited links.
type ExportStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	SignedURL(ctx context.Context, key string, filename string) (string, error)
}

type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

type MinioExportStorage struct {
	api       minioAPI
	bucket    string
	linkValid time.Duration
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewMinioExportStorage(ctx context.Context, opts MinioOptions) (*MinioExportStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newMinioExportStorage(ctx, client, opts.Bucket)
}

func newMinioExportStorage(ctx context.Context, api minioAPI, bucket string) (*MinioExportStorage, error) {
	exists, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioExportStorage{api: api, bucket: bucket, linkValid: time.Hour}, nil
}

func (s *MinioExportStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.api.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload export: %w", err)
	}
	return nil
}

// SignedURL returns a link that downloads key as an attachment named filename.
func (s *MinioExportStorage) SignedURL(ctx context.Context, key string, filename string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	u, err := s.api.PresignedGetObject(ctx, s.bucket, key, s.linkValid, params)
	if err != nil {
		return "", fmt.Errorf("sign export url: %w", err)
	}
	return u.String(), nil
}
