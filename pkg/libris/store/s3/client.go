package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cognicore/libris/pkg/libris/config"
	"github.com/cognicore/libris/pkg/libris/internalerr"
)

// Client is the object storage surface the store needs.
// Implementations return internalerr.ErrNotFound for missing keys.
type Client interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// MinioClient talks to any S3 compatible endpoint.
type MinioClient struct {
	api    *minio.Client
	bucket string
}

var _ Client = (*MinioClient)(nil)

// NewMinioClient creates a client from the store configuration.
func NewMinioClient(cfg config.S3Config) (*MinioClient, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &MinioClient{api: api, bucket: cfg.Bucket}, nil
}

// Download reads a whole object into memory.
func (c *MinioClient) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(key, err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return nil, mapError(key, err)
	}
	return buf.Bytes(), nil
}

// Upload writes data as a JSON object.
func (c *MinioClient) Upload(ctx context.Context, key string, data []byte) error {
	_, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return mapError(key, err)
	}
	return nil
}

// Copy duplicates an object server side.
func (c *MinioClient) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := c.api.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: c.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: c.bucket, Object: srcKey},
	)
	if err != nil {
		return mapError(srcKey, err)
	}
	return nil
}

func mapError(key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey":
			return fmt.Errorf("object %s: %w", key, internalerr.ErrNotFound)
		case "NoSuchBucket", "AccessDenied":
			return fmt.Errorf("object %s: %s: %w", key, resp.Message, internalerr.ErrStoreUnavailable)
		}
	}
	return fmt.Errorf("object %s: %w", key, err)
}
