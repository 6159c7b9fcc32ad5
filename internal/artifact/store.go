// Package artifact persists attachment bytes and generated deliverables in
// object storage. Refs are plain object keys; nothing outside this package
// assumes anything about their shape.
package artifact

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
)

// Store is the S3-compatible ArtifactStore used in production.
type Store struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// NewStore connects to the object store and ensures the bucket exists.
func NewStore(ctx context.Context, cfg common.StorageConfig, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, common.WrapError(err, "connect object store")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, common.WrapError(err, "check bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, common.WrapError(err, "create bucket")
		}
		log.Info("storage.bucket.created", "bucket", cfg.Bucket)
	}
	return &Store{client: client, bucket: cfg.Bucket, log: log}, nil
}

var _ collab.ArtifactStore = (*Store)(nil)

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", common.NewServiceError("storage.put", err)
	}
	s.log.Debug("storage.object.stored", "key", key, "bytes", len(data))
	return key, nil
}

func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, common.NewServiceError("storage.get", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, common.NewServiceError("storage.get", err)
	}
	return data, nil
}
