package storage

import (
	"context"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Minio is a Store backed by a bucket on an S3-compatible server.
type Minio struct {
	log    *zap.Logger
	client *minio.Client
	bucket string
}

// NewMinio connects to opts.Endpoint with the static key pair from opts.
func NewMinio(ctx context.Context, log *zap.Logger, bucket string, opts Options) (*Minio, error) {
	if opts.Endpoint == "" {
		return nil, Error.New("minio location requires an endpoint")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.Credentials.AccessKeyID, opts.Credentials.SecretAccessKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, Error.New("failed to create minio client: %w", err)
	}

	store := &Minio{
		log:    log.Named("minio").With(zap.String("bucket", bucket), zap.String("endpoint", opts.Endpoint)),
		client: client,
		bucket: bucket,
	}

	if opts.CreateBucket {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, Error.New("failed to check bucket %s: %w", bucket, err)
		}
		if !exists {
			store.log.Info("Creating missing bucket")
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
				return nil, Error.New("failed to create bucket %s: %w", bucket, err)
			}
		}
	}
	return store, nil
}

// List implements Store.
func (m *Minio) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, Error.New("failed to list objects under %q: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements Store.
func (m *Minio) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Error.New("failed to download %s: %w", key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, Error.New("failed to download %s: %w", key, err)
	}
	return data, nil
}

// Put implements Store.
func (m *Minio) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	info, err := m.client.PutObject(ctx, m.bucket, key, body, -1, minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: metadata,
	})
	if err != nil {
		return Error.New("failed to upload %s: %w", key, err)
	}
	m.log.Debug("Uploaded object", zap.String("key", key), zap.Int64("size", info.Size))
	return nil
}

// Delete implements Store.
func (m *Minio) Delete(ctx context.Context, keys ...string) error {
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for _, key := range keys {
			select {
			case objects <- minio.ObjectInfo{Key: key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var failed []minio.RemoveObjectError
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		failed = append(failed, rerr)
	}
	if len(failed) > 0 {
		return Error.New("failed to delete %d objects, first %s: %w", len(failed), failed[0].ObjectName, failed[0].Err)
	}
	return ctx.Err()
}
