package storage

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
)

// DefaultRegion is the region of the public song and log datasets.
const DefaultRegion = "us-west-2"

// maxDeleteBatch is the DeleteObjects request limit.
const maxDeleteBatch = 1000

// S3 is a Store backed by one AWS S3 bucket.
type S3 struct {
	log        *zap.Logger
	client     *s3.S3
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
	bucket     string
	verify     bool
}

// NewS3 creates an S3 store. The credentials in opts are used when set, otherwise
// the SDK default chain applies.
func NewS3(ctx context.Context, log *zap.Logger, bucket string, opts Options) (*S3, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	cfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(opts.ForcePathStyle),
	}
	if !opts.Credentials.Empty() {
		cfg.Credentials = credentials.NewStaticCredentials(opts.Credentials.AccessKeyID, opts.Credentials.SecretAccessKey, "")
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, Error.New("failed to create aws session: %w", err)
	}

	store := &S3{
		log:        log.Named("s3").With(zap.String("bucket", bucket)),
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
		bucket:     bucket,
		verify:     opts.VerifyUploads,
	}

	if opts.CreateBucket {
		if err := store.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var aerr awserr.Error
	if !errors.As(err, &aerr) || (aerr.Code() != "NotFound" && aerr.Code() != s3.ErrCodeNoSuchBucket) {
		return Error.New("failed to check bucket %s: %w", s.bucket, err)
	}

	s.log.Info("Creating missing bucket")
	if _, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return Error.New("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// List implements Store.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return !lastPage
		})
	if err != nil {
		return nil, Error.New("failed to list objects under %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements Store.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	buffer := &aws.WriteAtBuffer{}
	_, err := s.downloader.DownloadWithContext(ctx, buffer,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	if err != nil {
		return nil, Error.New("failed to download %s: %w", key, err)
	}
	return buffer.Bytes(), nil
}

// Put implements Store.
func (s *S3) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	result, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: aws.StringMap(metadata),
	})
	if err != nil {
		return Error.New("failed to upload %s: %w", key, err)
	}
	s.log.Debug("Uploaded object", zap.String("key", key), zap.String("location", result.Location))

	if !s.verify {
		return nil
	}
	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Error.New("upload verification failed for %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *S3) Delete(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		objects := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return Error.New("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return Error.New("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
	}
	return nil
}
