// Package storage provides the object stores the job reads from and writes to.
package storage

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the error class for object storage access.
var Error = errs.Class("storage")

// Store is a flat key space of immutable objects.
type Store interface {
	// List returns every key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the full content of key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores body under key, replacing any previous object.
	Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Credentials is the access key pair handed to remote stores.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Empty reports whether no key pair is configured.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// Options configures remote stores.
type Options struct {
	Credentials Credentials
	// Region of the S3 bucket.
	Region string
	// Endpoint overrides the S3 endpoint; required for minio locations.
	Endpoint string
	// ForcePathStyle selects path-style S3 addressing.
	ForcePathStyle bool
	// Secure enables TLS for minio endpoints.
	Secure bool
	// VerifyUploads issues a HEAD after every S3 upload.
	VerifyUploads bool
	// CreateBucket creates a missing bucket when the store is opened.
	CreateBucket bool
}

// Location is a parsed storage root such as s3a://bucket/prefix/.
type Location struct {
	Scheme string
	Bucket string
	// Prefix is the key prefix below the bucket, empty or ending in "/".
	Prefix string
}

// String implements fmt.Stringer.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return "file://" + l.Bucket + "/" + l.Prefix
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Prefix
}

// Supported location schemes.
const (
	SchemeS3    = "s3"
	SchemeMinio = "minio"
	SchemeFile  = "file"
)

// ParseLocation parses a storage root. s3, s3a and s3n URLs map to S3, minio URLs to
// an S3-compatible endpoint, file URLs and bare paths to a local directory.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, Error.New("empty location")
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: SchemeFile, Bucket: strings.TrimSuffix(raw, "/")}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, Error.Wrap(err)
	}

	switch u.Scheme {
	case "s3", "s3a", "s3n":
		return bucketLocation(SchemeS3, u)
	case SchemeMinio:
		return bucketLocation(SchemeMinio, u)
	case SchemeFile:
		dir := u.Path
		if u.Host != "" {
			dir = u.Host + u.Path
		}
		if dir == "" {
			return Location{}, Error.New("file location %q has no path", raw)
		}
		return Location{Scheme: SchemeFile, Bucket: strings.TrimSuffix(dir, "/")}, nil
	default:
		return Location{}, Error.New("unsupported location scheme %q", u.Scheme)
	}
}

func bucketLocation(scheme string, u *url.URL) (Location, error) {
	if u.Host == "" {
		return Location{}, Error.New("location %q has no bucket", u.String())
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Location{Scheme: scheme, Bucket: u.Host, Prefix: prefix}, nil
}

// Probe writes and removes a small object under key to check write access.
func Probe(ctx context.Context, log *zap.Logger, store Store, key string) error {
	log.Info("Testing write access", zap.String("key", key))
	if err := store.Put(ctx, key, strings.NewReader("connection test"), nil); err != nil {
		return Error.New("write access test failed: %w", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		log.Warn("Failed to clean up test object", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Open returns the store serving loc. Keys passed to the store are relative to the
// bucket, so callers prepend loc.Prefix.
func Open(ctx context.Context, log *zap.Logger, loc Location, opts Options) (Store, error) {
	switch loc.Scheme {
	case SchemeS3:
		return NewS3(ctx, log, loc.Bucket, opts)
	case SchemeMinio:
		return NewMinio(ctx, log, loc.Bucket, opts)
	case SchemeFile:
		return NewLocal(log, loc.Bucket)
	default:
		return nil, Error.New("unsupported location scheme %q", loc.Scheme)
	}
}
