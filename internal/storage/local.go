package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Local is a Store rooted at a directory. Keys are slash-separated paths below it.
type Local struct {
	log  *zap.Logger
	root string
}

// NewLocal creates the root directory when missing.
func NewLocal(log *zap.Logger, root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Local{log: log.Named("local").With(zap.String("root", root)), root: root}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// List implements Store.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, Error.New("failed to list objects under %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements Store.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		return nil, Error.New("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put implements Store. The object is written to a temporary file and renamed into place.
func (l *Local) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) (err error) {
	target := l.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Error.Wrap(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return Error.New("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return Error.Wrap(err)
	}
	l.log.Debug("Wrote object", zap.String("key", key))
	return nil
}

// Delete implements Store.
func (l *Local) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
			return Error.New("failed to delete %s: %w", key, err)
		}
	}
	return nil
}
