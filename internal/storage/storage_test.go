package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw  string
		want storage.Location
	}{
		{"s3a://udacity-dend/", storage.Location{Scheme: storage.SchemeS3, Bucket: "udacity-dend"}},
		{"s3://sparkify-output/lake", storage.Location{Scheme: storage.SchemeS3, Bucket: "sparkify-output", Prefix: "lake/"}},
		{"s3n://bucket/a/b/", storage.Location{Scheme: storage.SchemeS3, Bucket: "bucket", Prefix: "a/b/"}},
		{"minio://raw-data/sparkify/", storage.Location{Scheme: storage.SchemeMinio, Bucket: "raw-data", Prefix: "sparkify/"}},
		{"file:///tmp/lake/", storage.Location{Scheme: storage.SchemeFile, Bucket: "/tmp/lake"}},
		{"./data", storage.Location{Scheme: storage.SchemeFile, Bucket: "./data"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := storage.ParseLocation(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"", "gs://bucket/", "s3:///no-bucket"} {
		_, err := storage.ParseLocation(raw)
		require.Error(t, err, raw)
		assert.True(t, storage.Error.Has(err), raw)
	}
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "songs.parquet/year=2018/part-0.parquet", strings.NewReader("a"), nil))
	require.NoError(t, store.Put(ctx, "songs.parquet/_SUCCESS", strings.NewReader(""), nil))
	require.NoError(t, store.Put(ctx, "users.parquet/part-0.parquet", strings.NewReader("b"), nil))

	keys, err := store.List(ctx, "songs.parquet/")
	require.NoError(t, err)
	assert.Equal(t, []string{"songs.parquet/_SUCCESS", "songs.parquet/year=2018/part-0.parquet"}, keys)

	data, err := store.Get(ctx, "users.parquet/part-0.parquet")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	require.NoError(t, store.Put(ctx, "users.parquet/part-0.parquet", strings.NewReader("c"), nil))
	data, err = store.Get(ctx, "users.parquet/part-0.parquet")
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))

	require.NoError(t, store.Delete(ctx, append(keys, "missing")...))
	keys, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"users.parquet/part-0.parquet"}, keys)

	_, err = store.Get(ctx, "songs.parquet/_SUCCESS")
	require.Error(t, err)
	assert.True(t, storage.Error.Has(err))
}

type recorder struct {
	ops    []string
	failed int
}

func (r *recorder) ObserveStorage(operation string, err error) {
	r.ops = append(r.ops, operation)
	if err != nil {
		r.failed++
	}
}

func TestObserved(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)

	rec := &recorder{}
	store := storage.Observed(local, rec)

	require.NoError(t, store.Put(ctx, "k", strings.NewReader("v"), nil))
	_, err = store.List(ctx, "")
	require.NoError(t, err)
	_, err = store.Get(ctx, "missing")
	require.Error(t, err)
	require.NoError(t, store.Delete(ctx, "k"))

	assert.Equal(t, []string{"put", "list", "get", "delete"}, rec.ops)
	assert.Equal(t, 1, rec.failed)
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	store, err := storage.NewLocal(log, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, storage.Probe(ctx, log, store, "_runs/x.probe"))

	keys, err := store.List(ctx, "_runs/")
	require.NoError(t, err)
	assert.Empty(t, keys, "the probe object is removed")
}
