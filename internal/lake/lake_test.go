package lake_test

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/rowset"
	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

type track struct {
	ID     *string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Artist *string `parquet:"name=artist, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Year   *int32  `parquet:"name=year, type=INT32, repetitiontype=OPTIONAL"`
	Plays  int64   `parquet:"name=plays, type=INT64"`
}

var tracks = lake.Table[track]{
	Name:        "tracks",
	PartitionBy: []string{"year", "artist"},
	Partition: func(t track) []string {
		return []string{lake.Int32(t.Year), lake.String(t.Artist)}
	},
}

func newLake(t *testing.T, runID string) (*lake.Lake, storage.Store) {
	t.Helper()
	log := zaptest.NewLogger(t)
	store, err := storage.NewLocal(log, t.TempDir())
	require.NoError(t, err)
	return lake.New(log, store, "out/", t.TempDir(), runID), store
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	l, store := newLake(t, "run1")

	rows := []track{
		{ID: rowset.Ptr("T1"), Artist: rowset.Ptr("A/C"), Year: rowset.Ptr(int32(2018)), Plays: 3},
		{ID: rowset.Ptr("T2"), Artist: rowset.Ptr("B"), Year: rowset.Ptr(int32(2018)), Plays: 1},
		{ID: rowset.Ptr("T3"), Artist: nil, Year: nil, Plays: 0},
		{ID: rowset.Ptr("T4"), Artist: rowset.Ptr("B"), Year: rowset.Ptr(int32(2018)), Plays: 7},
	}

	committed, err := lake.Committed(ctx, l, tracks)
	require.NoError(t, err)
	assert.False(t, committed)

	res, err := lake.Write(ctx, l, tracks, rows)
	require.NoError(t, err)
	assert.Equal(t, lake.WriteResult{Table: "tracks", Rows: 4, Partitions: 3}, res)

	keys, err := store.List(ctx, "out/tracks.parquet/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"out/tracks.parquet/_SUCCESS",
		"out/tracks.parquet/year=2018/artist=A%2FC/part-00000-run1.snappy.parquet",
		"out/tracks.parquet/year=2018/artist=B/part-00001-run1.snappy.parquet",
		"out/tracks.parquet/year=__HIVE_DEFAULT_PARTITION__/artist=__HIVE_DEFAULT_PARTITION__/part-00002-run1.snappy.parquet",
	}, keys)

	committed, err = lake.Committed(ctx, l, tracks)
	require.NoError(t, err)
	assert.True(t, committed)

	back, err := lake.Read(ctx, l, tracks)
	require.NoError(t, err)
	assert.ElementsMatch(t, rows, back)
}

func TestWriteOverwrites(t *testing.T) {
	ctx := context.Background()
	l, store := newLake(t, "first")

	_, err := lake.Write(ctx, l, tracks, []track{
		{ID: rowset.Ptr("old"), Artist: rowset.Ptr("X"), Year: rowset.Ptr(int32(1999))},
	})
	require.NoError(t, err)

	second := lake.New(zaptest.NewLogger(t), store, "out/", t.TempDir(), "second")
	fresh := []track{{ID: rowset.Ptr("new"), Artist: rowset.Ptr("Y"), Year: rowset.Ptr(int32(2000)), Plays: 2}}
	_, err = lake.Write(ctx, second, tracks, fresh)
	require.NoError(t, err)

	keys, err := store.List(ctx, "out/")
	require.NoError(t, err)
	for _, key := range keys {
		assert.NotContains(t, key, "first")
	}

	back, err := lake.Read(ctx, second, tracks)
	require.NoError(t, err)
	assert.Equal(t, fresh, back)
}

func TestWriteEmpty(t *testing.T) {
	ctx := context.Background()
	l, store := newLake(t, "run")

	res, err := lake.Write(ctx, l, tracks, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Partitions)

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"out/tracks.parquet/_SUCCESS"}, keys)

	back, err := lake.Read(ctx, l, tracks)
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestUnpartitioned(t *testing.T) {
	ctx := context.Background()
	l, store := newLake(t, "run")

	flat := lake.Table[track]{Name: "flat"}
	_, err := lake.Write(ctx, l, flat, []track{{ID: rowset.Ptr("T1")}, {ID: rowset.Ptr("T2")}})
	require.NoError(t, err)

	keys, err := store.List(ctx, "out/flat.parquet/")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Len(t, keys, 2)
	assert.True(t, strings.HasSuffix(keys[1], "flat.parquet/part-00000-run.snappy.parquet"), keys[1])
}

func TestPartitionValues(t *testing.T) {
	assert.Equal(t, lake.DefaultPartition, lake.String(nil))
	assert.Equal(t, lake.DefaultPartition, lake.String(rowset.Ptr("")))
	assert.Equal(t, "AR1", lake.String(rowset.Ptr("AR1")))
	assert.Equal(t, lake.DefaultPartition, lake.Int32(nil))
	assert.Equal(t, "0", lake.Int32(rowset.Ptr(int32(0))))
}

func TestPartitionMismatch(t *testing.T) {
	l, _ := newLake(t, "run")
	broken := lake.Table[track]{
		Name:        "broken",
		PartitionBy: []string{"year", "artist"},
		Partition:   func(track) []string { return []string{"2018"} },
	}
	_, err := lake.Write(context.Background(), l, broken, []track{{}})
	require.Error(t, err)
	assert.True(t, lake.Error.Has(err))
}
