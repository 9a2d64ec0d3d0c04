package lake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

// parallelism is the parquet-go marshal/unmarshal goroutine count per file.
const parallelism = 4

// flushEvery bounds the rows buffered by the parquet writer between flushes.
const flushEvery = 100000

// Lake reads and writes datasets under one root of a store.
type Lake struct {
	log     *zap.Logger
	store   storage.Store
	root    string
	tempDir string
	runID   string
}

// New returns a Lake rooted at root (empty or ending in "/"). Part files are staged
// in tempDir before upload and carry runID in their names.
func New(log *zap.Logger, store storage.Store, root, tempDir, runID string) *Lake {
	return &Lake{
		log:     log.Named("lake"),
		store:   store,
		root:    root,
		tempDir: tempDir,
		runID:   runID,
	}
}

// WriteResult summarizes one dataset write.
type WriteResult struct {
	Table      string
	Rows       int
	Partitions int
}

// Write replaces the dataset of table with rows: existing objects are deleted, one
// SNAPPY part file is written per partition and the success marker goes last.
func Write[T any](ctx context.Context, l *Lake, table Table[T], rows []T) (WriteResult, error) {
	dir := table.Dir(l.root)
	log := l.log.With(zap.String("table", table.Name), zap.String("dir", dir))

	if err := l.clear(ctx, dir); err != nil {
		return WriteResult{}, err
	}

	partitions := make(map[string][]T)
	for _, row := range rows {
		p, err := table.partitionDir(row)
		if err != nil {
			return WriteResult{}, err
		}
		partitions[p] = append(partitions[p], row)
	}
	names := make([]string, 0, len(partitions))
	for p := range partitions {
		names = append(names, p)
	}
	sort.Strings(names)

	log.Info("Writing dataset", zap.Int("rows", len(rows)), zap.Int("partitions", len(names)))

	for i, p := range names {
		key := fmt.Sprintf("%s%spart-%05d-%s.snappy.parquet", dir, p, i, l.runID)
		if err := writePart(ctx, l, key, partitions[p]); err != nil {
			return WriteResult{}, err
		}
	}

	if err := l.store.Put(ctx, dir+SuccessMarker, strings.NewReader(""), nil); err != nil {
		return WriteResult{}, Error.Wrap(err)
	}

	return WriteResult{Table: table.Name, Rows: len(rows), Partitions: len(names)}, nil
}

func (l *Lake) clear(ctx context.Context, dir string) error {
	existing, err := l.store.List(ctx, dir)
	if err != nil {
		return Error.Wrap(err)
	}
	if len(existing) == 0 {
		return nil
	}
	l.log.Info("Overwriting dataset", zap.String("dir", dir), zap.Int("objects", len(existing)))
	return Error.Wrap(l.store.Delete(ctx, existing...))
}

// writePart stages rows in a local parquet file, then uploads it to key.
func writePart[T any](ctx context.Context, l *Lake, key string, rows []T) (err error) {
	if err := os.MkdirAll(l.tempDir, 0o755); err != nil {
		return Error.Wrap(err)
	}
	tmp, err := os.CreateTemp(l.tempDir, "part-*.parquet")
	if err != nil {
		return Error.Wrap(err)
	}
	localFileName := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if rerr := os.Remove(localFileName); rerr != nil && !os.IsNotExist(rerr) {
			l.log.Warn("Failed to remove temp file", zap.String("file", localFileName), zap.Error(rerr))
		}
	}()

	fw, err := local.NewLocalFileWriter(localFileName)
	if err != nil {
		return Error.New("failed to create local file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(T), parallelism)
	if err != nil {
		_ = fw.Close()
		return Error.New("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = fw.Close()
			return Error.New("failed to write row %d of %s: %w", i, key, err)
		}
		if (i+1)%flushEvery == 0 {
			if err := pw.Flush(true); err != nil {
				_ = fw.Close()
				return Error.New("failed to flush %s: %w", key, err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return Error.New("error in WriteStop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return Error.New("error closing file writer: %w", err)
	}

	file, err := os.Open(filepath.Clean(localFileName))
	if err != nil {
		return Error.New("failed to open temp file for upload: %w", err)
	}
	defer func() { _ = file.Close() }()

	err = l.store.Put(ctx, key, file, map[string]string{
		"record-count": strconv.Itoa(len(rows)),
	})
	if err != nil {
		return Error.Wrap(err)
	}

	l.log.Debug("Uploaded part file", zap.String("key", key), zap.Int("rows", len(rows)))
	return nil
}

// Committed reports whether the dataset of table has its success marker.
func Committed[T any](ctx context.Context, l *Lake, table Table[T]) (bool, error) {
	marker := table.Dir(l.root) + SuccessMarker
	keys, err := l.store.List(ctx, marker)
	if err != nil {
		return false, Error.Wrap(err)
	}
	for _, key := range keys {
		if key == marker {
			return true, nil
		}
	}
	return false, nil
}

// Read loads every part file of the dataset of table, in key order.
func Read[T any](ctx context.Context, l *Lake, table Table[T]) ([]T, error) {
	dir := table.Dir(l.root)
	keys, err := l.store.List(ctx, dir)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var rows []T
	for _, key := range keys {
		if !isPartFile(key) {
			continue
		}
		data, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		part, err := readPart[T](data)
		if err != nil {
			return nil, Error.New("failed to read %s: %w", key, err)
		}
		rows = append(rows, part...)
	}

	l.log.Info("Read dataset", zap.String("table", table.Name), zap.Int("rows", len(rows)))
	return rows, nil
}

func readPart[T any](data []byte) ([]T, error) {
	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), new(T), parallelism)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	rows := make([]T, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return nil, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func isPartFile(key string) bool {
	base := key[strings.LastIndex(key, "/")+1:]
	return strings.HasSuffix(base, ".parquet") && !strings.HasPrefix(base, "_") && !strings.HasPrefix(base, ".")
}
