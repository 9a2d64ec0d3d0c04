package pipeline

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pankajkoti/data-lake-with-spark/internal/records"
)

// Input datasets below the input root.
const (
	SongData = "song_data"
	LogData  = "log_data"
)

// songFileDepth is the number of directories between song_data/ and a song file.
const songFileDepth = 3

// readResult is what one dataset read contributed to the run.
type readResult struct {
	filesFound int
	files      int
	bytes      int64
	counts     records.Counts
}

// listInputs returns the JSON files of dataset in key order. depth > 0 requires
// exactly that many directories below the dataset root.
func (p *Pipeline) listInputs(ctx context.Context, dataset string, depth int) ([]string, error) {
	prefix := p.inputLoc.Prefix + dataset + "/"
	p.log.Info("Listing input files", zap.String("location", p.inputLoc.String()), zap.String("prefix", prefix))

	keys, err := p.input.List(ctx, prefix)
	if err != nil {
		return nil, Error.New("failed to list %s: %w", dataset, err)
	}

	var inputs []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		base := rel[strings.LastIndex(rel, "/")+1:]
		if !strings.HasSuffix(base, ".json") || strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
			continue
		}
		if depth > 0 && strings.Count(rel, "/") != depth {
			continue
		}
		inputs = append(inputs, key)
	}

	p.log.Info("Found input files", zap.String("dataset", dataset), zap.Int("files", len(inputs)))
	return inputs, nil
}

// readDataset downloads and decodes every key of dataset with a bounded worker pool.
// Records keep the order of keys. The first failure cancels the remaining work.
func readDataset[T any](ctx context.Context, p *Pipeline, dataset string, keys []string, decode func(io.Reader) ([]T, records.Counts, error)) ([]T, readResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := readResult{filesFound: len(keys)}
	perFile := make([][]T, len(keys))

	semaphore := make(chan struct{}, p.workerCount)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, key := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			if ctx.Err() != nil {
				return
			}

			rows, counts, size, err := readFile(ctx, p, k, decode)

			mu.Lock()
			defer mu.Unlock()
			res.bytes += size
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			perFile[i] = rows
			res.files++
			res.counts.Add(counts)
			p.metrics.FilesRead.WithLabelValues(dataset).Inc()
			if res.files%100 == 0 || res.files <= 5 {
				p.log.Info("Progress", zap.String("dataset", dataset), zap.Int("processed", res.files), zap.Int("remaining", len(keys)-res.files))
			}
		}(i, key)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, res, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, res, Error.Wrap(err)
	}

	var out []T
	for _, rows := range perFile {
		out = append(out, rows...)
	}

	for status, n := range map[records.Status]int64{
		records.StatusOK:        res.counts.OK,
		records.StatusCoerced:   res.counts.Coerced,
		records.StatusMalformed: res.counts.Malformed,
	} {
		p.metrics.RecordsRead.WithLabelValues(dataset, status.String()).Add(float64(n))
	}
	p.log.Info("Read dataset",
		zap.String("dataset", dataset),
		zap.Int("files", res.files),
		zap.Int64("bytes", res.bytes),
		zap.Int64("ok", res.counts.OK),
		zap.Int64("coerced", res.counts.Coerced),
		zap.Int64("malformed", res.counts.Malformed))
	if res.counts.Coerced > 0 || res.counts.Malformed > 0 {
		p.log.Warn("Input records did not match the declared schema",
			zap.String("dataset", dataset),
			zap.Int64("coerced", res.counts.Coerced),
			zap.Int64("malformed", res.counts.Malformed))
	}
	return out, res, nil
}

// readFile downloads key and decodes it.
func readFile[T any](ctx context.Context, p *Pipeline, key string, decode func(io.Reader) ([]T, records.Counts, error)) ([]T, records.Counts, int64, error) {
	p.log.Debug("Downloading input file", zap.String("key", key))
	data, err := p.input.Get(ctx, key)
	if err != nil {
		return nil, records.Counts{}, 0, Error.New("failed to download %s: %w", key, err)
	}

	rows, counts, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, counts, int64(len(data)), Error.New("failed to parse %s: %w", key, err)
	}

	p.log.Debug("Parsed input file", zap.String("key", key), zap.Int("bytes", len(data)), zap.Int("records", len(rows)))
	return rows, counts, int64(len(data)), nil
}
