// Package pipeline runs the ETL job: it reads the song and log datasets, builds the
// dimension and fact tables and writes them to the output lake.
package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/pankajkoti/data-lake-with-spark/internal/activity"
	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/metrics"
	"github.com/pankajkoti/data-lake-with-spark/internal/notify"
	"github.com/pankajkoti/data-lake-with-spark/internal/songplays"
	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

// Error is the error class for pipeline runs.
var Error = errs.Class("pipeline")

// Config tunes one Pipeline.
type Config struct {
	Input  storage.Location
	Output storage.Location
	// Workers bounds concurrent input downloads.
	Workers int
	// TempDir stages part files before upload. A fresh directory is created when empty.
	TempDir     string
	JoinPolicy  songplays.Policy
	UsersPolicy activity.UsersPolicy
}

// Pipeline holds the stores and settings of one run.
type Pipeline struct {
	log      *zap.Logger
	input    storage.Store
	output   storage.Store
	lake     *lake.Lake
	metrics  *metrics.Metrics
	notifier notify.Notifier

	inputLoc    storage.Location
	outputLoc   storage.Location
	workerCount int
	tempDir     string
	runID       string
	joinPolicy  songplays.Policy
	usersPolicy activity.UsersPolicy
}

// New returns a pipeline reading from input and writing to output. Every store call
// is counted in m.
func New(log *zap.Logger, cfg Config, input, output storage.Store, m *metrics.Metrics, n notify.Notifier) (*Pipeline, error) {
	if cfg.Workers < 1 {
		return nil, Error.New("worker count must be positive, got %d", cfg.Workers)
	}
	if cfg.JoinPolicy == "" {
		cfg.JoinPolicy = songplays.PolicyAll
	}
	if cfg.UsersPolicy == "" {
		cfg.UsersPolicy = activity.UsersDistinct
	}
	if n == nil {
		n = notify.Nop{}
	}

	runID := uuid.NewString()

	tempDir := cfg.TempDir
	if tempDir == "" {
		dir, err := os.MkdirTemp("", "sparkify-etl-")
		if err != nil {
			return nil, Error.New("failed to create temp directory: %w", err)
		}
		tempDir = dir
	} else {
		tempDir = filepath.Join(tempDir, runID)
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return nil, Error.New("failed to create temp directory: %w", err)
		}
	}

	log = log.Named("pipeline").With(zap.String("run_id", runID))
	output = storage.Observed(output, m)

	return &Pipeline{
		log:         log,
		input:       storage.Observed(input, m),
		output:      output,
		lake:        lake.New(log, output, cfg.Output.Prefix, tempDir, runID),
		metrics:     m,
		notifier:    n,
		inputLoc:    cfg.Input,
		outputLoc:   cfg.Output,
		workerCount: cfg.Workers,
		tempDir:     tempDir,
		runID:       runID,
		joinPolicy:  cfg.JoinPolicy,
		usersPolicy: cfg.UsersPolicy,
	}, nil
}

// RunID identifies this run in part-file names, stats and notifications.
func (p *Pipeline) RunID() string { return p.runID }

// Cleanup removes the temp directory.
func (p *Pipeline) Cleanup() {
	p.log.Info("Cleaning up temp directory", zap.String("dir", p.tempDir))
	if err := os.RemoveAll(p.tempDir); err != nil {
		p.log.Warn("Failed to clean up temp directory", zap.Error(err))
	}
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	p.metrics.ObserveStage(stage, start)
	p.log.Info("Stage completed", zap.String("stage", stage), zap.Duration("duration", time.Since(start)))
}
