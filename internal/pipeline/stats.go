package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pankajkoti/data-lake-with-spark/internal/notify"
	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/songplays"
)

// runsDir holds one stats file per run below the output root.
const runsDir = "_runs/"

// Stats holds the performance and data-quality figures of one run.
type Stats struct {
	RunID                   string                    `json:"run_id"`
	Command                 string                    `json:"command"`
	Status                  string                    `json:"status"`
	Error                   string                    `json:"error,omitempty"`
	Input                   string                    `json:"input"`
	Output                  string                    `json:"output"`
	StartedAt               time.Time                 `json:"started_at"`
	TotalExecutionTime      string                    `json:"total_execution_time"`
	TotalFilesFound         int                       `json:"total_files_found"`
	FilesProcessed          int                       `json:"files_processed"`
	TotalBytesProcessed     int64                     `json:"total_bytes_processed"`
	ProcessingThroughputGBs float64                   `json:"processing_throughput_gb_per_sec"`
	Records                 map[string]records.Counts `json:"records"`
	Rows                    map[string]int            `json:"rows"`
	Songplays               songplays.Counts          `json:"songplays"`

	mu       sync.Mutex
	duration time.Duration
}

func newStats(p *Pipeline, command string) *Stats {
	return &Stats{
		RunID:     p.runID,
		Command:   command,
		Input:     p.inputLoc.String(),
		Output:    p.outputLoc.String(),
		StartedAt: time.Now().UTC(),
		Records:   make(map[string]records.Counts),
		Rows:      make(map[string]int),
	}
}

func (s *Stats) addRead(dataset string, r readResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalFilesFound += r.filesFound
	s.FilesProcessed += r.files
	s.TotalBytesProcessed += r.bytes
	c := s.Records[dataset]
	c.Add(r.counts)
	s.Records[dataset] = c
}

func (s *Stats) addRows(table string, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rows[table] = rows
}

func (s *Stats) setSongplays(c songplays.Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Songplays = c
}

// finish stamps the outcome of the run.
func (s *Stats) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = time.Since(s.StartedAt)
	s.TotalExecutionTime = s.duration.String()
	if s.duration.Seconds() > 0 {
		s.ProcessingThroughputGBs = float64(s.TotalBytesProcessed) / 1e9 / s.duration.Seconds()
	}
	s.Status = notify.StatusSucceeded
	if err != nil {
		s.Status = notify.StatusFailed
		s.Error = err.Error()
	}
}

func (s *Stats) event() notify.RunCompleted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return notify.RunCompleted{
		RunID:           s.RunID,
		Status:          s.Status,
		Error:           s.Error,
		Input:           s.Input,
		Output:          s.Output,
		FinishedAt:      s.StartedAt.Add(s.duration),
		DurationSeconds: s.duration.Seconds(),
		Rows:            s.Rows,
		Records:         s.Records,
		Songplays:       s.Songplays,
	}
}

// StatsKey returns the key of the stats file of run below the output root.
func (p *Pipeline) StatsKey() string {
	return p.outputLoc.Prefix + runsDir + p.runID + ".json"
}

func (p *Pipeline) writeStats(ctx context.Context, s *Stats) {
	s.mu.Lock()
	statsJSON, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		p.log.Warn("Failed to serialize stats", zap.Error(err))
		return
	}

	if err := p.output.Put(ctx, p.StatsKey(), bytes.NewReader(statsJSON), nil); err != nil {
		p.log.Warn("Failed to write stats file", zap.String("key", p.StatsKey()), zap.Error(err))
		return
	}
	p.log.Info("Successfully wrote stats", zap.String("key", p.StatsKey()))
}
