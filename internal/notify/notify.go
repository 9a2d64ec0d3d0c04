// Package notify announces finished runs to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/songplays"
)

// Error is the error class for notification delivery.
var Error = errs.Class("notify")

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunCompleted is published once per run.
type RunCompleted struct {
	RunID           string                    `json:"run_id"`
	Status          string                    `json:"status"`
	Error           string                    `json:"error,omitempty"`
	Input           string                    `json:"input"`
	Output          string                    `json:"output"`
	FinishedAt      time.Time                 `json:"finished_at"`
	DurationSeconds float64                   `json:"duration_seconds"`
	Rows            map[string]int            `json:"rows"`
	Records         map[string]records.Counts `json:"records"`
	Songplays       songplays.Counts          `json:"songplays"`
}

func (e RunCompleted) marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, Error.New("failed to marshal run %s: %w", e.RunID, err)
	}
	return body, nil
}

// Notifier delivers run events.
type Notifier interface {
	Notify(ctx context.Context, event RunCompleted) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, RunCompleted) error { return nil }

// Close implements Notifier.
func (Nop) Close() error { return nil }

// Multi delivers every event to each of its notifiers.
type Multi struct {
	log       *zap.Logger
	notifiers []Notifier
}

// NewMulti returns a Notifier fanning out to notifiers. With none it behaves as Nop.
func NewMulti(log *zap.Logger, notifiers ...Notifier) *Multi {
	return &Multi{log: log.Named("notify"), notifiers: notifiers}
}

// Notify implements Notifier. Every notifier is tried; failures are combined.
func (m *Multi) Notify(ctx context.Context, event RunCompleted) error {
	var group errs.Group
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			m.log.Warn("Notification failed", zap.String("run_id", event.RunID), zap.Error(err))
			group.Add(err)
		}
	}
	return group.Err()
}

// Close implements Notifier.
func (m *Multi) Close() error {
	var group errs.Group
	for _, n := range m.notifiers {
		group.Add(n.Close())
	}
	return group.Err()
}
