package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pankajkoti/data-lake-with-spark/internal/activity"
	"github.com/pankajkoti/data-lake-with-spark/internal/catalog"
	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/songplays"
	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

// Commands, as recorded in stats.
const (
	CommandRun   = "run"
	CommandSongs = "songs"
	CommandLogs  = "logs"
)

// Run processes both datasets. The catalog and activity stages run concurrently;
// songplays starts once both have committed their tables.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	return p.execute(ctx, CommandRun, func(ctx context.Context, stats *Stats) error {
		var act activityTables

		group, gctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return p.catalogStage(gctx, stats)
		})
		group.Go(func() error {
			var err error
			act, err = p.activityStage(gctx, stats)
			return err
		})
		if err := group.Wait(); err != nil {
			return err
		}

		return p.songplaysStage(ctx, stats, act)
	})
}

// Songs processes the song dataset only.
func (p *Pipeline) Songs(ctx context.Context) (*Stats, error) {
	return p.execute(ctx, CommandSongs, p.catalogStage)
}

// Logs processes the log dataset against a catalog already in the output lake.
func (p *Pipeline) Logs(ctx context.Context) (*Stats, error) {
	return p.execute(ctx, CommandLogs, func(ctx context.Context, stats *Stats) error {
		act, err := p.activityStage(ctx, stats)
		if err != nil {
			return err
		}
		return p.songplaysStage(ctx, stats, act)
	})
}

// execute wraps a command with stats, the stats file and the run notification.
func (p *Pipeline) execute(ctx context.Context, command string, body func(context.Context, *Stats) error) (*Stats, error) {
	p.log.Info("Starting ETL pipeline",
		zap.String("command", command),
		zap.String("input", p.inputLoc.String()),
		zap.String("output", p.outputLoc.String()),
		zap.Int("workers", p.workerCount))

	stats := newStats(p, command)
	err := storage.Probe(ctx, p.log, p.output, p.outputLoc.Prefix+runsDir+p.runID+".probe")
	if err == nil {
		err = body(ctx, stats)
	}
	stats.finish(err)

	if err != nil {
		p.log.Error("ETL pipeline failed", zap.Error(err))
	} else {
		p.log.Info("ETL pipeline completed",
			zap.String("duration", stats.TotalExecutionTime),
			zap.Int("files", stats.FilesProcessed),
			zap.Any("rows", stats.Rows),
			zap.Any("songplays", stats.Songplays))
	}

	// Reporting outlives a cancelled run context.
	reportCtx := context.WithoutCancel(ctx)
	p.writeStats(reportCtx, stats)
	if nerr := p.notifier.Notify(reportCtx, stats.event()); nerr != nil {
		p.log.Warn("Failed to publish run notification", zap.Error(nerr))
	}

	return stats, err
}

func (p *Pipeline) catalogStage(ctx context.Context, stats *Stats) error {
	defer p.observeStage("catalog", time.Now())

	keys, err := p.listInputs(ctx, SongData, songFileDepth)
	if err != nil {
		return err
	}
	songs, read, err := readDataset(ctx, p, SongData, keys, records.DecodeSongs)
	stats.addRead(SongData, read)
	if err != nil {
		return err
	}

	tables := catalog.Extract(songs)
	if err := writeTable(ctx, p, stats, catalog.SongsTable, tables.Songs); err != nil {
		return err
	}
	return writeTable(ctx, p, stats, catalog.ArtistsTable, tables.Artists)
}

// activityTables carries what the songplays stage needs from the activity stage.
type activityTables struct {
	plays []records.Event
	times []activity.Time
}

func (p *Pipeline) activityStage(ctx context.Context, stats *Stats) (activityTables, error) {
	defer p.observeStage("activity", time.Now())

	keys, err := p.listInputs(ctx, LogData, 0)
	if err != nil {
		return activityTables{}, err
	}
	events, read, err := readDataset(ctx, p, LogData, keys, records.DecodeEvents)
	stats.addRead(LogData, read)
	if err != nil {
		return activityTables{}, err
	}

	plays := activity.Plays(events)
	p.log.Info("Filtered song plays", zap.Int("events", len(events)), zap.Int("plays", len(plays)))

	if err := writeTable(ctx, p, stats, activity.UsersTable, activity.Users(plays, p.usersPolicy)); err != nil {
		return activityTables{}, err
	}
	times := activity.Times(plays)
	if err := writeTable(ctx, p, stats, activity.TimeTable, times); err != nil {
		return activityTables{}, err
	}
	return activityTables{plays: plays, times: times}, nil
}

func (p *Pipeline) songplaysStage(ctx context.Context, stats *Stats, act activityTables) error {
	defer p.observeStage("songplays", time.Now())

	for name, committed := range map[string]func() (bool, error){
		catalog.SongsTable.Name:   func() (bool, error) { return lake.Committed(ctx, p.lake, catalog.SongsTable) },
		catalog.ArtistsTable.Name: func() (bool, error) { return lake.Committed(ctx, p.lake, catalog.ArtistsTable) },
	} {
		ok, err := committed()
		if err != nil {
			return Error.Wrap(err)
		}
		if !ok {
			return Error.New("table %s has no %s marker under %s; run the songs command first", name, lake.SuccessMarker, p.outputLoc)
		}
	}

	songs, err := lake.Read(ctx, p.lake, catalog.SongsTable)
	if err != nil {
		return Error.Wrap(err)
	}
	artists, err := lake.Read(ctx, p.lake, catalog.ArtistsTable)
	if err != nil {
		return Error.Wrap(err)
	}

	res := songplays.Join(act.plays, songs, artists, act.times, p.joinPolicy)
	stats.setSongplays(res.Counts)
	for outcome, n := range map[songplays.Outcome]int64{
		songplays.Matched:   res.Counts.Matched,
		songplays.Unmatched: res.Counts.Unmatched,
		songplays.Ambiguous: res.Counts.Ambiguous,
		songplays.Malformed: res.Counts.Malformed,
	} {
		p.metrics.SongplayEvents.WithLabelValues(outcome.String()).Add(float64(n))
	}

	p.log.Info("Joined song plays",
		zap.String("policy", string(p.joinPolicy)),
		zap.Int64("matched", res.Counts.Matched),
		zap.Int64("unmatched", res.Counts.Unmatched),
		zap.Int64("ambiguous", res.Counts.Ambiguous),
		zap.Int64("malformed", res.Counts.Malformed),
		zap.Int("rows", len(res.Rows)))

	return writeTable(ctx, p, stats, songplays.Table, res.Rows)
}

func writeTable[T any](ctx context.Context, p *Pipeline, stats *Stats, table lake.Table[T], rows []T) error {
	written, err := lake.Write(ctx, p.lake, table, rows)
	if err != nil {
		return Error.New("failed to write %s: %w", table.Name, err)
	}
	stats.addRows(table.Name, written.Rows)
	p.metrics.RowsWritten.WithLabelValues(table.Name).Add(float64(written.Rows))
	p.log.Info("Wrote table",
		zap.String("table", table.Name),
		zap.Int("rows", written.Rows),
		zap.Int("partitions", written.Partitions))
	return nil
}
