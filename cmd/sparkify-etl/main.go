// Command sparkify-etl loads the song and log datasets into the sparkify data lake.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pankajkoti/data-lake-with-spark/internal/activity"
	"github.com/pankajkoti/data-lake-with-spark/internal/config"
	"github.com/pankajkoti/data-lake-with-spark/internal/metrics"
	"github.com/pankajkoti/data-lake-with-spark/internal/notify"
	"github.com/pankajkoti/data-lake-with-spark/internal/pipeline"
	"github.com/pankajkoti/data-lake-with-spark/internal/songplays"
	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

const (
	inputData  = "s3a://udacity-dend/"
	outputData = "s3a://sparkify-output/"
)

var (
	rootCmd = &cobra.Command{
		Use:          "sparkify-etl",
		Short:        "Load song and log data into the sparkify data lake",
		SilenceUsage: true,
		RunE:         cmdRun,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Build every table",
		RunE:  cmdRun,
	}
	songsCmd = &cobra.Command{
		Use:   "songs",
		Short: "Build the songs and artists tables",
		RunE:  cmdSongs,
	}
	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Build the users, time and songplays tables against an existing catalog",
		RunE:  cmdLogs,
	}

	flags struct {
		config  string
		envFile string
		input   string
		output  string
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "dl.cfg", "path to the INI configuration file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "optional dotenv file with AWS credentials")
	pf.StringVar(&flags.input, "input", inputData, "input root (s3a://, minio://, file:// or a path)")
	pf.StringVar(&flags.output, "output", outputData, "output root (s3a://, minio://, file:// or a path)")

	rootCmd.AddCommand(runCmd, songsCmd, logsCmd)
}

func cmdRun(cmd *cobra.Command, args []string) error {
	return execute(cmd, (*pipeline.Pipeline).Run)
}

func cmdSongs(cmd *cobra.Command, args []string) error {
	return execute(cmd, (*pipeline.Pipeline).Songs)
}

func cmdLogs(cmd *cobra.Command, args []string) error {
	return execute(cmd, (*pipeline.Pipeline).Logs)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Path:    flags.config,
		EnvFile: flags.envFile,
		Input:   inputData,
		Output:  outputData,
	})
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("input") {
		cfg.Storage.Input = flags.input
	}
	if cmd.Flags().Changed("output") {
		cfg.Storage.Output = flags.output
	}
	return cfg, nil
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

func execute(cmd *cobra.Command, stage func(*pipeline.Pipeline, context.Context) (*pipeline.Stats, error)) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.ETL.Timeout)
	defer cancel()

	m := metrics.New()
	notifier, err := newNotifier(log, cfg.Notify)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := notifier.Close(); cerr != nil {
			log.Warn("Failed to close notifier", zap.Error(cerr))
		}
	}()

	p, err := newPipeline(ctx, log, cfg, m, notifier)
	if err != nil {
		log.Error("Failed to set up pipeline", zap.Error(err))
		return err
	}
	defer p.Cleanup()

	_, err = stage(p, ctx)

	if cfg.Metrics.PushgatewayURL != "" {
		if perr := m.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, p.RunID()); perr != nil {
			log.Warn("Failed to push metrics", zap.Error(perr))
		}
	}

	if err != nil {
		log.Error("Pipeline failed", zap.Error(err))
		return err
	}
	log.Info("ETL pipeline completed successfully!")
	return nil
}

func newPipeline(ctx context.Context, log *zap.Logger, cfg *config.Config, m *metrics.Metrics, n notify.Notifier) (*pipeline.Pipeline, error) {
	joinPolicy, err := songplays.ParsePolicy(cfg.ETL.JoinPolicy)
	if err != nil {
		return nil, err
	}
	usersPolicy, err := activity.ParseUsersPolicy(cfg.ETL.UsersPolicy)
	if err != nil {
		return nil, err
	}

	inLoc, err := storage.ParseLocation(cfg.Storage.Input)
	if err != nil {
		return nil, err
	}
	outLoc, err := storage.ParseLocation(cfg.Storage.Output)
	if err != nil {
		return nil, err
	}

	opts := cfg.StorageOptions()

	inOpts := opts
	inOpts.CreateBucket = false
	in, err := storage.Open(ctx, log, inLoc, inOpts)
	if err != nil {
		return nil, err
	}
	out, err := storage.Open(ctx, log, outLoc, opts)
	if err != nil {
		return nil, err
	}

	log.Info("Configured pipeline",
		zap.Stringer("input", inLoc),
		zap.Stringer("output", outLoc),
		zap.Int("workers", cfg.ETL.Workers),
		zap.String("join_policy", string(joinPolicy)),
		zap.String("users_policy", string(usersPolicy)))

	return pipeline.New(log, pipeline.Config{
		Input:       inLoc,
		Output:      outLoc,
		Workers:     cfg.ETL.Workers,
		TempDir:     cfg.Storage.TempDir,
		JoinPolicy:  joinPolicy,
		UsersPolicy: usersPolicy,
	}, in, out, m, n)
}

func newNotifier(log *zap.Logger, cfg config.Notify) (notify.Notifier, error) {
	var notifiers []notify.Notifier
	if cfg.AMQPURL != "" {
		notifiers = append(notifiers, notify.NewAMQP(log, cfg.AMQPURL, cfg.AMQPQueue))
	}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := notify.NewKafka(log, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, k)
	}
	return notify.NewMulti(log, notifiers...), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
