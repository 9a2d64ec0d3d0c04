package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankajkoti/data-lake-with-spark/internal/config"
	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnv(string) string { return "" }

func options(path string) config.Options {
	return config.Options{
		Path:   path,
		Input:  "s3a://udacity-dend/",
		Output: "s3a://sparkify-output/",
		Getenv: noEnv,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(options(filepath.Join(t.TempDir(), "missing.cfg")))
	require.NoError(t, err)

	assert.Equal(t, "s3a://udacity-dend/", cfg.Storage.Input)
	assert.Equal(t, "s3a://sparkify-output/", cfg.Storage.Output)
	assert.Equal(t, storage.DefaultRegion, cfg.Storage.Region)
	assert.True(t, cfg.Storage.VerifyUploads)
	assert.GreaterOrEqual(t, cfg.ETL.Workers, 2)
	assert.Equal(t, 6*time.Hour, cfg.ETL.Timeout)
	assert.Equal(t, "all", cfg.ETL.JoinPolicy)
	assert.Equal(t, "distinct", cfg.ETL.UsersPolicy)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sparkify_etl", cfg.Metrics.Job)
	assert.Empty(t, cfg.Notify.KafkaBrokers)
	assert.True(t, cfg.Credentials().Empty())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "dl.cfg", `[AWS]
AWS_ACCESS_KEY_ID = AKIAEXAMPLE
AWS_SECRET_ACCESS_KEY = secret

[storage]
input = file:///data/in
output = minio://lake/sparkify/
endpoint = localhost:9000
secure = false

[etl]
workers = 3
timeout = 30m
join_policy = first
users_policy = latest

[notify]
kafka_brokers = localhost:9092,localhost:9093
`)

	cfg, err := config.Load(options(path))
	require.NoError(t, err)

	assert.Equal(t, storage.Credentials{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret"}, cfg.Credentials())
	assert.Equal(t, "file:///data/in", cfg.Storage.Input)
	assert.Equal(t, "minio://lake/sparkify/", cfg.Storage.Output)
	assert.Equal(t, 3, cfg.ETL.Workers)
	assert.Equal(t, 30*time.Minute, cfg.ETL.Timeout)
	assert.Equal(t, "first", cfg.ETL.JoinPolicy)
	assert.Equal(t, "latest", cfg.ETL.UsersPolicy)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Notify.KafkaBrokers)

	opts := cfg.StorageOptions()
	assert.Equal(t, "localhost:9000", opts.Endpoint)
	assert.False(t, opts.Secure)
}

func TestLoadCredentialFallback(t *testing.T) {
	t.Run("unsectioned keys", func(t *testing.T) {
		path := writeFile(t, "dl.cfg", "AWS_ACCESS_KEY_ID = top\nAWS_SECRET_ACCESS_KEY = level\n")

		cfg, err := config.Load(options(path))
		require.NoError(t, err)
		assert.Equal(t, "top", cfg.AWS.AccessKeyID)
		assert.Equal(t, "level", cfg.AWS.SecretAccessKey)
	})

	t.Run("dotenv file", func(t *testing.T) {
		opts := options(writeFile(t, "dl.cfg", "[etl]\nworkers = 1\n"))
		opts.EnvFile = writeFile(t, ".env", "AWS_ACCESS_KEY_ID=fromdotenv\nAWS_SECRET_ACCESS_KEY=dotsecret\n")
		opts.Getenv = func(string) string { return "fromenv" }

		cfg, err := config.Load(opts)
		require.NoError(t, err)
		assert.Equal(t, "fromdotenv", cfg.AWS.AccessKeyID)
		assert.Equal(t, "dotsecret", cfg.AWS.SecretAccessKey)
	})

	t.Run("environment", func(t *testing.T) {
		opts := options("")
		opts.EnvFile = filepath.Join(t.TempDir(), ".env")
		opts.Getenv = func(name string) string {
			return map[string]string{
				config.AccessKeyIDVar:     "envkey",
				config.SecretAccessKeyVar: "envsecret",
			}[name]
		}

		cfg, err := config.Load(opts)
		require.NoError(t, err)
		assert.Equal(t, "envkey", cfg.AWS.AccessKeyID)
		assert.Equal(t, "envsecret", cfg.AWS.SecretAccessKey)
	})
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"join policy":    "[etl]\njoin_policy = fuzzy\n",
		"users policy":   "[etl]\nusers_policy = scd2\n",
		"workers":        "[etl]\nworkers = 0\n",
		"log level":      "[log]\nlevel = loud\n",
		"amqp url":       "[notify]\namqp_url = not a url\n",
		"missing secret": "[AWS]\nAWS_ACCESS_KEY_ID = only-half\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(options(writeFile(t, "dl.cfg", content)))
			require.Error(t, err)
			assert.True(t, config.Error.Has(err))
		})
	}
}

func TestLoadUnreadable(t *testing.T) {
	_, err := config.Load(options(writeFile(t, "dl.cfg", "[etl\nworkers = 2\n")))
	require.Error(t, err)
	assert.True(t, config.Error.Has(err))
}
