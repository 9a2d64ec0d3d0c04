// Package config loads the job configuration from an INI file, an optional .env
// file and the process environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"

	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

// Error is the error class for configuration loading.
var Error = errs.Class("config")

// EnvPrefix prefixes environment overrides, e.g. SPARKIFY_ETL_WORKERS.
const EnvPrefix = "SPARKIFY"

// Credential variable names, shared by the config file, the .env file and the environment.
const (
	AccessKeyIDVar     = "AWS_ACCESS_KEY_ID"
	SecretAccessKeyVar = "AWS_SECRET_ACCESS_KEY"
)

// Config is the complete job configuration.
type Config struct {
	AWS     AWS     `mapstructure:"aws"`
	Storage Storage `mapstructure:"storage"`
	ETL     ETL     `mapstructure:"etl"`
	Log     Log     `mapstructure:"log"`
	Metrics Metrics `mapstructure:"metrics"`
	Notify  Notify  `mapstructure:"notify"`
}

// AWS holds the access key pair of the [AWS] section.
type AWS struct {
	AccessKeyID     string `mapstructure:"aws_access_key_id"`
	SecretAccessKey string `mapstructure:"aws_secret_access_key" validate:"required_with=AccessKeyID"`
}

// Storage locates the input and output roots.
type Storage struct {
	Input          string `mapstructure:"input" validate:"required"`
	Output         string `mapstructure:"output" validate:"required"`
	Region         string `mapstructure:"region" validate:"required"`
	Endpoint       string `mapstructure:"endpoint" validate:"omitempty,url|hostname_port"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	Secure         bool   `mapstructure:"secure"`
	VerifyUploads  bool   `mapstructure:"verify_uploads"`
	CreateBucket   bool   `mapstructure:"create_bucket"`
	TempDir        string `mapstructure:"temp_dir"`
}

// ETL tunes the transformation.
type ETL struct {
	Workers     int           `mapstructure:"workers" validate:"min=1"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	JoinPolicy  string        `mapstructure:"join_policy" validate:"oneof=all first reject"`
	UsersPolicy string        `mapstructure:"users_policy" validate:"oneof=distinct latest"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// Metrics configures the Pushgateway export. An empty URL disables it.
type Metrics struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job" validate:"required"`
}

// Notify configures run-completed notifications. Each transport is enabled by
// its address.
type Notify struct {
	AMQPURL      string   `mapstructure:"amqp_url" validate:"omitempty,url"`
	AMQPQueue    string   `mapstructure:"amqp_queue" validate:"required_with=AMQPURL"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" validate:"dive,hostname_port"`
	KafkaTopic   string   `mapstructure:"kafka_topic" validate:"required_with=KafkaBrokers"`
}

// Credentials returns the access key pair for the storage clients.
func (c *Config) Credentials() storage.Credentials {
	return storage.Credentials{
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
	}
}

// StorageOptions returns the options shared by the input and output stores.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Credentials:    c.Credentials(),
		Region:         c.Storage.Region,
		Endpoint:       c.Storage.Endpoint,
		ForcePathStyle: c.Storage.ForcePathStyle,
		Secure:         c.Storage.Secure,
		VerifyUploads:  c.Storage.VerifyUploads,
		CreateBucket:   c.Storage.CreateBucket,
	}
}

// Options says where Load looks.
type Options struct {
	// Path of the INI config file. A missing file leaves every setting at its default.
	Path string
	// EnvFile is an optional dotenv file consulted for credentials.
	EnvFile string
	// Input and Output are the default storage roots.
	Input  string
	Output string
	// Getenv reads the process environment; os.Getenv when nil.
	Getenv func(string) string
}

func setDefaults(v *viper.Viper, opts Options) {
	v.SetDefault("storage.input", opts.Input)
	v.SetDefault("storage.output", opts.Output)
	v.SetDefault("storage.region", storage.DefaultRegion)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.force_path_style", false)
	v.SetDefault("storage.secure", true)
	v.SetDefault("storage.verify_uploads", true)
	v.SetDefault("storage.create_bucket", false)
	v.SetDefault("storage.temp_dir", "")

	v.SetDefault("etl.workers", 2*runtime.NumCPU())
	v.SetDefault("etl.timeout", 6*time.Hour)
	v.SetDefault("etl.join_policy", "all")
	v.SetDefault("etl.users_policy", "distinct")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "sparkify_etl")

	v.SetDefault("notify.amqp_url", "")
	v.SetDefault("notify.amqp_queue", "sparkify.etl.runs")
	v.SetDefault("notify.kafka_brokers", []string{})
	v.SetDefault("notify.kafka_topic", "sparkify.etl.runs")
}

// Load reads and validates the configuration.
//
// Credentials resolve in order: the [AWS] section of the config file, keys outside
// any section, the dotenv file, then the environment. Other settings can be
// overridden from the environment as SPARKIFY_<SECTION>_<KEY>.
func Load(opts Options) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	v := viper.New()
	v.SetConfigType("ini")
	setDefaults(v, opts)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, Error.New("failed to read %s: %w", opts.Path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Error.New("failed to decode %s: %w", opts.Path, err)
	}

	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	cfg.AWS.AccessKeyID = firstOf(cfg.AWS.AccessKeyID, unsectioned(v, AccessKeyIDVar), dotenv[AccessKeyIDVar], getenv(AccessKeyIDVar))
	cfg.AWS.SecretAccessKey = firstOf(cfg.AWS.SecretAccessKey, unsectioned(v, SecretAccessKeyVar), dotenv[SecretAccessKeyVar], getenv(SecretAccessKeyVar))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return Error.New("invalid configuration: %w", err)
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, Error.New("failed to read %s: %w", path, err)
	}
	return env, nil
}

// unsectioned reads a key written above the first section header.
func unsectioned(v *viper.Viper, name string) string {
	return v.GetString("default." + strings.ToLower(name))
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
