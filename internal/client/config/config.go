package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openmined/drivesync/internal/utils"
	"github.com/spf13/viper"
)

const (
	BackendDrive = "drive"
	BackendS3    = "s3"

	DefaultLogFile             = "drive_sync.log"
	DefaultPollIntervalSeconds = 10
	DefaultLogMaxSizeMB        = 5
	DefaultLogMaxBackups       = 5
	DefaultChunkSizeMB         = 10
)

var (
	ErrNoSourceFolder = errors.New("config: source folder id missing")
	ErrNoStagingDir   = errors.New("config: staging dir missing")
	ErrNoOutputDir    = errors.New("config: output dir missing")
	ErrNoCredentials  = errors.New("config: credentials path missing")
	ErrDirsOverlap    = errors.New("config: staging and output dirs must not contain each other")
)

type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	SkipETagHash bool   `mapstructure:"skip_etag_hash"` // set for SSE-KMS and SSE-C buckets
}

type Config struct {
	Backend             string   `mapstructure:"backend"`
	CredentialsPath     string   `mapstructure:"credentials_path"`
	SourceFolderID      string   `mapstructure:"source_folder_id"`
	LogFolderID         string   `mapstructure:"log_folder_id"`
	StagingDir          string   `mapstructure:"staging_dir"`
	OutputDir           string   `mapstructure:"output_dir"`
	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds"`
	Exclude             []string `mapstructure:"exclude"`
	ChunkSizeMB         int      `mapstructure:"chunk_size_mb"`
	LogFile             string   `mapstructure:"log_file"`
	LogMaxSizeMB        int      `mapstructure:"log_max_size_mb"`
	LogMaxBackups       int      `mapstructure:"log_max_backups"`
	LogLevel            string   `mapstructure:"log_level"`
	S3                  S3Config `mapstructure:"s3"`
	Path                string   `mapstructure:"-"`
}

// legacyEnv maps config keys to the variable names of the original .env files.
var legacyEnv = map[string]string{
	"credentials_path": "CREDENTIALS_PATH",
	"source_folder_id": "DRIVE_FOLDER_ID",
	"log_folder_id":    "LOG_DRIVE_FOLDER_ID",
	"staging_dir":      "LOCAL_FOLDER",
	"output_dir":       "OUTPUT_FOLDER",
}

// SetDefaults registers defaults for every key so AutomaticEnv can see them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendDrive)
	v.SetDefault("credentials_path", "")
	v.SetDefault("source_folder_id", "")
	v.SetDefault("log_folder_id", "")
	v.SetDefault("staging_dir", "")
	v.SetDefault("output_dir", "")
	v.SetDefault("poll_interval_seconds", DefaultPollIntervalSeconds)
	v.SetDefault("exclude", []string{})
	v.SetDefault("chunk_size_mb", DefaultChunkSizeMB)
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("log_max_size_mb", DefaultLogMaxSizeMB)
	v.SetDefault("log_max_backups", DefaultLogMaxBackups)
	v.SetDefault("log_level", "info")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.skip_etag_hash", false)
}

// BindEnv wires DRIVESYNC_<KEY> variables and the legacy names.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("DRIVESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envName := "DRIVESYNC_" + strings.ToUpper(key)
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Load unmarshals v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and resolves every path to an absolute one.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendDrive
	}

	switch c.Backend {
	case BackendDrive:
		if c.CredentialsPath == "" {
			return ErrNoCredentials
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("config: s3 bucket missing")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}

	if c.SourceFolderID == "" && c.Backend == BackendDrive {
		return ErrNoSourceFolder
	}
	if c.StagingDir == "" {
		return ErrNoStagingDir
	}
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	var err error
	if c.CredentialsPath != "" {
		if c.CredentialsPath, err = utils.ResolvePath(c.CredentialsPath); err != nil {
			return fmt.Errorf("config: credentials path: %w", err)
		}
	}
	if c.StagingDir, err = utils.ResolvePath(c.StagingDir); err != nil {
		return fmt.Errorf("config: staging dir: %w", err)
	}
	if c.OutputDir, err = utils.ResolvePath(c.OutputDir); err != nil {
		return fmt.Errorf("config: output dir: %w", err)
	}
	if utils.IsWithin(c.StagingDir, c.OutputDir) || utils.IsWithin(c.OutputDir, c.StagingDir) {
		return ErrDirsOverlap
	}

	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
		return fmt.Errorf("config: log file: %w", err)
	}

	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.ChunkSizeMB <= 0 {
		c.ChunkSizeMB = DefaultChunkSizeMB
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.LogMaxBackups <= 0 {
		c.LogMaxBackups = DefaultLogMaxBackups
	}

	if _, err := c.SlogLevel(); err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}

	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) ChunkSize() int64 {
	return int64(c.ChunkSizeMB) * 1024 * 1024
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}
