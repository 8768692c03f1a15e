package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config file is given and it exists.
const DefaultFile = "clipforge.yaml"

// Config holds the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Tool    ToolConfig    `yaml:"tool"`
	Storage StorageConfig `yaml:"storage"`
	Clip    ClipConfig    `yaml:"clip"`
	Apify   ApifyConfig   `yaml:"apify"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey, when set, is required on every /api/ route except health.
	APIKey          string        `yaml:"api_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ToolConfig locates the external binaries.
type ToolConfig struct {
	BinDir          string        `yaml:"bin_dir"`
	BinaryPath      string        `yaml:"ytdlp_path"`
	ReleaseURL      string        `yaml:"release_url"`
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// StorageConfig controls the scratch directory clips are written to.
type StorageConfig struct {
	ScratchDir      string        `yaml:"scratch_dir"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ClipConfig tunes clip jobs.
type ClipConfig struct {
	Filename        string        `yaml:"filename"`
	CheckDuration   bool          `yaml:"check_duration"`
	ExtractTimeout  time.Duration `yaml:"extract_timeout"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
}

// ApifyConfig enables the hosted metadata lookup when Token is set.
type ApifyConfig struct {
	Token   string `yaml:"token"`
	ActorID string `yaml:"actor_id"`
	BaseURL string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Tool: ToolConfig{
			DownloadTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Retention:       time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Clip: ClipConfig{
			Filename:        "clip.mp4",
			MetadataTimeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or DefaultFile if present), then envFile and the process environment.
// Existing environment variables win over envFile.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Host, "HOST")
	setString(&c.Server.APIKey, "API_KEY")
	setString(&c.Tool.BinDir, "CLIPFORGE_BIN_DIR")
	setString(&c.Tool.BinaryPath, "CLIPFORGE_YTDLP_PATH")
	setString(&c.Tool.ReleaseURL, "CLIPFORGE_RELEASE_URL")
	setString(&c.Tool.FFmpegPath, "CLIPFORGE_FFMPEG_PATH")
	setString(&c.Storage.ScratchDir, "CLIPFORGE_SCRATCH_DIR")
	setString(&c.Clip.Filename, "CLIPFORGE_FILENAME")
	setString(&c.Apify.Token, "APIFY_API_TOKEN")
	setString(&c.Apify.ActorID, "APIFY_ACTOR_ID")
	setString(&c.Apify.BaseURL, "APIFY_BASE_URL")
	setString(&c.Logging.Level, "LOG_LEVEL")

	var errs []error
	errs = append(errs,
		setInt(&c.Server.Port, "PORT"),
		setDuration(&c.Tool.DownloadTimeout, "CLIPFORGE_DOWNLOAD_TIMEOUT"),
		setDuration(&c.Storage.Retention, "CLIPFORGE_RETENTION"),
		setDuration(&c.Storage.CleanupInterval, "CLIPFORGE_CLEANUP_INTERVAL"),
		setDuration(&c.Clip.ExtractTimeout, "CLIPFORGE_EXTRACT_TIMEOUT"),
		setDuration(&c.Clip.MetadataTimeout, "CLIPFORGE_METADATA_TIMEOUT"),
		setBool(&c.Clip.CheckDuration, "CLIPFORGE_CHECK_DURATION"),
		setBool(&c.Logging.JSON, "CLIPFORGE_LOG_JSON"),
	)
	return errors.Join(errs...)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Storage.Retention < 0 || c.Storage.CleanupInterval < 0 {
		return fmt.Errorf("retention and cleanup interval must not be negative")
	}
	if c.Clip.ExtractTimeout < 0 || c.Clip.MetadataTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
