package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"clipforge/internal/adapters/apify"
	"clipforge/internal/adapters/downloader"
	"clipforge/internal/adapters/localstorage"
	"clipforge/internal/adapters/ytdlp"
	"clipforge/internal/config"
	"clipforge/internal/core/ports"
	"clipforge/internal/service"
)

var Version = "0.1.0"

var (
	configPath string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "clipforge",
	Short: "Cut short clips out of online videos",
	Long: `clipforge extracts a time range from a video URL with yt-dlp and ffmpeg.

It runs as an HTTP service with streamed progress and one-shot downloads,
or locally from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("clipforge version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(clipCmd)
	rootCmd.AddCommand(doctorCmd)
}

// app is the wired object graph shared by every command.
type app struct {
	cfg          *config.Config
	logger       hclog.Logger
	provisioner  *ytdlp.Provisioner
	storage      *localstorage.LocalStorage
	orchestrator *service.Orchestrator
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "clipforge",
		Level:      hclog.LevelFromString(strings.ToLower(cfg.Level)),
		Output:     os.Stderr,
		JSONFormat: cfg.JSON,
	})
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Logging)

	provisioner := ytdlp.NewProvisioner(ytdlp.ProvisionerConfig{
		BinDir:     cfg.Tool.BinDir,
		BinaryPath: cfg.Tool.BinaryPath,
		ReleaseURL: cfg.Tool.ReleaseURL,
	}, downloader.NewHTTPDownloader(cfg.Tool.DownloadTimeout), logger)

	client := ytdlp.NewClient(provisioner, ytdlp.Options{
		FFmpegPath:      cfg.Tool.FFmpegPath,
		MetadataTimeout: cfg.Clip.MetadataTimeout,
		ExtractTimeout:  cfg.Clip.ExtractTimeout,
	}, logger)

	var hosted ports.MetadataSource
	if cfg.Apify.Token != "" {
		mc, err := apify.NewMetadataClient(apify.Config{
			Token:   cfg.Apify.Token,
			ActorID: cfg.Apify.ActorID,
			BaseURL: cfg.Apify.BaseURL,
			Timeout: cfg.Clip.MetadataTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		hosted = mc
	}
	metadata := service.NewMetadataResolver(hosted, client, logger)

	storage := localstorage.NewLocalStorage(cfg.Storage.ScratchDir, cfg.Storage.Retention)
	orchestrator := service.NewOrchestrator(provisioner, metadata, client, storage, service.Options{
		Filename:      cfg.Clip.Filename,
		CheckDuration: cfg.Clip.CheckDuration,
	}, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		provisioner:  provisioner,
		storage:      storage,
		orchestrator: orchestrator,
	}, nil
}

func formatElapsed(d time.Duration) string {
	return d.Round(100 * time.Millisecond).String()
}
