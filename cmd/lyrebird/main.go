package main

import (
	"fmt"
	"os"

	"lyrebird/internal/cache"
	"lyrebird/internal/config"
	"lyrebird/internal/database"
	"lyrebird/internal/logging"
	"lyrebird/internal/metadata"
	"lyrebird/internal/remote"
	"lyrebird/internal/resolver"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "lyrebird",
	Short:         "Lyrebird is a local-first audio player with synchronized lyrics.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.toml", "path to the TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with LYREBIRD_* overrides")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies environment overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

// services bundles the collaborators every command needs
type services struct {
	cfg      *config.Config
	logger   *logrus.Logger
	cache    *cache.FallbackCache
	db       *database.Database
	resolver *resolver.Resolver
}

func bootstrap() (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	fc, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("error initializing fallback cache: %w", err)
	}

	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.MaxConnections, logger)
	if err != nil {
		fc.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	opts := resolver.Options{
		Ledger:      db,
		MissBackoff: cfg.Remote.MissBackoff(),
		Timeout:     cfg.Remote.Timeout(),
	}
	if cfg.Remote.Enabled {
		opts.Provider = remote.FromConfig(cfg.Remote, logger)
	}

	extractor := metadata.NewExtractor(cfg.Player.SupportedFormats, metadata.Heuristics{
		ShortDuration:  cfg.Metadata.ShortDurationSeconds,
		LargeFileBytes: cfg.Metadata.LargeFileBytes,
		BytesPerSecond: cfg.Metadata.BytesPerSecond,
	}, logger)

	return &services{
		cfg:      cfg,
		logger:   logger,
		cache:    fc,
		db:       db,
		resolver: resolver.New(extractor, fc, opts, logger),
	}, nil
}

func (s *services) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.WithError(err).Warn("Error closing database")
	}
	if err := s.cache.Close(); err != nil {
		s.logger.WithError(err).Warn("Error closing fallback cache")
	}
}
