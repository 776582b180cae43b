package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"ragvault/config"
	"ragvault/internal/logging"
)

var (
	cfgFile   string
	cfg       *config.Config
	rootDir   string
	logLevel  string
	logFormat string
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragvault",
	Short: "Document retrieval service with a durable vector store",
	Long: `ragvault ingests text documents into a persistent vector index, answers
similarity searches over it and keeps timestamped backups of the store.

Example usage:
  ragvault serve                          # Run the HTTP service
  ragvault ingest ./docs                  # Ingest a directory
  ragvault query -q "retention policy"    # Search the store
  ragvault backup list                    # Show available backups`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cmd.Flags().Changed("log-level") {
			cfg.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Logging.Format = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger = logging.New(cfg.Logging, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ragvault.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func Logger() *slog.Logger {
	return logging.OrDefault(logger)
}
