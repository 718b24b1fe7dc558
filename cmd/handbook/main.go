package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"handbook/internal/config"
	"handbook/internal/logger"
)

var (
	cfgPath string
	verbose bool

	cfg *config.AppConfig
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "handbook",
	Short: "Answer questions about university courses from the course handbook",
	Long: `handbook ingests course records into a vector index and answers
natural-language questions about them, optionally filtered to one course code.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()

		var err error
		path := cfgPath
		if path == "" {
			cfg, path, err = config.LoadDefault()
		} else {
			cfg, err = config.Load(path)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(cfg.Log.Mode, level)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		log.Debug("config loaded", "path", path)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/handbook/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
