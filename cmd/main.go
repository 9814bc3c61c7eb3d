package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lightbot/internal/app/config"
	"lightbot/internal/app/server"
)

var (
	configPath string
	verbose    bool

	cfg     *config.Config
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "lightbot",
	Short: "Chat orchestration server with optional web search",
	Long: `LightBot answers chat messages through an OpenAI-compatible model and can
augment a turn with web search results (DuckDuckGo or SearXNG).

  lightbot serve                   # run the HTTP API
  lightbot replay scenario.yaml    # replay a scripted conversation
  lightbot settings                # print the current settings`,
	Version:       server.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return setupLogging(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ~/.lightbot/lightbot.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd, replayCmd, settingsCmd)
}

// setupLogging configures logrus from the config. The log file, if any,
// mirrors stdout.
func setupLogging(lc config.LogConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if lc.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if lc.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile, err = os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
