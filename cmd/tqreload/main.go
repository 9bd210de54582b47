package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mevdschee/tqreload/internal/config"
)

var (
	configPath string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:           "tqreload",
	Short:         "Run unit code and reload it as it changes on disk",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "reload.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// configFile resolves the --config flag against the working directory.
func configFile() (string, error) {
	if filepath.IsAbs(configPath) {
		return configPath, nil
	}
	projectRoot, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(projectRoot, configPath), nil
}

// loadConfig reads the config file relative to the working directory and
// sets up logging. The returned function closes the log file.
func loadConfig() (*config.Config, func(), error) {
	projectRoot, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	path, err := configFile()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	closer := func() {}
	if quiet {
		log.SetOutput(io.Discard)
		return cfg, closer, nil
	}
	if cfg.Log.File == "" || cfg.Log.File == "~" {
		return cfg, closer, nil
	}

	dateStr := time.Now().Format("2006-01-02")
	logFilePath := filepath.Join(projectRoot, filepath.FromSlash(cfg.Log.File))
	logFilePath = filepath.Clean(strings.ReplaceAll(logFilePath, "{date}", dateStr))
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	log.Printf("Logging to: %s", logFilePath)
	return cfg, func() { logFile.Close() }, nil
}
