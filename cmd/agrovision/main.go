// Command agrovision is the terminal client for the AgroVision farm
// monitoring server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/config"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:          "agrovision",
	Short:        "Live farm dashboard: cameras, alerts, weather and an assistant",
	Version:      version,
	SilenceUsage: true,
	Long: `agrovision connects to an AgroVision server and shows its camera feeds,
detection alerts, local weather and farming advice in the terminal, with a
chat assistant that can speak its answers and take voice questions.`,
	RunE: runDashboard,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load settings from this .env file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(runCmd, mcpCmd, locationCmd)
}

// setup loads configuration and initializes logging. Logs never go to stdout
// when stdout carries a protocol.
func setup(stdoutBusy bool) (*config.Config, io.Closer, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Log.Debug = true
	}
	if stdoutBusy && cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	closer, err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Debug:  cfg.Log.Debug,
		Output: cfg.Log.Output,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, closer, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
