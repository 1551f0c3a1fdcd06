package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JoeShih716/go-stmt-ledger/internal/config"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

var (
	// Global flags
	configPath string
	backend    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Statement ledger service",
	Long: `Statement ledger keeps one balance per user account and an append-only
history of deposit and withdrawal statements.

Backends:
  memory    - in-process ledger persisted by a write-ahead log
  mysql     - row-locked transactions through gorm
  postgres  - conditional updates through pgx`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Override the ledger backend (memory, mysql, postgres)")
}

// loadConfig 讀取設定並建立全域 logger
func loadConfig() (*config.Config, *logging.Logger, error) {
	if backend != "" {
		os.Setenv("LEDGER_BACKEND", backend)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logging.SetGlobal(logger)
	return cfg, logger, nil
}
