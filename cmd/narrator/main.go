package main

import (
	"fmt"
	"os"

	"github.com/bobarin/narrator/internal/config"
	"github.com/bobarin/narrator/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "narrator",
		Short:         "Turn PDF documents into narrated long-form audio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		newWorkerCmd(),
		newEnqueueCmd(),
		newSynthesizeCmd(),
		newMigrateCmd(),
	)
	return cmd
}

// newLogger builds the process logger for cfg and names it after the command.
func newLogger(cfg *config.Config, name string) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return logger.Named(name), nil
}
