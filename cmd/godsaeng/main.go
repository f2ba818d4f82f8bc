// Command godsaeng runs the study session service and its admin tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sio4242/Godsaeng-project/config"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "godsaeng",
		Short:         "Study session lifecycle and experience progression service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment (empty to skip)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newMigrateCmd(flags))
	root.AddCommand(newLedgerCmd(flags))
	return root
}

// loadConfig reads configuration and builds the process logger.
func loadConfig(flags *globalFlags) (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFile(flags.envFile)
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.ParseFormat(cfg.Observability.LogFormat),
		AddCaller: !cfg.IsProduction(),
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
	return cfg, log, nil
}
