// Command budget ingests bank exports, categorizes them and keeps the budget
// spreadsheet in sync.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/budget-updater/internal/config"
	"github.com/dvloznov/budget-updater/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app is shared by every subcommand once the root has loaded configuration.
type app struct {
	configFile string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("command failed")
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "budget",
		Short:         "Budget updater",
		Long:          "Ingest bank exports, merge them into the canonical store, categorize with Gemini and publish to the budget sheet.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default budget.yaml in . or $HOME/.budget-updater)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newIngestCommand(a),
		newCategorizeCommand(a),
		newPublishCommand(a),
		newRunCommand(a),
		newBackfillCommand(a),
		newReconcileCommand(a),
		newExportCommand(a),
		newAuthCommand(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = logger.NewWithOptions(cmd.ErrOrStderr(), cfg.LoggerOptions())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.WithContext(ctx, a.log))
	return nil
}
