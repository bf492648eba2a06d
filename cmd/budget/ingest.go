package main

import (
	"fmt"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/ingest"
	"github.com/dvloznov/budget-updater/internal/merge"
	"github.com/dvloznov/budget-updater/internal/pipeline"
	"github.com/spf13/cobra"
)

type ingestOptions struct {
	bank string
}

func newIngestCommand(a *app) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest --bank BANK FILE|gs://URI...",
		Short: "Parse exports and merge new transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := domain.ParseBank(opts.bank)
			if err != nil {
				return err
			}
			sum, err := a.ingest(cmd, bank, args)
			sum.Print(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.bank, "bank", "b", "", "export format: seb, revolut, firstcard or strawberry")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

// ingest runs the export pipeline over sources and returns the summary so far.
func (a *app) ingest(cmd *cobra.Command, bank domain.Bank, sources []string) (pipeline.RunSummary, error) {
	ctx := cmd.Context()

	signs, err := a.cfg.SignTable()
	if err != nil {
		return pipeline.RunSummary{}, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return pipeline.RunSummary{}, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	storage, closeStorage, err := a.openStorage(ctx)
	if err != nil {
		return pipeline.RunSummary{}, fmt.Errorf("open storage: %w", err)
	}
	defer closeStorage()

	in := pipeline.NewIngestor(store, storage, ingest.NewParser(signs), merge.NewEngine(signs, a.cfg.AccountAliases()))
	sum, err := in.Ingest(ctx, bank, sources)
	sum.Log(a.log)
	return sum, err
}
