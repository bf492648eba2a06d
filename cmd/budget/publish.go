package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/pipeline"
	"github.com/spf13/cobra"
)

const defaultPublishLimit = 500

func newPublishCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Append categorized transactions to the budget sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.publish(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published: %d\n", n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultPublishLimit, "max rows to append")
	return cmd
}

func (a *app) publish(ctx context.Context, limit int) (int, error) {
	sheet, err := a.openSheet(ctx)
	if err != nil {
		return 0, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	return pipeline.NewPublisher(store, sheet, a.cfg.Sheets.PublishTab).Publish(ctx, limit)
}

type runOptions struct {
	bank    string
	publish bool
	limit   int
}

// newRunCommand chains ingest, categorize and optionally publish.
func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run --bank BANK FILE|gs://URI...",
		Short: "Ingest, categorize and publish in one go",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := domain.ParseBank(opts.bank)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			sum, err := a.ingest(cmd, bank, args)
			if err != nil {
				sum.Print(out)
				return err
			}
			cat, err := a.categorize(cmd.Context(), opts.limit)
			sum.AddCategorization(cat)
			if err != nil {
				sum.Print(out)
				return err
			}
			if opts.publish {
				n, err := a.publish(cmd.Context(), defaultPublishLimit)
				sum.Published = n
				if err != nil {
					sum.Print(out)
					return err
				}
			}
			sum.Log(a.log)
			sum.Print(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.bank, "bank", "b", "", "export format: seb, revolut, firstcard or strawberry")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "append categorized rows to the budget sheet")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "max transactions to categorize (default categorizer.batch_limit)")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}
