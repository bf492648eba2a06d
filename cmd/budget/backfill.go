package main

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/merge"
	"github.com/dvloznov/budget-updater/internal/pipeline"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"github.com/spf13/cobra"
)

type backfillOptions struct {
	bank     string
	from, to string
}

func newBackfillCommand(a *app) *cobra.Command {
	opts := &backfillOptions{}

	cmd := &cobra.Command{
		Use:   "backfill --bank BANK",
		Short: "Rebuild a bank's history from the ledger tab",
		Long: "Reads the ledger tab, keeps the rows of the bank's account and merges them " +
			"as reverse-engineered transactions. An unchanged ledger is skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bank, err := domain.ParseBank(opts.bank)
			if err != nil {
				return err
			}
			window, err := parseWindow(opts.from, opts.to)
			if err != nil {
				return err
			}
			signs, err := a.cfg.SignTable()
			if err != nil {
				return err
			}
			sheet, err := a.openSheet(ctx)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			aliases := a.cfg.AccountAliases()
			b := pipeline.NewBackfiller(store, sheet, a.cfg.Sheets.LedgerTab, merge.NewEngine(signs, aliases), signs, aliases)
			report, err := b.Backfill(ctx, bank, window)
			if err != nil {
				return err
			}

			var sum pipeline.RunSummary
			sum.AddFile(report)
			sum.Log(a.log)
			sum.Print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.bank, "bank", "b", "", "bank whose ledger account to rebuild")
	cmd.Flags().StringVar(&opts.from, "from", "", "first date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last date to include (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

// parseWindow reads optional inclusive date bounds.
func parseWindow(from, to string) (reconcile.Window, error) {
	var w reconcile.Window
	var err error
	if strings.TrimSpace(from) != "" {
		if w.From, err = civil.ParseDate(strings.TrimSpace(from)); err != nil {
			return w, fmt.Errorf("--from: %w", err)
		}
	}
	if strings.TrimSpace(to) != "" {
		if w.To, err = civil.ParseDate(strings.TrimSpace(to)); err != nil {
			return w, fmt.Errorf("--to: %w", err)
		}
	}
	if w.From.IsValid() && w.To.IsValid() && w.To.Before(w.From) {
		return w, fmt.Errorf("--to %s is before --from %s", w.To, w.From)
	}
	return w, nil
}
