package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/pipeline"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	out      string
	bank     string
	from, to string
}

func newExportCommand(a *app) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write canonical transactions as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var filter domain.TransactionFilter
			if opts.bank != "" {
				bank, err := domain.ParseBank(opts.bank)
				if err != nil {
					return err
				}
				filter.Bank = bank
			}
			window, err := parseWindow(opts.from, opts.to)
			if err != nil {
				return err
			}
			filter.From, filter.To = window.From, window.To

			store, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			var w io.Writer = cmd.OutOrStdout()
			if opts.out != "" && opts.out != "-" {
				f, err := os.Create(opts.out)
				if err != nil {
					return fmt.Errorf("create %s: %w", opts.out, err)
				}
				defer f.Close()
				w = f
			}

			n, err := pipeline.Export(ctx, store, filter, w)
			if err != nil {
				return err
			}
			a.log.Info().Int("rows", n).Str("out", opts.out).Msg("export written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&opts.bank, "bank", "b", "", "only this bank")
	cmd.Flags().StringVar(&opts.from, "from", "", "first date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last date to include (YYYY-MM-DD)")
	return cmd
}
