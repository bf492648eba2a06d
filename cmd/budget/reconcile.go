package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"github.com/spf13/cobra"
)

func newReconcileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Remove rebuilt ledger rows that overlap real exports",
	}
	cmd.AddCommand(newReconcilePlanCommand(a), newReconcileApplyCommand(a))
	return cmd
}

func newReconcilePlanCommand(a *app) *cobra.Command {
	var bankName string

	cmd := &cobra.Command{
		Use:   "plan --bank BANK",
		Short: "Show what apply would change, without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, plan, err := a.reconcilePlan(cmd.Context(), bankName)
			if err != nil {
				return err
			}
			defer store.Close()
			reconcile.Describe(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().StringVarP(&bankName, "bank", "b", "", "bank whose account to reconcile")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

func newReconcileApplyCommand(a *app) *cobra.Command {
	var (
		bankName string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "apply --bank BANK",
		Short: "Back up, delete and verify",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, plan, err := a.reconcilePlan(ctx, bankName)
			if err != nil {
				return err
			}
			defer store.Close()
			reconcile.Describe(out, plan)

			if plan.State == reconcile.Resolved {
				fmt.Fprintln(out, "Nothing to do.")
				return nil
			}
			confirmed := yes
			if !confirmed {
				if confirmed, err = reconcile.Confirm(cmd.InOrStdin(), out, plan); err != nil {
					return err
				}
			}

			v, err := reconcile.NewResolver(store).Run(ctx, plan, confirmed)
			if errors.Is(err, reconcile.ErrConfirmationRequired) {
				fmt.Fprintln(out, "Aborted, nothing changed.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Backed up %d rows to %s, deleted %d.\n", plan.BackupRows, plan.Backup, plan.Deleted)
			if !v.Passed() {
				for _, p := range v.Problems {
					fmt.Fprintf(out, "  ! %s\n", p)
				}
				return fmt.Errorf("verification failed for %s, restore from %s if needed", plan.Account, plan.Backup)
			}
			fmt.Fprintln(out, "Verification passed.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&bankName, "bank", "b", "", "bank whose account to reconcile")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

// reconcilePlan opens the store and plans the bank's account. The caller
// closes the store.
func (a *app) reconcilePlan(ctx context.Context, bankName string) (backend, *reconcile.Plan, error) {
	bank, err := domain.ParseBank(bankName)
	if err != nil {
		return nil, nil, err
	}
	cutoff, err := a.cfg.Cutoff(string(bank))
	if err != nil {
		return nil, nil, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	plan, err := reconcile.NewResolver(store).Plan(ctx, bank, a.cfg.AccountAliases()[bank], cutoff)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, plan, nil
}
