package main

import (
	"fmt"
	"time"

	"github.com/dvloznov/budget-updater/internal/googleauth"
	"github.com/spf13/cobra"
)

func newAuthCommand(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail and Sheets access and save the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			oc, err := googleauth.LoadConfig(a.cfg.OAuth.ClientSecretFile, a.cfg.OAuth.RedirectPort)
			if err != nil {
				return err
			}
			tok, err := googleauth.Authorize(ctx, oc, a.cfg.OAuth.RedirectPort, cmd.OutOrStdout(), timeout)
			if err != nil {
				return err
			}
			if err := googleauth.SaveToken(a.cfg.OAuth.TokenFile, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", a.cfg.OAuth.TokenFile)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser redirect")
	return cmd
}
