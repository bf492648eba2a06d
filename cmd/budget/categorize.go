package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-updater/internal/archive/gmail"
	"github.com/dvloznov/budget-updater/internal/categorizer"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

func newCategorizeCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize pending transactions with Gemini and the mail archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.categorize(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed: %d, categorized: %d, manual_review: %d\n",
				sum.Processed, sum.Categorized, sum.ManualReview)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max transactions to categorize (default categorizer.batch_limit)")
	return cmd
}

func (a *app) categorize(ctx context.Context, limit int) (categorizer.Summary, error) {
	if limit <= 0 {
		limit = a.cfg.Categorizer.BatchLimit
	}

	taxonomy, err := categorizer.LoadTaxonomy(a.cfg.Categorizer.TaxonomyFile)
	if err != nil {
		return categorizer.Summary{}, err
	}
	client, err := a.googleClient(ctx)
	if err != nil {
		return categorizer.Summary{}, err
	}
	searcher, err := gmail.New(ctx, client, a.cfg.Archive.BodyLimit)
	if err != nil {
		return categorizer.Summary{}, err
	}
	gen, err := a.genaiClient(ctx)
	if err != nil {
		return categorizer.Summary{}, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return categorizer.Summary{}, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	agent := categorizer.NewAgent(gen.Models, searcher, taxonomy, categorizer.Options{
		Model:         a.cfg.Gemini.Model,
		MaxResults:    a.cfg.Archive.MaxResults,
		WindowDays:    a.cfg.Archive.WindowDays,
		BodyLimit:     a.cfg.Archive.BodyLimit,
		MaxToolRounds: a.cfg.Categorizer.MaxToolRounds,
	})
	return categorizer.NewService(store, agent).Run(ctx, limit)
}

func (a *app) genaiClient(ctx context.Context) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		// API version v1 is what docs use for current Gemini models.
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	switch a.cfg.Gemini.Backend {
	case "gemini":
		if a.cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini.backend is gemini but no API key is set (GEMINI_API_KEY)")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = a.cfg.Gemini.APIKey
	default:
		project := a.cfg.Gemini.Project
		if project == "" {
			project = a.cfg.BigQuery.ProjectID
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = project
		cc.Location = a.cfg.Gemini.Location
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}
