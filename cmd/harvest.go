package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Gaurav-Gosain/cfproblem/harvest"
	"github.com/Gaurav-Gosain/cfproblem/problem"
	"github.com/Gaurav-Gosain/cfproblem/tui"
)

type harvestFlags struct {
	Contests []int
}

func newHarvestCmd(f *flags) *cobra.Command {
	hf := &harvestFlags{}

	cmd := &cobra.Command{
		Use:   "harvest [problems...]",
		Short: "Fetch many problems with retries, optionally whole contests",
		Example: `  # Every problem of two contests, saved as markdown
  cfproblem harvest --contest 1900 --contest 1901 -o ./problems

  # A list of problems as JSON, eight at a time
  cat problems.txt | cfproblem harvest -p 8 --json > problems.json`,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := LoadConfig(f.ConfigFile, c.Flags())
			if err != nil {
				return err
			}
			return runHarvest(c.Context(), cfg, f, hf, args)
		},
	}

	cmd.Flags().IntSliceVar(&hf.Contests, "contest", nil, "Contest id whose problems should all be fetched (repeatable)")
	cmd.Flags().IntP("parallelism", "p", harvest.DefaultParallelism, "Problems fetched concurrently")
	cmd.Flags().Int("attempts", harvest.DefaultMaxAttempts, "Attempts per problem before settling for a partial document")

	return cmd
}

func runHarvest(ctx context.Context, cfg Config, f *flags, hf *harvestFlags, args []string) error {
	ids, err := collectIDs(args, os.Stdin)
	if err != nil {
		return err
	}
	if len(ids) == 0 && len(hf.Contests) == 0 {
		return errors.New("nothing to harvest; pass problem ids or --contest")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := harvest.Options{
		IDs:          ids,
		Contests:     hf.Contests,
		Lister:       a.fetcher,
		Parallelism:  cfg.Harvest.Parallelism,
		MaxAttempts:  cfg.Harvest.MaxAttempts,
		InitialDelay: cfg.Harvest.InitialDelay,
		MaxDelay:     cfg.Harvest.MaxDelay,
		OnEvent:      a.recorder.ObserveHarvest,
	}

	results, err := tui.RunWithProgress(ctx, a.cache, opts, a.logger)
	if err != nil {
		return fmt.Errorf("harvest failed: %w", err)
	}

	var (
		docs   []*problem.Document
		failed int
	)
	for _, r := range results {
		if r.Doc == nil {
			failed++
			a.logger.Warn("No statement available", "id", r.ID, "err", r.Err)
			continue
		}
		docs = append(docs, r.Doc)
	}
	a.logger.Info("Harvest finished", "documents", len(docs), "failed", failed)
	if len(docs) == 0 {
		return errors.New("no documents were harvested")
	}

	return emit(docs, cfg, f)
}
