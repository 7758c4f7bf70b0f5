package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match [document-id]",
		Short: "Match pending documents against the candidate pool",
		Long: `Score every pending document against ledger transactions and apply
the decision policy. With a document ID, matches just that document
and prints the full ranking.

Examples:
  # Match everything in the pending queue
  ledgerlink match

  # Re-match a single document
  ledgerlink match 2f1c9a88-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMatch,
	}

	cmd.Flags().Bool("json", false, "Print results as JSON")

	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if len(args) == 1 {
		result, err := a.engine.MatchDocument(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(result)
		}
		fmt.Printf("Document %s: %s (model v%d)\n", result.DocumentID, result.Decision, result.ModelVersion)
		for i, r := range result.Rankings {
			marker := " "
			if result.ChosenCandidateID != nil && r.CandidateID == *result.ChosenCandidateID {
				marker = "*"
			}
			fmt.Printf("%s %2d. %.4f  %-36s  %s\n", marker, i+1, r.Score, r.CandidateID, r.Category)
		}
		return nil
	}

	bar := progressbar.NewOptions(0,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Matching documents..."),
	)

	stats, err := a.engine.MatchPending(ctx, func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	slog.Info("Matching run complete",
		"documents", stats.TotalDocuments,
		"auto_approved", stats.AutoApproved,
		"needs_review", stats.NeedsReview,
		"no_match", stats.NoMatch,
		"failed", stats.Failed,
		"duration", stats.Duration)

	return nil
}
