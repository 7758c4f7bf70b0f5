package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func correctionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Record and apply human corrections",
	}

	cmd.AddCommand(correctionsAddCmd())
	cmd.AddCommand(correctionsRejectCmd())
	cmd.AddCommand(correctionsApplyCmd())

	return cmd
}

func correctionsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [document-id] [category]",
		Short: "Confirm or override a document's match decision",
		Args:  cobra.ExactArgs(2),
		RunE:  runCorrectionsAdd,
	}

	cmd.Flags().String("by", "cli", "Reviewer identity to record")

	return cmd
}

func runCorrectionsAdd(cmd *cobra.Command, args []string) error {
	by, _ := cmd.Flags().GetString("by")

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	correction, err := a.engine.RecordCorrection(ctx, args[0], args[1], by)
	if err != nil {
		return err
	}

	if correction.Confirmed() {
		slog.Info("Prediction confirmed", "document", correction.DocumentID, "category", correction.ConfirmedCategory)
	} else {
		slog.Info("Prediction overridden",
			"document", correction.DocumentID,
			"predicted", correction.PredictedCategory,
			"confirmed", correction.ConfirmedCategory)
	}

	return nil
}

func correctionsRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject [document-id]",
		Short: "Mark a reviewed document as having no acceptable candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")

			ctx := cmd.Context()
			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.engine.RejectDocument(ctx, args[0], by); err != nil {
				return err
			}
			slog.Info("Document rejected", "document", args[0])
			return nil
		},
	}

	cmd.Flags().String("by", "cli", "Reviewer identity to record")

	return cmd
}

func correctionsApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Fold unapplied corrections into a new model version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			before := a.models.Snapshot().Version
			next, err := a.learner.Apply(ctx)
			if err != nil {
				return err
			}
			if next.Version == before {
				slog.Info("No unapplied corrections")
				return nil
			}

			fmt.Printf("Published model version %d (corrections folded: %d)\n", next.Version, next.CorrectionCount)
			return nil
		},
	}
}
