package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and manage adaptive model versions",
	}

	cmd.AddCommand(modelListCmd())
	cmd.AddCommand(modelShowCmd())
	cmd.AddCommand(modelRollbackCmd())

	return cmd
}

func modelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all model versions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			versions, err := a.storage.ListModelVersions(ctx)
			if err != nil {
				return err
			}
			current := a.models.Snapshot().Version

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tCREATED\tCORRECTIONS\tPRIORS\tCURRENT")
			for i := range versions {
				m := &versions[i]
				marker := ""
				if m.Version == current {
					marker = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n",
					m.Version,
					m.CreatedAt.Format("2006-01-02 15:04"),
					m.CorrectionCount,
					len(m.Priors),
					marker)
			}
			return w.Flush()
		},
	}
}

func modelShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [version]",
		Short: "Show one model version's weights and priors",
		Long:  "Show one model version in full. Without an argument, shows the current version.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m := a.models.Snapshot()
			if len(args) == 1 {
				version, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("version must be an integer: %w", err)
				}
				if m, err = a.storage.GetModelVersion(ctx, version); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
}

func modelRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback [version]",
		Short: "Make an older model version current again",
		Long: `Repoint the current model to an older version. No version is ever
deleted; subsequent learning continues from the restored version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}

			ctx := cmd.Context()
			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.models.Rollback(ctx, version); err != nil {
				return err
			}

			slog.Info("Model rolled back", "version", version)
			return nil
		},
	}
}
