package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/ofx"
)

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import candidate transactions from OFX/QFX ledger exports",
		Long: `Import ledger transactions from OFX or QFX files to build the
candidate pool that documents are matched against.

Examples:
  # Import single file
  ledgerlink import-ofx ~/Downloads/ledger_jan_2026.qfx

  # Import everything in a directory
  ledgerlink import-ofx ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")

	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	// Expand globs and collect all files
	var allFiles []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				allFiles = append(allFiles, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			allFiles = append(allFiles, matches...)
		}
	}

	if len(allFiles) == 0 {
		return fmt.Errorf("no files found to import")
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	slog.Info("Importing OFX files", "file_count", len(allFiles), "dry_run", dryRun)

	parser := ofx.NewParser()
	seen := make(map[string]bool)
	var all []model.CandidateTransaction

	for _, filePath := range allFiles {
		f, err := os.Open(filePath)
		if err != nil {
			slog.Error("Failed to open file", "file", filePath, "error", err)
			continue
		}

		candidates, err := parser.ParseFile(ctx, f)
		_ = f.Close()
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", filePath, "error", err)
			continue
		}

		added := 0
		for _, cand := range candidates {
			if seen[cand.ID] {
				continue
			}
			seen[cand.ID] = true
			all = append(all, cand)
			added++
		}

		slog.Info("Processed file",
			"file", filepath.Base(filePath),
			"transactions_found", len(candidates),
			"added", added,
			"duplicates", len(candidates)-added)
	}

	if len(all) == 0 {
		slog.Warn("No transactions found in any file")
		return nil
	}

	if dryRun {
		slog.Info("Dry run complete - no data saved", "would_import", len(all))
		return nil
	}

	if err := a.storage.SaveCandidates(ctx, all); err != nil {
		return fmt.Errorf("failed to save candidates: %w", err)
	}

	common.LogInfo("Candidate pool updated", common.Fields{"imported": len(all)})

	return nil
}
