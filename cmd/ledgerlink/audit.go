package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the append-only audit log",
		Long: `Query audit events in sequence order. Every match decision,
correction, model update and duplicate flag is recorded here.

Examples:
  # Recent events
  ledgerlink audit

  # One document's full history
  ledgerlink audit --document 2f1c9a88-...

  # All automatic approvals in January
  ledgerlink audit --decision AUTO_APPROVE --start 2026-01-01 --end 2026-01-31`,
		RunE: runAudit,
	}

	cmd.Flags().String("document", "", "Filter by document ID")
	cmd.Flags().String("kind", "", "Filter by event kind (MATCH, CORRECTION, MODEL_UPDATE, ...)")
	cmd.Flags().String("decision", "", "Filter by decision (AUTO_APPROVE, NEEDS_REVIEW, NO_MATCH)")
	cmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "End date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 100, "Maximum entries to return")
	cmd.Flags().Bool("json", false, "Print entries as JSON")

	return cmd
}

func runAudit(cmd *cobra.Command, _ []string) error {
	document, _ := cmd.Flags().GetString("document")
	kind, _ := cmd.Flags().GetString("kind")
	decision, _ := cmd.Flags().GetString("decision")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	filter := service.AuditFilter{
		DocumentID: document,
		Kind:       model.AuditKind(kind),
		Decision:   model.Decision(decision),
		Limit:      limit,
	}

	for flag, dst := range map[string]**time.Time{"start": &filter.StartDate, "end": &filter.EndDate} {
		raw, _ := cmd.Flags().GetString(flag)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid --%s date %q, expected YYYY-MM-DD", flag, raw)
		}
		t = t.UTC()
		*dst = &t
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	entries, err := a.storage.QueryAudit(ctx, filter)
	if err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tKIND\tDECISION\tDOCUMENT\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Sequence,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Kind,
			e.Decision,
			e.DocumentID,
			e.Detail)
	}
	return w.Flush()
}
