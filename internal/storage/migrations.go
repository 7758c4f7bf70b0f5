package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: documents, candidates, match results",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS documents (
					id TEXT PRIMARY KEY,
					email_id TEXT NOT NULL,
					vendor_name TEXT,
					amount TEXT,
					currency TEXT NOT NULL DEFAULT '',
					document_date DATETIME,
					invoice_number TEXT,
					raw_text TEXT NOT NULL DEFAULT '',
					conf_vendor REAL NOT NULL DEFAULT 0,
					conf_amount REAL NOT NULL DEFAULT 0,
					conf_date REAL NOT NULL DEFAULT 0,
					conf_invoice REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'PENDING',
					duplicate_key TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE UNIQUE INDEX idx_documents_email ON documents(email_id)`,
				`CREATE INDEX idx_documents_status ON documents(status)`,
				`CREATE INDEX idx_documents_vendor ON documents(vendor_name)`,
				`CREATE INDEX idx_documents_invoice ON documents(invoice_number)`,
				`CREATE INDEX idx_documents_duplicate ON documents(duplicate_key)`,

				`CREATE TABLE IF NOT EXISTS candidates (
					id TEXT PRIMARY KEY,
					vendor_name TEXT NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					transaction_date DATETIME NOT NULL,
					category TEXT NOT NULL,
					account_id TEXT NOT NULL DEFAULT '',
					invoice_ref TEXT NOT NULL DEFAULT '',
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_candidates_date ON candidates(transaction_date)`,
				`CREATE INDEX idx_candidates_vendor ON candidates(vendor_name)`,

				`CREATE TABLE IF NOT EXISTS match_results (
					id TEXT PRIMARY KEY,
					document_id TEXT NOT NULL,
					decision TEXT NOT NULL,
					chosen_candidate_id TEXT,
					chosen_category TEXT,
					model_version INTEGER NOT NULL,
					rankings TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (document_id) REFERENCES documents(id)
				)`,
				`CREATE INDEX idx_match_results_document ON match_results(document_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Corrections and adaptive model versions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS corrections (
					id TEXT PRIMARY KEY,
					document_id TEXT NOT NULL,
					match_result_id TEXT NOT NULL,
					predicted_category TEXT NOT NULL,
					confirmed_category TEXT NOT NULL,
					corrected_by TEXT NOT NULL,
					applied_model_version INTEGER,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (document_id) REFERENCES documents(id)
				)`,
				`CREATE INDEX idx_corrections_document ON corrections(document_id)`,
				`CREATE INDEX idx_corrections_unapplied ON corrections(applied_model_version) WHERE applied_model_version IS NULL`,

				`CREATE TABLE IF NOT EXISTS model_versions (
					version INTEGER PRIMARY KEY,
					weights TEXT NOT NULL,
					priors TEXT NOT NULL,
					correction_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS model_current (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					version INTEGER NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (version) REFERENCES model_versions(version)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Append-only audit log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS audit_log (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					document_id TEXT NOT NULL DEFAULT '',
					kind TEXT NOT NULL,
					decision TEXT NOT NULL DEFAULT '',
					detail TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_audit_document ON audit_log(document_id)`,
				`CREATE INDEX idx_audit_kind ON audit_log(kind)`,
				`CREATE INDEX idx_audit_created ON audit_log(created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Schema version tracking table
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current := 0
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration", "version", m.Version, "description", m.Description)

		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.Version, err)
			}
			if _, err := tx.Exec(
				`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
				m.Version, m.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
