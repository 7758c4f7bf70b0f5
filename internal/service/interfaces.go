// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// DocumentFilter defines filtering options for document queries.
type DocumentFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Status    model.DocumentStatus
	Vendor    string
	Invoice   string
	Limit     int
	Offset    int
}

// CandidateFilter selects the candidate pool window for a matching run.
type CandidateFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	AccountID string
	Limit     int
}

// AuditFilter defines filtering options for audit log queries.
type AuditFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	DocumentID string
	Kind       model.AuditKind
	Decision   model.Decision
	Limit      int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *model.ExtractedDocument) error
	GetDocumentByID(ctx context.Context, id string) (*model.ExtractedDocument, error)
	GetDocumentsByStatus(ctx context.Context, status model.DocumentStatus, limit int) ([]model.ExtractedDocument, error)
	SearchDocuments(ctx context.Context, filter DocumentFilter) ([]model.ExtractedDocument, error)
	UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error
	ClaimDuplicateKey(ctx context.Context, id, key string, start, end time.Time) (*model.ExtractedDocument, error)
	CountDocumentsByStatus(ctx context.Context) (map[model.DocumentStatus]int, error)

	// Candidate pool operations (read-only ledger snapshot)
	SaveCandidates(ctx context.Context, candidates []model.CandidateTransaction) error
	GetCandidates(ctx context.Context, filter CandidateFilter) ([]model.CandidateTransaction, error)

	// Match result operations (append-only)
	SaveMatchResult(ctx context.Context, result *model.MatchResult) error
	GetMatchResultByID(ctx context.Context, id string) (*model.MatchResult, error)
	GetMatchResultsByDocument(ctx context.Context, documentID string) ([]model.MatchResult, error)
	GetLatestMatchResult(ctx context.Context, documentID string) (*model.MatchResult, error)
	CountMatchResultsSince(ctx context.Context, since time.Time) (int, error)

	// Correction operations
	SaveCorrection(ctx context.Context, correction *model.Correction) error
	GetUnappliedCorrections(ctx context.Context) ([]model.Correction, error)
	MarkCorrectionsApplied(ctx context.Context, ids []string, modelVersion int64) error
	GetRecentCorrections(ctx context.Context, limit int) ([]model.Correction, error)

	// Adaptive model operations (versions are never deleted)
	SaveModelVersion(ctx context.Context, m *model.AdaptiveModel) error
	PublishModelVersion(ctx context.Context, m *model.AdaptiveModel, appliedCorrectionIDs []string) error
	GetModelVersion(ctx context.Context, version int64) (*model.AdaptiveModel, error)
	ListModelVersions(ctx context.Context) ([]model.AdaptiveModel, error)
	GetCurrentModelVersion(ctx context.Context) (int64, error)
	SetCurrentModelVersion(ctx context.Context, version int64) error

	// Audit operations (append-only)
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// MatchStats shows the results of a matching run.
type MatchStats struct {
	TotalDocuments int
	AutoApproved   int
	NeedsReview    int
	NoMatch        int
	Failed         int
	Duration       time.Duration
}
