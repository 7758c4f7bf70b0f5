package model

import "time"

// AuditKind classifies an audit log entry.
type AuditKind string

// Audit event kinds. Error conditions from matching are reported here as
// typed events rather than aborting the run.
const (
	AuditMatch            AuditKind = "MATCH"
	AuditCorrection       AuditKind = "CORRECTION"
	AuditModelUpdate      AuditKind = "MODEL_UPDATE"
	AuditDuplicateFlagged AuditKind = "DUPLICATE_FLAGGED"
	AuditStaleModel       AuditKind = "STALE_MODEL"
	AuditEmptyPool        AuditKind = "EMPTY_POOL"
)

// AuditEntry is one immutable row of the append-only audit log. Sequence
// numbers are assigned by the recorder monotonically; wall-clock time is
// informational only.
type AuditEntry struct {
	CreatedAt  time.Time
	DocumentID string
	Kind       AuditKind
	Decision   Decision
	Detail     string
	Sequence   int64
}
