package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// DocumentRequest is the ingestion payload. Absent fields stay absent;
// enrichment may recover them from raw_text.
type DocumentRequest struct {
	EmailID       string           `json:"email_id" binding:"required"`
	VendorName    *string          `json:"vendor_name"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	DocumentDate  *time.Time       `json:"document_date"`
	InvoiceNumber *string          `json:"invoice_number"`
	RawText       string           `json:"raw_text"`
	Match         *bool            `json:"match"`
}

// CorrectionRequest resolves a reviewed document. Reject marks the
// document as having no acceptable candidate instead of confirming one.
type CorrectionRequest struct {
	ConfirmedCategory string `json:"confirmed_category"`
	CorrectedBy       string `json:"corrected_by" binding:"required"`
	Reject            bool   `json:"reject"`
}

// DocumentResponse mirrors a stored document for API consumers.
type DocumentResponse struct {
	ID            string           `json:"id"`
	EmailID       string           `json:"email_id"`
	VendorName    *string          `json:"vendor_name,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	DocumentDate  *string          `json:"document_date,omitempty"`
	InvoiceNumber *string          `json:"invoice_number,omitempty"`
	Status        string           `json:"status"`
	Completeness  float64          `json:"completeness"`
	CreatedAt     string           `json:"created_at"`
}

// MatchResultResponse carries one match attempt with its full ranking.
type MatchResultResponse struct {
	ID                string                `json:"id"`
	DocumentID        string                `json:"document_id"`
	Decision          string                `json:"decision"`
	ChosenCandidateID *string               `json:"chosen_candidate_id,omitempty"`
	ChosenCategory    *string               `json:"chosen_category,omitempty"`
	Rankings          model.CandidateScores `json:"rankings"`
	ModelVersion      int64                 `json:"model_version"`
	CreatedAt         string                `json:"created_at"`
}

// DocumentDetailResponse pairs a document with its latest match attempt.
type DocumentDetailResponse struct {
	Document DocumentResponse     `json:"document"`
	Match    *MatchResultResponse `json:"match,omitempty"`
}

// IngestResponse is returned by document creation. MatchError is set
// when the document was stored but could not be matched immediately.
type IngestResponse struct {
	Document   DocumentResponse     `json:"document"`
	Match      *MatchResultResponse `json:"match,omitempty"`
	MatchError string               `json:"match_error,omitempty"`
}

// CorrectionResponse confirms a recorded correction.
type CorrectionResponse struct {
	ID                string `json:"id"`
	DocumentID        string `json:"document_id"`
	MatchResultID     string `json:"match_result_id"`
	PredictedCategory string `json:"predicted_category"`
	ConfirmedCategory string `json:"confirmed_category"`
	Confirmed         bool   `json:"confirmed"`
	CreatedAt         string `json:"created_at"`
}

// AuditEntryResponse is one audit log line.
type AuditEntryResponse struct {
	Sequence   int64  `json:"sequence"`
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
	Decision   string `json:"decision,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// ModelResponse summarizes one model version.
type ModelResponse struct {
	Version         int64                `json:"version"`
	Weights         model.FeatureWeights `json:"weights"`
	PriorCount      int                  `json:"prior_count"`
	CorrectionCount int64                `json:"correction_count"`
	Current         bool                 `json:"current"`
	CreatedAt       string               `json:"created_at"`
}

// StatsResponse reports queue depth per status, recent matching
// throughput, and the active model.
type StatsResponse struct {
	Documents       map[string]int       `json:"documents"`
	MatchesLast24h  int                  `json:"matches_last_24h"`
	ModelVersion    int64                `json:"model_version"`
	Weights         model.FeatureWeights `json:"weights"`
	CorrectionCount int64                `json:"correction_count"`
}

func toDocumentResponse(doc *model.ExtractedDocument) DocumentResponse {
	resp := DocumentResponse{
		ID:            doc.ID,
		EmailID:       doc.EmailID,
		VendorName:    doc.VendorName,
		Amount:        doc.Amount,
		Currency:      doc.Currency,
		InvoiceNumber: doc.InvoiceNumber,
		Status:        string(doc.Status),
		Completeness:  doc.Completeness(),
		CreatedAt:     doc.CreatedAt.Format(time.RFC3339),
	}
	if doc.DocumentDate != nil {
		d := doc.DocumentDate.Format("2006-01-02")
		resp.DocumentDate = &d
	}
	return resp
}

func toMatchResultResponse(result *model.MatchResult) *MatchResultResponse {
	if result == nil {
		return nil
	}
	return &MatchResultResponse{
		ID:                result.ID,
		DocumentID:        result.DocumentID,
		Decision:          string(result.Decision),
		ChosenCandidateID: result.ChosenCandidateID,
		ChosenCategory:    result.ChosenCategory,
		Rankings:          result.Rankings,
		ModelVersion:      result.ModelVersion,
		CreatedAt:         result.CreatedAt.Format(time.RFC3339),
	}
}

func toCorrectionResponse(c *model.Correction) CorrectionResponse {
	return CorrectionResponse{
		ID:                c.ID,
		DocumentID:        c.DocumentID,
		MatchResultID:     c.MatchResultID,
		PredictedCategory: c.PredictedCategory,
		ConfirmedCategory: c.ConfirmedCategory,
		Confirmed:         c.Confirmed(),
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
	}
}

func toModelResponse(m *model.AdaptiveModel, current bool) ModelResponse {
	return ModelResponse{
		Version:         m.Version,
		Weights:         m.Weights,
		PriorCount:      len(m.Priors),
		CorrectionCount: m.CorrectionCount,
		Current:         current,
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
	}
}
