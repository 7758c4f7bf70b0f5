package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledgerlink/ledgerlink/internal/common"
	"github.com/ledgerlink/ledgerlink/internal/extract"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// getPendingDocuments returns the review queue, oldest first by default
// ordering of the store. A status override is allowed for dashboards
// that also watch the unprocessed backlog.
func (s *Server) getPendingDocuments(c *gin.Context) {
	status := model.DocumentStatus(c.DefaultQuery("status", string(model.StatusNeedsReview)))
	limit := intQuery(c, "limit", 50)

	docs, err := s.storage.GetDocumentsByStatus(c.Request.Context(), status, limit)
	if err != nil {
		s.fail(c, err, "failed to list documents")
		return
	}

	out := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) searchDocuments(c *gin.Context) {
	filter := service.DocumentFilter{
		Vendor:  c.Query("vendor"),
		Invoice: c.Query("invoice"),
		Status:  model.DocumentStatus(c.Query("status")),
		Limit:   intQuery(c, "limit", 100),
		Offset:  intQuery(c, "offset", 0),
	}

	var err error
	if filter.StartDate, err = dateQuery(c, "start_date"); err == nil {
		filter.EndDate, err = dateQuery(c, "end_date")
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
		return
	}

	docs, err := s.storage.SearchDocuments(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err, "search failed")
		return
	}

	out := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getDocument(c *gin.Context) {
	id := c.Param("id")

	doc, err := s.storage.GetDocumentByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, "failed to load document")
		return
	}

	resp := DocumentDetailResponse{Document: toDocumentResponse(doc)}

	latest, err := s.storage.GetLatestMatchResult(c.Request.Context(), id)
	switch {
	case err == nil:
		resp.Match = toMatchResultResponse(latest)
	case errors.Is(err, common.ErrNotFound):
		// never matched yet
	default:
		s.fail(c, err, "failed to load match result")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// createDocument ingests an extracted document and, unless the caller
// opts out, matches it immediately. A failed match never loses the
// document: it is stored first and the error reported alongside.
func (s *Server) createDocument(c *gin.Context) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc := &model.ExtractedDocument{
		ID:            uuid.NewString(),
		EmailID:       req.EmailID,
		VendorName:    req.VendorName,
		Amount:        req.Amount,
		Currency:      req.Currency,
		DocumentDate:  req.DocumentDate,
		InvoiceNumber: req.InvoiceNumber,
		RawText:       req.RawText,
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	extract.Enrich(doc)

	if err := s.storage.SaveDocument(c.Request.Context(), doc); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": "a document with this email_id already exists"})
			return
		}
		s.fail(c, err, "failed to save document")
		return
	}

	resp := IngestResponse{Document: toDocumentResponse(doc)}

	if req.Match == nil || *req.Match {
		result, err := s.engine.MatchDocument(c.Request.Context(), doc.ID)
		if err != nil {
			s.logger.Warn("immediate match failed", "document", doc.ID, "error", err)
			resp.MatchError = err.Error()
		} else {
			resp.Match = toMatchResultResponse(result)
			resp.Document.Status = string(statusAfter(result.Decision))
		}
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) createCorrection(c *gin.Context) {
	id := c.Param("id")

	var req CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Reject {
		if err := s.engine.RejectDocument(c.Request.Context(), id, req.CorrectedBy); err != nil {
			s.fail(c, err, "failed to reject document")
			return
		}
		c.JSON(http.StatusOK, gin.H{"document_id": id, "status": string(model.StatusRejected)})
		return
	}

	if req.ConfirmedCategory == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmed_category is required unless rejecting"})
		return
	}

	correction, err := s.engine.RecordCorrection(c.Request.Context(), id, req.ConfirmedCategory, req.CorrectedBy)
	if err != nil {
		s.fail(c, err, "failed to record correction")
		return
	}

	c.JSON(http.StatusCreated, toCorrectionResponse(correction))
}

func (s *Server) getAudit(c *gin.Context) {
	filter := service.AuditFilter{
		DocumentID: c.Query("document_id"),
		Kind:       model.AuditKind(c.Query("kind")),
		Decision:   model.Decision(c.Query("decision")),
		Limit:      intQuery(c, "limit", 200),
	}

	var err error
	if filter.StartDate, err = dateQuery(c, "start_date"); err == nil {
		filter.EndDate, err = dateQuery(c, "end_date")
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
		return
	}

	entries, err := s.storage.QueryAudit(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err, "failed to query audit log")
		return
	}

	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			Sequence:   e.Sequence,
			DocumentID: e.DocumentID,
			Kind:       string(e.Kind),
			Decision:   string(e.Decision),
			Detail:     e.Detail,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getModels(c *gin.Context) {
	versions, err := s.storage.ListModelVersions(c.Request.Context())
	if err != nil {
		s.fail(c, err, "failed to list model versions")
		return
	}

	current := s.models.Snapshot()

	out := make([]ModelResponse, 0, len(versions))
	for i := range versions {
		out = append(out, toModelResponse(&versions[i], versions[i].Version == current.Version))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) rollbackModel(c *gin.Context) {
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be an integer"})
		return
	}

	if err := s.models.Rollback(c.Request.Context(), version); err != nil {
		s.fail(c, err, "rollback failed")
		return
	}

	c.JSON(http.StatusOK, toModelResponse(s.models.Snapshot(), true))
}

func (s *Server) getStats(c *gin.Context) {
	counts, err := s.storage.CountDocumentsByStatus(c.Request.Context())
	if err != nil {
		s.fail(c, err, "failed to count documents")
		return
	}

	documents := make(map[string]int, len(counts))
	for status, n := range counts {
		documents[string(status)] = n
	}

	recent, err := s.storage.CountMatchResultsSince(c.Request.Context(), time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		s.fail(c, err, "failed to count recent matches")
		return
	}

	current := s.models.Snapshot()
	c.JSON(http.StatusOK, StatsResponse{
		Documents:       documents,
		MatchesLast24h:  recent,
		ModelVersion:    current.Version,
		Weights:         current.Weights,
		CorrectionCount: current.CorrectionCount,
	})
}

// fail maps storage sentinels onto HTTP status codes.
func (s *Server) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrInconsistentCandidatePool):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error(msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func statusAfter(decision model.Decision) model.DocumentStatus {
	switch decision {
	case model.DecisionAutoApprove:
		return model.StatusMatched
	case model.DecisionNeedsReview:
		return model.StatusNeedsReview
	default:
		return model.StatusNoMatch
	}
}

func intQuery(c *gin.Context, name string, defaultVal int) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}

func dateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
