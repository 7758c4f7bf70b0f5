package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/ledgerlink/internal/adaptive"
	"github.com/ledgerlink/ledgerlink/internal/engine"
	"github.com/ledgerlink/ledgerlink/internal/model"
	"github.com/ledgerlink/ledgerlink/internal/service"
	"github.com/ledgerlink/ledgerlink/internal/storage"
)

func newTestServer(t *testing.T) (*Server, service.Storage) {
	t.Helper()
	ctx := context.Background()

	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Failed to close database: %v", closeErr)
		}
	})
	require.NoError(t, db.Migrate(ctx))

	models := adaptive.NewStore(db)
	require.NoError(t, models.Load(ctx))

	eng := engine.New(db, models, engine.DefaultConfig())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewServer(DefaultConfig(), db, eng, models, logger), db
}

func seedCandidates(t *testing.T, db service.Storage, candidates ...model.CandidateTransaction) {
	t.Helper()
	for i := range candidates {
		if candidates[i].Currency == "" {
			candidates[i].Currency = "USD"
		}
		if candidates[i].ImportedAt.IsZero() {
			candidates[i].ImportedAt = time.Now().UTC()
		}
	}
	require.NoError(t, db.SaveCandidates(context.Background(), candidates))
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestServer_CreateDocument(t *testing.T) {
	docDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("ingest and auto-approve", func(t *testing.T) {
		s, db := newTestServer(t)
		seedCandidates(t, db,
			model.CandidateTransaction{ID: "c1", VendorName: "Acme Corporation", Amount: decimal.RequireFromString("1250.00"), Date: docDate.AddDate(0, 0, 2), Category: "Office Supplies", AccountID: "acct-1", InvoiceRef: "INV-2026-001234"},
			model.CandidateTransaction{ID: "c2", VendorName: "Globex Ltd", Amount: decimal.RequireFromString("90.00"), Date: docDate.AddDate(0, 0, 20), Category: "Software", AccountID: "acct-1"},
		)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
			"email_id":       "email-1",
			"vendor_name":    "ACME Corp.",
			"amount":         "1250.00",
			"currency":       "USD",
			"document_date":  docDate.Format(time.RFC3339),
			"invoice_number": "INV-2026-001234",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[IngestResponse](t, w)
		assert.Empty(t, resp.MatchError)
		require.NotNil(t, resp.Match)
		assert.Equal(t, string(model.DecisionAutoApprove), resp.Match.Decision)
		require.NotNil(t, resp.Match.ChosenCandidateID)
		assert.Equal(t, "c1", *resp.Match.ChosenCandidateID)
		assert.Equal(t, string(model.StatusMatched), resp.Document.Status)
	})

	t.Run("match opt-out leaves document pending", func(t *testing.T) {
		s, _ := newTestServer(t)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
			"email_id":    "email-2",
			"vendor_name": "ACME Corp.",
			"amount":      "1250.00",
			"currency":    "USD",
			"match":       false,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[IngestResponse](t, w)
		assert.Nil(t, resp.Match)
		assert.Equal(t, string(model.StatusPending), resp.Document.Status)
	})

	t.Run("raw text is enriched before storing", func(t *testing.T) {
		s, _ := newTestServer(t)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
			"email_id": "email-3",
			"raw_text": "Invoice #: INV-2026-004242\nDate: 2026-01-15\nTotal Due: $1,250.00",
			"match":    false,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[IngestResponse](t, w)
		require.NotNil(t, resp.Document.Amount)
		assert.True(t, resp.Document.Amount.Equal(decimal.RequireFromString("1250.00")))
		require.NotNil(t, resp.Document.InvoiceNumber)
		assert.Equal(t, "INV-2026-004242", *resp.Document.InvoiceNumber)
		require.NotNil(t, resp.Document.DocumentDate)
		assert.Equal(t, "2026-01-15", *resp.Document.DocumentDate)
	})

	t.Run("missing email_id rejected", func(t *testing.T) {
		s, _ := newTestServer(t)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
			"vendor_name": "ACME Corp.",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate email_id conflicts", func(t *testing.T) {
		s, _ := newTestServer(t)

		body := map[string]any{"email_id": "email-dup", "match": false}
		require.Equal(t, http.StatusCreated, doJSON(t, s, http.MethodPost, "/api/v1/documents", body).Code)
		assert.Equal(t, http.StatusConflict, doJSON(t, s, http.MethodPost, "/api/v1/documents", body).Code)
	})

	t.Run("empty candidate pool stores document with match error", func(t *testing.T) {
		s, _ := newTestServer(t)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
			"email_id":      "email-4",
			"vendor_name":   "ACME Corp.",
			"amount":        "1250.00",
			"currency":      "USD",
			"document_date": docDate.Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[IngestResponse](t, w)
		assert.Nil(t, resp.Match)
		assert.NotEmpty(t, resp.MatchError)
	})
}

func TestServer_GetDocument(t *testing.T) {
	docDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	s, db := newTestServer(t)
	seedCandidates(t, db,
		model.CandidateTransaction{ID: "c1", VendorName: "Acme Corporation", Amount: decimal.RequireFromString("1250.00"), Date: docDate.AddDate(0, 0, 2), Category: "Office Supplies", AccountID: "acct-1"},
	)

	created := decode[IngestResponse](t, doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
		"email_id":      "email-1",
		"vendor_name":   "ACME Corp.",
		"amount":        "1250.00",
		"currency":      "USD",
		"document_date": docDate.Format(time.RFC3339),
	}))

	t.Run("found with latest match", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/v1/documents/"+created.Document.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[DocumentDetailResponse](t, w)
		assert.Equal(t, created.Document.ID, resp.Document.ID)
		require.NotNil(t, resp.Match)
		assert.Equal(t, string(model.DecisionAutoApprove), resp.Match.Decision)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/v1/documents/no-such-doc", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_PendingQueue(t *testing.T) {
	docDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	s, db := newTestServer(t)

	// Two near-identical candidates force a review decision.
	seedCandidates(t, db,
		model.CandidateTransaction{ID: "c1", VendorName: "Acme Corporation", Amount: decimal.RequireFromString("1250.00"), Date: docDate.AddDate(0, 0, 6), Category: "Office Supplies", AccountID: "acct-1"},
		model.CandidateTransaction{ID: "c2", VendorName: "Acme Corporation", Amount: decimal.RequireFromString("1250.00"), Date: docDate.AddDate(0, 0, 8), Category: "Software", AccountID: "acct-1"},
	)

	created := decode[IngestResponse](t, doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
		"email_id":      "email-1",
		"vendor_name":   "ACME Corp.",
		"amount":        "1250.00",
		"currency":      "USD",
		"document_date": docDate.Format(time.RFC3339),
	}))
	require.NotNil(t, created.Match)
	require.Equal(t, string(model.DecisionNeedsReview), created.Match.Decision)

	w := doJSON(t, s, http.MethodGet, "/api/v1/documents/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	queue := decode[[]DocumentResponse](t, w)
	require.Len(t, queue, 1)
	assert.Equal(t, created.Document.ID, queue[0].ID)
	assert.Equal(t, string(model.StatusNeedsReview), queue[0].Status)

	t.Run("status override", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/v1/documents/pending?status=PENDING", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]DocumentResponse](t, w))
	})
}

func TestServer_SearchDocuments(t *testing.T) {
	s, _ := newTestServer(t)

	for _, payload := range []map[string]any{
		{"email_id": "email-1", "vendor_name": "ACME Corp.", "match": false},
		{"email_id": "email-2", "vendor_name": "Globex Ltd", "match": false},
	} {
		require.Equal(t, http.StatusCreated, doJSON(t, s, http.MethodPost, "/api/v1/documents", payload).Code)
	}

	t.Run("vendor filter", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/v1/documents/search?vendor=acme", nil)
		require.Equal(t, http.StatusOK, w.Code)

		docs := decode[[]DocumentResponse](t, w)
		require.Len(t, docs, 1)
		assert.Equal(t, "email-1", docs[0].EmailID)
	})

	t.Run("bad date is 400", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/v1/documents/search?start_date=15-01-2026", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_CreateCorrection(t *testing.T) {
	docDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	ingestReviewDoc := func(t *testing.T, s *Server, db service.Storage) string {
		t.Helper()
		seedCandidates(t, db,
			model.CandidateTransaction{ID: "c1", VendorName: "Acme Corporation", Amount: decimal.RequireFromString("1250.00"), Date: docDate.AddDate(0, 0, 6), Category: "Office Supplies", AccountID: "acct-1"},
			model.CandidateTransaction{ID: "c2", VendorName: "Acme Corporation", Amount: decimal.RequireFromString("1250.00"), Date: docDate.AddDate(0, 0, 8), Category: "Software", AccountID: "acct-1"},
		)
		created := decode[IngestResponse](t, doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
			"email_id":      "email-1",
			"vendor_name":   "ACME Corp.",
			"amount":        "1250.00",
			"currency":      "USD",
			"document_date": docDate.Format(time.RFC3339),
		}))
		require.NotNil(t, created.Match)
		require.Equal(t, string(model.DecisionNeedsReview), created.Match.Decision)
		return created.Document.ID
	}

	t.Run("override recorded", func(t *testing.T) {
		s, db := newTestServer(t)
		docID := ingestReviewDoc(t, s, db)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents/"+docID+"/corrections", map[string]any{
			"confirmed_category": "Software",
			"corrected_by":       "reviewer",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[CorrectionResponse](t, w)
		assert.Equal(t, docID, resp.DocumentID)
		assert.Equal(t, "Office Supplies", resp.PredictedCategory)
		assert.Equal(t, "Software", resp.ConfirmedCategory)
		assert.False(t, resp.Confirmed)

		doc, err := db.GetDocumentByID(context.Background(), docID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusMatched, doc.Status)
	})

	t.Run("reject path", func(t *testing.T) {
		s, db := newTestServer(t)
		docID := ingestReviewDoc(t, s, db)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents/"+docID+"/corrections", map[string]any{
			"corrected_by": "reviewer",
			"reject":       true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		doc, err := db.GetDocumentByID(context.Background(), docID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusRejected, doc.Status)
	})

	t.Run("category required unless rejecting", func(t *testing.T) {
		s, db := newTestServer(t)
		docID := ingestReviewDoc(t, s, db)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents/"+docID+"/corrections", map[string]any{
			"corrected_by": "reviewer",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown document is 404", func(t *testing.T) {
		s, _ := newTestServer(t)

		w := doJSON(t, s, http.MethodPost, "/api/v1/documents/no-such-doc/corrections", map[string]any{
			"confirmed_category": "Software",
			"corrected_by":       "reviewer",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_Audit(t *testing.T) {
	docDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	s, db := newTestServer(t)
	seedCandidates(t, db,
		model.CandidateTransaction{ID: "c1", VendorName: "Acme Corporation", Amount: decimal.RequireFromString("1250.00"), Date: docDate.AddDate(0, 0, 2), Category: "Office Supplies", AccountID: "acct-1"},
	)

	created := decode[IngestResponse](t, doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
		"email_id":      "email-1",
		"vendor_name":   "ACME Corp.",
		"amount":        "1250.00",
		"currency":      "USD",
		"document_date": docDate.Format(time.RFC3339),
	}))

	w := doJSON(t, s, http.MethodGet, "/api/v1/audit?document_id="+created.Document.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	entries := decode[[]AuditEntryResponse](t, w)
	require.NotEmpty(t, entries)
	assert.Equal(t, string(model.AuditMatch), entries[0].Kind)
	assert.Equal(t, string(model.DecisionAutoApprove), entries[0].Decision)
}

func TestServer_Models(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("list marks current", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/v1/models", nil)
		require.Equal(t, http.StatusOK, w.Code)

		versions := decode[[]ModelResponse](t, w)
		require.Len(t, versions, 1)
		assert.Equal(t, int64(1), versions[0].Version)
		assert.True(t, versions[0].Current)
	})

	t.Run("rollback to existing version", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/api/v1/models/1/rollback", nil)
		require.Equal(t, http.StatusOK, w.Code)

		current := decode[ModelResponse](t, w)
		assert.Equal(t, int64(1), current.Version)
		assert.True(t, current.Current)
	})

	t.Run("rollback to missing version is 404", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/api/v1/models/42/rollback", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-numeric version is 400", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/api/v1/models/abc/rollback", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_Stats(t *testing.T) {
	s, _ := newTestServer(t)

	require.Equal(t, http.StatusCreated, doJSON(t, s, http.MethodPost, "/api/v1/documents", map[string]any{
		"email_id": "email-1",
		"match":    false,
	}).Code)

	w := doJSON(t, s, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	stats := decode[StatsResponse](t, w)
	assert.Equal(t, 1, stats.Documents[string(model.StatusPending)])
	assert.Equal(t, 0, stats.MatchesLast24h)
	assert.Equal(t, int64(1), stats.ModelVersion)
	assert.InDelta(t, 1.0, stats.Weights.Sum(), 1e-9)
}
