/*
handlers.go - Sandbox HTTP handlers for the record API

PURPOSE:
  Serves the record API on top of any ledger.Remote (the sandbox wires
  store.Memory). Handles HTTP request/response and JSON serialization,
  and delegates storage and pricing rules to the backend.

ENDPOINTS:
  Patients:
    GET    /api/patients              {patients, count, subtotal}
    POST   /api/patients              JSON {name, price?} -> created record
                                      multipart files     -> {success, patients}
    PUT    /api/patients/{id}         {name?, price?}     -> updated record
    DELETE /api/patients/{id}         {success}

  Bulk:
    DELETE /api/clear                 {success}

  Invoices:
    POST   /api/invoice/{format}      {invoice_number} -> document bytes

ERROR HANDLING:
  Errors are returned as JSON {"error": "..."}:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 500: Internal errors
  A *ledger.RejectionError from the backend keeps its own status.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/patient-ledger/ledger"
)

// maxUploadMemory is the multipart size kept in memory before spilling to disk.
const maxUploadMemory = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store ledger.Remote
	log   zerolog.Logger
	clock func() time.Time
}

// NewHandler creates a handler over the given backend.
func NewHandler(store ledger.Remote, log zerolog.Logger) *Handler {
	return &Handler{Store: store, log: log, clock: time.Now}
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

// ListPatients returns every record with count and subtotal.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	listing, err := h.Store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, "Failed to list patients", err)
		return
	}
	writeJSON(w, http.StatusOK, ListPatientsResponse{
		Patients: toPatientDTOs(listing.Records),
		Count:    listing.Count,
		Subtotal: listing.Subtotal,
	})
}

// CreateOrIngest dispatches on content type: multipart bodies are file
// ingestion, anything else is a JSON create.
func (h *Handler) CreateOrIngest(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.ingest(w, r)
		return
	}
	h.create(w, r)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	rec, err := h.Store.Create(r.Context(), ledger.RecordDraft{Name: req.Name, Price: req.Price})
	if err != nil {
		h.writeStoreError(w, "Failed to create patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientDTO(rec))
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[FilesField]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided", nil)
		return
	}

	before, err := h.Store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, "Failed to list patients", err)
		return
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}
	if err := h.Store.Ingest(r.Context(), uploads, nil); err != nil {
		h.writeStoreError(w, "Failed to ingest files", err)
		return
	}

	after, err := h.Store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, "Failed to list patients", err)
		return
	}
	created := newRecords(before.Records, after.Records)
	h.log.Info().Int("files", len(uploads)).Int("created", len(created)).Msg("files ingested")
	writeJSON(w, http.StatusCreated, IngestResponse{Success: true, Patients: toPatientDTOs(created)})
}

// UpdatePatient applies a partial update.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := ledger.RecordID(chi.URLParam(r, "id"))

	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	patch := ledger.RecordPatch{Name: req.Name, Price: req.Price}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "Nothing to update", nil)
		return
	}

	rec, err := h.Store.Update(r.Context(), id, patch)
	if err != nil {
		h.writeStoreError(w, "Failed to update patient", err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(rec))
}

// DeletePatient removes one record.
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id := ledger.RecordID(chi.URLParam(r, "id"))
	if err := h.Store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, "Failed to delete patient", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ClearPatients removes every record.
func (h *Handler) ClearPatients(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Clear(r.Context()); err != nil {
		h.writeStoreError(w, "Failed to clear patients", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GenerateInvoice renders the current list as a downloadable document.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	format, err := ledger.ParseInvoiceFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported invoice format", err)
		return
	}

	var body InvoiceRequestDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	req := ledger.InvoiceRequest{Format: format, Number: strings.TrimSpace(body.InvoiceNumber)}
	if req.Number == "" {
		req.Number = ledger.DefaultInvoiceNumber(h.clock())
	}

	doc, err := h.Store.GenerateInvoice(r.Context(), req)
	if err != nil {
		h.writeStoreError(w, "Failed to generate invoice", err)
		return
	}

	w.Header().Set("Content-Type", invoiceContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.FileName()))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func invoiceContentType(f ledger.InvoiceFormat) string {
	if f == ledger.InvoiceWord {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/pdf"
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError keeps the status of a backend rejection and reports
// anything else as an internal error.
func (h *Handler) writeStoreError(w http.ResponseWriter, message string, err error) {
	var rej *ledger.RejectionError
	if errors.As(err, &rej) {
		msg := rej.Message
		if msg == "" {
			msg = http.StatusText(rej.Status)
		}
		writeError(w, rej.Status, msg, nil)
		return
	}
	h.log.Error().Err(err).Msg(message)
	writeError(w, http.StatusInternalServerError, message, err)
}

func openUploads(headers []*multipart.FileHeader) ([]ledger.Upload, func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	uploads := make([]ledger.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		closers = append(closers, f.Close)
		uploads = append(uploads, ledger.Upload{Name: fh.Filename, Size: fh.Size, Body: f})
	}
	return uploads, closeAll, nil
}

// newRecords returns the records in after whose ids are absent from before.
func newRecords(before, after []ledger.Record) []ledger.Record {
	seen := make(map[ledger.RecordID]bool, len(before))
	for _, r := range before {
		seen[r.ID] = true
	}
	created := []ledger.Record{}
	for _, r := range after {
		if !seen[r.ID] {
			created = append(created, r)
		}
	}
	return created
}
