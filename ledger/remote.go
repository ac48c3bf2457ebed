/*
remote.go - Interface between the client core and the external record API

PURPOSE:
  Defines the contract the core consumes. The remote API owns persistence
  and document rendering; the core only issues one-shot requests and
  re-synchronizes its mirror afterwards.

KEY INTERFACES:
  Lister:   Full record listing (feeds the mirror)
  Updater:  Single-record partial update (feeds the executor)
  Remote:   Everything the session needs (CRUD, clear, ingest, invoices)

IMPLEMENTATIONS:
  - api/client.go: HTTP client for the real API
  - ledger/store/memory.go: In-memory record book for tests and the sandbox

SEE ALSO:
  - mirror.go: Uses Lister through a RefreshFunc
  - executor.go: Uses Updater
  - session.go: Uses Remote
*/
package ledger

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Listing is the full remote record set as returned by the list operation.
type Listing struct {
	Records  []Record `json:"patients"`
	Count    int      `json:"count"`
	Subtotal Price    `json:"subtotal"`
}

// Lister returns the full remote record set.
type Lister interface {
	List(ctx context.Context) (Listing, error)
}

// Updater applies a partial update to one record.
type Updater interface {
	Update(ctx context.Context, id RecordID, patch RecordPatch) (Record, error)
}

// Remote is the complete external collaborator consumed by Session.
type Remote interface {
	Lister
	Updater

	// Create adds a record. The remote assigns its id.
	Create(ctx context.Context, draft RecordDraft) (Record, error)

	// Delete removes a record.
	Delete(ctx context.Context, id RecordID) error

	// Clear removes every record.
	Clear(ctx context.Context) error

	// Ingest uploads source files; the remote turns accepted files into records.
	// progress may be nil.
	Ingest(ctx context.Context, files []Upload, progress ProgressFunc) error

	// GenerateInvoice renders the current remote list into a document.
	GenerateInvoice(ctx context.Context, req InvoiceRequest) ([]byte, error)
}

// =============================================================================
// UPLOADS
// =============================================================================

// Upload is one source file handed to the remote for ingestion.
type Upload struct {
	Name string
	Size int64
	Body io.Reader
}

// ProgressFunc receives upload progress as a whole percentage. Values are
// non-decreasing and end at 100 on success.
type ProgressFunc func(percent int)

// =============================================================================
// INVOICES
// =============================================================================

// InvoiceFormat selects the document type rendered by the remote.
type InvoiceFormat string

const (
	InvoicePDF  InvoiceFormat = "pdf"
	InvoiceWord InvoiceFormat = "word"
)

// ParseInvoiceFormat accepts "pdf", "word" and the "docx" alias.
func ParseInvoiceFormat(s string) (InvoiceFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf", "":
		return InvoicePDF, nil
	case "word", "docx":
		return InvoiceWord, nil
	default:
		return "", fmt.Errorf("unknown invoice format %q (use pdf or word)", s)
	}
}

// Extension is the file extension of the generated document.
func (f InvoiceFormat) Extension() string {
	if f == InvoiceWord {
		return "docx"
	}
	return "pdf"
}

type InvoiceRequest struct {
	Format InvoiceFormat
	Number string
}

// FileName is the suggested download name, e.g. Factura_FAC-20261234.pdf.
func (r InvoiceRequest) FileName() string {
	return fmt.Sprintf("Factura_%s.%s", r.Number, r.Format.Extension())
}
