/*
dto.go - Data Transfer Objects for the record API

PURPOSE:
  Defines the JSON structures exchanged with the record API. The client
  decodes responses into these types and converts them to ledger types;
  the sandbox server encodes them. Keeping them apart from the ledger
  package lets the wire contract evolve without touching the core.

NAMING CONVENTION:
  - *DTO: Resource representations
  - *Request: Request bodies
  - *Response: Response wrappers

TYPES:
  Patients:
    PatientDTO, ListPatientsResponse, CreatePatientRequest,
    UpdatePatientRequest, IngestResponse

  Invoices:
    InvoiceRequestDTO

  Errors:
    ErrorResponse

SEE ALSO:
  - client.go: Decodes these types
  - handlers.go: Encodes these types
*/
package api

import (
	"github.com/warp/patient-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// PatientDTO represents a record in API responses.
type PatientDTO struct {
	ID    ledger.RecordID `json:"id"`
	Name  string          `json:"name"`
	Price ledger.Price    `json:"price"`
}

// ListPatientsResponse is the body of GET /api/patients.
type ListPatientsResponse struct {
	Patients []PatientDTO `json:"patients"`
	Count    int          `json:"count"`
	Subtotal ledger.Price `json:"subtotal"`
}

// CreatePatientRequest is the body of POST /api/patients (JSON variant).
type CreatePatientRequest struct {
	Name  string        `json:"name"`
	Price *ledger.Price `json:"price,omitempty"`
}

// UpdatePatientRequest is the body of PUT /api/patients/{id}.
type UpdatePatientRequest struct {
	Name  *string       `json:"name,omitempty"`
	Price *ledger.Price `json:"price,omitempty"`
}

// IngestResponse is the body of POST /api/patients (multipart variant).
type IngestResponse struct {
	Success  bool         `json:"success"`
	Patients []PatientDTO `json:"patients"`
}

// InvoiceRequestDTO is the body of POST /api/invoice/{format}.
type InvoiceRequestDTO struct {
	InvoiceNumber string `json:"invoice_number"`
}

// ErrorResponse is returned with every non-success status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPatientDTO(r ledger.Record) PatientDTO {
	return PatientDTO{ID: r.ID, Name: r.Name, Price: r.Price}
}

func toPatientDTOs(records []ledger.Record) []PatientDTO {
	dtos := make([]PatientDTO, len(records))
	for i, r := range records {
		dtos[i] = toPatientDTO(r)
	}
	return dtos
}

func (d PatientDTO) toRecord() ledger.Record {
	return ledger.Record{ID: d.ID, Name: d.Name, Price: d.Price}
}

func (r ListPatientsResponse) toListing() ledger.Listing {
	records := make([]ledger.Record, len(r.Patients))
	for i, p := range r.Patients {
		records[i] = p.toRecord()
	}
	return ledger.Listing{Records: records, Count: r.Count, Subtotal: r.Subtotal}
}
