/*
client.go - HTTP client for the record API

PURPOSE:
  Implements ledger.Remote over HTTP. Each method issues exactly one request
  and classifies failures into the ledger error kinds. No retries, no
  caching: the mirror decides when to ask again.

ENDPOINTS:
  GET    /api/patients           List records
  POST   /api/patients           Create record (JSON) or ingest files (multipart)
  PUT    /api/patients/{id}      Partial update
  DELETE /api/patients/{id}      Delete record
  DELETE /api/clear              Remove every record
  POST   /api/invoice/{format}   Generate invoice (pdf | word)

ERROR MAPPING:
  - request could not be sent / body not read  -> *ledger.TransportError
  - status >= 300                              -> *ledger.RejectionError
  - body not decodable                         -> *ledger.MalformedError

TRACING:
  Every request carries an X-Request-ID (uuid) that is also logged.

SEE ALSO:
  - upload.go: Multipart ingestion with progress
  - dto.go: Wire types
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/patient-ledger/ledger"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Client talks to the record API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the transport timeout for every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithClientLogger sets the request logger.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{baseURL: u, http: &http.Client{}, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// =============================================================================
// LEDGER.REMOTE
// =============================================================================

// List fetches every record.
func (c *Client) List(ctx context.Context) (ledger.Listing, error) {
	const op = "list records"
	resp, err := c.do(ctx, op, http.MethodGet, "/api/patients", nil, "")
	if err != nil {
		return ledger.Listing{}, err
	}
	var body ListPatientsResponse
	if err := decode(op, resp, &body); err != nil {
		return ledger.Listing{}, err
	}
	if body.Patients == nil {
		return ledger.Listing{}, &ledger.MalformedError{Op: op, Reason: "missing patients array"}
	}
	return body.toListing(), nil
}

// Create adds a record.
func (c *Client) Create(ctx context.Context, draft ledger.RecordDraft) (ledger.Record, error) {
	const op = "create record"
	payload, err := json.Marshal(CreatePatientRequest{Name: draft.Name, Price: draft.Price})
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%s: encode: %w", op, err)
	}
	resp, err := c.do(ctx, op, http.MethodPost, "/api/patients", bytes.NewReader(payload), "application/json")
	if err != nil {
		return ledger.Record{}, err
	}
	var dto PatientDTO
	if err := decode(op, resp, &dto); err != nil {
		return ledger.Record{}, err
	}
	return dto.toRecord(), nil
}

// Update applies a partial update.
func (c *Client) Update(ctx context.Context, id ledger.RecordID, patch ledger.RecordPatch) (ledger.Record, error) {
	const op = "update record"
	payload, err := json.Marshal(UpdatePatientRequest{Name: patch.Name, Price: patch.Price})
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%s: encode: %w", op, err)
	}
	resp, err := c.do(ctx, op, http.MethodPut, recordPath(id), bytes.NewReader(payload), "application/json")
	if err != nil {
		return ledger.Record{}, err
	}
	var dto PatientDTO
	if err := decode(op, resp, &dto); err != nil {
		return ledger.Record{}, err
	}
	return dto.toRecord(), nil
}

// Delete removes one record.
func (c *Client) Delete(ctx context.Context, id ledger.RecordID) error {
	resp, err := c.do(ctx, "delete record", http.MethodDelete, recordPath(id), nil, "")
	if err != nil {
		return err
	}
	return drain(resp)
}

// Clear removes every record.
func (c *Client) Clear(ctx context.Context) error {
	resp, err := c.do(ctx, "clear records", http.MethodDelete, "/api/clear", nil, "")
	if err != nil {
		return err
	}
	return drain(resp)
}

// GenerateInvoice returns the rendered document bytes.
func (c *Client) GenerateInvoice(ctx context.Context, req ledger.InvoiceRequest) ([]byte, error) {
	const op = "generate invoice"
	payload, err := json.Marshal(InvoiceRequestDTO{InvoiceNumber: req.Number})
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}
	path := "/api/invoice/" + url.PathEscape(string(req.Format))
	resp, err := c.do(ctx, op, http.MethodPost, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ledger.TransportError{Op: op, Err: err}
	}
	if len(body) == 0 {
		return nil, &ledger.MalformedError{Op: op, Reason: "empty document"}
	}
	return body, nil
}

var _ ledger.Remote = (*Client)(nil)

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do sends one request. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if sized, ok := body.(interface{ Len() int }); ok && req.ContentLength == 0 {
		req.ContentLength = int64(sized.Len())
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	rid := uuid.NewString()
	req.Header.Set(RequestIDHeader, rid)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).
			Str("request_id", rid).
			Str("method", method).
			Str("path", path).
			Dur("latency", time.Since(start)).
			Msg("request failed")
		return nil, &ledger.TransportError{Op: op, Err: err}
	}

	evt := c.log.Debug()
	if resp.StatusCode >= 300 {
		evt = c.log.Warn()
	}
	evt.Str("request_id", rid).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("request")

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &ledger.RejectionError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp)}
	}
	return resp, nil
}

// decode reads a JSON body into v and closes it.
func decode(op string, resp *http.Response, v any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ledger.TransportError{Op: op, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ledger.MalformedError{Op: op, Reason: "invalid json", Err: err}
	}
	return nil
}

func drain(resp *http.Response) error {
	defer resp.Body.Close()
	_, err := io.Copy(io.Discard, resp.Body)
	return err
}

// errorMessage extracts {"error": "..."} from a rejection, falling back to
// the raw text.
func errorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

func recordPath(id ledger.RecordID) string {
	return "/api/patients/" + url.PathEscape(id.String())
}
