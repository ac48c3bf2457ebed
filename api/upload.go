/*
upload.go - Multipart file ingestion

PURPOSE:
  Sends source documents to POST /api/patients as a multipart form (one
  "files" part per document). The remote derives one record per accepted
  document; the mirror picks them up on the refresh that follows.

PROGRESS:
  The body is assembled up front so its length is known. Progress is the
  share of that body the transport has consumed, reported as an integer
  percentage that never decreases. 0 is reported before sending and 100
  only once the server has accepted the upload.

SEE ALSO:
  - client.go: Request plumbing and error mapping
  - handlers.go: Server side of the same form
*/
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/warp/patient-ledger/ledger"
)

// FilesField is the multipart field carrying the documents.
const FilesField = "files"

// Ingest uploads files in a single multipart request.
func (c *Client) Ingest(ctx context.Context, files []ledger.Upload, progress ledger.ProgressFunc) error {
	const op = "ingest files"
	if len(files) == 0 {
		return nil
	}

	body, contentType, err := buildMultipart(files)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	pr := newProgressReader(bytes.NewReader(body), int64(len(body)), progress)
	pr.report(0)

	resp, err := c.do(ctx, op, http.MethodPost, "/api/patients", pr, contentType)
	if err != nil {
		return err
	}
	var ack IngestResponse
	if err := decode(op, resp, &ack); err != nil {
		return err
	}
	pr.report(100)

	c.log.Info().Int("files", len(files)).Int("records", len(ack.Patients)).Msg("files ingested")
	return nil
}

func buildMultipart(files []ledger.Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile(FilesField, filepath.Base(f.Name))
		if err != nil {
			return nil, "", err
		}
		if f.Body == nil {
			continue
		}
		if _, err := io.Copy(part, f.Body); err != nil {
			return nil, "", fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// =============================================================================
// PROGRESS READER
// =============================================================================

// progressReader reports the consumed share of a body of known length.
// The transport may read from another goroutine, so state is guarded.
type progressReader struct {
	r     io.Reader
	total int64
	fn    ledger.ProgressFunc

	mu   sync.Mutex
	read int64

	// cbMu orders callbacks so a late transport read never reports after 100.
	cbMu sync.Mutex
	last int
}

func newProgressReader(r io.Reader, total int64, fn ledger.ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, fn: fn, last: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		read := p.read
		p.mu.Unlock()
		// 100 is held back until the server answers.
		if p.total > 0 {
			p.report(min(int(read*100/p.total), 99))
		}
	}
	return n, err
}

// Len reports the unread length so the request carries a Content-Length
// instead of a chunked body.
func (p *progressReader) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.total - p.read)
}

func (p *progressReader) report(pct int) {
	if p.fn == nil {
		return
	}
	pct = max(0, min(pct, 100))
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	if pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}
