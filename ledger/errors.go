/*
errors.go - Centralized error types for the ledger client

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  The HTTP client wraps transport and decoding failures in these types;
  callers match them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. TransportFailure - request could not be sent or its response not received
  2. ServerRejection - the remote answered with a non-success status
  3. MalformedResponse - the payload could not be decoded or failed validation
  4. PartialBatchFailure - one or more operations of a sequential batch failed
  5. Session errors - empty mirror, stale grouping

PROPAGATION:
  Reads (List) leave the mirror unchanged. Writes abort only the single
  operation. Batch failures are reported once, after the whole batch.
  Nothing here is fatal: every failure is recoverable by retrying the action.

SEE ALSO:
  - executor.go: Produces PartialBatchFailure
  - mirror.go: Validates listings, produces MalformedError
  - api/client.go: Produces TransportError, RejectionError, MalformedError
*/
package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTransport is matched by every TransportError.
	ErrTransport = errors.New("transport failure")

	// ErrServerRejection is matched by every RejectionError.
	ErrServerRejection = errors.New("server rejection")

	// ErrMalformedResponse is matched by every MalformedError.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrPartialBatch is matched by PartialBatchFailure.
	ErrPartialBatch = errors.New("partial batch failure")

	// ErrNotFound is matched by a RejectionError with status 404.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyMirror is returned when an operation needs at least one record
	// (bulk edit, invoice generation).
	ErrEmptyMirror = errors.New("mirror has no records")

	// ErrStaleGrouping is returned when a grouping derived before the latest
	// refresh is submitted for bulk editing.
	ErrStaleGrouping = errors.New("price grouping is stale, reopen bulk edit")

	// ErrUnknownCommand is returned by Session.Dispatch for unsupported commands.
	ErrUnknownCommand = errors.New("unknown command")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransportError wraps a failure to send a request or read its response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// RejectionError is a non-success response from the remote.
type RejectionError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: rejected with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: rejected with status %d: %s", e.Op, e.Status, e.Message)
}

func (e *RejectionError) Unwrap() []error {
	if e.Status == http.StatusNotFound {
		return []error{ErrServerRejection, ErrNotFound}
	}
	return []error{ErrServerRejection}
}

// MalformedError reports an unparseable or inconsistent payload.
type MalformedError struct {
	Op     string
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

func (e *MalformedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedResponse, e.Err}
	}
	return []error{ErrMalformedResponse}
}

// OperationFailure records one failed mutation inside a batch.
type OperationFailure struct {
	Index    int
	Mutation Mutation
	Err      error
}

// PartialBatchFailure is reported once per batch when any operation failed.
// Successful operations are not rolled back.
type PartialBatchFailure struct {
	BatchID   string
	Attempted int
	Failures  []OperationFailure
}

func (e *PartialBatchFailure) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.Mutation.RecordID.String()
	}
	return fmt.Sprintf("batch %s: %d of %d operations failed (records %s)",
		e.BatchID, len(e.Failures), e.Attempted, strings.Join(ids, ", "))
}

func (e *PartialBatchFailure) Unwrap() error { return ErrPartialBatch }

// Succeeded is the number of operations that went through.
func (e *PartialBatchFailure) Succeeded() int { return e.Attempted - len(e.Failures) }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if repeating the same request might succeed.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Status >= 500 || rej.Status == http.StatusTooManyRequests
	}
	return false
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
