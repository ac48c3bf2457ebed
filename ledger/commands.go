package ledger

// =============================================================================
// COMMANDS - Explicit operator intents dispatched to Session
// =============================================================================

// Command is an operator action that mutates the remote. Every command is
// followed by exactly one mirror refresh.
type Command interface {
	commandName() string
}

// CreateRecord adds a record.
type CreateRecord struct {
	Draft RecordDraft
}

// UpdateRecord applies a partial update to one record.
type UpdateRecord struct {
	ID    RecordID
	Patch RecordPatch
}

// DeleteRecord removes one record.
type DeleteRecord struct {
	ID RecordID
}

// ClearAll removes every record.
type ClearAll struct{}

// ApplyBulkEdit plans and applies group-level price edits. Grouping must
// come from Session.OpenBulkEdit for the current mirror generation.
type ApplyBulkEdit struct {
	Grouping Grouping
	Edits    Edits
}

// IngestFiles uploads source files for the remote to turn into records.
type IngestFiles struct {
	Files    []Upload
	Progress ProgressFunc
}

func (CreateRecord) commandName() string  { return "create_record" }
func (UpdateRecord) commandName() string  { return "update_record" }
func (DeleteRecord) commandName() string  { return "delete_record" }
func (ClearAll) commandName() string      { return "clear_all" }
func (ApplyBulkEdit) commandName() string { return "apply_bulk_edit" }
func (IngestFiles) commandName() string   { return "ingest_files" }

// Outcome describes what a dispatched command did.
type Outcome struct {
	Command string

	// Record is the created or updated record, when the remote returned one.
	Record *Record

	// Plan and Batch are set for ApplyBulkEdit.
	Plan  []Mutation
	Batch *BatchResult

	// Summary is the mirror state after the follow-up refresh. Refreshed is
	// false when that refresh failed.
	Summary   Summary
	Refreshed bool
}
