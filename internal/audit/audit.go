// Package audit records enforcement outcomes. The store is append-only:
// entries are never mutated after insertion, and a confirm resolution is
// recorded as a second entry referencing the initial one via ParentID.
package audit

import "time"

// Actions recorded in the trail.
const (
	ActionBlock            = "block"
	ActionWarn             = "warn"
	ActionLog              = "log"
	ActionConfirm          = "confirm"
	ActionConfirmApproved  = "confirm_approved"
	ActionConfirmDenied    = "confirm_denied"
	ActionConfirmTimedOut  = "confirm_timed_out"
	ActionUnknownAction    = "unknown_action"
	ActionConfigError      = "config_error"
	ActionCapacityExceeded = "capacity_exceeded"
)

// Entry is one enforcement outcome.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
	ToolName  string            `json:"tool_name"`
	Category  string            `json:"category"`
	Severity  string            `json:"severity"`
	Action    string            `json:"action"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// PayloadPreview is a bounded copy of the raw tool arguments.
	// PayloadHash is the SHA-256 of the full arguments, so a truncated
	// preview can still be matched against the exact payload.
	PayloadPreview string `json:"payload_preview,omitempty"`
	PayloadHash    string `json:"payload_hash,omitempty"`

	// ParentID links a terminal confirm entry back to the initial
	// confirm entry for the same approval.
	ParentID string `json:"parent_id,omitempty"`
}

// Query filters an audit retrieval. A zero Limit means no limit.
type Query struct {
	Category string
	Limit    int
}

// QueryResult holds matching entries newest-first. TotalEntries is the
// unfiltered store size, not the match count.
type QueryResult struct {
	Entries      []Entry `json:"entries"`
	TotalEntries int     `json:"total_entries"`
}

// Store is the audit sink consumed by the enforcement core. Append must
// never block enforcement and never fails; a sink that loses an entry logs
// instead of surfacing an error into the decision path.
type Store interface {
	Append(e *Entry)
	Query(q Query) QueryResult
	Close()
}

// Exporter receives a copy of every appended entry for durable storage.
type Exporter interface {
	Export(e *Entry)
}

// Tee returns a Store that appends to primary and mirrors each entry to the
// exporter. Queries are served from primary.
func Tee(primary Store, exporter Exporter) Store {
	return &teeStore{Store: primary, exporter: exporter}
}

type teeStore struct {
	Store
	exporter Exporter
}

func (t *teeStore) Append(e *Entry) {
	t.Store.Append(e)
	t.exporter.Export(e)
}
