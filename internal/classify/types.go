package classify

import "encoding/json"

// Action is the recommended enforcement action for a tool call. It is a
// closed set; anything else must be treated as unknown by the router, never
// silently mapped to a default.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionBlock   Action = "block"
	ActionConfirm Action = "confirm"
	ActionWarn    Action = "warn"
	ActionLog     Action = "log"
)

// Known reports whether a is one of the recognized actions.
func (a Action) Known() bool {
	switch a {
	case ActionAllow, ActionBlock, ActionConfirm, ActionWarn, ActionLog:
		return true
	}
	return false
}

// strength orders actions from most to least restrictive for aggregation.
func (a Action) strength() int {
	switch a {
	case ActionBlock:
		return 4
	case ActionConfirm:
		return 3
	case ActionWarn:
		return 2
	case ActionLog:
		return 1
	default:
		return 0
	}
}

// Severity grades how dangerous a detection is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the numeric ordering of a severity, higher is worse. Unknown
// severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// CallContext identifies the tool call being judged. Immutable once built.
type CallContext struct {
	ToolName  string
	Arguments json.RawMessage
	RequestID string

	// TimeoutOverride is a caller-supplied approval timeout in seconds.
	// Zero means use the configured timeout.
	TimeoutOverride int

	// CallerKey is the authenticated API key id, stamped onto audit
	// entries for the call. Empty when the boundary ran unauthenticated.
	CallerKey string
}

// Detection is a single rule finding.
type Detection struct {
	Rule     string
	Category string
	Severity Severity
	Reason   string
}

// Classification is the analyzer's verdict for one tool call. Produced once,
// immutable thereafter.
type Classification struct {
	// PrimaryCategory is the category of the highest-severity detection.
	PrimaryCategory string

	Severity Severity

	// RecommendedAction is what the router should do. May hold an
	// unrecognized value when the classification came from an external
	// analyzer; the router handles that branch explicitly.
	RecommendedAction Action

	Reason string

	// Detections holds every finding in rule-evaluation order, not just
	// the primary one.
	Detections []Detection
}
