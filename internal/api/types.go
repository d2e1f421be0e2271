package api

import "encoding/json"

// --- POST /v1/enforce request/response ---

// EnforceRequest is the JSON body for POST /v1/enforce.
type EnforceRequest struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	RequestID string          `json:"request_id,omitempty"`

	// TimeoutSeconds optionally overrides the configured approval timeout
	// for this call.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// EnforceResponse is the terminal (allowed/denied) response.
type EnforceResponse struct {
	Allowed   bool    `json:"allowed"`
	Message   *string `json:"message"`
	Logged    bool    `json:"logged"`
	Shadow    bool    `json:"shadow,omitempty"`
	RequestID string  `json:"request_id"`
	Category  string  `json:"category"`
	Severity  string  `json:"severity"`
	LatencyMs float64 `json:"latency_ms"`
}

// PendingResponse is the 202 response for the confirm path. Resolution is
// observed later through the approvals endpoints or the webhook channel.
type PendingResponse struct {
	ApprovalID     string   `json:"approval_id"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Methods        []string `json:"methods"`
	Message        string   `json:"message"`
	RequestID      string   `json:"request_id"`
}

// --- Approvals ---

// ResolveRequest is the JSON body for POST /v1/approvals/{approval_id}/resolve.
type ResolveRequest struct {
	Decision string `json:"decision"` // "approved" | "denied"
	Via      string `json:"via"`      // approval method delivering the signal
}

// ResolveResponse reports the resolution outcome. Applied is false when the
// approval had already been resolved; the prior outcome is returned.
type ResolveResponse struct {
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"`
	Via        string `json:"via,omitempty"`
	Applied    bool   `json:"applied"`
}

// ApprovalStatusResponse is the polling view of one approval.
type ApprovalStatusResponse struct {
	ApprovalID       string   `json:"approval_id"`
	Status           string   `json:"status"`
	RemainingSeconds int      `json:"remaining_seconds,omitempty"`
	Methods          []string `json:"methods,omitempty"`
	ResolvedVia      string   `json:"resolved_via,omitempty"`
}

// --- Status surface ---

// RuleStatus reports one rule's effective settings.
type RuleStatus struct {
	Enabled bool   `json:"enabled"`
	Action  string `json:"action,omitempty"`
}

// StatusResponse reports configuration validity and rule enablement.
type StatusResponse struct {
	Enabled          bool                  `json:"enabled"`
	Mode             string                `json:"mode"`
	ConfigValid      bool                  `json:"config_valid"`
	ConfigErrors     []string              `json:"config_errors"`
	Rules            map[string]RuleStatus `json:"rules"`
	PendingApprovals int                   `json:"pending_approvals"`
}

// --- Admin surface ---

// CreateKeyRequest is the JSON body for POST /api/warden/keys.
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreateKeyResponse carries the plaintext key, shown exactly once.
type CreateKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
}

// RuleSettingRequest is the JSON body for PUT /api/warden/rules/{rule_name}.
// Nil enabled means "use the rule's default".
type RuleSettingRequest struct {
	Enabled  *bool  `json:"enabled"`
	Action   string `json:"action,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// RuleSettingResponse echoes the stored override.
type RuleSettingResponse struct {
	RuleName string `json:"rule_name"`
	Enabled  bool   `json:"enabled"`
	Action   string `json:"action,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
