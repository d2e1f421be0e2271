package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/harbinger-sec/warden/internal/audit"
	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/harbinger-sec/warden/internal/enforce"
	"go.uber.org/zap"
)

// handleEnforce implements POST /v1/enforce.
// Auth middleware has already validated the Bearer key.
func (d *Dependencies) handleEnforce(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EnforceRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}
	if req.TimeoutSeconds < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "timeout_seconds must be positive"})
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	call := &classify.CallContext{
		ToolName:        req.ToolName,
		Arguments:       req.Arguments,
		RequestID:       requestID,
		TimeoutOverride: req.TimeoutSeconds,
	}
	if caller := callerFromContext(r.Context()); caller != nil {
		call.CallerKey = caller.KeyID
	}

	// Kill-switch short-circuits before classification: nothing is
	// examined and nothing is audited.
	if !d.Config.Enabled {
		writeJSON(w, http.StatusOK, EnforceResponse{
			Allowed:   true,
			RequestID: requestID,
			LatencyMs: latencyMs(start),
		})
		return
	}

	cls, err := d.Classifier.Classify(r.Context(), call, d.Config)
	if err != nil {
		// No verdict means no basis to allow. Fail closed and record it.
		d.Logger.Error("classification failed, denying",
			zap.String("tool", req.ToolName),
			zap.Error(err),
		)
		d.Audit.Append(enforce.AnnotateEntry(&audit.Entry{
			RequestID: requestID,
			ToolName:  req.ToolName,
			Action:    audit.ActionConfigError,
			Reason:    "classification failed: " + err.Error(),
		}, call))
		msg := "Tool call denied: classification unavailable."
		writeJSON(w, http.StatusOK, EnforceResponse{
			Allowed:   false,
			Message:   &msg,
			Logged:    true,
			RequestID: requestID,
			LatencyMs: latencyMs(start),
		})
		return
	}

	outcome := d.Router.Route(r.Context(), cls, call, d.Config)

	// Shadow mode: the real verdict is audited above, the caller sees
	// allowed. A pending approval created in shadow mode is cancelled so
	// the live table does not accumulate approvals nobody will answer.
	if d.Config.Mode == "shadow" && !outcome.Allowed {
		if outcome.Pending != nil {
			d.Coordinator.Cancel(outcome.Pending.ID, "shadow mode, approval not held")
		}
		writeJSON(w, http.StatusOK, EnforceResponse{
			Allowed:   true,
			Logged:    outcome.Logged,
			Shadow:    true,
			RequestID: requestID,
			Category:  cls.PrimaryCategory,
			Severity:  string(cls.Severity),
			LatencyMs: latencyMs(start),
		})
		return
	}

	if outcome.Pending != nil {
		t := outcome.Pending
		methods := make([]string, len(t.Methods))
		for i, m := range t.Methods {
			methods[i] = string(m)
		}
		writeJSON(w, http.StatusAccepted, PendingResponse{
			ApprovalID:     t.ID,
			TimeoutSeconds: int(t.Timeout / time.Second),
			Methods:        methods,
			Message:        outcome.Message,
			RequestID:      requestID,
		})
		return
	}

	var msg *string
	if outcome.Message != "" {
		m := outcome.Message
		msg = &m
	}
	writeJSON(w, http.StatusOK, EnforceResponse{
		Allowed:   outcome.Allowed,
		Message:   msg,
		Logged:    outcome.Logged,
		RequestID: requestID,
		Category:  cls.PrimaryCategory,
		Severity:  string(cls.Severity),
		LatencyMs: latencyMs(start),
	})
}

func latencyMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
