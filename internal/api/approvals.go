package api

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/harbinger-sec/warden/internal/approval"
)

// handleResolveApproval implements POST /v1/approvals/{approval_id}/resolve.
// Each approval method's transport (native prompt, agent confirmation,
// webhook receiver) delivers its signal through this endpoint. The first
// signal wins; a late signal is a no-op that reports the prior outcome.
func (d *Dependencies) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("approval_id")

	var req ResolveRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	var decision approval.Decision
	switch req.Decision {
	case string(approval.DecisionApproved):
		decision = approval.DecisionApproved
	case string(approval.DecisionDenied):
		decision = approval.DecisionDenied
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "decision must be approved or denied"})
		return
	}

	via, ok := approval.ParseMethod(req.Via)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown approval method"})
		return
	}

	// While the approval is still pending, reject signals arriving through
	// a method that was never enabled for it.
	if status, ticket, _, err := d.Coordinator.Get(id); err == nil && status == approval.StatusPending {
		if !ticket.HasMethod(via) {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "method not enabled for this approval"})
			return
		}
	}

	res, applied, err := d.Coordinator.Resolve(id, decision, via)
	if errors.Is(err, approval.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "approval not found"})
		return
	}

	writeJSON(w, http.StatusOK, ResolveResponse{
		ApprovalID: id,
		Status:     string(res.Status),
		Via:        string(res.Via),
		Applied:    applied,
	})
}

// handleGetApproval implements GET /v1/approvals/{approval_id}, the polling
// side channel for observing resolution.
func (d *Dependencies) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("approval_id")

	status, ticket, res, err := d.Coordinator.Get(id)
	if errors.Is(err, approval.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "approval not found"})
		return
	}

	resp := ApprovalStatusResponse{
		ApprovalID: id,
		Status:     string(status),
	}
	if ticket != nil {
		remaining := time.Until(ticket.Deadline())
		if remaining < 0 {
			remaining = 0
		}
		resp.RemainingSeconds = int(math.Ceil(remaining.Seconds()))
		resp.Methods = make([]string, len(ticket.Methods))
		for i, m := range ticket.Methods {
			resp.Methods[i] = string(m)
		}
	} else {
		resp.ResolvedVia = string(res.Via)
	}

	writeJSON(w, http.StatusOK, resp)
}
