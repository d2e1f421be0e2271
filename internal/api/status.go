package api

import (
	"net/http"
	"strconv"

	"github.com/harbinger-sec/warden/internal/audit"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// handleAuditQuery implements GET /api/warden/audit. Entries come back
// newest-first; total_entries reflects the unfiltered trail size.
func (d *Dependencies) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		Category: r.URL.Query().Get("category"),
		Limit:    defaultAuditLimit,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limit must be a positive integer"})
			return
		}
		if n > maxAuditLimit {
			n = maxAuditLimit
		}
		q.Limit = n
	}

	writeJSON(w, http.StatusOK, d.Audit.Query(q))
}

// handleStatus implements GET /api/warden/status: configuration validity and
// rule enablement, without reimplementing validation.
func (d *Dependencies) handleStatus(w http.ResponseWriter, _ *http.Request) {
	errs := d.Config.Validate()
	if errs == nil {
		errs = []string{}
	}

	rules := make(map[string]RuleStatus, len(d.RuleNames))
	for _, name := range d.RuleNames {
		rs := d.Config.RuleSetting(name)
		rules[name] = RuleStatus{
			Enabled: rs.IsEnabled(),
			Action:  rs.Action,
		}
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Enabled:          d.Config.Enabled,
		Mode:             d.Config.Mode,
		ConfigValid:      len(errs) == 0,
		ConfigErrors:     errs,
		Rules:            rules,
		PendingApprovals: d.Coordinator.PendingCount(),
	})
}
