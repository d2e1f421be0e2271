package api

import (
	"net/http"

	"github.com/harbinger-sec/warden/internal/config"
	"go.uber.org/zap"
)

// handleCreateKey implements POST /api/warden/keys. The plaintext key is
// returned once; only its bcrypt hash is stored.
func (d *Dependencies) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name is required"})
		return
	}
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "persistence not configured"})
		return
	}

	key, plaintext, err := d.Store.CreateKey(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("key creation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "failed to create key"})
		return
	}

	d.Logger.Info("api key created",
		zap.String("key_id", key.ID),
		zap.String("name", key.Name),
	)
	writeJSON(w, http.StatusCreated, CreateKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		Key:       plaintext,
		KeyPrefix: key.KeyPrefix,
	})
}

// handleUpsertRuleSetting implements PUT /api/warden/rules/{rule_name}.
// Persisted overrides are merged into the effective config at startup.
func (d *Dependencies) handleUpsertRuleSetting(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("rule_name")

	var req RuleSettingRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Action != "" && !config.KnownAction(req.Action) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown action"})
		return
	}
	if req.Severity != "" && !config.KnownSeverity(req.Severity) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown severity"})
		return
	}
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "persistence not configured"})
		return
	}

	rs := config.RuleSetting{
		Enabled:  req.Enabled,
		Action:   req.Action,
		Severity: req.Severity,
	}
	if err := d.Store.UpsertRuleSetting(r.Context(), name, rs); err != nil {
		d.Logger.Error("rule setting upsert failed",
			zap.String("rule", name),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "failed to store rule setting"})
		return
	}

	d.Logger.Info("rule setting stored",
		zap.String("rule", name),
		zap.String("action", req.Action),
		zap.String("severity", req.Severity),
	)
	writeJSON(w, http.StatusOK, RuleSettingResponse{
		RuleName: name,
		Enabled:  rs.IsEnabled(),
		Action:   rs.Action,
		Severity: rs.Severity,
	})
}
