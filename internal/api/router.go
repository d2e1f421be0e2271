package api

import (
	"net/http"
	"time"

	"github.com/harbinger-sec/warden/internal/approval"
	"github.com/harbinger-sec/warden/internal/audit"
	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/harbinger-sec/warden/internal/config"
	"github.com/harbinger-sec/warden/internal/enforce"
	"github.com/harbinger-sec/warden/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Classifier  classify.Classifier
	Router      *enforce.Router
	Coordinator *approval.Coordinator
	Audit       audit.Store
	Config      *config.Config
	Store       *store.Store // nil: dev-mode auth, no persisted keys
	RuleNames   []string
	Logger      *zap.Logger
	CacheTTL    time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Enforcement boundary (auth required via Bearer wsk_ key)
	mux.HandleFunc("POST /v1/enforce", deps.authMiddleware(deps.handleEnforce))

	// Approval resolution channels (auth required)
	mux.HandleFunc("POST /v1/approvals/{approval_id}/resolve", deps.authMiddleware(deps.handleResolveApproval))
	mux.HandleFunc("GET /v1/approvals/{approval_id}", deps.authMiddleware(deps.handleGetApproval))

	// Admin surface (auth required, backed by Postgres)
	mux.HandleFunc("POST /api/warden/keys", deps.authMiddleware(deps.handleCreateKey))
	mux.HandleFunc("PUT /api/warden/rules/{rule_name}", deps.authMiddleware(deps.handleUpsertRuleSetting))

	// Audit & status (no auth, dashboard auth added later)
	mux.HandleFunc("GET /api/warden/audit", deps.handleAuditQuery)
	mux.HandleFunc("GET /api/warden/status", deps.handleStatus)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
