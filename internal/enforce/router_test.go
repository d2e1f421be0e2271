package enforce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/harbinger-sec/warden/internal/approval"
	"github.com/harbinger-sec/warden/internal/audit"
	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/harbinger-sec/warden/internal/config"
	"github.com/harbinger-sec/warden/internal/storage"
	"go.uber.org/zap"
)

func testRig(maxPending int) (*Router, *approval.Coordinator, *audit.MemoryStore) {
	sink := audit.NewMemoryStore(0)
	coord := approval.NewCoordinator(maxPending, sink, nil, zap.NewNop())
	return NewRouter(sink, coord, zap.NewNop()), coord, sink
}

func enabledConfig() *config.Config {
	return &config.Config{
		Enabled: true,
		Mode:    "enforce",
		Approval: config.ApprovalConfig{
			Methods:        []string{"native"},
			TimeoutSeconds: 30,
		},
	}
}

func destructiveClassification() *classify.Classification {
	return &classify.Classification{
		PrimaryCategory:   "destructive",
		Severity:          classify.SeverityCritical,
		RecommendedAction: classify.ActionBlock,
		Reason:            "command matches rm -rf",
		Detections: []classify.Detection{
			{Rule: "destructive", Category: "destructive", Severity: classify.SeverityCritical, Reason: "command matches rm -rf"},
		},
	}
}

func testCall() *classify.CallContext {
	return &classify.CallContext{
		ToolName:  "run_shell",
		RequestID: "req-1",
	}
}

func TestRoute_KillSwitchBypassesEverything(t *testing.T) {
	r, _, sink := testRig(10)
	cfg := enabledConfig()
	cfg.Enabled = false

	out := r.Route(context.Background(), destructiveClassification(), testCall(), cfg)

	if !out.Allowed {
		t.Error("disabled enforcement must allow")
	}
	if out.Logged {
		t.Error("disabled enforcement must not audit")
	}
	if got := sink.Query(audit.Query{}).TotalEntries; got != 0 {
		t.Errorf("expected no audit entries, got %d", got)
	}
}

func TestRoute_AllowIsSilent(t *testing.T) {
	r, _, sink := testRig(10)
	cls := &classify.Classification{
		PrimaryCategory:   "none",
		Severity:          classify.SeverityLow,
		RecommendedAction: classify.ActionAllow,
	}

	out := r.Route(context.Background(), cls, testCall(), enabledConfig())

	if !out.Allowed || out.Logged || out.Message != "" {
		t.Errorf("allow should be a silent pass, got %+v", out)
	}
	if got := sink.Query(audit.Query{}).TotalEntries; got != 0 {
		t.Errorf("expected no audit entries, got %d", got)
	}
}

func TestRoute_BlockDeniesWithAudit(t *testing.T) {
	r, _, sink := testRig(10)

	out := r.Route(context.Background(), destructiveClassification(), testCall(), enabledConfig())

	if out.Allowed {
		t.Error("block must deny")
	}
	if !strings.Contains(out.Message, "Tool call blocked") {
		t.Errorf("message missing block prefix: %q", out.Message)
	}
	if !strings.Contains(out.Message, "Destructive") || !strings.Contains(out.Message, "rm -rf") {
		t.Errorf("message missing category or reason: %q", out.Message)
	}

	q := sink.Query(audit.Query{})
	if q.TotalEntries != 1 {
		t.Fatalf("expected 1 audit entry, got %d", q.TotalEntries)
	}
	e := q.Entries[0]
	if e.Action != audit.ActionBlock || e.Category != "destructive" || e.Severity != "critical" {
		t.Errorf("unexpected audit entry: %+v", e)
	}
}

func TestRoute_WarnAllowsWithMessage(t *testing.T) {
	r, _, sink := testRig(10)
	cls := &classify.Classification{
		PrimaryCategory:   "pii",
		Severity:          classify.SeverityMedium,
		RecommendedAction: classify.ActionWarn,
		Reason:            "arguments contain an email address",
		Detections: []classify.Detection{
			{Rule: "pii", Category: "pii", Severity: classify.SeverityMedium, Reason: "arguments contain an email address"},
		},
	}

	out := r.Route(context.Background(), cls, testCall(), enabledConfig())

	if !out.Allowed {
		t.Error("warn must allow")
	}
	if !strings.HasPrefix(out.Message, "Warning: ") {
		t.Errorf("missing warning prefix: %q", out.Message)
	}
	if sink.Query(audit.Query{}).Entries[0].Action != audit.ActionWarn {
		t.Error("expected warn audit entry")
	}
}

func TestRoute_LogAllowsSilentlyWithDetections(t *testing.T) {
	r, _, sink := testRig(10)
	cls := &classify.Classification{
		PrimaryCategory:   "exfiltration",
		Severity:          classify.SeverityLow,
		RecommendedAction: classify.ActionLog,
		Reason:            "base64 pipe",
		Detections: []classify.Detection{
			{Rule: "exfiltration", Category: "exfiltration", Severity: classify.SeverityLow, Reason: "base64 pipe"},
		},
	}

	out := r.Route(context.Background(), cls, testCall(), enabledConfig())

	if !out.Allowed || out.Message != "" {
		t.Errorf("log should allow with no message, got %+v", out)
	}
	e := sink.Query(audit.Query{}).Entries[0]
	if e.Action != audit.ActionLog {
		t.Errorf("expected log action, got %s", e.Action)
	}
	if e.Metadata["detections"] == "" {
		t.Error("full detection list should be recorded")
	}
	if !strings.Contains(e.Metadata["detections"], "base64 pipe") {
		t.Errorf("detections metadata missing reason: %q", e.Metadata["detections"])
	}
}

func TestRoute_UnknownActionFailsOpenLoudly(t *testing.T) {
	r, _, sink := testRig(10)
	cls := &classify.Classification{
		PrimaryCategory:   "destructive",
		Severity:          classify.SeverityCritical,
		RecommendedAction: classify.Action("quarantine"),
	}

	out := r.Route(context.Background(), cls, testCall(), enabledConfig())

	if !out.Allowed {
		t.Error("unknown action must fail open")
	}
	if !strings.Contains(out.Message, "Unknown action type: quarantine") {
		t.Errorf("unexpected message: %q", out.Message)
	}
	e := sink.Query(audit.Query{}).Entries[0]
	if e.Action != audit.ActionUnknownAction {
		t.Errorf("expected unknown_action audit entry, got %s", e.Action)
	}
}

func TestRoute_ConfirmRegistersPendingApproval(t *testing.T) {
	r, coord, sink := testRig(10)
	cls := &classify.Classification{
		PrimaryCategory:   "purchase",
		Severity:          classify.SeverityHigh,
		RecommendedAction: classify.ActionConfirm,
		Reason:            "tool initiates a payment",
		Detections: []classify.Detection{
			{Rule: "purchase", Category: "purchase", Severity: classify.SeverityHigh, Reason: "tool initiates a payment"},
		},
	}

	out := r.Route(context.Background(), cls, testCall(), enabledConfig())

	if out.Allowed {
		t.Error("confirm must deny until resolved")
	}
	if out.Pending == nil {
		t.Fatal("expected a pending ticket")
	}
	if out.Pending.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", out.Pending.Timeout)
	}
	if !strings.Contains(out.Message, "Approval required") || !strings.Contains(out.Message, "native") {
		t.Errorf("unexpected message: %q", out.Message)
	}
	if coord.PendingCount() != 1 {
		t.Errorf("expected 1 pending approval, got %d", coord.PendingCount())
	}

	e := sink.Query(audit.Query{}).Entries[0]
	if e.Action != audit.ActionConfirm {
		t.Errorf("expected confirm audit entry, got %s", e.Action)
	}
	if e.Metadata["approval_id"] != out.Pending.ID {
		t.Error("initial entry should reference the approval id")
	}
	if e.ID != out.Pending.AuditID {
		t.Error("ticket should carry the initial entry id")
	}
}

func TestRoute_ConfirmTimeoutOverride(t *testing.T) {
	r, _, _ := testRig(10)
	cls := &classify.Classification{
		PrimaryCategory:   "purchase",
		Severity:          classify.SeverityHigh,
		RecommendedAction: classify.ActionConfirm,
	}
	call := testCall()
	call.TimeoutOverride = 5

	out := r.Route(context.Background(), cls, call, enabledConfig())

	if out.Pending == nil {
		t.Fatal("expected a pending ticket")
	}
	if out.Pending.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want per-call 5s", out.Pending.Timeout)
	}
}

func TestRoute_ConfirmNoUsableMethodDenies(t *testing.T) {
	r, coord, sink := testRig(10)
	cls := &classify.Classification{
		PrimaryCategory:   "purchase",
		Severity:          classify.SeverityHigh,
		RecommendedAction: classify.ActionConfirm,
	}
	cfg := enabledConfig()
	// webhook without a URL is not usable
	cfg.Approval.Methods = []string{"webhook", "carrier_pigeon"}
	cfg.Approval.WebhookURL = ""

	out := r.Route(context.Background(), cls, testCall(), cfg)

	if out.Allowed {
		t.Error("confirm without a usable method must deny")
	}
	if out.Pending != nil {
		t.Error("no ticket should be registered")
	}
	if coord.PendingCount() != 0 {
		t.Error("live table should stay empty")
	}
	if sink.Query(audit.Query{}).Entries[0].Action != audit.ActionConfigError {
		t.Error("expected configuration_error audit entry")
	}
}

func TestRoute_ConfirmCapacityExceededDenies(t *testing.T) {
	r, coord, sink := testRig(1)
	cls := &classify.Classification{
		PrimaryCategory:   "purchase",
		Severity:          classify.SeverityHigh,
		RecommendedAction: classify.ActionConfirm,
	}
	cfg := enabledConfig()

	first := r.Route(context.Background(), cls, testCall(), cfg)
	if first.Pending == nil {
		t.Fatal("first confirm should register")
	}

	out := r.Route(context.Background(), cls, testCall(), cfg)

	if out.Allowed || out.Pending != nil {
		t.Errorf("over-capacity confirm must deny without a ticket, got %+v", out)
	}
	if coord.PendingCount() != 1 {
		t.Errorf("expected table unchanged at 1, got %d", coord.PendingCount())
	}
	if sink.Query(audit.Query{}).Entries[0].Action != audit.ActionCapacityExceeded {
		t.Error("expected capacity_exceeded audit entry")
	}
}

func TestRoute_EntriesCarryPayloadAndCaller(t *testing.T) {
	r, _, sink := testRig(10)
	call := testCall()
	call.Arguments = json.RawMessage(`{"command":"rm -rf /var/data"}`)
	call.CallerKey = "key-42"

	r.Route(context.Background(), destructiveClassification(), call, enabledConfig())

	e := sink.Query(audit.Query{}).Entries[0]
	if e.PayloadPreview != string(call.Arguments) {
		t.Errorf("payload_preview = %q", e.PayloadPreview)
	}
	sum := sha256.Sum256(call.Arguments)
	if e.PayloadHash != hex.EncodeToString(sum[:]) {
		t.Errorf("payload_hash = %q does not match the arguments", e.PayloadHash)
	}
	if e.Metadata["api_key_id"] != "key-42" {
		t.Errorf("api_key_id = %q", e.Metadata["api_key_id"])
	}
}

func TestAnnotateEntry_TruncatesPreviewKeepsFullHash(t *testing.T) {
	long := `{"data":"` + strings.Repeat("x", 1000) + `"}`
	call := testCall()
	call.Arguments = json.RawMessage(long)

	e := AnnotateEntry(&audit.Entry{Action: audit.ActionLog}, call)

	if got := len([]rune(e.PayloadPreview)); got != storage.PayloadPreviewMaxLength {
		t.Errorf("preview length = %d, want %d", got, storage.PayloadPreviewMaxLength)
	}
	sum := sha256.Sum256([]byte(long))
	if e.PayloadHash != hex.EncodeToString(sum[:]) {
		t.Error("hash must cover the full untruncated arguments")
	}
}

func TestAnnotateEntry_EmptyArgumentsStaySilent(t *testing.T) {
	e := AnnotateEntry(&audit.Entry{Action: audit.ActionLog}, testCall())
	if e.PayloadPreview != "" || e.PayloadHash != "" {
		t.Errorf("no arguments must mean no payload fields: %+v", e)
	}
	if _, ok := e.Metadata["api_key_id"]; ok {
		t.Error("no caller must mean no api_key_id")
	}
}

func TestPrimaryOf_HighestSeverityFirstWins(t *testing.T) {
	cls := &classify.Classification{
		Detections: []classify.Detection{
			{Category: "pii", Severity: classify.SeverityMedium, Reason: "first medium"},
			{Category: "injection", Severity: classify.SeverityHigh, Reason: "first high"},
			{Category: "exfiltration", Severity: classify.SeverityHigh, Reason: "second high"},
		},
	}

	primary := primaryOf(cls)
	if primary.Reason != "first high" {
		t.Errorf("ties must keep the earlier detection, got %q", primary.Reason)
	}
}

func TestDisplayCategory(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"data_exfiltration", "Data Exfiltration"},
		{"destructive", "Destructive"},
		{"", "Unclassified"},
	}
	for _, tc := range cases {
		if got := displayCategory(tc.in); got != tc.want {
			t.Errorf("displayCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
