package enforce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/harbinger-sec/warden/internal/audit"
	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/harbinger-sec/warden/internal/config"
	"github.com/harbinger-sec/warden/internal/storage"
	"go.uber.org/zap"
)

// AnnotateEntry stamps shared call facts onto an audit entry before it is
// appended: a bounded preview plus SHA-256 of the raw arguments, and the
// authenticated caller when known.
func AnnotateEntry(e *audit.Entry, call *classify.CallContext) *audit.Entry {
	if len(call.Arguments) > 0 {
		sum := sha256.Sum256(call.Arguments)
		e.PayloadPreview = storage.TruncateReason(string(call.Arguments), storage.PayloadPreviewMaxLength)
		e.PayloadHash = hex.EncodeToString(sum[:])
	}
	if call.CallerKey != "" {
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
		e.Metadata["api_key_id"] = call.CallerKey
	}
	return e
}

// Handler is one enforcement strategy. Handlers never return errors: every
// failure inside a handler maps to a safe denied-or-logged Outcome.
type Handler interface {
	Handle(ctx context.Context, cls *classify.Classification, call *classify.CallContext, cfg *config.Config) Outcome
}

// blockHandler always denies.
type blockHandler struct {
	sink   audit.Store
	logger *zap.Logger
}

func (h *blockHandler) Handle(_ context.Context, cls *classify.Classification, call *classify.CallContext, _ *config.Config) Outcome {
	primary := primaryOf(cls)
	msg := blockMessage(primary)

	h.sink.Append(AnnotateEntry(&audit.Entry{
		RequestID: call.RequestID,
		ToolName:  call.ToolName,
		Category:  primary.Category,
		Severity:  string(primary.Severity),
		Action:    audit.ActionBlock,
		Reason:    primary.Reason,
	}, call))
	h.logger.Info("tool call blocked",
		zap.String("tool", call.ToolName),
		zap.String("category", primary.Category),
		zap.String("severity", string(primary.Severity)),
	)

	return Outcome{Allowed: false, Message: msg, Logged: true}
}

// warnHandler allows with a visible warning.
type warnHandler struct {
	sink   audit.Store
	logger *zap.Logger
}

func (h *warnHandler) Handle(_ context.Context, cls *classify.Classification, call *classify.CallContext, _ *config.Config) Outcome {
	primary := primaryOf(cls)

	h.sink.Append(AnnotateEntry(&audit.Entry{
		RequestID: call.RequestID,
		ToolName:  call.ToolName,
		Category:  primary.Category,
		Severity:  string(primary.Severity),
		Action:    audit.ActionWarn,
		Reason:    primary.Reason,
	}, call))

	return Outcome{Allowed: true, Message: warnMessage(primary), Logged: true}
}

// logHandler allows silently, recording the full detection list.
type logHandler struct {
	sink   audit.Store
	logger *zap.Logger
}

func (h *logHandler) Handle(_ context.Context, cls *classify.Classification, call *classify.CallContext, _ *config.Config) Outcome {
	entry := &audit.Entry{
		RequestID: call.RequestID,
		ToolName:  call.ToolName,
		Category:  cls.PrimaryCategory,
		Severity:  string(cls.Severity),
		Action:    audit.ActionLog,
		Reason:    cls.Reason,
	}

	if len(cls.Detections) > 0 {
		if raw, err := json.Marshal(cls.Detections); err == nil {
			entry.Metadata = map[string]string{"detections": string(raw)}
		}
	}

	h.sink.Append(AnnotateEntry(entry, call))
	return Outcome{Allowed: true, Logged: true}
}
