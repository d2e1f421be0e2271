package enforce

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/harbinger-sec/warden/internal/approval"
	"github.com/harbinger-sec/warden/internal/audit"
	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/harbinger-sec/warden/internal/config"
	"go.uber.org/zap"
)

// confirmHandler holds the call and registers a pending approval. The
// returned outcome denies the call at the moment of decision; only a later
// approved resolution flips it.
type confirmHandler struct {
	coord  *approval.Coordinator
	sink   audit.Store
	logger *zap.Logger
}

// usableMethods filters configured methods down to the ones that can
// actually carry a signal. Webhook needs a URL; unknown names are skipped.
func usableMethods(ac config.ApprovalConfig) []approval.Method {
	var methods []approval.Method
	for _, name := range ac.Methods {
		m, ok := approval.ParseMethod(name)
		if !ok {
			continue
		}
		if m == approval.MethodWebhook && ac.WebhookURL == "" {
			continue
		}
		methods = append(methods, m)
	}
	return methods
}

func (h *confirmHandler) Handle(_ context.Context, cls *classify.Classification, call *classify.CallContext, cfg *config.Config) Outcome {
	primary := primaryOf(cls)

	methods := usableMethods(cfg.Approval)
	if len(methods) == 0 {
		h.sink.Append(AnnotateEntry(&audit.Entry{
			RequestID: call.RequestID,
			ToolName:  call.ToolName,
			Category:  primary.Category,
			Severity:  string(primary.Severity),
			Action:    audit.ActionConfigError,
			Reason:    "approval required but no usable approval method is configured",
		}, call))
		h.logger.Error("confirm with no usable approval method, denying",
			zap.String("tool", call.ToolName),
		)
		return Outcome{
			Allowed: false,
			Message: "Approval required but no approval method is configured; denied.",
			Logged:  true,
		}
	}

	timeoutSeconds := cfg.Approval.EffectiveTimeoutSeconds()
	if call.TimeoutOverride > 0 {
		timeoutSeconds = call.TimeoutOverride
	}

	ticket := &approval.Ticket{
		ID:        uuid.New().String(),
		RequestID: call.RequestID,
		ToolName:  call.ToolName,
		Category:  primary.Category,
		Severity:  string(primary.Severity),
		Reason:    primary.Reason,
		CreatedAt: time.Now(),
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
		Methods:   methods,
		AuditID:   uuid.New().String(),
	}

	initial := AnnotateEntry(&audit.Entry{
		ID:        ticket.AuditID,
		RequestID: call.RequestID,
		ToolName:  call.ToolName,
		Category:  primary.Category,
		Severity:  string(primary.Severity),
		Action:    audit.ActionConfirm,
		Reason:    primary.Reason,
		Metadata:  map[string]string{"approval_id": ticket.ID},
	}, call)

	if err := h.coord.Register(ticket, initial); err != nil {
		if errors.Is(err, approval.ErrCapacityExceeded) {
			h.sink.Append(AnnotateEntry(&audit.Entry{
				RequestID: call.RequestID,
				ToolName:  call.ToolName,
				Category:  primary.Category,
				Severity:  string(primary.Severity),
				Action:    audit.ActionCapacityExceeded,
				Reason:    "pending approval capacity exceeded",
			}, call))
			h.logger.Warn("approval capacity exceeded, denying",
				zap.String("tool", call.ToolName),
			)
			return Outcome{
				Allowed: false,
				Message: "Approval capacity exceeded; tool call denied.",
				Logged:  true,
			}
		}

		h.sink.Append(AnnotateEntry(&audit.Entry{
			RequestID: call.RequestID,
			ToolName:  call.ToolName,
			Category:  primary.Category,
			Severity:  string(primary.Severity),
			Action:    audit.ActionConfigError,
			Reason:    err.Error(),
		}, call))
		return Outcome{
			Allowed: false,
			Message: "Approval could not be registered; tool call denied.",
			Logged:  true,
		}
	}

	return Outcome{
		Allowed: false,
		Message: confirmMessage(primary, methods, timeoutSeconds),
		Logged:  true,
		Pending: ticket,
	}
}
