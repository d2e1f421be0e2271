// Package enforce turns a classification into exactly one enforcement
// outcome. The router picks one of four strategies (block, confirm, warn,
// log) from the recommended action; allow and the global kill-switch
// short-circuit before any strategy runs.
package enforce

import (
	"context"
	"fmt"

	"github.com/harbinger-sec/warden/internal/approval"
	"github.com/harbinger-sec/warden/internal/audit"
	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/harbinger-sec/warden/internal/config"
	"go.uber.org/zap"
)

// Router dispatches a classified tool call to exactly one handler.
type Router struct {
	block   Handler
	warn    Handler
	log     Handler
	confirm Handler

	sink   audit.Store
	logger *zap.Logger
}

// NewRouter wires the four handlers over the shared audit sink and approval
// coordinator.
func NewRouter(sink audit.Store, coord *approval.Coordinator, logger *zap.Logger) *Router {
	return &Router{
		block:   &blockHandler{sink: sink, logger: logger},
		warn:    &warnHandler{sink: sink, logger: logger},
		log:     &logHandler{sink: sink, logger: logger},
		confirm: &confirmHandler{coord: coord, sink: sink, logger: logger},
		sink:    sink,
		logger:  logger,
	}
}

// Route enforces the classification. When the kill-switch is off the call
// passes through before any handler side effect, unclassified and unaudited.
//
// An unrecognized action fails open: blocking legitimate traffic on an
// ambiguous verdict is worse than allowing it, but the ambiguity itself must
// stay visible, so it is audited loudly rather than mapped to a default.
func (r *Router) Route(ctx context.Context, cls *classify.Classification, call *classify.CallContext, cfg *config.Config) Outcome {
	if !cfg.Enabled {
		return Outcome{Allowed: true}
	}

	switch cls.RecommendedAction {
	case classify.ActionAllow:
		return Outcome{Allowed: true}
	case classify.ActionBlock:
		return r.block.Handle(ctx, cls, call, cfg)
	case classify.ActionConfirm:
		return r.confirm.Handle(ctx, cls, call, cfg)
	case classify.ActionWarn:
		return r.warn.Handle(ctx, cls, call, cfg)
	case classify.ActionLog:
		return r.log.Handle(ctx, cls, call, cfg)
	default:
		msg := fmt.Sprintf("Unknown action type: %s", cls.RecommendedAction)
		r.sink.Append(AnnotateEntry(&audit.Entry{
			RequestID: call.RequestID,
			ToolName:  call.ToolName,
			Category:  cls.PrimaryCategory,
			Severity:  string(cls.Severity),
			Action:    audit.ActionUnknownAction,
			Reason:    msg,
		}, call))
		r.logger.Warn("unknown recommended action, failing open",
			zap.String("action", string(cls.RecommendedAction)),
			zap.String("tool", call.ToolName),
		)
		return Outcome{Allowed: true, Message: msg, Logged: true}
	}
}
