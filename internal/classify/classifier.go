package classify

import (
	"context"
	"sort"
	"time"

	"github.com/harbinger-sec/warden/internal/config"
	"go.uber.org/zap"
)

// Classifier inspects a tool call and produces an immutable verdict. The
// enforcement core only depends on this interface, so any rule engine
// (pattern, semantic, ML-assisted) can be substituted.
type Classifier interface {
	Classify(ctx context.Context, call *CallContext, cfg *config.Config) (*Classification, error)
}

// Rule is a single inspection strategy. Implementations must respect context
// deadlines and return quickly.
type Rule interface {
	// Name returns the rule's unique identifier (e.g., "destructive").
	Name() string

	// Inspect examines the call and returns findings, or nil when the
	// rule has nothing to say.
	Inspect(ctx context.Context, call *CallContext) ([]Detection, error)

	// DefaultAction is the action recommended when this rule fires,
	// before any per-rule config override.
	DefaultAction() Action
}

// RuleClassifier fans out a tool call to all registered rules in parallel and
// aggregates their findings into a Classification.
type RuleClassifier struct {
	rules   []Rule
	timeout time.Duration
	logger  *zap.Logger
}

// NewRuleClassifier creates a classifier with the given rules and per-call
// timeout.
func NewRuleClassifier(rules []Rule, timeout time.Duration, logger *zap.Logger) *RuleClassifier {
	return &RuleClassifier{
		rules:   rules,
		timeout: timeout,
		logger:  logger,
	}
}

// ruleOutput holds one rule's findings alongside its registration index so
// detections can be reported in deterministic rule order.
type ruleOutput struct {
	index      int
	name       string
	action     Action
	detections []Detection
	err        error
}

// Classify runs all enabled rules in parallel against the call and aggregates
// the findings. Rules that exceed the timeout are skipped; partial results
// are still aggregated.
//
// Each goroutine sends its result through a buffered channel sized for every
// rule, so late finishers never block and are simply never read once the
// deadline fires.
func (c *RuleClassifier) Classify(ctx context.Context, call *CallContext, cfg *config.Config) (*Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ch := make(chan ruleOutput, len(c.rules))

	launched := 0
	for i, rule := range c.rules {
		setting := cfg.RuleSetting(rule.Name())
		if !setting.IsEnabled() {
			continue
		}
		launched++
		go func(idx int, r Rule, rs config.RuleSetting) {
			dets, err := r.Inspect(ctx, call)
			applyRuleSetting(dets, rs)
			ch <- ruleOutput{
				index:      idx,
				name:       r.Name(),
				action:     effectiveAction(r, rs),
				detections: dets,
				err:        err,
			}
		}(i, rule, setting)
	}

	collected := make([]ruleOutput, 0, launched)
	remaining := launched
	for remaining > 0 {
		select {
		case out := <-ch:
			collected = append(collected, out)
			remaining--
		case <-ctx.Done():
			c.logger.Warn("rule timeout exceeded, aggregating partial results",
				zap.Duration("timeout", c.timeout),
			)
			remaining = 0
		}
	}

	// Detections are reported in rule registration order so ties resolve
	// deterministically regardless of goroutine scheduling.
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	return aggregate(collected, c.logger), nil
}

// applyRuleSetting rewrites detection severity when the rule setting
// overrides it.
func applyRuleSetting(dets []Detection, rs config.RuleSetting) {
	if rs.Severity == "" {
		return
	}
	for i := range dets {
		dets[i].Severity = Severity(rs.Severity)
	}
}

// effectiveAction returns the rule's action after any config override.
func effectiveAction(r Rule, rs config.RuleSetting) Action {
	if rs.Action != "" {
		return Action(rs.Action)
	}
	return r.DefaultAction()
}

// aggregate folds rule outputs into a Classification. The primary detection
// is the highest-severity one; on equal severity the earlier detection (in
// rule order) wins. The recommended action is the most restrictive action of
// any rule that fired.
func aggregate(outs []ruleOutput, logger *zap.Logger) *Classification {
	cls := &Classification{
		PrimaryCategory:   "none",
		Severity:          SeverityLow,
		RecommendedAction: ActionAllow,
	}

	var primary *Detection
	for _, out := range outs {
		if out.err != nil {
			logger.Warn("rule error",
				zap.String("rule", out.name),
				zap.Error(out.err),
			)
			continue
		}
		if len(out.detections) == 0 {
			continue
		}

		for i := range out.detections {
			det := &out.detections[i]
			cls.Detections = append(cls.Detections, *det)
			if primary == nil || det.Severity.Rank() > primary.Severity.Rank() {
				primary = det
			}
		}

		if out.action.strength() > cls.RecommendedAction.strength() {
			cls.RecommendedAction = out.action
		}
	}

	if primary != nil {
		cls.PrimaryCategory = primary.Category
		cls.Severity = primary.Severity
		cls.Reason = primary.Reason
	}

	return cls
}
