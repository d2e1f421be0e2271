package rules

import (
	"context"
	"fmt"
	"regexp"

	"github.com/harbinger-sec/warden/internal/classify"
)

// PII patterns scanned against raw tool arguments.
var piiPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`), "SSN"},
	{regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "credit card (Visa)"},
	{regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "credit card (Mastercard)"},
	{regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`), "credit card (Amex)"},
	{regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), "email address"},
}

// PIIRule flags personal data flowing out through tool arguments. Warn-level:
// visible to the caller but not blocking.
type PIIRule struct{}

func NewPIIRule() *PIIRule {
	return &PIIRule{}
}

func (r *PIIRule) Name() string { return "pii" }

func (r *PIIRule) DefaultAction() classify.Action { return classify.ActionWarn }

func (r *PIIRule) Inspect(ctx context.Context, call *classify.CallContext) ([]classify.Detection, error) {
	args := string(call.Arguments)
	var dets []classify.Detection

	for _, p := range piiPatterns {
		if ctx.Err() != nil {
			return dets, nil
		}
		if p.re.MatchString(args) {
			dets = append(dets, classify.Detection{
				Rule:     r.Name(),
				Category: "pii",
				Severity: classify.SeverityMedium,
				Reason:   fmt.Sprintf("PII in arguments: %s", p.detail),
			})
		}
	}

	return dets, nil
}
