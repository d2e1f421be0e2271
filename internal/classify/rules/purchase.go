package rules

import (
	"context"
	"regexp"
	"strings"

	"github.com/harbinger-sec/warden/internal/classify"
)

// Tool names that move money.
var paymentToolNames = []string{
	"purchase", "buy", "checkout", "pay", "payment",
	"place_order", "create_order", "charge", "transfer", "refund",
	"subscribe",
}

// Payment intent inside arguments: card-present fields, amounts, payment APIs.
var paymentArgPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)"(amount|total|price)"\s*:\s*\d`), "monetary amount in arguments"},
	{regexp.MustCompile(`(?i)"(card_number|cvv|iban)"\s*:`), "payment instrument in arguments"},
	{regexp.MustCompile(`(?i)\b(stripe|paypal|braintree)\.(com|api)`), "payment API endpoint"},
	{regexp.MustCompile(`(?i)\bplace\s+an?\s+order\b`), "order placement"},
}

// PurchaseRule flags tool calls that spend money. These are never blocked
// outright; a human signs off through the confirm path.
type PurchaseRule struct{}

func NewPurchaseRule() *PurchaseRule {
	return &PurchaseRule{}
}

func (r *PurchaseRule) Name() string { return "purchase" }

func (r *PurchaseRule) DefaultAction() classify.Action { return classify.ActionConfirm }

func (r *PurchaseRule) Inspect(ctx context.Context, call *classify.CallContext) ([]classify.Detection, error) {
	var dets []classify.Detection

	tool := strings.ToLower(call.ToolName)
	for _, name := range paymentToolNames {
		if tool == name || strings.HasPrefix(tool, name+"_") || strings.HasSuffix(tool, "_"+name) {
			dets = append(dets, classify.Detection{
				Rule:     r.Name(),
				Category: "purchase",
				Severity: classify.SeverityHigh,
				Reason:   "tool " + call.ToolName + " initiates a payment",
			})
			break
		}
	}

	args := string(call.Arguments)
	for _, p := range paymentArgPatterns {
		if ctx.Err() != nil {
			return dets, nil
		}
		if p.re.MatchString(args) {
			dets = append(dets, classify.Detection{
				Rule:     r.Name(),
				Category: "purchase",
				Severity: classify.SeverityHigh,
				Reason:   p.detail,
			})
			break
		}
	}

	return dets, nil
}
