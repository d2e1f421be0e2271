package rules

import (
	"context"
	"regexp"

	"github.com/harbinger-sec/warden/internal/classify"
)

// Upload / beaconing patterns: tool arguments that ship local data to an
// external host.
var exfiltrationPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)\bcurl\b[^|]*(-d|--data|--data-binary|-F|--form|-T|--upload-file)\b`), "curl data upload"},
	{regexp.MustCompile(`(?i)\bwget\b[^|]*--post-(data|file)\b`), "wget POST"},
	{regexp.MustCompile(`(?i)\b(nc|ncat|netcat)\b\s+\S+\s+\d+\s*<`), "netcat file push"},
	{regexp.MustCompile(`(?i)\bscp\b\s+\S+\s+\S+@\S+:`), "scp to remote host"},
	{regexp.MustCompile(`(?i)/dev/tcp/\d+\.\d+\.\d+\.\d+/\d+`), "bash tcp redirect"},
	{regexp.MustCompile(`(?i)\bbase64\b.*\|\s*(curl|wget|nc)\b`), "encoded upload pipeline"},
}

// Sensitive local paths whose contents should not leave the machine.
var sensitivePathPattern = regexp.MustCompile(`(?i)(/etc/passwd|/etc/shadow|\.ssh/|\.aws/credentials|\.env\b|id_rsa)`)

// ExfiltrationRule flags tool calls that look like they push local data to an
// external destination. Defaults to confirm rather than block: legitimate
// deploy and backup flows match the same shapes.
type ExfiltrationRule struct{}

func NewExfiltrationRule() *ExfiltrationRule {
	return &ExfiltrationRule{}
}

func (r *ExfiltrationRule) Name() string { return "exfiltration" }

func (r *ExfiltrationRule) DefaultAction() classify.Action { return classify.ActionConfirm }

func (r *ExfiltrationRule) Inspect(ctx context.Context, call *classify.CallContext) ([]classify.Detection, error) {
	args := string(call.Arguments)
	var dets []classify.Detection

	for _, p := range exfiltrationPatterns {
		if ctx.Err() != nil {
			return dets, nil
		}
		if p.re.MatchString(args) {
			severity := classify.SeverityHigh
			reason := p.detail
			if sensitivePathPattern.MatchString(args) {
				severity = classify.SeverityCritical
				reason = p.detail + " touching sensitive path"
			}
			dets = append(dets, classify.Detection{
				Rule:     r.Name(),
				Category: "exfiltration",
				Severity: severity,
				Reason:   reason,
			})
		}
	}

	return dets, nil
}
