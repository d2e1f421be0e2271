package rules

import (
	"context"
	"fmt"
	"regexp"

	"github.com/harbinger-sec/warden/internal/classify"
)

// SQL injection patterns in tool arguments.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
	regexp.MustCompile(`(?i);\s*(DROP|DELETE|TRUNCATE|ALTER|INSERT|UPDATE)\b`),
	regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)\bOR\s+'[^']*'\s*=\s*'[^']*'`),
	regexp.MustCompile(`(?i)\bxp_cmdshell\b`),
	regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`),
	regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`),
}

// Command injection patterns in tool arguments.
var commandInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[;&|]\s*(cat|ls|pwd|whoami|id|uname|curl|wget|nc|ncat|bash|sh|zsh|python|perl|ruby|php)\b`),
	regexp.MustCompile("`[^`]+`"),            // Backtick command substitution
	regexp.MustCompile(`\$\([^)]+\)`),        // $() command substitution
	regexp.MustCompile(`\|\s*(bash|sh|zsh)`), // Pipe to shell
	regexp.MustCompile(`>\s*/etc/`),          // Write to /etc/
}

// InjectionRule flags SQL and shell injection attempts smuggled through tool
// arguments.
type InjectionRule struct{}

func NewInjectionRule() *InjectionRule {
	return &InjectionRule{}
}

func (r *InjectionRule) Name() string { return "injection" }

func (r *InjectionRule) DefaultAction() classify.Action { return classify.ActionBlock }

func (r *InjectionRule) Inspect(ctx context.Context, call *classify.CallContext) ([]classify.Detection, error) {
	args := string(call.Arguments)
	var dets []classify.Detection

	for _, re := range sqlInjectionPatterns {
		if ctx.Err() != nil {
			return dets, nil
		}
		if re.MatchString(args) {
			dets = append(dets, classify.Detection{
				Rule:     r.Name(),
				Category: "injection",
				Severity: classify.SeverityHigh,
				Reason:   fmt.Sprintf("SQL injection pattern in arguments: %s", re.String()),
			})
			break
		}
	}

	for _, re := range commandInjectionPatterns {
		if ctx.Err() != nil {
			return dets, nil
		}
		if re.MatchString(args) {
			dets = append(dets, classify.Detection{
				Rule:     r.Name(),
				Category: "injection",
				Severity: classify.SeverityHigh,
				Reason:   "command injection pattern in arguments",
			})
			break
		}
	}

	return dets, nil
}
