package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/harbinger-sec/warden/internal/classify"
)

// Function names that should never be invoked by an autonomous agent.
var destructiveFunctionNames = map[string]bool{
	"exec":       true,
	"eval":       true,
	"system":     true,
	"popen":      true,
	"subprocess": true,
	"os.system":  true,
	"os.exec":    true,
	"rm":         true,
	"rmdir":      true,
	"del":        true,
	"format":     true,
	"fdisk":      true,
	"mkfs":       true,
	"dd":         true,
	"shutdown":   true,
	"reboot":     true,
	"kill":       true,
	"killall":    true,
}

// Destructive shell invocations inside arguments.
var destructivePatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\b`), "rm -rf"},
	{regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`), "filesystem format"},
	{regexp.MustCompile(`(?i)\bdd\s+if=`), "raw disk write"},
	{regexp.MustCompile(`(?i)\bchmod\s+777\b`), "chmod 777"},
	{regexp.MustCompile(`(?i)\b(shutdown|reboot|halt)\b`), "host shutdown"},
	{regexp.MustCompile(`(?i):\(\)\s*\{\s*:\|:&\s*\}\s*;:`), "fork bomb"},
	{regexp.MustCompile(`(?i)\b(DROP|TRUNCATE)\s+(TABLE|DATABASE|SCHEMA)\b`), "destructive SQL"},
}

// DestructiveRule flags tool calls that would destroy data or take down the
// host.
type DestructiveRule struct{}

func NewDestructiveRule() *DestructiveRule {
	return &DestructiveRule{}
}

func (r *DestructiveRule) Name() string { return "destructive" }

func (r *DestructiveRule) DefaultAction() classify.Action { return classify.ActionBlock }

func (r *DestructiveRule) Inspect(ctx context.Context, call *classify.CallContext) ([]classify.Detection, error) {
	var dets []classify.Detection

	if destructiveFunctionNames[strings.ToLower(call.ToolName)] {
		dets = append(dets, classify.Detection{
			Rule:     r.Name(),
			Category: "destructive",
			Severity: classify.SeverityCritical,
			Reason:   fmt.Sprintf("tool %q is on the destructive function list", call.ToolName),
		})
	}

	args := string(call.Arguments)
	for _, p := range destructivePatterns {
		if ctx.Err() != nil {
			return dets, nil
		}
		if p.re.MatchString(args) {
			dets = append(dets, classify.Detection{
				Rule:     r.Name(),
				Category: "destructive",
				Severity: classify.SeverityCritical,
				Reason:   p.detail,
			})
		}
	}

	return dets, nil
}
