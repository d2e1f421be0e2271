package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Enabled {
		t.Error("enforcement should default on")
	}
	if cfg.Mode != "enforce" {
		t.Errorf("mode = %q, want enforce", cfg.Mode)
	}
	if len(cfg.Approval.Methods) != 1 || cfg.Approval.Methods[0] != "native" {
		t.Errorf("methods = %v, want [native]", cfg.Approval.Methods)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should validate: %v", errs)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
enabled: true
mode: shadow
approval:
  methods: [native, webhook]
  timeout_seconds: 60
  webhook_url: https://approvals.example.com/hook
rules:
  pii:
    enabled: false
  exfiltration:
    action: block
    severity: critical
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Mode != "shadow" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Approval.TimeoutSeconds != 60 {
		t.Errorf("timeout = %d", cfg.Approval.TimeoutSeconds)
	}
	if cfg.RuleSetting("pii").IsEnabled() {
		t.Error("pii should be disabled")
	}
	if rs := cfg.RuleSetting("exfiltration"); rs.Action != "block" || rs.Severity != "critical" {
		t.Errorf("exfiltration overrides not applied: %+v", rs)
	}
	if cfg.RuleSetting("destructive").IsEnabled() != true {
		t.Error("unconfigured rule should default enabled")
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("config should validate: %v", errs)
	}
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := writeConfigFile(t, `
enabled: true
mode: enforce
approval:
  methods: [native]
  timeout_seconds: 60
`)
	t.Setenv("WARDEN_ENABLED", "false")
	t.Setenv("WARDEN_MODE", "shadow")
	t.Setenv("WARDEN_APPROVAL_METHODS", "native, agent_confirm")
	t.Setenv("WARDEN_APPROVAL_TIMEOUT_S", "15")
	t.Setenv("WARDEN_MAX_PENDING", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Enabled {
		t.Error("WARDEN_ENABLED=false should win over the file")
	}
	if cfg.Mode != "shadow" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if len(cfg.Approval.Methods) != 2 || cfg.Approval.Methods[1] != "agent_confirm" {
		t.Errorf("methods = %v", cfg.Approval.Methods)
	}
	if cfg.Approval.TimeoutSeconds != 15 {
		t.Errorf("timeout = %d", cfg.Approval.TimeoutSeconds)
	}
	if cfg.Approval.EffectiveMaxPending() != 25 {
		t.Errorf("max pending = %d", cfg.Approval.EffectiveMaxPending())
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEffectiveDefaults(t *testing.T) {
	var ac ApprovalConfig

	if got := ac.EffectiveTimeoutSeconds(); got != DefaultApprovalTimeoutSeconds {
		t.Errorf("timeout default = %d", got)
	}
	if got := ac.EffectiveMaxPending(); got != DefaultMaxPendingApprovals {
		t.Errorf("max pending default = %d", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "unknown mode",
			cfg: Config{
				Mode:     "dry_run",
				Approval: ApprovalConfig{Methods: []string{"native"}},
			},
			want: `unknown mode "dry_run"`,
		},
		{
			name: "unknown method",
			cfg: Config{
				Mode:     "enforce",
				Approval: ApprovalConfig{Methods: []string{"native", "sms"}},
			},
			want: `unknown method "sms"`,
		},
		{
			name: "webhook without url",
			cfg: Config{
				Mode:     "enforce",
				Approval: ApprovalConfig{Methods: []string{"webhook"}},
			},
			want: "webhook enabled without webhook_url",
		},
		{
			name: "no usable method",
			cfg: Config{
				Mode:     "enforce",
				Approval: ApprovalConfig{Methods: []string{"webhook"}},
			},
			want: "no usable approval method",
		},
		{
			name: "bad rule action",
			cfg: Config{
				Mode:     "enforce",
				Approval: ApprovalConfig{Methods: []string{"native"}},
				Rules:    map[string]RuleSetting{"pii": {Action: "explode"}},
			},
			want: `rules.pii.action: unknown action "explode"`,
		},
		{
			name: "bad rule severity",
			cfg: Config{
				Mode:     "enforce",
				Approval: ApprovalConfig{Methods: []string{"native"}},
				Rules:    map[string]RuleSetting{"pii": {Severity: "catastrophic"}},
			},
			want: `rules.pii.severity: unknown severity "catastrophic"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.cfg.Validate()
			found := false
			for _, e := range errs {
				if strings.Contains(e, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error containing %q, got %v", tt.want, errs)
			}
		})
	}
}
