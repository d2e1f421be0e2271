package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultApprovalTimeoutSeconds is used when no timeout is configured.
const DefaultApprovalTimeoutSeconds = 300

// DefaultMaxPendingApprovals caps the coordinator's live table.
const DefaultMaxPendingApprovals = 1000

// Config is the effective enforcement configuration. It is loaded once at
// startup (or rebuilt on demand) and treated as a read-only snapshot by the
// enforcement core.
type Config struct {
	// Enabled is the master kill-switch. When false every tool call passes
	// through unexamined and unaudited.
	Enabled bool `yaml:"enabled"`

	// Mode is "enforce" or "shadow". In shadow mode the real verdict is
	// computed and audited but the caller always sees allowed.
	Mode string `yaml:"mode"`

	// Rules holds per-rule overrides keyed by rule name. A missing entry
	// means server defaults.
	Rules map[string]RuleSetting `yaml:"rules"`

	Approval ApprovalConfig `yaml:"approval"`
}

// RuleSetting controls a single classification rule. All pointer fields use
// nil to mean "use server default", matching how detector policies are
// overridden per project.
type RuleSetting struct {
	Enabled *bool `yaml:"enabled" json:"enabled"`

	// Action overrides the rule's recommended action ("block", "confirm",
	// "warn", "log"). Empty means the rule's built-in action.
	Action string `yaml:"action" json:"action"`

	// Severity overrides the rule's severity. Empty means built-in.
	Severity string `yaml:"severity" json:"severity"`
}

// IsEnabled returns whether the rule is enabled. Rules default to on.
func (rs RuleSetting) IsEnabled() bool {
	if rs.Enabled == nil {
		return true
	}
	return *rs.Enabled
}

// ApprovalConfig holds the settings for the confirm path.
type ApprovalConfig struct {
	// Methods lists the enabled approval channels: "native",
	// "agent_confirm", "webhook".
	Methods []string `yaml:"methods"`

	// TimeoutSeconds bounds how long a pending approval may wait for a
	// resolution signal before it is denied. Zero means the default.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// WebhookURL receives pending-approval notifications when the webhook
	// method is enabled.
	WebhookURL string `yaml:"webhook_url"`

	// MaxPending caps the coordinator's live table. Zero means the default.
	MaxPending int `yaml:"max_pending"`
}

// EffectiveTimeoutSeconds returns the configured timeout or the default.
func (ac ApprovalConfig) EffectiveTimeoutSeconds() int {
	if ac.TimeoutSeconds <= 0 {
		return DefaultApprovalTimeoutSeconds
	}
	return ac.TimeoutSeconds
}

// EffectiveMaxPending returns the configured live-table cap or the default.
func (ac ApprovalConfig) EffectiveMaxPending() int {
	if ac.MaxPending <= 0 {
		return DefaultMaxPendingApprovals
	}
	return ac.MaxPending
}

// RuleSetting returns the setting for a rule by name. A missing entry yields
// the zero value (all defaults).
func (c *Config) RuleSetting(name string) RuleSetting {
	if c == nil || c.Rules == nil {
		return RuleSetting{}
	}
	return c.Rules[name]
}

// Default returns the configuration used when nothing is provided:
// enforcement on, native approvals only.
func Default() *Config {
	return &Config{
		Enabled: true,
		Mode:    "enforce",
		Approval: ApprovalConfig{
			Methods: []string{"native"},
		},
	}
}

// Load builds the effective config from an optional YAML file and WARDEN_*
// environment overrides. Env wins over file, file wins over defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WARDEN_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = b
		}
	}
	if v := os.Getenv("WARDEN_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("WARDEN_APPROVAL_METHODS"); v != "" {
		parts := strings.Split(v, ",")
		methods := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				methods = append(methods, p)
			}
		}
		cfg.Approval.Methods = methods
	}
	if v := os.Getenv("WARDEN_APPROVAL_TIMEOUT_S"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Approval.TimeoutSeconds = i
		}
	}
	if v := os.Getenv("WARDEN_WEBHOOK_URL"); v != "" {
		cfg.Approval.WebhookURL = v
	}
	if v := os.Getenv("WARDEN_MAX_PENDING"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Approval.MaxPending = i
		}
	}
}

var knownMethods = map[string]bool{
	"native":        true,
	"agent_confirm": true,
	"webhook":       true,
}

var knownActions = map[string]bool{
	"allow":   true,
	"block":   true,
	"confirm": true,
	"warn":    true,
	"log":     true,
}

var knownSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// KnownAction reports whether s names a recognized enforcement action.
func KnownAction(s string) bool { return knownActions[s] }

// KnownSeverity reports whether s names a recognized severity.
func KnownSeverity(s string) bool { return knownSeverities[s] }

// Validate checks the configuration and returns every problem found. An
// empty slice means the config is usable. Validation never mutates the
// config.
func (c *Config) Validate() []string {
	var errs []string

	if c.Mode != "" && c.Mode != "enforce" && c.Mode != "shadow" {
		errs = append(errs, fmt.Sprintf("mode: unknown mode %q", c.Mode))
	}

	if c.Approval.TimeoutSeconds < 0 {
		errs = append(errs, "approval.timeout_seconds: must be positive")
	}
	if c.Approval.MaxPending < 0 {
		errs = append(errs, "approval.max_pending: must be positive")
	}

	usable := 0
	for _, m := range c.Approval.Methods {
		if !knownMethods[m] {
			errs = append(errs, fmt.Sprintf("approval.methods: unknown method %q", m))
			continue
		}
		if m == "webhook" && c.Approval.WebhookURL == "" {
			errs = append(errs, "approval.methods: webhook enabled without webhook_url")
			continue
		}
		usable++
	}
	if usable == 0 {
		errs = append(errs, "approval.methods: no usable approval method configured")
	}

	for name, rs := range c.Rules {
		if rs.Action != "" && !knownActions[rs.Action] {
			errs = append(errs, fmt.Sprintf("rules.%s.action: unknown action %q", name, rs.Action))
		}
		if rs.Severity != "" && !knownSeverities[rs.Severity] {
			errs = append(errs, fmt.Sprintf("rules.%s.severity: unknown severity %q", name, rs.Severity))
		}
	}

	return errs
}
